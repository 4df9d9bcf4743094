package usecase

import (
	"context"
	"net/url"
	"regexp"

	"github.com/safepay-org/safepay/internal/domain/config"
)

const redacted = "********"

var dsnPassword = regexp.MustCompile(`(?i)(password=)\S+`)

// ShowConfigResult contains the result of showing configuration
type ShowConfigResult struct {
	Config     *config.RuntimeConfig
	ConfigPath string
	Exists     bool
}

// ShowConfig is a use case for showing the effective configuration
type ShowConfig struct {
	cfg *config.RuntimeConfig
}

// NewShowConfig creates a new ShowConfig use case
func NewShowConfig(cfg *config.RuntimeConfig) *ShowConfig {
	return &ShowConfig{
		cfg: cfg,
	}
}

// Run returns a copy of the runtime config with secrets redacted
func (uc *ShowConfig) Run(ctx context.Context) (*ShowConfigResult, error) {
	out := *uc.cfg
	out.Signer.PrivateKey = redact(out.Signer.PrivateKey)
	out.Webhook.Secret = redact(out.Webhook.Secret)
	out.Redis.Password = redact(out.Redis.Password)
	out.Safe.APIKey = redact(out.Safe.APIKey)
	out.Store.DSN = redactDSN(out.Store.DSN)
	out.Webhook.AllowedIPs = append([]string(nil), uc.cfg.Webhook.AllowedIPs...)

	return &ShowConfigResult{
		Config:     &out,
		ConfigPath: uc.cfg.ConfigFile,
		Exists:     uc.cfg.ConfigFile != "",
	}, nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}

// redactDSN hides the password of URL or key=value style DSNs
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
			return u.String()
		}
	}
	return dsnPassword.ReplaceAllString(dsn, "${1}"+redacted)
}
