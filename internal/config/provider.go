package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/safepay-org/safepay/internal/domain/config"
)

// Provider creates RuntimeConfig for Wire dependency injection
func Provider(v *viper.Viper) (*config.RuntimeConfig, error) {
	cfg := &config.RuntimeConfig{
		Debug:          v.GetBool("debug"),
		NonInteractive: v.GetBool("non_interactive"),
		JSON:           v.GetBool("json"),
		Timeout:        v.GetDuration("timeout"),
		ConfigFile:     v.ConfigFileUsed(),
		Server: config.ServerConfig{
			Addr:            v.GetString("server.addr"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Store: config.StoreConfig{
			Driver: strings.ToLower(v.GetString("store.driver")),
			DSN:    v.GetString("store.dsn"),
		},
		Redis: config.RedisConfig{
			Addr:      v.GetString("redis.addr"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			ReplayTTL: v.GetDuration("redis.replay_ttl"),
		},
		Chains: config.ChainsConfig{
			OverlayPath: v.GetString("chains.overlay_path"),
			Default:     strings.ToLower(v.GetString("chains.default")),
		},
		Safe: config.SafeConfig{
			HTTPTimeout: v.GetDuration("safe.http_timeout"),
			RPCTimeout:  v.GetDuration("safe.rpc_timeout"),
		},
		Webhook: config.WebhookConfig{
			AllowedIPs:            splitList(v.GetStringSlice("webhook.allowed_ips")),
			DisableIPCheck:        v.GetBool("webhook.disable_ip_check"),
			DisableSignatureCheck: v.GetBool("webhook.disable_signature_check"),
		},
		Watcher: config.WatcherConfig{
			Interval:  v.GetDuration("watcher.interval"),
			BatchSize: v.GetInt("watcher.batch_size"),
		},
		Handshake: config.HandshakeConfig{
			WarmUp:   v.GetDuration("handshake.warm_up"),
			Timeout:  v.GetDuration("handshake.timeout"),
			Attempts: v.GetInt("handshake.attempts"),
			Delay:    v.GetDuration("handshake.delay"),
		},
		Log: config.LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}

	secrets := []struct {
		key    string
		target *string
	}{
		{"signer.private_key", &cfg.Signer.PrivateKey},
		{"webhook.secret", &cfg.Webhook.Secret},
		{"safe.api_key", &cfg.Safe.APIKey},
	}
	for _, s := range secrets {
		value, err := ExpandEnvRef(v.GetString(s.key))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", s.key, err)
		}
		*s.target = value
	}
	if cfg.Webhook.Secret == "" {
		cfg.Webhook.Secret = os.Getenv("PAYSTACK_SECRET_KEY")
	}

	if cfg.Chains.OverlayPath != "" && !filepath.IsAbs(cfg.Chains.OverlayPath) && cfg.ConfigFile != "" {
		cfg.Chains.OverlayPath = filepath.Join(filepath.Dir(cfg.ConfigFile), cfg.Chains.OverlayPath)
	}

	switch cfg.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unknown store driver %q (expected memory, sqlite or postgres)", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required for the postgres driver")
	}

	return cfg, nil
}

// SetupViper creates and configures a viper instance.
// Lookup order is flags, SAFEPAY_* environment, safepay.{yaml,toml,json}, then defaults.
func SetupViper(cmd *cobra.Command) *viper.Viper {
	v := viper.New()

	v.SetConfigName("safepay")
	path := os.Getenv("SAFEPAY_CONFIG")
	if cmd != nil {
		if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
			path = f.Value.String()
		}
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".safepay"))
		}
	}

	v.SetEnvPrefix("SAFEPAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults(v)

	// Try to read config file (ignore error if not found)
	_ = v.ReadInConfig()

	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			key := flagKey(f.Name)
			if key == "" {
				return
			}
			if err := v.BindPFlag(key, f); err != nil {
				panic(err)
			}
		})
	}

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("non_interactive", false)
	v.SetDefault("json", false)
	v.SetDefault("timeout", "5m")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("redis.replay_ttl", (24 * time.Hour).String())
	v.SetDefault("chains.default", "celo")
	v.SetDefault("safe.http_timeout", "30s")
	v.SetDefault("safe.rpc_timeout", "5s")
	v.SetDefault("watcher.interval", "15s")
	v.SetDefault("watcher.batch_size", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// globalFlags are the non-sectioned flags that map onto config keys
var globalFlags = map[string]string{
	"debug":           "debug",
	"non-interactive": "non_interactive",
	"json":            "json",
	"timeout":         "timeout",
	"addr":            "server.addr",
}

// flagKey maps a command flag to its config key, e.g. "non-interactive" to
// "non_interactive" and "store-driver" to "store.driver". Flags that are not
// configuration, such as --safe or --tx, map to "".
func flagKey(name string) string {
	if key, ok := globalFlags[name]; ok {
		return key
	}
	if section, rest, ok := strings.Cut(name, "-"); ok {
		switch section {
		case "server", "store", "redis", "chains", "signer", "safe", "webhook", "watcher", "handshake", "log":
			return section + "." + strings.ReplaceAll(rest, "-", "_")
		}
	}
	return ""
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
