package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, dir string, cmd *cobra.Command) *viper.Viper {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	t.Setenv("SAFEPAY_CONFIG", "")
	return SetupViper(cmd)
}

func TestProvider_Defaults(t *testing.T) {
	v := newViper(t, t.TempDir(), nil)

	cfg, err := Provider(v)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Redis.ReplayTTL)
	assert.Equal(t, "celo", cfg.Chains.Default)
	assert.Equal(t, 30*time.Second, cfg.Safe.HTTPTimeout)
	assert.Equal(t, 15*time.Second, cfg.Watcher.Interval)
	assert.Equal(t, 50, cfg.Watcher.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
	assert.Empty(t, cfg.ConfigFile)
	assert.Empty(t, cfg.Webhook.AllowedIPs)
}

func TestProvider_ConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "safepay.yaml"), []byte(`
server:
  addr: ":9090"
store:
  driver: sqlite
  dsn: file:test.db
chains:
  overlay_path: chains.toml
signer:
  private_key: ${TEST_SIGNER_KEY}
webhook:
  allowed_ips: ["10.0.0.1", "10.0.0.2"]
watcher:
  interval: 1m
`), 0o600))
	t.Setenv("TEST_SIGNER_KEY", "0xabc")
	t.Setenv("SAFEPAY_WATCHER_BATCH_SIZE", "5")
	t.Setenv("SAFEPAY_WEBHOOK_SECRET", "sk_test")

	v := newViper(t, dir, nil)
	cfg, err := Provider(v)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "0xabc", cfg.Signer.PrivateKey)
	assert.Equal(t, "sk_test", cfg.Webhook.Secret)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Webhook.AllowedIPs)
	assert.Equal(t, time.Minute, cfg.Watcher.Interval)
	assert.Equal(t, 5, cfg.Watcher.BatchSize)
	assert.Equal(t, filepath.Join(filepath.Dir(cfg.ConfigFile), "chains.toml"), cfg.Chains.OverlayPath)
	assert.NotEmpty(t, cfg.ConfigFile)
}

func TestProvider_Flags(t *testing.T) {
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().Bool("non-interactive", false, "")
	cmd.Flags().String("server-addr", "", "")
	require.NoError(t, cmd.Flags().Set("non-interactive", "true"))
	require.NoError(t, cmd.Flags().Set("server-addr", ":7000"))

	v := newViper(t, t.TempDir(), cmd)
	cfg, err := Provider(v)
	require.NoError(t, err)
	assert.True(t, cfg.NonInteractive)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestProvider_Errors(t *testing.T) {
	t.Run("unset secret reference", func(t *testing.T) {
		t.Setenv("SAFEPAY_SIGNER_PRIVATE_KEY", "${DEFINITELY_UNSET_SAFEPAY_VAR}")
		v := newViper(t, t.TempDir(), nil)
		_, err := Provider(v)
		assert.ErrorContains(t, err, "DEFINITELY_UNSET_SAFEPAY_VAR")
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("SAFEPAY_STORE_DRIVER", "mongo")
		v := newViper(t, t.TempDir(), nil)
		_, err := Provider(v)
		assert.ErrorContains(t, err, "unknown store driver")
	})

	t.Run("postgres requires a dsn", func(t *testing.T) {
		t.Setenv("SAFEPAY_STORE_DRIVER", "postgres")
		v := newViper(t, t.TempDir(), nil)
		_, err := Provider(v)
		assert.ErrorContains(t, err, "store.dsn")
	})
}

func TestProvider_PaystackSecretFallback(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_live_x")
	v := newViper(t, t.TempDir(), nil)
	cfg, err := Provider(v)
	require.NoError(t, err)
	assert.Equal(t, "sk_live_x", cfg.Webhook.Secret)
}

func TestFlagKey(t *testing.T) {
	assert.Equal(t, "non_interactive", flagKey("non-interactive"))
	assert.Equal(t, "store.driver", flagKey("store-driver"))
	assert.Equal(t, "webhook.disable_ip_check", flagKey("webhook-disable-ip-check"))
	assert.Equal(t, "json", flagKey("json"))
	assert.Equal(t, "server.addr", flagKey("addr"))
	assert.Empty(t, flagKey("safe"))
	assert.Empty(t, flagKey("chain-id"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a, b", "c", " "}))
	assert.Nil(t, splitList(nil))
}
