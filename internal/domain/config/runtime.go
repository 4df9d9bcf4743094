package config

import (
	"time"
)

// RuntimeConfig represents the complete runtime configuration
// This is injected into use cases and contains all resolved settings
type RuntimeConfig struct {
	// Execution settings
	Debug          bool          `yaml:"debug"`
	NonInteractive bool          `yaml:"non_interactive"`
	JSON           bool          `yaml:"json"`
	Timeout        time.Duration `yaml:"timeout"`

	// Config source tracking
	ConfigFile string `yaml:"config_file,omitempty"`

	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Chains    ChainsConfig    `yaml:"chains"`
	Signer    SignerConfig    `yaml:"signer"`
	Safe      SafeConfig      `yaml:"safe"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Handshake HandshakeConfig `yaml:"handshake"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP action surface
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the document store
type StoreConfig struct {
	Driver string `yaml:"driver"` // postgres, sqlite or memory
	DSN    string `yaml:"dsn"`
}

// RedisConfig configures the webhook replay guard. An empty Addr disables it.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	ReplayTTL time.Duration `yaml:"replay_ttl"`
}

// ChainsConfig points at an optional TOML overlay for the chain registry
type ChainsConfig struct {
	OverlayPath string `yaml:"overlay_path"`
	Default     string `yaml:"default"`
}

// SignerConfig holds the local EOA key used for broadcasts and Safe proposals
type SignerConfig struct {
	PrivateKey string `yaml:"private_key"` //nolint:gosec // resolved from env, never written back
}

// SafeConfig configures the Safe Transaction Service client
type SafeConfig struct {
	APIKey      string        `yaml:"api_key"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	RPCTimeout  time.Duration `yaml:"rpc_timeout"`
}

// WebhookConfig configures the payment processor webhook gate
type WebhookConfig struct {
	Secret                string   `yaml:"secret"`
	AllowedIPs            []string `yaml:"allowed_ips"`
	DisableIPCheck        bool     `yaml:"disable_ip_check"`
	DisableSignatureCheck bool     `yaml:"disable_signature_check"`
}

// WatcherConfig configures the Safe execution watcher
type WatcherConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// HandshakeConfig bounds the Safe App handshake
type HandshakeConfig struct {
	WarmUp   time.Duration `yaml:"warm_up"`
	Timeout  time.Duration `yaml:"timeout"`
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// LogConfig configures slog output
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}
