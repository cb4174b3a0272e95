// Package config provides YAML-based configuration loading for opwear nodes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the node/application
	AppName string `mapstructure:"app_name"`

	// NodeID is the local node identifier used for message addressing
	NodeID string `mapstructure:"node_id"`

	// NodeName is the display name advertised to peers during handshake
	NodeName string `mapstructure:"node_name"`

	// Role selects the side of the protocol: observer initiates connect,
	// observable passively accepts/rejects.
	Role string `mapstructure:"role"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Transport configures the UDP link and the static peer book
	Transport TransportConfig `mapstructure:"transport"`

	// Protocol holds handshake/liveness tuning
	Protocol ProtocolConfig `mapstructure:"protocol"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TransportConfig configures the UDP adapter.
type TransportConfig struct {
	// Listen address in host:port form
	Listen string `mapstructure:"listen"`
	// Peers is the static address book; connect() tries them in order
	Peers []PeerConfig `mapstructure:"peers"`
}

// PeerConfig identifies one reachable peer.
type PeerConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	Addr string `mapstructure:"addr"`
}

// ProtocolConfig holds handshake and liveness tuning knobs.
type ProtocolConfig struct {
	// MaxConnectionTry is the number of polling rounds per handshake attempt
	MaxConnectionTry int `mapstructure:"max_connection_try"`
	// AcknowledgementMS is the total per-attempt wait budget in milliseconds
	AcknowledgementMS int `mapstructure:"acknowledgement_ms"`
	// AutoValidation: none, acknowledge, or response
	AutoValidation string `mapstructure:"auto_validation"`
	// AutoValidationMS is the liveness check interval in milliseconds
	AutoValidationMS int `mapstructure:"auto_validation_ms"`
}

// AcknowledgementDuration returns the handshake wait budget as a duration.
func (p ProtocolConfig) AcknowledgementDuration() time.Duration {
	return time.Duration(p.AcknowledgementMS) * time.Millisecond
}

// AutoValidationDuration returns the liveness interval as a duration.
func (p ProtocolConfig) AutoValidationDuration() time.Duration {
	return time.Duration(p.AutoValidationMS) * time.Millisecond
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName:  "opwear-node",
		NodeID:   "node-1",
		NodeName: "opwear",
		Role:     "observable",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/opwear.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Transport: TransportConfig{Listen: ":7788"},
		Protocol: ProtocolConfig{
			MaxConnectionTry:  5,
			AcknowledgementMS: 1000,
			AutoValidation:    "none",
			AutoValidationMS:  1000,
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix OPWEAR and `.`/`-` are replaced with `_`.
// Example: OPWEAR_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("OPWEAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("node_id", cfg.NodeID)
	v.SetDefault("node_name", cfg.NodeName)
	v.SetDefault("role", cfg.Role)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("transport.listen", cfg.Transport.Listen)
	v.SetDefault("transport.peers", cfg.Transport.Peers)
	v.SetDefault("protocol.max_connection_try", cfg.Protocol.MaxConnectionTry)
	v.SetDefault("protocol.acknowledgement_ms", cfg.Protocol.AcknowledgementMS)
	v.SetDefault("protocol.auto_validation", cfg.Protocol.AutoValidation)
	v.SetDefault("protocol.auto_validation_ms", cfg.Protocol.AutoValidationMS)

	// Choose config file
	if path == "" {
		if envPath := os.Getenv("OPWEAR_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `opwear`
		v.SetConfigName("opwear")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".opwear"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if strings.TrimSpace(c.NodeID) == "" {
		c.NodeID = "node-1"
	}

	switch strings.ToLower(strings.TrimSpace(c.Role)) {
	case "observer", "observable":
		c.Role = strings.ToLower(strings.TrimSpace(c.Role))
	default:
		return fmt.Errorf("invalid role: %q", c.Role)
	}

	switch strings.ToLower(strings.TrimSpace(c.Protocol.AutoValidation)) {
	case "", "none":
		c.Protocol.AutoValidation = "none"
	case "acknowledge", "response":
		c.Protocol.AutoValidation = strings.ToLower(strings.TrimSpace(c.Protocol.AutoValidation))
	default:
		return fmt.Errorf("invalid protocol.auto_validation: %q", c.Protocol.AutoValidation)
	}
	if c.Protocol.MaxConnectionTry <= 0 {
		return fmt.Errorf("protocol.max_connection_try must be positive, got %d", c.Protocol.MaxConnectionTry)
	}
	if c.Protocol.AcknowledgementMS <= 0 {
		return fmt.Errorf("protocol.acknowledgement_ms must be positive, got %d", c.Protocol.AcknowledgementMS)
	}
	if c.Protocol.AutoValidationMS <= 0 {
		return fmt.Errorf("protocol.auto_validation_ms must be positive, got %d", c.Protocol.AutoValidationMS)
	}
	for i := range c.Transport.Peers {
		if strings.TrimSpace(c.Transport.Peers[i].ID) == "" {
			return fmt.Errorf("transport.peers[%d]: id is required", i)
		}
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
