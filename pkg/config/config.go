// Package config loads nfstrace configuration from file, environment, and
// defaults.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (NFSTRACE_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/nfstrace/nfstrace/internal/bytesize"
	"github.com/nfstrace/nfstrace/internal/decode"
)

// Config represents the nfstrace configuration: logging, decode bounds, and
// the live-follow and metrics settings of the CLI.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Decode bounds the decoder's cross-record state
	Decode DecodeConfig `mapstructure:"decode" yaml:"decode"`

	// Follow controls live (still-growing) capture reading
	Follow FollowConfig `mapstructure:"follow" yaml:"follow"`

	// Metrics contains Prometheus metrics endpoint configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" yaml:"level"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// DecodeConfig bounds the decoder's cross-record state. Sizes accept
// human-readable forms ("4MB", "512Ki") in the config file.
type DecodeConfig struct {
	// RPCPorts lists TCP ports always treated as RPC endpoints. Flows on
	// other ports are sniffed from their first complete message.
	// Default: 2049, 111
	RPCPorts []uint16 `mapstructure:"rpc_ports" yaml:"rpc_ports"`

	// MaxFlowBuffer caps the bytes buffered per TCP flow direction.
	// Default: 4MB
	MaxFlowBuffer bytesize.ByteSize `mapstructure:"max_flow_buffer" yaml:"max_flow_buffer"`

	// FragmentTTL is how long incomplete IP fragment sets are kept.
	// Default: 30s
	FragmentTTL time.Duration `mapstructure:"fragment_ttl" yaml:"fragment_ttl"`

	// MaxFragments caps the fragments of a single IP datagram.
	// Default: 64
	MaxFragments int `mapstructure:"max_fragments" yaml:"max_fragments"`
}

// FollowConfig controls live capture reading.
type FollowConfig struct {
	// PollInterval is the fallback poll period used when filesystem
	// notification is unavailable for the capture's directory.
	// Default: 500ms
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// IdleTimeout stops following after this long without growth.
	// Zero means follow until interrupted.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint exposed in
// follow mode. When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP endpoint
	// are active
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	// Default: 9090
	Port int `mapstructure:"port" yaml:"port"`
}

// DecoderConfig converts the decode section into the decoder's own config
// type. The metrics sink is wired separately by the caller.
func (c *Config) DecoderConfig() decode.Config {
	return decode.Config{
		RPCPorts:      c.Decode.RPCPorts,
		MaxFlowBuffer: int(c.Decode.MaxFlowBuffer.Int64()),
		FragmentTTL:   c.Decode.FragmentTTL,
		MaxFragments:  c.Decode.MaxFragments,
	}
}

// Load loads configuration from file, environment, and defaults. An empty
// configPath uses the default location and falls back to pure defaults when
// no file exists there.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return Default(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to path in YAML form.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variable support and the config file
// search path. Environment variables use the NFSTRACE_ prefix with
// underscores, for example NFSTRACE_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("NFSTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is not an error; the defaults apply.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// decodeHooks returns the combined decode hook for custom config types:
// human-readable byte sizes and durations.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize, so
// config files can say "4MB" or "512Ki" or a plain byte count.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" or "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME or
// ~/.config, under an nfstrace subdirectory.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nfstrace")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "nfstrace")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
