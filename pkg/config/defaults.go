package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/nfstrace/nfstrace/internal/bytesize"
	"github.com/nfstrace/nfstrace/internal/decode"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyDecodeDefaults(&cfg.Decode)
	applyFollowDefaults(&cfg.Follow)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize for consistent internal representation.
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyDecodeDefaults(cfg *DecodeConfig) {
	if len(cfg.RPCPorts) == 0 {
		cfg.RPCPorts = append([]uint16(nil), decode.DefaultRPCPorts...)
	}
	if cfg.MaxFlowBuffer == 0 {
		cfg.MaxFlowBuffer = bytesize.ByteSize(decode.DefaultMaxFlowBuffer)
	}
	if cfg.FragmentTTL == 0 {
		cfg.FragmentTTL = decode.DefaultFragmentTTL
	}
	if cfg.MaxFragments == 0 {
		cfg.MaxFragments = decode.DefaultMaxFragments
	}
}

func applyFollowDefaults(cfg *FollowConfig) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	// IdleTimeout zero means follow until interrupted.
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics).
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// Validate checks the configuration for values no decoder run can work
// with. It runs after ApplyDefaults, so zero values have been filled in.
func Validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Decode.MaxFlowBuffer < 64*1024 {
		return fmt.Errorf("decode.max_flow_buffer: %s is below the 64KB minimum", cfg.Decode.MaxFlowBuffer)
	}
	if cfg.Decode.FragmentTTL < time.Second {
		return fmt.Errorf("decode.fragment_ttl: %s is below the 1s minimum", cfg.Decode.FragmentTTL)
	}
	if cfg.Decode.MaxFragments < 2 {
		return fmt.Errorf("decode.max_fragments: %d cannot reassemble anything", cfg.Decode.MaxFragments)
	}
	if cfg.Follow.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("follow.poll_interval: %s is below the 10ms minimum", cfg.Follow.PollInterval)
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port: %d is not a valid port", cfg.Metrics.Port)
	}
	return nil
}

// Default returns a Config with all default values applied, useful for
// generating sample configuration files and for tests.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
