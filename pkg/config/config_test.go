package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfstrace/nfstrace/internal/bytesize"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("MissingFileUsesDefaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "INFO", cfg.Logging.Level)
		assert.Equal(t, []uint16{2049, 111}, cfg.Decode.RPCPorts)
		assert.Equal(t, 30*time.Second, cfg.Decode.FragmentTTL)
		assert.Equal(t, 64, cfg.Decode.MaxFragments)
	})

	t.Run("FileValuesOverrideDefaults", func(t *testing.T) {
		path := writeConfig(t, `
logging:
  level: debug
decode:
  rpc_ports: [2049, 111, 20049]
  max_flow_buffer: 8MB
  fragment_ttl: 45s
follow:
  poll_interval: 250ms
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "DEBUG", cfg.Logging.Level, "level is normalized to uppercase")
		assert.Equal(t, []uint16{2049, 111, 20049}, cfg.Decode.RPCPorts)
		assert.Equal(t, bytesize.ByteSize(8*1000*1000), cfg.Decode.MaxFlowBuffer)
		assert.Equal(t, 45*time.Second, cfg.Decode.FragmentTTL)
		assert.Equal(t, 250*time.Millisecond, cfg.Follow.PollInterval)
		assert.Equal(t, 64, cfg.Decode.MaxFragments, "unset fields keep defaults")
	})

	t.Run("EnvironmentOverridesFile", func(t *testing.T) {
		path := writeConfig(t, `
logging:
  level: info
`)
		t.Setenv("NFSTRACE_LOGGING_LEVEL", "ERROR")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "ERROR", cfg.Logging.Level)
	})

	t.Run("RejectsUnknownLogLevel", func(t *testing.T) {
		path := writeConfig(t, `
logging:
  level: loud
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logging.level")
	})

	t.Run("RejectsTinyFlowBuffer", func(t *testing.T) {
		path := writeConfig(t, `
decode:
  max_flow_buffer: 1KB
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_flow_buffer")
	})
}

func TestDecoderConfig(t *testing.T) {
	cfg := Default()
	cfg.Decode.MaxFlowBuffer = bytesize.ByteSize(1 << 20)
	cfg.Decode.MaxFragments = 32

	dc := cfg.DecoderConfig()
	assert.Equal(t, 1<<20, dc.MaxFlowBuffer)
	assert.Equal(t, 32, dc.MaxFragments)
	assert.Equal(t, cfg.Decode.RPCPorts, dc.RPCPorts)
	assert.Equal(t, cfg.Decode.FragmentTTL, dc.FragmentTTL)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved", "config.yaml")

	orig := Default()
	orig.Logging.Level = "DEBUG"
	orig.Decode.MaxFragments = 16
	require.NoError(t, Save(orig, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", loaded.Logging.Level)
	assert.Equal(t, 16, loaded.Decode.MaxFragments)
}

func TestValidateDefaults(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}
