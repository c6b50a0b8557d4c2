package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/iec62056_exporter/pkg/iec62056"
	"github.com/NotCoffee418/iec62056_exporter/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exporter.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadExporterConfigFrom_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.toml")

	cfg, err := LoadExporterConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultExporterConfig(), cfg)
	require.FileExists(t, path)

	var written ExporterConfig
	_, err = toml.DecodeFile(path, &written)
	require.NoError(t, err)
	assert.Equal(t, *DefaultExporterConfig(), written)

	// Loading again reads the file that was just written.
	again, err := LoadExporterConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadExporterConfigFrom_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[serial]
device = "/dev/ttyAMA0"
driver = "jacobsa"

[protocol]
wake_up = true
baud_switch = true

[http]
live_feed = false
`)

	cfg, err := LoadExporterConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, transport.Settings{
		Device:      "/dev/ttyAMA0",
		Driver:      transport.DriverJacobsa,
		ReadTimeout: 10 * time.Second,
	}, cfg.TransportSettings())
	assert.Equal(t, iec62056.Capabilities{WakeUp: true, BaudSwitch: true}, cfg.Capabilities())
	assert.False(t, cfg.HTTP.LiveFeed)
	assert.Equal(t, "0.0.0.0:3223", cfg.ListenAddr())

	policy := cfg.RetryPolicy()
	assert.Equal(t, 10, policy.MaxAttempts)
	assert.Equal(t, 2*time.Second, policy.BaseDelay)
	assert.Equal(t, time.Minute, policy.MaxDelay)
}

func TestLoadExporterConfigFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"driver", "[serial]\ndriver = \"pyserial\"\n", "serial.driver"},
		{"timeout", "[serial]\nread_timeout_seconds = 0\n", "read_timeout_seconds"},
		{"retry", "[retry]\nbase_delay_seconds = 30\nmax_delay_seconds = 5\n", "retry delays"},
		{"attempts", "[retry]\nmax_attempts = -1\n", "max_attempts"},
		{"port", "[http]\nlisten_port = 70000\n", "listen_port"},
		{"level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
		{"format", "[logging]\nformat = \"xml\"\n", "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadExporterConfigFrom(writeConfig(t, tt.body))
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadExporterConfigFrom_Malformed(t *testing.T) {
	_, err := LoadExporterConfigFrom(writeConfig(t, "[serial\n"))
	assert.Error(t, err)
}

func TestLoadExporterConfig_UsesConfigDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "etc")
	t.Setenv("IEC_EXPORTER_CONFIG_DIR", dir)

	require.NoError(t, LoadExporterConfig())
	require.NotNil(t, ActiveExporterConfig)
	assert.Equal(t, "/dev/ttyUSB0", ActiveExporterConfig.Serial.Device)
	assert.FileExists(t, filepath.Join(dir, "exporter.toml"))
}
