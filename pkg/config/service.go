package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/iec62056_exporter/pkg/iec62056"
	"github.com/NotCoffee418/iec62056_exporter/pkg/pathing"
	"github.com/NotCoffee418/iec62056_exporter/pkg/session"
	"github.com/NotCoffee418/iec62056_exporter/pkg/transport"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidConfig = errors.New("invalid config")

var ActiveExporterConfig *ExporterConfig

func DefaultExporterConfig() *ExporterConfig {
	return &ExporterConfig{
		Serial: SerialConfig{
			Device:             "/dev/ttyUSB0",
			Driver:             transport.DriverBugst,
			ReadTimeoutSeconds: 10,
		},
		Retry: RetryConfig{
			MaxAttempts:      10,
			BaseDelaySeconds: 2,
			MaxDelaySeconds:  60,
		},
		HTTP: HTTPConfig{
			ListenAddress: "0.0.0.0",
			ListenPort:    3223,
			LiveFeed:      true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadExporterConfig loads exporter.toml from the config directory into
// ActiveExporterConfig, writing the defaults first if it does not exist.
func LoadExporterConfig() error {
	if err := pathing.EnsureConfigDir(); err != nil {
		return err
	}
	cfg, err := LoadExporterConfigFrom(pathing.GetConfigPath())
	if err != nil {
		return err
	}
	ActiveExporterConfig = cfg
	return nil
}

func LoadExporterConfigFrom(configPath string) (*ExporterConfig, error) {
	cfg := DefaultExporterConfig()

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return nil, err
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
			return nil, err
		}
		log.Printf("Wrote default config to %s", configPath)
		return cfg, nil
	}

	// Load existing config over the defaults
	meta, err := toml.DecodeFile(configPath, cfg)
	if err != nil {
		return nil, err
	}
	for _, key := range meta.Undecoded() {
		log.Warnf("Unknown config key %q in %s", key.String(), configPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ExporterConfig) Validate() error {
	var errs []error
	switch c.Serial.Driver {
	case transport.DriverBugst, transport.DriverJacobsa:
	default:
		errs = append(errs, fmt.Errorf("serial.driver %q is not one of %q, %q",
			c.Serial.Driver, transport.DriverBugst, transport.DriverJacobsa))
	}
	if c.Serial.Device == "" {
		errs = append(errs, errors.New("serial.device is empty"))
	}
	if c.Serial.ReadTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("serial.read_timeout_seconds must be positive"))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("retry.max_attempts must not be negative"))
	}
	if c.Retry.BaseDelaySeconds <= 0 || c.Retry.MaxDelaySeconds < c.Retry.BaseDelaySeconds {
		errs = append(errs, errors.New("retry delays must satisfy 0 < base_delay_seconds <= max_delay_seconds"))
	}
	if c.HTTP.ListenPort < 0 || c.HTTP.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("http.listen_port %d out of range", c.HTTP.ListenPort))
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format %q is not text or json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

func (c *ExporterConfig) TransportSettings() transport.Settings {
	return transport.Settings{
		Device:      c.Serial.Device,
		Driver:      c.Serial.Driver,
		ReadTimeout: time.Duration(c.Serial.ReadTimeoutSeconds) * time.Second,
	}
}

func (c *ExporterConfig) Capabilities() iec62056.Capabilities {
	return iec62056.Capabilities{
		WakeUp:          c.Protocol.WakeUp,
		BaudSwitch:      c.Protocol.BaudSwitch,
		AckOptionSelect: c.Protocol.AckOptionSelect,
	}
}

func (c *ExporterConfig) RetryPolicy() session.RetryPolicy {
	return session.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   time.Duration(c.Retry.BaseDelaySeconds) * time.Second,
		MaxDelay:    time.Duration(c.Retry.MaxDelaySeconds) * time.Second,
	}
}

func (c *ExporterConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.ListenAddress, c.HTTP.ListenPort)
}
