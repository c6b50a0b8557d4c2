package config

type ExporterConfig struct {
	Serial   SerialConfig   `toml:"serial"`
	Protocol ProtocolConfig `toml:"protocol"`
	Retry    RetryConfig    `toml:"retry"`
	HTTP     HTTPConfig     `toml:"http"`
	Logging  LoggingConfig  `toml:"logging"`
}

type SerialConfig struct {
	Device string `toml:"device"`
	// "bugst" or "jacobsa"
	Driver             string `toml:"driver"`
	ReadTimeoutSeconds int    `toml:"read_timeout_seconds"`
}

// Which handshake variant the meter speaks.
type ProtocolConfig struct {
	WakeUp          bool `toml:"wake_up"`
	BaudSwitch      bool `toml:"baud_switch"`
	AckOptionSelect bool `toml:"ack_option_select"`
}

type RetryConfig struct {
	// 0 retries forever
	MaxAttempts      int `toml:"max_attempts"`
	BaseDelaySeconds int `toml:"base_delay_seconds"`
	MaxDelaySeconds  int `toml:"max_delay_seconds"`
}

type HTTPConfig struct {
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
	LiveFeed      bool   `toml:"live_feed"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	// "text" or "json"
	Format string `toml:"format"`
}
