package pathing

import (
	"os"
	"path/filepath"
)

const configDirEnv = "IEC_EXPORTER_CONFIG_DIR"

// Ensure the config directory exists before writing into it.
func EnsureConfigDir() error {
	dir := GetConfigDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

func GetConfigPath() string {
	// Join path
	return filepath.Join(GetConfigDir(), "exporter.toml")
}

func GetConfigDir() string {
	if dir := os.Getenv(configDirEnv); dir != "" {
		return dir
	}
	return "/etc/iec62056_exporter"
}
