package logging

import (
	"io"
	"os"

	"github.com/NotCoffee418/iec62056_exporter/pkg/config"
	log "github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger from the logging section.
func Setup(cfg config.LoggingConfig) error {
	return setup(log.StandardLogger(), cfg, os.Stderr)
}

func setup(logger *log.Logger, cfg config.LoggingConfig, out io.Writer) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	logger.SetOutput(out)
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
