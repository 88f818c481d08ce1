package utils

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func ValidLogLevel(level string) bool {
	return validLogLevels[level]
}

// NewLogger builds a logrus logger for the given level and format ("text" or "json").
func NewLogger(level, format string) (*logrus.Logger, error) {
	if !ValidLogLevel(level) {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetOutput(os.Stderr)
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// DiscardLogger is used by tests and by components constructed without a logger.
func DiscardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
