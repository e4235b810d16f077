package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-fan-billing/config"
)

func configureLogging(cfg *config.Config) error {
	level := strings.TrimSpace(cfg.Log.Level)
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Log.Level, err)
	}

	formatter, err := newLogFormatter(cfg.Log.Format)
	if err != nil {
		return err
	}

	logrus.SetLevel(parsed)
	logrus.SetFormatter(formatter)
	if cfg.App.ServiceName != "" {
		logrus.AddHook(serviceFieldHook{service: cfg.App.ServiceName})
	}
	return nil
}

func newLogFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}, nil
	case "text":
		return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano}, nil
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", format)
	}
}

// serviceFieldHook stamps every entry with the service name unless the entry already has one.
type serviceFieldHook struct {
	service string
}

func (h serviceFieldHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h serviceFieldHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = h.service
	}
	return nil
}
