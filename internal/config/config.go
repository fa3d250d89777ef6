package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lox/wdqms/internal/ingest"
)

// Config holds the settings shared by every subcommand. Each flag falls back
// to a WDQMS_* environment variable, which may come from a .env file.
type Config struct {
	DB           string        `name:"db" env:"WDQMS_DB" default:"data/wdqms.db" help:"Path to the SQLite database."`
	LogLevel     string        `env:"WDQMS_LOG_LEVEL" default:"info" help:"Log level (debug, info, warn, error)."`
	LogFormat    string        `env:"WDQMS_LOG_FORMAT" default:"text" help:"Log format (json, text)."`
	BaseURL      string        `env:"WDQMS_BASE_URL" default:"${base_url}" help:"WDQMS availability download endpoint."`
	FetchTimeout time.Duration `env:"WDQMS_FETCH_TIMEOUT" default:"60s" help:"Timeout for a single snapshot download."`
	KafkaBrokers []string      `env:"WDQMS_KAFKA_BROKERS" help:"Kafka brokers for unit reports; reports are not published when empty."`
	KafkaTopic   string        `env:"WDQMS_KAFKA_TOPIC" default:"wdqms-unit-reports" help:"Kafka topic for unit reports."`
	Epoch        string        `env:"WDQMS_EPOCH" default:"2023-01-01" help:"First date ingested when a variable has no history."`
}

// Vars are the kong interpolation variables used by Config's defaults.
func Vars() map[string]string {
	return map[string]string{"base_url": ingest.DefaultBaseURL}
}

func (c *Config) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("db path is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q: use json or text", c.LogFormat)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	if _, err := c.EpochDate(); err != nil {
		return err
	}
	return nil
}

// EpochDate parses Epoch. An empty value selects ingest.DefaultEpoch.
func (c *Config) EpochDate() (time.Time, error) {
	if c.Epoch == "" {
		return ingest.DefaultEpoch, nil
	}
	return ingest.ParseDate("epoch", c.Epoch)
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// NewLogger returns a slog logger writing to stderr.
func NewLogger(level, format string) (*slog.Logger, error) {
	return newLogger(os.Stderr, level, format)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
