// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type App struct {
	// Upstream court service, e.g. http://192.168.1.99:8000
	UpstreamURL string        `envconfig:"BOARD_UPSTREAM_URL" required:"true"`
	HTTPTimeout time.Duration `envconfig:"BOARD_HTTP_TIMEOUT" default:"6s"`
	RetryDelay  time.Duration `envconfig:"BOARD_RETRY_DELAY" default:"5s"`

	HTTPAddr string `envconfig:"BOARD_HTTP_ADDR" default:":8080"`

	LogLevel   zapcore.Level `envconfig:"BOARD_LOG_LEVEL" default:"info"`
	DevLogging bool          `envconfig:"BOARD_DEV_LOGGING" default:"false"`

	// Tracing is off when empty.
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

var ErrBadUpstream = errors.New("upstream url must be absolute http(s)")

// Load reads an optional .env file from the working directory and then the
// environment. Variables already set win over the file.
func Load() (App, error) {
	_ = godotenv.Load(".env")
	return fromEnv()
}

func fromEnv() (App, error) {
	var c App
	if err := envconfig.Process("", &c); err != nil {
		return App{}, err
	}
	if err := c.validate(); err != nil {
		return App{}, err
	}
	return c, nil
}

func (c App) validate() error {
	u, err := url.Parse(c.UpstreamURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q: %w", c.UpstreamURL, ErrBadUpstream)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("BOARD_RETRY_DELAY must be positive, got %s", c.RetryDelay)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("BOARD_HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}

// Fields is the startup summary written to the log.
func (c App) Fields() []zap.Field {
	return []zap.Field{
		zap.String("upstream", c.UpstreamURL),
		zap.String("addr", c.HTTPAddr),
		zap.Duration("retry_delay", c.RetryDelay),
		zap.Duration("http_timeout", c.HTTPTimeout),
		zap.Stringer("log_level", c.LogLevel),
		zap.Bool("tracing", c.OTLPEndpoint != ""),
	}
}
