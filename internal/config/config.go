// Package config loads settings for the command line tools from files,
// environment variables and an optional .env file.
package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/jinzhu/configor"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"

	oaipmh "github.com/wellcomecollection/oai-pmh"
)

// DefaultFile is read if no other file is given.
const DefaultFile = "~/.oaipmh.yml"

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level" toml:"Level" json:"level" default:"info" env:"OAIPMH_LOG_LEVEL"`
	Format string `yaml:"format" toml:"Format" json:"format" default:"text" env:"OAIPMH_LOG_FORMAT"`
}

// Config holds client and harvest settings. Durations are strings as
// understood by time.ParseDuration.
type Config struct {
	Endpoint      string `yaml:"endpoint" toml:"Endpoint" json:"endpoint" env:"OAIPMH_ENDPOINT"`
	Method        string `yaml:"method" toml:"Method" json:"method" default:"GET" env:"OAIPMH_METHOD"`
	Timeout       string `yaml:"timeout" toml:"Timeout" json:"timeout" default:"20s" env:"OAIPMH_TIMEOUT"`
	Granularity   string `yaml:"granularity" toml:"Granularity" json:"granularity" default:"auto" env:"OAIPMH_GRANULARITY"`
	MaxRetries    int    `yaml:"max-retries" toml:"MaxRetries" json:"max-retries" default:"3" env:"OAIPMH_MAX_RETRIES"`
	BackoffFactor string `yaml:"backoff-factor" toml:"BackoffFactor" json:"backoff-factor" default:"500ms" env:"OAIPMH_BACKOFF_FACTOR"`
	MaxBackoff    string `yaml:"max-backoff" toml:"MaxBackoff" json:"max-backoff" default:"5s" env:"OAIPMH_MAX_BACKOFF"`
	MaxRequests   int    `yaml:"max-requests" toml:"MaxRequests" json:"max-requests" env:"OAIPMH_MAX_REQUESTS"`
	UserAgent     string `yaml:"user-agent" toml:"UserAgent" json:"user-agent" env:"OAIPMH_USER_AGENT"`
	Prefix        string `yaml:"prefix" toml:"Prefix" json:"prefix" default:"oai_dc" env:"OAIPMH_PREFIX"`
	Interval      string `yaml:"interval" toml:"Interval" json:"interval" default:"week" env:"OAIPMH_INTERVAL"`
	MetricsAddr   string `yaml:"metrics-addr" toml:"MetricsAddr" json:"metrics-addr" env:"OAIPMH_METRICS_ADDR"`
	Log           Log    `yaml:"log" toml:"Log" json:"log"`
}

// Load reads .env from the working directory, then the given files, or
// DefaultFile if there are none. Missing files are skipped. Environment
// variables override file values.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "cannot read .env")
	}
	if len(files) == 0 {
		files = []string{DefaultFile}
	}
	var existing []string
	for _, f := range files {
		name, err := homedir.Expand(f)
		if err != nil {
			return nil, errors.WrapIff(err, "cannot expand %s", f)
		}
		if fi, err := os.Stat(name); err == nil && fi.Mode().IsRegular() {
			existing = append(existing, name)
		}
	}
	cfg := &Config{}
	loader := configor.New(&configor.Config{Silent: true, ENVPrefix: "OAIPMH"})
	if err := loader.Load(cfg, existing...); err != nil {
		return nil, errors.Wrap(err, "cannot load config")
	}
	return cfg, cfg.Validate()
}

func parseDuration(name, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.WrapIff(err, "invalid %s", name)
	}
	return d, nil
}

// Validate checks values, that are parsed later.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.Method) {
	case "GET", "POST":
	default:
		return errors.WithDetails(oaipmh.ErrInvalidMethod, "method", c.Method)
	}
	for name, s := range map[string]string{
		"timeout":        c.Timeout,
		"backoff-factor": c.BackoffFactor,
		"max-backoff":    c.MaxBackoff,
	} {
		if _, err := parseDuration(name, s); err != nil {
			return err
		}
	}
	if _, err := oaipmh.ParseGranularity(c.Granularity); err != nil {
		return err
	}
	if _, err := oaipmh.ParseInterval(c.Interval); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

// ClientOptions turns the settings into client options.
func (c *Config) ClientOptions() ([]oaipmh.Option, error) {
	timeout, err := parseDuration("timeout", c.Timeout)
	if err != nil {
		return nil, err
	}
	factor, err := parseDuration("backoff-factor", c.BackoffFactor)
	if err != nil {
		return nil, err
	}
	max, err := parseDuration("max-backoff", c.MaxBackoff)
	if err != nil {
		return nil, err
	}
	g, err := oaipmh.ParseGranularity(c.Granularity)
	if err != nil {
		return nil, err
	}
	opts := []oaipmh.Option{
		oaipmh.WithMethod(c.Method),
		oaipmh.WithTimeout(timeout),
		oaipmh.WithGranularity(g),
		oaipmh.WithMaxRetries(c.MaxRetries),
		oaipmh.WithBackoff(factor, max),
		oaipmh.WithMaxRequests(c.MaxRequests),
	}
	if c.UserAgent != "" {
		opts = append(opts, oaipmh.WithUserAgent(c.UserAgent))
	}
	return opts, nil
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return level, errors.WrapIff(err, "invalid log level %q", c.Log.Level)
	}
	return level, nil
}

// Logger returns a logger writing to w. Debug forces the debug level.
func (c *Config) Logger(w io.Writer, debug bool) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Log.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, errors.Errorf("unknown log format %q", c.Log.Format)
}
