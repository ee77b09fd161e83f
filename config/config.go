package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Config holds the daemon settings. Values come from the defaults, then an
// optional TOML file, then command-line flags.
type Config struct {
	Crontab    string           `toml:"crontab"`
	Timezone   string           `toml:"timezone"`
	Shell      string           `toml:"shell"`
	Inotify    bool             `toml:"inotify"`
	NoReap     bool             `toml:"no_reap"`
	Log        LogConfig        `toml:"log"`
	Prometheus PrometheusConfig `toml:"prometheus"`
	Sentry     SentryConfig     `toml:"sentry"`

	// Command-line only.
	Test bool `toml:"-"`
	Once bool `toml:"-"`
}

type LogConfig struct {
	File    string `toml:"file"`
	Console bool   `toml:"console"`
	Level   string `toml:"level"`
	JSON    bool   `toml:"json"`
	Split   bool   `toml:"split"`

	// Entries at this level or more severe go to stderr with Split.
	SplitLevel string `toml:"split_level"`
}

type PrometheusConfig struct {
	ListenAddress string `toml:"listen_address"`
}

type SentryConfig struct {
	DSN         string `toml:"dsn"`
	Environment string `toml:"environment"`
	Release     string `toml:"release"`
}

func DefaultConfig() *Config {
	return &Config{
		Timezone: "UTC",
		Shell:    "/bin/sh",
		Log: LogConfig{
			Level:      "INFO",
			SplitLevel: "WARNING",
		},
	}
}

// LoadFromFile applies the TOML file at path on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

func newFlagSet(config *Config, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("minicron", pflag.ContinueOnError)

	fs.StringVar(configPath, "config", *configPath, "path to a TOML configuration file")
	fs.StringVarP(&config.Crontab, "crontab", "c", config.Crontab, "path to the crontab")
	fs.StringVarP(&config.Log.File, "logfile", "L", config.Log.File, "append logs to this file")
	fs.BoolVarP(&config.Log.Console, "console", "C", config.Log.Console, "log to the console")
	fs.StringVarP(&config.Log.Level, "loglevel", "l", config.Log.Level, "log level: DEBUG, INFO, WARNING, ERROR or CRITICAL")
	fs.BoolVar(&config.Log.JSON, "json", config.Log.JSON, "log as JSON")
	fs.BoolVar(&config.Log.Split, "split-logs", config.Log.Split, "log to stdout, and from --split-level up to stderr")
	fs.StringVar(&config.Log.SplitLevel, "split-level", config.Log.SplitLevel, "least severe level written to stderr with --split-logs")
	fs.StringVar(&config.Timezone, "timezone", config.Timezone, "time zone the crontab is evaluated in")
	fs.StringVar(&config.Shell, "shell", config.Shell, "shell used to run commands")
	fs.BoolVar(&config.Inotify, "inotify", config.Inotify, "reload the crontab when it changes")
	fs.BoolVar(&config.NoReap, "no-reap", config.NoReap, "disable reaping of zombie processes when running as PID 1")
	fs.StringVar(&config.Prometheus.ListenAddress, "prometheus-listen-address", config.Prometheus.ListenAddress, "serve Prometheus metrics on this address")
	fs.StringVar(&config.Sentry.DSN, "sentry-dsn", config.Sentry.DSN, "report errors to this Sentry DSN")
	fs.StringVar(&config.Sentry.Environment, "sentry-environment", config.Sentry.Environment, "Sentry environment")
	fs.StringVar(&config.Sentry.Release, "sentry-release", config.Sentry.Release, "Sentry release")
	fs.BoolVar(&config.Test, "test", false, "parse the crontab and exit")
	fs.BoolVar(&config.Once, "once", false, "run a single tick and exit")

	return fs
}

// Parse builds the configuration from command-line arguments. When --config
// names a file, its values replace the defaults and flags given explicitly
// still win. A single positional argument is taken as the crontab path.
func Parse(args []string, output io.Writer) (*Config, error) {
	var configPath string

	probe := newFlagSet(DefaultConfig(), &configPath)
	probe.SetOutput(output)
	if err := probe.Parse(args); err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if configPath != "" {
		var err error
		if config, err = LoadFromFile(configPath); err != nil {
			return nil, err
		}
	}

	fs := newFlagSet(config, &configPath)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		if config.Crontab != "" {
			return nil, errors.New("crontab given both as argument and with --crontab")
		}
		config.Crontab = fs.Arg(0)
	default:
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	return config, nil
}

// Usage writes the flag help to w.
func Usage(w io.Writer) {
	var configPath string
	fs := newFlagSet(DefaultConfig(), &configPath)
	fmt.Fprintf(w, "Usage: minicron [OPTIONS] [CRONTAB]\n\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

// ParseLevel maps the command-line level names onto logrus levels.
// CRITICAL only lets fatal entries through.
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return logrus.DebugLevel, nil
	case "INFO":
		return logrus.InfoLevel, nil
	case "WARNING", "WARN":
		return logrus.WarnLevel, nil
	case "ERROR":
		return logrus.ErrorLevel, nil
	case "CRITICAL":
		return logrus.FatalLevel, nil
	}
	return logrus.InfoLevel, fmt.Errorf("invalid log level: %s (must be DEBUG, INFO, WARNING, ERROR or CRITICAL)", level)
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Crontab == "" {
		return errors.New("a crontab must be specified")
	}

	if c.Log.File != "" && c.Log.Console {
		return errors.New("--logfile and --console are mutually exclusive")
	}
	if c.Log.File == "" && !c.Log.Console {
		return errors.New("one of --logfile or --console is required")
	}

	if c.Log.Split && !c.Log.Console {
		return errors.New("--split-logs requires --console")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	if _, err := ParseLevel(c.Log.SplitLevel); err != nil {
		return fmt.Errorf("--split-level: %w", err)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	if c.Shell == "" {
		return errors.New("shell must not be empty")
	}

	return nil
}
