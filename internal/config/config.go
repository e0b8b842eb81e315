package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	SinkName     string        `mapstructure:"sink_name"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Server       string        `mapstructure:"server"`
	ClientName   string        `mapstructure:"client_name"`
	MeterName    string        `mapstructure:"meter_name"`
	MaxPassRate  float64       `mapstructure:"max_pass_rate"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
	HTTPAddr     string        `mapstructure:"http_addr"`
	Mode         string        `mapstructure:"mode"`
	LogLevel     string        `mapstructure:"log_level"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"sink":          "sink_name",
	"poll-interval": "poll_interval",
	"server":        "server",
	"client-name":   "client_name",
	"meter-name":    "meter_name",
	"max-pass-rate": "max_pass_rate",
	"stop-timeout":  "stop_timeout",
	"http-addr":     "http_addr",
	"mode":          "mode",
	"log-level":     "log_level",
}

// BindFlags registers the command line flags Load reads.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("sink", "caphVSink", "name and description of the virtual sink")
	fs.Duration("poll-interval", 500*time.Millisecond, "time between passes without server events")
	fs.String("server", "", "audio server address (empty: default)")
	fs.String("client-name", "vsink", "client name announced to the audio server")
	fs.String("meter-name", "Peak detect", "consumer name that never keeps the sink alive")
	fs.Float64("max-pass-rate", 10, "upper bound on passes per second")
	fs.Duration("stop-timeout", 2*time.Second, "time allowed for teardown")
	fs.String("http-addr", "", "status API listen address (empty: disabled)")
	fs.String("mode", "release", "gin mode: release or debug")
	fs.String("log-level", "info", "zerolog level")
}

// Load merges defaults, VSINK_* environment variables and fs, in rising
// precedence. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VSINK")
	v.AutomaticEnv()

	v.SetDefault("sink_name", "caphVSink")
	v.SetDefault("poll_interval", "500ms")
	v.SetDefault("server", "")
	v.SetDefault("client_name", "vsink")
	v.SetDefault("meter_name", "Peak detect")
	v.SetDefault("max_pass_rate", 10)
	v.SetDefault("stop_timeout", "2s")
	v.SetDefault("http_addr", "")
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("sink", cfg.SinkName).
		Dur("poll_interval", cfg.PollInterval).
		Str("http_addr", cfg.HTTPAddr).
		Msg("config loaded")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch {
	case c.SinkName == "":
		errs = append(errs, errors.New("sink name is empty"))
	case strings.ContainsFunc(c.SinkName, isSpace):
		errs = append(errs, fmt.Errorf("sink name %q contains whitespace", c.SinkName))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.MaxPassRate <= 0 {
		errs = append(errs, fmt.Errorf("max pass rate must be positive, got %v", c.MaxPassRate))
	}
	if c.Mode != "release" && c.Mode != "debug" {
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}
	return errors.Join(errs...)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}
