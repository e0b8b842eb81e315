package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("vsink", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "caphVSink", cfg.SinkName)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "vsink", cfg.ClientName)
	assert.Equal(t, "Peak detect", cfg.MeterName)
	assert.InDelta(t, 10.0, cfg.MaxPassRate, 0)
	assert.Equal(t, 2*time.Second, cfg.StopTimeout)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadWithoutFlags(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "caphVSink", cfg.SinkName)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("VSINK_SINK_NAME", "studio")
	t.Setenv("VSINK_POLL_INTERVAL", "1s")
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "studio", cfg.SinkName)
	assert.Equal(t, time.Second, cfg.PollInterval)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("VSINK_SINK_NAME", "studio")
	cfg, err := Load(newFlags(t, "--sink", "podcast", "--http-addr", ":8090", "--max-pass-rate", "2.5"))
	require.NoError(t, err)
	assert.Equal(t, "podcast", cfg.SinkName)
	assert.Equal(t, ":8090", cfg.HTTPAddr)
	assert.InDelta(t, 2.5, cfg.MaxPassRate, 0)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string][]string{
		"whitespace sink": {"--sink", "my sink"},
		"empty sink":      {"--sink", ""},
		"zero poll":       {"--poll-interval", "0s"},
		"zero rate":       {"--max-pass-rate", "0"},
		"bad mode":        {"--mode", "verbose"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(newFlags(t, args...))
			assert.Error(t, err)
		})
	}
}
