package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ringlog/pkg/ringlog"
)

func TestLoadEnv(t *testing.T) {
	vars := map[string]string{
		"RINGLOG_CAPACITY":     "128",
		"RINGLOG_BATCH":        "bad",
		"RINGLOG_PERIOD":       "1ms",
		"RINGLOG_SYNC_TIMEOUT": "1s",
		"RINGLOG_MODE":         "sync",
		"RINGLOG_SINK":         "tcp://logs:4000",
		"RINGLOG_SOURCE":       "dev1",
	}
	conf := Config{BatchLimit: 3, SendTimeout: time.Hour}
	loadEnv(&conf, func(name string) string { return vars[name] })
	require.Equal(t, Config{
		Capacity:    128,
		BatchLimit:  3,
		Period:      time.Millisecond,
		SendTimeout: time.Hour,
		SyncTimeout: time.Second,
		Mode:        "sync",
		SinkURL:     "tcp://logs:4000",
		Source:      "dev1",
	}, conf)
}

func TestNewConfigIsACopy(t *testing.T) {
	conf := NewConfig()
	conf.Capacity = 1
	require.NotEqual(t, 1, Default().Capacity)
	require.NotEmpty(t, Default().Source)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"capacity", func(c *Config) { c.Capacity = 1 }},
		{"batch", func(c *Config) { c.BatchLimit = 0 }},
		{"period", func(c *Config) { c.Period = 0 }},
		{"mode", func(c *Config) { c.Mode = "loud" }},
		{"sink", func(c *Config) { c.SinkURL = "" }},
	}
	require.NoError(t, NewConfig().Validate())
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf := NewConfig()
			tc.modify(conf)
			require.Error(t, conf.Validate())
			_, err := conf.NewPipeline()
			require.Error(t, err)
		})
	}
}

func TestNewSchedulerAndConsole(t *testing.T) {
	conf := NewConfig()
	conf.Capacity = 16
	conf.BatchLimit = 4
	conf.Mode = "sync"
	conf.SyncTimeout = time.Second

	var got []byte
	sched, err := conf.NewScheduler(ringlog.SinkFunc(func(b byte, timeout time.Duration) error {
		got = append(got, b)
		return nil
	}))
	require.NoError(t, err)
	require.Equal(t, 4, sched.BatchLimit)
	require.Equal(t, 15, sched.Buffer.Cap())

	console, err := conf.NewConsole(sched)
	require.NoError(t, err)
	require.Equal(t, ringlog.ModeSync, console.Mode())
	require.Equal(t, time.Second, console.SyncTimeout)
	console.WriteString("now")
	require.Equal(t, "now", string(got))
}

func TestNewPipelineToStdout(t *testing.T) {
	conf := NewConfig()
	conf.SinkURL = "stdout:"
	p, err := conf.NewPipeline()
	require.NoError(t, err)
	require.Equal(t, ringlog.ModeAsync, p.Console.Mode())
	require.NoError(t, p.Close())

	conf.SinkURL = "nowhere://"
	_, err = conf.NewPipeline()
	require.Error(t, err)
}
