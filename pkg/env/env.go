// Package env provides the common configuration of ringlog binaries.
package env

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/ringlog/pkg/ringlog"
	"github.com/robotalks/ringlog/pkg/sink"
)

// DefaultCapacity is the default ring size in bytes.
const DefaultCapacity = 4096

// Config provides common options to set up a log pipeline.
type Config struct {
	Capacity    int
	BatchLimit  int
	Period      time.Duration
	SendTimeout time.Duration
	SyncTimeout time.Duration
	Mode        string

	// SinkURL specifies where log bytes go, see sink.Open.
	SinkURL string
	// Source identifies this machine on packet sinks.
	Source string
	// MQTTBrokerURL is used by monitors, e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
}

var defaultConfig = Config{
	Capacity:      DefaultCapacity,
	BatchLimit:    ringlog.DefaultBatchLimit,
	Period:        ringlog.DefaultPeriod,
	SendTimeout:   ringlog.DefaultSendTimeout,
	SyncTimeout:   ringlog.DefaultSyncTimeout,
	Mode:          ringlog.ModeAsync.String(),
	SinkURL:       "stdout:",
	MQTTBrokerURL: "mqtt://localhost:1883/ringlog/",
}

func init() {
	loadEnv(&defaultConfig, os.Getenv)
	if defaultConfig.Source == "" {
		defaultConfig.Source = MachineID()
	}
}

func loadEnv(c *Config, getenv func(string) string) {
	if val := getenv("RINGLOG_CAPACITY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Capacity = n
		} else {
			glog.Warningf("RINGLOG_CAPACITY ignored: %v", err)
		}
	}
	if val := getenv("RINGLOG_BATCH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.BatchLimit = n
		} else {
			glog.Warningf("RINGLOG_BATCH ignored: %v", err)
		}
	}
	durations := []struct {
		name string
		val  *time.Duration
	}{
		{"RINGLOG_PERIOD", &c.Period},
		{"RINGLOG_SEND_TIMEOUT", &c.SendTimeout},
		{"RINGLOG_SYNC_TIMEOUT", &c.SyncTimeout},
	}
	for _, d := range durations {
		if val := getenv(d.name); val != "" {
			if parsed, err := time.ParseDuration(val); err == nil {
				*d.val = parsed
			} else {
				glog.Warningf("%s ignored: %v", d.name, err)
			}
		}
	}
	if val := getenv("RINGLOG_MODE"); val != "" {
		c.Mode = val
	}
	if val := getenv("RINGLOG_SINK"); val != "" {
		c.SinkURL = val
	}
	if val := getenv("RINGLOG_SOURCE"); val != "" {
		c.Source = val
	}
	if val := getenv("RINGLOG_MQTT_URL"); val != "" {
		c.MQTTBrokerURL = val
	}
}

// MachineID retrieves the unique ID identifying the machine, or the host
// name if the machine ID isn't available.
func MachineID() string {
	id, err := machineid.ID()
	if err == nil && id != "" {
		return id
	}
	glog.Warningf("machine id unavailable: %v", err)
	host, _ := os.Hostname()
	return host
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.Capacity, "capacity", defaultConfig.Capacity, "Ring buffer size in bytes.")
	flag.IntVar(&defaultConfig.BatchLimit, "batch", defaultConfig.BatchLimit, "Max bytes sent per drain.")
	flag.DurationVar(&defaultConfig.Period, "period", defaultConfig.Period, "Drain period.")
	flag.DurationVar(&defaultConfig.SendTimeout, "send-timeout", defaultConfig.SendTimeout, "Per byte send timeout when draining.")
	flag.DurationVar(&defaultConfig.SyncTimeout, "sync-timeout", defaultConfig.SyncTimeout, "Per byte send timeout in sync mode.")
	flag.StringVar(&defaultConfig.Mode, "mode", defaultConfig.Mode, "Console mode: off, async or sync.")
	flag.StringVar(&defaultConfig.SinkURL, "sink", defaultConfig.SinkURL, "Sink URL.")
	flag.StringVar(&defaultConfig.Source, "source", defaultConfig.Source, "Source ID of this machine.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Validate checks the config without opening anything.
func (c *Config) Validate() error {
	if c.Capacity < 2 {
		return fmt.Errorf("capacity %d: %v", c.Capacity, ringlog.ErrInvalidCapacity)
	}
	if c.BatchLimit <= 0 {
		return ringlog.ErrInvalidBatchLimit
	}
	if c.Period <= 0 {
		return ringlog.ErrInvalidPeriod
	}
	if _, err := ringlog.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.SinkURL == "" {
		return fmt.Errorf("sink URL must be specified")
	}
	return nil
}

// NewScheduler creates the buffer and the scheduler draining it into sink.
func (c *Config) NewScheduler(s ringlog.Sink) (*ringlog.Scheduler, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	buf, err := ringlog.NewBuffer(c.Capacity)
	if err != nil {
		return nil, err
	}
	sched, err := ringlog.NewScheduler(buf, s)
	if err != nil {
		return nil, err
	}
	sched.WithBatchLimit(c.BatchLimit).WithPeriod(c.Period).WithSendTimeout(c.SendTimeout)
	return sched, sched.Validate()
}

// NewConsole creates the console writing through sched.
func (c *Config) NewConsole(sched *ringlog.Scheduler) (*ringlog.Console, error) {
	mode, err := ringlog.ParseMode(c.Mode)
	if err != nil {
		return nil, err
	}
	console := ringlog.NewConsole(sched)
	console.SetMode(mode)
	if c.SyncTimeout > 0 {
		console.SyncTimeout = c.SyncTimeout
	}
	return console, nil
}

// OpenSink opens the sink at SinkURL.
func (c *Config) OpenSink() (*sink.Target, error) {
	return sink.Open(c.SinkURL, sink.Options{
		Source:       c.Source,
		FlushTimeout: ringlog.MaxFlushTimeout,
	})
}

// Pipeline is an opened log pipeline.
type Pipeline struct {
	Target    *sink.Target
	Scheduler *ringlog.Scheduler
	Console   *ringlog.Console
}

// NewPipeline opens the sink and sets up the scheduler and console on it.
func (c *Config) NewPipeline() (*Pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	target, err := c.OpenSink()
	if err != nil {
		return nil, fmt.Errorf("open sink %q error: %v", c.SinkURL, err)
	}
	p := &Pipeline{Target: target}
	if p.Scheduler, err = c.NewScheduler(target); err == nil {
		p.Console, err = c.NewConsole(p.Scheduler)
	}
	if err != nil {
		target.Close()
		return nil, err
	}
	return p, nil
}

// MustNewPipeline creates a Pipeline and fails on error.
func (c *Config) MustNewPipeline() *Pipeline {
	p, err := c.NewPipeline()
	if err != nil {
		log.Fatalln(err)
	}
	return p
}

// Close closes the sink.
func (p *Pipeline) Close() error {
	return p.Target.Close()
}
