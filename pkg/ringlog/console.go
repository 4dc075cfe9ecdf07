package ringlog

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Mode selects how Console delivers log output.
type Mode uint32

const (
	// ModeOff discards output, e.g. when the log port is repurposed.
	ModeOff Mode = iota
	// ModeAsync appends output to the Buffer, drained by the Scheduler.
	ModeAsync
	// ModeSync sends output straight to the sink, waiting up to
	// SyncTimeout per byte.
	ModeSync
)

// DefaultSyncTimeout is the per-byte timeout in ModeSync.
const DefaultSyncTimeout = 200 * time.Millisecond

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeAsync:
		return "async"
	case ModeSync:
		return "sync"
	}
	return fmt.Sprintf("Mode(%d)", uint32(m))
}

// ParseMode parses the name of a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "off":
		return ModeOff, nil
	case "async", "":
		return ModeAsync, nil
	case "sync":
		return ModeSync, nil
	}
	return ModeOff, fmt.Errorf("unknown mode %q", s)
}

// Console is the producer side of a Scheduler: an io.Writer that log
// emitters write to. It never blocks on the sink in ModeAsync and
// never returns an error.
type Console struct {
	SyncTimeout time.Duration

	scheduler *Scheduler
	mode      uint32
	// writeLock keeps the Buffer single-producer across writers.
	writeLock sync.Mutex
}

// NewConsole creates a Console in ModeAsync.
func NewConsole(s *Scheduler) *Console {
	return &Console{
		SyncTimeout: DefaultSyncTimeout,
		scheduler:   s,
		mode:        uint32(ModeAsync),
	}
}

// Mode returns current mode.
func (c *Console) Mode() Mode {
	return Mode(atomic.LoadUint32(&c.mode))
}

// SetMode changes mode, effective from the next byte written.
func (c *Console) SetMode(m Mode) {
	atomic.StoreUint32(&c.mode, uint32(m))
}

// Write implements io.Writer.
func (c *Console) Write(p []byte) (int, error) {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	for _, b := range p {
		c.put(b)
	}
	return len(p), nil
}

// WriteByte implements io.ByteWriter.
func (c *Console) WriteByte(b byte) error {
	c.writeLock.Lock()
	c.put(b)
	c.writeLock.Unlock()
	return nil
}

// WriteString implements io.StringWriter.
func (c *Console) WriteString(s string) (int, error) {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	for i := 0; i < len(s); i++ {
		c.put(s[i])
	}
	return len(s), nil
}

func (c *Console) put(b byte) {
	switch c.Mode() {
	case ModeAsync:
		c.scheduler.Buffer.Append(b)
	case ModeSync:
		// A byte the sink rejects is dropped, unless older bytes are still
		// buffered: then it queues behind them.
		if err := c.scheduler.SendNow(b, c.SyncTimeout); err == ErrPending {
			c.scheduler.Buffer.Append(b)
		}
	}
}
