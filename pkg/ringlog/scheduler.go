package ringlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/ringlog/pkg/framework"
)

// Defaults tuned for a 115200 baud debug UART.
const (
	DefaultBatchLimit  = 16
	DefaultPeriod      = 500 * time.Microsecond
	DefaultSendTimeout = 5 * time.Millisecond

	// MaxFlushTimeout bounds the final flush when Run stops.
	MaxFlushTimeout = 2 * time.Second
)

// Stats are the counters of a Scheduler.
type Stats struct {
	// Drains is the number of drain passes executed.
	Drains uint64
	// Sent is the number of bytes accepted by the sink.
	Sent uint64
	// Busy is the number of drain passes stopped by a rejected byte.
	Busy uint64
	// Skipped is the number of ticks skipped because a drain was in flight.
	Skipped uint64
}

// Scheduler periodically drains a Buffer into a Sink.
// It is the only consumer of the Buffer.
type Scheduler struct {
	// stats goes first for 64-bit atomic alignment.
	stats Stats

	Buffer      *Buffer
	Sink        Sink
	BatchLimit  int
	Period      time.Duration
	SendTimeout time.Duration

	// drainLock excludes overlapping drains and direct sends.
	drainLock sync.Mutex
	busy      uint32
}

// NewScheduler creates a Scheduler with default batch limit, period and
// send timeout.
func NewScheduler(buf *Buffer, sink Sink) (*Scheduler, error) {
	s := &Scheduler{
		Buffer:      buf,
		Sink:        sink,
		BatchLimit:  DefaultBatchLimit,
		Period:      DefaultPeriod,
		SendTimeout: DefaultSendTimeout,
	}
	return s, s.Validate()
}

// WithBatchLimit sets BatchLimit.
func (s *Scheduler) WithBatchLimit(limit int) *Scheduler {
	s.BatchLimit = limit
	return s
}

// WithPeriod sets Period.
func (s *Scheduler) WithPeriod(period time.Duration) *Scheduler {
	s.Period = period
	return s
}

// WithSendTimeout sets SendTimeout.
func (s *Scheduler) WithSendTimeout(timeout time.Duration) *Scheduler {
	s.SendTimeout = timeout
	return s
}

// Validate rejects configurations that could never drain.
func (s *Scheduler) Validate() error {
	switch {
	case s.Buffer == nil:
		return ErrNilBuffer
	case s.Sink == nil:
		return ErrNilSink
	case s.BatchLimit <= 0:
		return ErrInvalidBatchLimit
	case s.Period <= 0:
		return ErrInvalidPeriod
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Drains:  atomic.LoadUint64(&s.stats.Drains),
		Sent:    atomic.LoadUint64(&s.stats.Sent),
		Busy:    atomic.LoadUint64(&s.stats.Busy),
		Skipped: atomic.LoadUint64(&s.stats.Skipped),
	}
}

// Tick runs one drain pass and returns the number of bytes sent.
// If a pass is already in flight the tick is skipped.
func (s *Scheduler) Tick() int {
	if !atomic.CompareAndSwapUint32(&s.busy, 0, 1) {
		atomic.AddUint64(&s.stats.Skipped, 1)
		return 0
	}
	defer atomic.StoreUint32(&s.busy, 0)

	s.drainLock.Lock()
	defer s.drainLock.Unlock()
	return s.drainLocked()
}

// Flush drains until the buffer is empty, the sink rejects a byte or ctx is
// done. It's meant for shutdown, not for the periodic path.
func (s *Scheduler) Flush(ctx context.Context) int {
	s.drainLock.Lock()
	defer s.drainLock.Unlock()
	total := 0
	for ctx.Err() == nil {
		n := s.drainLocked()
		total += n
		if n < s.BatchLimit {
			break
		}
	}
	return total
}

// SendNow sends b directly with timeout, serialized with drain passes.
// Buffered bytes go first; if they can't all be sent, b is not sent and
// ErrPending is returned so the caller can keep the order by appending it.
// Both count in Stats like drained bytes.
func (s *Scheduler) SendNow(b byte, timeout time.Duration) error {
	s.drainLock.Lock()
	defer s.drainLock.Unlock()
	if s.Buffer.Len() > 0 {
		if _, err := s.account(s.Buffer.drain(s.Sink, s.Buffer.Cap(), timeout)); err != nil {
			return ErrPending
		}
	}
	err := s.Sink.TrySend(b, timeout)
	if err == nil {
		atomic.AddUint64(&s.stats.Sent, 1)
	} else {
		atomic.AddUint64(&s.stats.Busy, 1)
	}
	return err
}

func (s *Scheduler) drainLocked() int {
	n, _ := s.account(s.Buffer.drain(s.Sink, s.BatchLimit, s.SendTimeout))
	return n
}

// account records one drain pass in the stats.
func (s *Scheduler) account(n int, err error) (int, error) {
	atomic.AddUint64(&s.stats.Drains, 1)
	atomic.AddUint64(&s.stats.Sent, uint64(n))
	if err != nil {
		atomic.AddUint64(&s.stats.Busy, 1)
	}
	return n, err
}

// Control implements framework.Controller.
func (s *Scheduler) Control(fx.ControlContext) error {
	s.Tick()
	return nil
}

// Disarm implements framework.Disarmer with a final flush, bounded by the
// time needed to send what's buffered, at most MaxFlushTimeout.
func (s *Scheduler) Disarm() {
	ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout())
	defer cancel()
	n := s.Flush(ctx)
	glog.V(2).Infof("drain disarmed, flushed %d byte(s), %d left", n, s.Buffer.Len())
}

// AddToLoop implements LoopAdder. The drain runs at the loop interval,
// after all other controllers of an iteration, and flushes when the loop
// stops.
func (s *Scheduler) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvDrain, s)
}

// Run implements Runnable with its own timer of Period, for use without a
// framework.Loop. On cancel the timer is disarmed and Disarm flushes.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Validate(); err != nil {
		return err
	}
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()
	glog.V(2).Infof("drain armed: period=%v batch=%d timeout=%v", s.Period, s.BatchLimit, s.SendTimeout)
	for {
		select {
		case <-ctx.Done():
			s.Disarm()
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *Scheduler) flushTimeout() time.Duration {
	if d := time.Duration(s.Buffer.Len()+1) * s.SendTimeout; d < MaxFlushTimeout {
		return d
	}
	return MaxFlushTimeout
}
