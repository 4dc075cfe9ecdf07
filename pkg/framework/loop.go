package framework

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is used when Loop.Interval is not set.
const DefaultInterval = 100 * time.Millisecond

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

// Disarmer is a Controller with work left once the loop timer stops,
// e.g. a drain flushing what is still buffered.
type Disarmer interface {
	Disarm()
}

// Loop is the timer facility: on every tick it invokes the controllers
// from the top priority level down to idle. Iterations never overlap; a
// tick arriving during an iteration is coalesced into the next one.
//
// When the context is done the timer is disarmed, then every Disarmer is
// called once in priority order before Run returns.
type Loop struct {
	Interval time.Duration

	iterations uint64
	overruns   uint64

	lock     sync.Mutex
	entries  []loopEntry
	runners  []Runnable
	wakeUpCh chan struct{}
}

type loopEntry struct {
	level int
	ctl   Controller
}

type loopIteration struct {
	*Loop
	ctx   context.Context
	time  time.Time
	level int
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{
		Interval: DefaultInterval,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// WithInterval sets Interval.
func (l *Loop) WithInterval(interval time.Duration) *Loop {
	l.Interval = interval
	return l
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a priority level, clamped into
// [PrLvTop, PrLvIdle]. Controllers also implementing Runnable are started
// with the loop.
func (l *Loop) AddController(level int, ctls ...Controller) *Loop {
	if level < PrLvTop {
		level = PrLvTop
	} else if level > PrLvIdle {
		level = PrLvIdle
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, ctl := range ctls {
		l.entries = append(l.entries, loopEntry{level: level, ctl: ctl})
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	sort.SliceStable(l.entries, func(i, j int) bool {
		return l.entries[i].level < l.entries[j].level
	})
	return l
}

// AddRunnable adds Runnables started together with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.lock.Lock()
	l.runners = append(l.runners, runnables...)
	l.lock.Unlock()
	return l
}

// Iterations returns the number of iterations executed.
func (l *Loop) Iterations() uint64 {
	return atomic.LoadUint64(&l.iterations)
}

// Overruns returns the number of iterations which took longer than
// Interval.
func (l *Loop) Overruns() uint64 {
	return atomic.LoadUint64(&l.overruns)
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	l.lock.Lock()
	runners := l.runners
	l.lock.Unlock()
	var runner *Runner
	if len(runners) > 0 {
		runner = NewRunnerWith(ctx).Go(runners...)
	}

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	glog.V(2).Infof("loop armed: interval=%v", interval)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			l.disarm()
			if runner != nil {
				if err := runner.Wait(); err != nil {
					glog.Errorf("loop runners: %v", err)
				}
			}
			return ctx.Err()
		case <-ticker.C:
			l.runIteration(ctx, interval)
		case <-l.wakeUpCh:
			l.runIteration(ctx, interval)
		}
	}
}

func (l *Loop) controllers() []loopEntry {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]loopEntry(nil), l.entries...)
}

func (l *Loop) runIteration(ctx context.Context, interval time.Duration) {
	iter := &loopIteration{Loop: l, ctx: ctx, time: time.Now()}
	for _, entry := range l.controllers() {
		iter.level = entry.level
		if err := entry.ctl.Control(iter); err != nil {
			glog.Errorf("controller error: %v", err)
		}
	}
	atomic.AddUint64(&l.iterations, 1)
	if elapsed := time.Since(iter.time); elapsed > interval {
		atomic.AddUint64(&l.overruns, 1)
		glog.V(3).Infof("loop iteration took %v, interval %v", elapsed, interval)
	}
}

func (l *Loop) disarm() {
	var disarmed int
	for _, entry := range l.controllers() {
		if d, ok := entry.ctl.(Disarmer); ok {
			d.Disarm()
			disarmed++
		}
	}
	glog.V(2).Infof("loop disarmed after %d iteration(s), %d overrun(s), %d controller(s) flushed",
		l.Iterations(), l.Overruns(), disarmed)
}

func (t *loopIteration) Context() context.Context {
	return t.ctx
}

func (t *loopIteration) Time() time.Time {
	return t.time
}

func (t *loopIteration) PriorityLevel() int {
	return t.level
}
