package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// RunnerError is the failure of one Runnable, reported by Runner.Wait.
type RunnerError struct {
	Name string
	Err  error
}

// Error implements error.
func (e *RunnerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

// Unwrap returns the error of the Runnable.
func (e *RunnerError) Unwrap() error {
	return e.Err
}

// ErrForcedExit is returned by Wait when the stop was requested twice.
var ErrForcedExit = errors.New("forced exit")

type runResult struct {
	name string
	err  error
}

// Runner runs Runnables under a shared context and collects their errors.
// Stopping the runner cancels the context; Runnables are expected to finish
// their pending work (e.g. a final drain) before returning.
type Runner struct {
	Context context.Context
	Runners []Runnable

	cancel   func()
	resultCh chan runResult
	exitCh   chan struct{}
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner derived from ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	r := &Runner{
		resultCh: make(chan runResult, 1),
		exitCh:   make(chan struct{}),
	}
	r.Context, r.cancel = context.WithCancel(ctx)
	return r
}

// Stop cancels the context of all Runnables.
func (r *Runner) Stop() {
	r.cancel()
}

// HandleSignals stops the runner on CtrlC or SIGTERM, and forces Wait to
// return on the second one without waiting for pending work.
func (r *Runner) HandleSignals() *Runner {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Info("stop requested")
		r.Stop()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.exitCh)
	}()
	return r
}

// StopOnExit wraps runnable to stop the whole runner once it returns,
// e.g. when the input feeding the log ends.
func (r *Runner) StopOnExit(runnable Runnable) Runnable {
	name := ""
	if named, ok := runnable.(Named); ok {
		name = named.Name()
	}
	stopping := RunFunc(func(ctx context.Context) error {
		defer r.Stop()
		return runnable.Run(ctx)
	})
	if name == "" {
		return stopping
	}
	return NamedRun(name, stopping)
}

// Go spawns Runnables with the runner's context.
func (r *Runner) Go(runners ...Runnable) *Runner {
	for _, runner := range runners {
		var name string
		if named, ok := runner.(Named); ok {
			name = named.Name()
		} else {
			name = strconv.Itoa(len(r.Runners))
		}
		r.Runners = append(r.Runners, runner)
		glog.V(4).Infof("start Runner[%s]", name)
		go func(runner Runnable, name string) {
			r.resultCh <- runResult{name: name, err: runner.Run(r.Context)}
		}(runner, name)
	}
	return r
}

// Wait waits until all Runnables stop and aggregates their errors as
// RunnerErrors. Cancellation is not reported as an error.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for range r.Runners {
		select {
		case <-r.exitCh:
			return ErrForcedExit
		case res := <-r.resultCh:
			glog.V(4).Infof("Runner[%s] stopped: %v", res.name, res.err)
			if res.err != nil && res.err != context.Canceled {
				errs.Add(&RunnerError{Name: res.name, Err: res.err})
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCloser runs fn which doesn't accept a context, e.g. a
// blocking read. closer is closed when ctx is done to unblock fn, or after
// fn returns otherwise. On cancel it returns without waiting for fn, as not
// every reader unblocks on Close.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		closer.Close()
		return ctx.Err()
	case err := <-errCh:
		closer.Close()
		return err
	}
}
