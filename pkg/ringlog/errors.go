package ringlog

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCapacity indicates the ring cannot hold any byte.
	ErrInvalidCapacity = errors.New("capacity must be at least 2")
	// ErrInvalidBatchLimit indicates a drain would never send anything.
	ErrInvalidBatchLimit = errors.New("batch limit must be positive")
	// ErrInvalidPeriod indicates the drain timer has no interval.
	ErrInvalidPeriod = errors.New("drain period must be positive")
	// ErrNilBuffer indicates the scheduler has nothing to drain.
	ErrNilBuffer = errors.New("buffer is required")
	// ErrNilSink indicates the scheduler has nowhere to drain to.
	ErrNilSink = errors.New("sink is required")
	// ErrPending indicates buffered bytes are still waiting to be sent.
	ErrPending = errors.New("buffered bytes pending")
	// ErrBusy is the generic rejection a Sink reports when it can't take
	// a byte right now.
	ErrBusy = errors.New("sink busy")
)

// TimeoutError reports a byte not accepted within the send timeout.
type TimeoutError struct {
	After time.Duration
}

// Error implements error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("send timeout after %v", e.After)
}

// Timeout marks the error as a timeout, compatible with os.IsTimeout.
func (e *TimeoutError) Timeout() bool {
	return true
}
