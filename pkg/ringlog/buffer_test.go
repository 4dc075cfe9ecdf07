package ringlog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordSink accepts bytes unless reject returns true for the attempt.
type recordSink struct {
	lock     sync.Mutex
	got      []byte
	attempts int
	reject   func(attempt int, b byte) bool
}

func (s *recordSink) TrySend(b byte, timeout time.Duration) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	attempt := s.attempts
	s.attempts++
	if s.reject != nil && s.reject(attempt, b) {
		return ErrBusy
	}
	s.got = append(s.got, b)
	return nil
}

func (s *recordSink) received() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return string(s.got)
}

func appendString(buf *Buffer, s string) {
	for i := 0; i < len(s); i++ {
		buf.Append(s[i])
	}
}

func TestNewBufferRejectsBadSize(t *testing.T) {
	for _, size := range []int{-1, 0, 1} {
		_, err := NewBuffer(size)
		require.Equalf(t, ErrInvalidCapacity, err, "size %d", size)
	}
	buf, err := NewBuffer(2)
	require.NoError(t, err)
	require.Equal(t, 1, buf.Cap())
	require.Equal(t, 2, buf.Size())
	require.Zero(t, buf.Len())
}

func TestBufferDrainBatches(t *testing.T) {
	buf := MustNewBuffer(8)
	require.Equal(t, 7, buf.Cap())
	appendString(buf, "ABC")
	require.Equal(t, 3, buf.Len())

	sink := &recordSink{}
	require.Equal(t, 2, buf.Drain(sink, 2, time.Millisecond))
	require.Equal(t, "AB", sink.received())
	require.Equal(t, 1, buf.Len())

	require.Equal(t, 1, buf.Drain(sink, 2, time.Millisecond))
	require.Equal(t, "ABC", sink.received())
	require.Zero(t, buf.Len())

	require.Zero(t, buf.Drain(sink, 2, time.Millisecond))
	require.Equal(t, 3, sink.attempts)
}

func TestBufferOverflowDropsNewest(t *testing.T) {
	buf := MustNewBuffer(4)
	appendString(buf, "ABCD")
	require.Equal(t, 3, buf.Len())
	require.Equal(t, uint64(1), buf.Dropped())

	sink := &recordSink{}
	require.Equal(t, 3, buf.Drain(sink, 16, time.Millisecond))
	require.Equal(t, "ABC", sink.received())
}

func TestBufferOverflowKeepsCapacityMinusOne(t *testing.T) {
	const size = 16
	buf := MustNewBuffer(size)
	in := make([]byte, 100)
	for i := range in {
		in[i] = byte(i)
		buf.Append(in[i])
	}
	require.Equal(t, size-1, buf.Len())
	require.Equal(t, uint64(len(in)-(size-1)), buf.Dropped())

	sink := &recordSink{}
	buf.Drain(sink, 1000, time.Millisecond)
	require.Equal(t, string(in[:size-1]), sink.received())
}

func TestBufferWrapsAround(t *testing.T) {
	buf := MustNewBuffer(5)
	sink := &recordSink{}
	var expected []byte
	for round := 0; round < 10; round++ {
		chunk := []byte{byte('a' + round), byte('A' + round), byte('0' + round)}
		expected = append(expected, chunk...)
		appendString(buf, string(chunk))
		require.Equal(t, 3, buf.Drain(sink, 8, time.Millisecond))
	}
	require.Equal(t, string(expected), sink.received())
	require.Zero(t, buf.Dropped())
}

func TestBufferDrainRollback(t *testing.T) {
	testCases := []struct {
		name     string
		rejectAt int
		batch    int
		first    string
		second   string
	}{
		{"first byte busy", 0, 4, "", "ABCD"},
		{"third byte busy", 2, 4, "AB", "CDEF"},
		{"last of batch busy", 3, 4, "ABC", "DEFG"},
		{"never busy", -1, 4, "ABCD", "EFGH"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := MustNewBuffer(16)
			appendString(buf, "ABCDEFGHIJ")
			sink := &recordSink{reject: func(attempt int, b byte) bool {
				return attempt == tc.rejectAt
			}}
			n := buf.Drain(sink, tc.batch, time.Millisecond)
			require.Equal(t, len(tc.first), n)
			require.Equal(t, tc.first, sink.received())
			require.Equal(t, 10-len(tc.first), buf.Len())

			sink.lock.Lock()
			sink.got = nil
			sink.lock.Unlock()
			buf.Drain(sink, tc.batch, time.Millisecond)
			require.Equal(t, tc.second, sink.received())
		})
	}
}

func TestBufferAtMostOnceWithFlakySink(t *testing.T) {
	buf := MustNewBuffer(64)
	const msg = "the quick brown fox jumps over the lazy dog"
	appendString(buf, msg)
	sink := &recordSink{reject: func(attempt int, b byte) bool {
		return attempt%3 == 1
	}}
	for i := 0; i < 1000 && buf.Len() > 0; i++ {
		buf.Drain(sink, 4, time.Millisecond)
	}
	require.Equal(t, msg, sink.received())
	require.Zero(t, buf.Len())
}

func TestBufferBatchBound(t *testing.T) {
	buf := MustNewBuffer(64)
	appendString(buf, "0123456789abcdef0123456789")
	sink := &recordSink{}
	for _, expected := range []int{16, 10, 0} {
		require.Equal(t, expected, buf.Drain(sink, 16, time.Millisecond))
	}
}

func TestBufferConcurrentProducerConsumer(t *testing.T) {
	buf := MustNewBuffer(32)
	const total = 20000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			// Spin until there's room so nothing is dropped.
			for buf.Len() == buf.Cap() {
				time.Sleep(time.Microsecond)
			}
			buf.Append(byte(i))
		}
	}()

	sink := &recordSink{}
	deadline := time.After(10 * time.Second)
	for {
		buf.Drain(sink, 16, time.Millisecond)
		sink.lock.Lock()
		n := len(sink.got)
		sink.lock.Unlock()
		if n == total {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("received %d of %d bytes", n, total)
		default:
		}
	}
	<-done
	require.Zero(t, buf.Dropped())
	for i, b := range sink.got {
		require.Equalf(t, byte(i), b, "byte[%d]", i)
	}
}
