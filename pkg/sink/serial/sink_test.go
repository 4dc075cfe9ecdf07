package serial

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("busy")

type fakePort struct {
	got    []byte
	reject func(b byte) bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.reject != nil && p.reject(b[0]) {
		return 0, errBusy
	}
	p.got = append(p.got, b...)
	return len(b), nil
}

func TestSinkTranslatesNewline(t *testing.T) {
	port := &fakePort{}
	s := New(port)
	for _, b := range []byte("a\nb\n") {
		require.NoError(t, s.TrySend(b, time.Millisecond))
	}
	require.Equal(t, "a\r\nb\r\n", string(port.got))

	port.got = nil
	s.CRLF = false
	require.NoError(t, s.TrySend('\n', time.Millisecond))
	require.Equal(t, "\n", string(port.got))
}

func TestSinkRetryDoesNotRepeatCR(t *testing.T) {
	busy := true
	port := &fakePort{reject: func(b byte) bool { return b == '\n' && busy }}
	s := New(port)
	require.Equal(t, errBusy, s.TrySend('\n', time.Millisecond))
	require.Equal(t, errBusy, s.TrySend('\n', time.Millisecond))
	busy = false
	require.NoError(t, s.TrySend('\n', time.Millisecond))
	require.NoError(t, s.TrySend('\n', time.Millisecond))
	require.Equal(t, "\r\n\r\n", string(port.got))
}

func TestSinkRejectedCRSendsNothing(t *testing.T) {
	busy := true
	port := &fakePort{reject: func(b byte) bool { return b == '\r' && busy }}
	s := New(port)
	require.Equal(t, errBusy, s.TrySend('\n', time.Millisecond))
	require.Empty(t, port.got)
	busy = false
	require.NoError(t, s.TrySend('\n', time.Millisecond))
	require.Equal(t, "\r\n", string(port.got))
}

func TestSinkHonorsWriteDeadline(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	s := New(c1)

	err := s.TrySend('x', 10*time.Millisecond)
	require.Error(t, err)
	netErr, ok := err.(net.Error)
	require.True(t, ok)
	require.True(t, netErr.Timeout())

	received := make(chan byte, 1)
	go func() {
		buf := make([]byte, 1)
		c2.Read(buf)
		received <- buf[0]
	}()
	require.NoError(t, s.TrySend('y', time.Second))
	require.Equal(t, byte('y'), <-received)
	require.NoError(t, s.Close())
}
