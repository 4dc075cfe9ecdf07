package nats

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTimeout = errors.New("flush timeout")

type fakeConn struct {
	pubs      []string
	confirmed int
	slow      bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.pubs = append(c.pubs, subject+" "+string(data))
	return nil
}

func (c *fakeConn) FlushTimeout(timeout time.Duration) error {
	if c.slow {
		return errTimeout
	}
	c.confirmed = len(c.pubs)
	return nil
}

func TestLogSubject(t *testing.T) {
	require.Equal(t, "lab.dev1.log", LogSubject("lab", "dev1"))
	require.Equal(t, "host_local.log", LogSubject("", "host.local"))
}

func TestWriterConfirmsPublish(t *testing.T) {
	conn := &fakeConn{}
	w := NewWriter(conn, "lab.dev1.log")
	require.NoError(t, w.WritePacket([]byte("a")))
	require.NoError(t, w.WritePacketTimeout([]byte("a"), time.Millisecond))
	require.Equal(t, []string{"lab.dev1.log a", "lab.dev1.log a"}, conn.pubs)
	require.Equal(t, 2, conn.confirmed)
}

func TestWriterRetryFlushesWithoutRepublishing(t *testing.T) {
	conn := &fakeConn{slow: true}
	w := NewWriter(conn, "s")
	require.Equal(t, errTimeout, w.WritePacketTimeout([]byte("x"), time.Millisecond))
	require.Equal(t, errTimeout, w.WritePacketTimeout([]byte("x"), time.Millisecond))
	require.Len(t, conn.pubs, 1)

	conn.slow = false
	require.NoError(t, w.WritePacketTimeout([]byte("x"), time.Millisecond))
	require.Len(t, conn.pubs, 1)
	require.NoError(t, w.WritePacketTimeout([]byte("y"), time.Millisecond))
	require.Equal(t, []string{"s x", "s y"}, conn.pubs)
}
