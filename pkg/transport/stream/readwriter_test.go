package stream

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ringlog/pkg/transport"
)

func TestReadWritePackets(t *testing.T) {
	var buf bytes.Buffer
	rw := New(&buf)
	require.NoError(t, rw.WritePacket([]byte("hello")))
	require.NoError(t, rw.WritePacket(nil))
	require.Equal(t, []byte{5, 0, 0, 0, 'h', 'e', 'l', 'l', 'o', 0, 0, 0, 0}, buf.Bytes())

	pkt, err := rw.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "hello", string(pkt))
	pkt, err = rw.ReadPacket()
	require.NoError(t, err)
	require.Empty(t, pkt)
	_, err = rw.ReadPacket()
	require.Error(t, err)
	require.NoError(t, rw.Close())
}

func TestPacketTooLarge(t *testing.T) {
	var buf bytes.Buffer
	rw := New(&buf)
	require.Equal(t, transport.ErrPacketTooLarge, rw.WritePacket(make([]byte, transport.MaxPacketSize+1)))
	require.Zero(t, buf.Len())

	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	_, err := rw.ReadPacket()
	require.Equal(t, transport.ErrPacketTooLarge, err)
}

func TestWriteDeadlineOverConn(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	w, r := New(c1), New(c2)

	// Nobody reads, so the write gives up at the deadline.
	err := transport.WritePacket(w, []byte("stuck"), 10*time.Millisecond)
	require.Error(t, err)
	netErr, ok := err.(net.Error)
	require.True(t, ok)
	require.True(t, netErr.Timeout())

	received := make(chan []byte, 1)
	go func() {
		pkt, _ := r.ReadPacket()
		received <- pkt
	}()
	require.NoError(t, transport.WritePacket(w, []byte("line\n"), time.Second))
	require.Equal(t, "line\n", string(<-received))
	require.NoError(t, w.Close())
}

// tornConn accepts at most limit bytes per Write, then times out.
type tornConn struct {
	bytes.Buffer
	limit int
}

func (c *tornConn) Write(p []byte) (int, error) {
	if len(p) <= c.limit {
		return c.Buffer.Write(p)
	}
	n, _ := c.Buffer.Write(p[:c.limit])
	return n, os.ErrDeadlineExceeded
}

func readAll(t *testing.T, data []byte) []string {
	r := New(bytes.NewBuffer(data))
	var pkts []string
	for {
		pkt, err := r.ReadPacket()
		if err == io.EOF {
			return pkts
		}
		require.NoError(t, err)
		pkts = append(pkts, string(pkt))
	}
}

func TestTornWriteResumesOnRetry(t *testing.T) {
	conn := &tornConn{limit: 6}
	w := New(conn)

	err := w.WritePacket([]byte("hello\n"))
	require.True(t, errors.Is(err, os.ErrDeadlineExceeded))
	require.Equal(t, 4, w.Pending())

	conn.limit = 100
	require.NoError(t, w.WritePacket([]byte("hello\n")))
	require.Zero(t, w.Pending())
	require.NoError(t, w.WritePacket([]byte("next\n")))
	require.Equal(t, []string{"hello\n", "next\n"}, readAll(t, conn.Bytes()))
}

func TestTornWriteFlushedBeforeNewPacket(t *testing.T) {
	conn := &tornConn{limit: 6}
	w := New(conn)
	require.Error(t, w.WritePacket([]byte("hello\n")))

	// The tail still doesn't fit in one write.
	conn.limit = 2
	require.Error(t, w.WritePacket([]byte("other\n")))
	require.Equal(t, 2, w.Pending())

	conn.limit = 100
	require.NoError(t, w.WritePacket([]byte("other\n")))
	require.Equal(t, []string{"hello\n", "other\n"}, readAll(t, conn.Bytes()))
}

func TestUnsentFrameIsDropped(t *testing.T) {
	conn := &tornConn{limit: 0}
	w := New(conn)
	require.Error(t, w.WritePacket([]byte("lost")))
	require.Zero(t, w.Pending())

	conn.limit = 100
	require.NoError(t, w.WritePacket([]byte("kept")))
	require.Equal(t, []string{"kept"}, readAll(t, conn.Bytes()))
}
