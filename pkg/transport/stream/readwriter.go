package stream

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/robotalks/ringlog/pkg/transport"
)

// ReadWriter implements PacketReadWriter.
// Each packet is prefixed by 4-byte (little-endian) indicate the length.
//
// A frame cut by a write error (e.g. a deadline) is never restarted: the
// unsent tail is kept and the next write sends it first, so the stream stays
// framed. Retrying the same packet just completes it.
type ReadWriter struct {
	io.ReadWriter

	writeLock  sync.Mutex
	pendingPkt []byte
	tail       []byte
}

// New creates a ReadWriter with io.ReadWriter.
func New(s io.ReadWriter) *ReadWriter {
	return &ReadWriter{ReadWriter: s}
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	var size uint32
	if err := binary.Read(p.ReadWriter, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > transport.MaxPacketSize {
		return nil, transport.ErrPacketTooLarge
	}
	pkt := make([]byte, size)
	_, err := io.ReadFull(p.ReadWriter, pkt)
	return pkt, err
}

// WritePacket implements PacketWriter. The length and the payload go out
// in a single Write.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	if len(pkt) > transport.MaxPacketSize {
		return transport.ErrPacketTooLarge
	}
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	if len(p.tail) > 0 {
		retry := bytes.Equal(p.pendingPkt, pkt)
		if err := p.writeTail(); err != nil {
			return err
		}
		if retry {
			return nil
		}
	}
	frame := make([]byte, 4+len(pkt))
	binary.LittleEndian.PutUint32(frame, uint32(len(pkt)))
	copy(frame[4:], pkt)
	p.tail = frame
	p.pendingPkt = append(p.pendingPkt[:0], pkt...)
	err := p.writeTail()
	if err != nil && len(p.tail) == len(frame) {
		// nothing went out, the stream is still framed.
		p.tail, p.pendingPkt = nil, p.pendingPkt[:0]
	}
	return err
}

// Pending returns the number of bytes of an interrupted frame not yet sent.
func (p *ReadWriter) Pending() int {
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	return len(p.tail)
}

func (p *ReadWriter) writeTail() error {
	n, err := p.ReadWriter.Write(p.tail)
	if n < 0 || n > len(p.tail) {
		n = 0
	}
	p.tail = p.tail[n:]
	if len(p.tail) == 0 {
		p.tail, p.pendingPkt = nil, p.pendingPkt[:0]
		return nil
	}
	if err == nil {
		err = io.ErrShortWrite
	}
	return err
}

// SetWriteDeadline forwards to the underlying stream if supported.
func (p *ReadWriter) SetWriteDeadline(t time.Time) error {
	if dw, ok := p.ReadWriter.(transport.WriteDeadliner); ok {
		return dw.SetWriteDeadline(t)
	}
	return nil
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	if closer, ok := p.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
