// Package transport defines packet level transports log lines are shipped
// over.
package transport

import (
	"errors"
	"time"
)

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// TimedPacketWriter writes a packet or gives up after timeout.
type TimedPacketWriter interface {
	WritePacketTimeout(pkt []byte, timeout time.Duration) error
}

// WriteDeadliner is implemented by connections supporting write deadlines,
// e.g. net.Conn and *os.File.
type WriteDeadliner interface {
	SetWriteDeadline(time.Time) error
}

// ErrPacketTooLarge indicates a packet exceeding MaxPacketSize.
var ErrPacketTooLarge = errors.New("packet too large")

// MaxPacketSize is the largest packet accepted by readers.
const MaxPacketSize = 1 << 20

// WritePacket writes pkt to w within timeout if w supports it, either
// natively or through a write deadline. Otherwise it's a plain WritePacket.
func WritePacket(w PacketWriter, pkt []byte, timeout time.Duration) error {
	if tw, ok := w.(TimedPacketWriter); ok {
		return tw.WritePacketTimeout(pkt, timeout)
	}
	if dw, ok := w.(WriteDeadliner); ok && timeout > 0 {
		if err := dw.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer dw.SetWriteDeadline(time.Time{})
	}
	return w.WritePacket(pkt)
}
