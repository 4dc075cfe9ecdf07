// Package packet ships log output line by line over packet transports.
package packet

import (
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ringlog/pkg/msgs"
	"github.com/robotalks/ringlog/pkg/transport"
)

// DefaultMaxLine is the longest line sent as one packet.
const DefaultMaxLine = 256

// ErrNilWriter indicates a LineSink without a PacketWriter.
var ErrNilWriter = errors.New("nil packet writer")

// LineSink implements ringlog.Sink by collecting bytes into lines.
//
// Bytes in the middle of a line are staged and accepted immediately. The
// byte completing a line ('\n', or the one filling MaxLine) is accepted only
// once the line was written as a packet. Otherwise it's rejected with the
// staged line kept, so the ring offers the same byte again later.
type LineSink struct {
	Writer transport.PacketWriter
	// Framer wraps lines into Chunks. Lines are sent raw without it.
	Framer  *msgs.Framer
	MaxLine int

	line []byte
	// unsent is the completed line of the last failed send. The transport
	// may still deliver it, so Flush retries it as-is instead of the
	// partial line.
	unsent []byte
}

// New creates a LineSink sending raw lines.
func New(w transport.PacketWriter) *LineSink {
	return &LineSink{Writer: w, MaxLine: DefaultMaxLine}
}

// NewFramed creates a LineSink sending lines as Chunks of source.
func NewFramed(w transport.PacketWriter, source string) *LineSink {
	s := New(w)
	s.Framer = msgs.NewFramer(source)
	return s
}

// Staged returns the number of bytes waiting for the end of line.
func (s *LineSink) Staged() int {
	return len(s.line)
}

// TrySend implements ringlog.Sink.
func (s *LineSink) TrySend(b byte, timeout time.Duration) error {
	if b != '\n' && len(s.line)+1 < s.maxLine() {
		s.line = append(s.line, b)
		return nil
	}
	s.line = append(s.line, b)
	if err := s.send(timeout); err != nil {
		s.unsent = append(s.unsent[:0], s.line...)
		s.line = s.line[:len(s.line)-1]
		return err
	}
	s.unsent = s.unsent[:0]
	return nil
}

// Flush sends the staged partial line, if any. If the line was completed
// but its send failed, the completed line is sent instead.
func (s *LineSink) Flush(timeout time.Duration) error {
	if len(s.unsent) > 0 {
		staged := s.line
		s.line = append([]byte(nil), s.unsent...)
		if err := s.send(timeout); err != nil {
			s.line = staged
			return err
		}
		s.unsent = s.unsent[:0]
		return nil
	}
	if len(s.line) == 0 {
		return nil
	}
	return s.send(timeout)
}

func (s *LineSink) send(timeout time.Duration) error {
	if s.Writer == nil {
		return ErrNilWriter
	}
	pkt := s.line
	if s.Framer != nil {
		encoded, err := s.Framer.Peek(s.line)
		if err != nil {
			return err
		}
		pkt = encoded
	}
	if err := transport.WritePacket(s.Writer, pkt, timeout); err != nil {
		glog.V(3).Infof("line of %d byte(s) not sent: %v", len(s.line), err)
		return err
	}
	if s.Framer != nil {
		s.Framer.Commit()
	}
	s.line = s.line[:0]
	return nil
}

func (s *LineSink) maxLine() int {
	if s.MaxLine <= 0 {
		return DefaultMaxLine
	}
	return s.MaxLine
}
