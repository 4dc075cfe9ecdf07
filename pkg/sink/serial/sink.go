// Package serial sends log bytes to a serial port or any byte stream.
package serial

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/robotalks/ringlog/pkg/transport"
)

// Sink implements ringlog.Sink on a byte stream. Write deadlines bound each
// attempt when the stream supports them (*os.File of a tty, net.Conn).
type Sink struct {
	Port io.Writer
	// CRLF translates '\n' into "\r\n".
	CRLF bool

	crSent bool
	one    [1]byte
}

// New creates a Sink with CRLF translation enabled.
func New(port io.Writer) *Sink {
	return &Sink{Port: port, CRLF: true}
}

// TrySend implements ringlog.Sink.
// When the '\r' of a translated '\n' went out but the '\n' didn't, the
// retry only sends the '\n'.
func (s *Sink) TrySend(b byte, timeout time.Duration) error {
	if s.CRLF && b == '\n' && !s.crSent {
		if err := s.write('\r', timeout); err != nil {
			return err
		}
		s.crSent = true
	}
	if err := s.write(b, timeout); err != nil {
		return err
	}
	s.crSent = false
	return nil
}

// Close closes the port if it's an io.Closer.
func (s *Sink) Close() error {
	if closer, ok := s.Port.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (s *Sink) write(b byte, timeout time.Duration) error {
	if dw, ok := s.Port.(transport.WriteDeadliner); ok && timeout > 0 {
		err := dw.SetWriteDeadline(time.Now().Add(timeout))
		switch {
		case err == nil:
			defer dw.SetWriteDeadline(time.Time{})
		case !errors.Is(err, os.ErrNoDeadline):
			return err
		}
	}
	s.one[0] = b
	n, err := s.Port.Write(s.one[:])
	if n == 1 {
		return nil
	}
	if err == nil {
		err = io.ErrShortWrite
	}
	return err
}
