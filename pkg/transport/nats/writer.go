// Package nats publishes packets to NATS subjects.
package nats

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	natsgo "github.com/nats-io/nats.go"
)

// DefaultFlushTimeout bounds WritePacket without an explicit timeout.
const DefaultFlushTimeout = 5 * time.Second

// Conn is the part of a NATS connection used by Writer.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
}

// LogSubject returns the subject a source publishes log chunks to.
func LogSubject(prefix, source string) string {
	subject := strings.Replace(source, ".", "_", -1) + ".log"
	if prefix != "" {
		subject = prefix + "." + subject
	}
	return subject
}

// Writer implements PacketWriter and TimedPacketWriter.
//
// A packet counts as written once the server confirms it by a flush. A
// packet published but not confirmed in time stays pending, and retrying
// the same packet only flushes again instead of publishing a duplicate.
type Writer struct {
	Conn    Conn
	Subject string

	lock       sync.Mutex
	pendingPkt []byte
	pending    bool
}

// NewWriter creates a Writer.
func NewWriter(conn Conn, subject string) *Writer {
	return &Writer{Conn: conn, Subject: subject}
}

// WritePacket implements PacketWriter.
func (w *Writer) WritePacket(pkt []byte) error {
	return w.WritePacketTimeout(pkt, DefaultFlushTimeout)
}

// WritePacketTimeout implements TimedPacketWriter.
func (w *Writer) WritePacketTimeout(pkt []byte, timeout time.Duration) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if !w.pending || !bytes.Equal(w.pendingPkt, pkt) {
		if err := w.Conn.Publish(w.Subject, pkt); err != nil {
			return err
		}
		glog.V(2).Infof("PUB %q %d byte(s)", w.Subject, len(pkt))
		w.pending, w.pendingPkt = true, append(w.pendingPkt[:0], pkt...)
	}
	if timeout <= 0 {
		timeout = DefaultFlushTimeout
	}
	if err := w.Conn.FlushTimeout(timeout); err != nil {
		return err
	}
	w.pending, w.pendingPkt = false, w.pendingPkt[:0]
	return nil
}

// Dial connects to the server in a URL like nats://host:4222/subject.prefix
// and returns the connection with the subject prefix.
func Dial(rawURL, name string, timeout time.Duration) (*natsgo.Conn, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", err
	}
	prefix := strings.Trim(strings.Replace(u.Path, "/", ".", -1), ".")
	server := url.URL{Scheme: "nats", User: u.User, Host: u.Host}
	conn, err := natsgo.Connect(server.String(), natsgo.Name(name), natsgo.Timeout(timeout))
	if err != nil {
		return nil, "", fmt.Errorf("connect NATS %s error: %v", u.Host, err)
	}
	return conn, prefix, nil
}
