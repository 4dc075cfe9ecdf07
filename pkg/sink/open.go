// Package sink opens log sinks from URLs.
package sink

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ringlog/pkg/ringlog"
	"github.com/robotalks/ringlog/pkg/sink/packet"
	"github.com/robotalks/ringlog/pkg/sink/serial"
	"github.com/robotalks/ringlog/pkg/transport"
	"github.com/robotalks/ringlog/pkg/transport/mqtt"
	"github.com/robotalks/ringlog/pkg/transport/nats"
	"github.com/robotalks/ringlog/pkg/transport/stream"
	"github.com/robotalks/ringlog/pkg/transport/websocket"
)

// DefaultDialTimeout bounds connecting to remote sinks.
const DefaultDialTimeout = 5 * time.Second

// Options are used when opening a sink.
type Options struct {
	// Source identifies this log source on packet sinks.
	Source      string
	Meta        mqtt.SourceMeta
	DialTimeout time.Duration
	// FlushTimeout bounds sending the staged partial line on Close.
	FlushTimeout time.Duration
}

// Target is an opened sink. It implements ringlog.Sink.
type Target struct {
	URL string

	sink    ringlog.Sink
	lines   *packet.LineSink
	closers []func() error
	opts    Options
}

// TrySend implements ringlog.Sink.
func (t *Target) TrySend(b byte, timeout time.Duration) error {
	return t.sink.TrySend(b, timeout)
}

// Close sends the staged partial line and releases the target.
func (t *Target) Close() error {
	if t.lines != nil {
		if err := t.lines.Flush(t.opts.FlushTimeout); err != nil {
			glog.Warningf("%s: partial line lost: %v", t.URL, err)
		}
	}
	var firstErr error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *Target) onClose(fn func() error) {
	t.closers = append(t.closers, fn)
}

func (t *Target) closer(c io.Closer) {
	t.onClose(c.Close)
}

// Open opens a sink from URL:
//
//	stdout:                        standard output
//	file:///dev/ttyS1?crlf=1       a serial port or a file
//	tcp://host:port                length prefixed Chunks
//	ws://host:port/path            Chunks in websocket messages
//	mqtt://host:port/prefix        Chunks published to prefix/SOURCE/log
//	nats://host:port/prefix        Chunks published to prefix.SOURCE.log
func Open(rawURL string, opts Options) (*Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sink URL: %v", err)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	t := &Target{URL: rawURL, opts: opts}
	switch u.Scheme {
	case "tcp", "ws", "wss", "mqtt", "mqtts", "nats":
		if opts.Source == "" {
			return nil, fmt.Errorf("source is required by %s", rawURL)
		}
	}
	switch u.Scheme {
	case "stdout":
		s := serial.New(os.Stdout)
		s.CRLF = false
		t.sink = s
	case "file":
		err = t.openFile(u)
	case "tcp":
		err = t.openTCP(u)
	case "ws", "wss":
		err = t.openWebsocket(u)
	case "mqtt", "mqtts":
		err = t.openMQTT(u)
	case "nats":
		err = t.openNATS(u)
	default:
		return nil, fmt.Errorf("unknown sink URL scheme: %q", u.Scheme)
	}
	if err != nil {
		t.Close()
		return nil, err
	}
	glog.Infof("sink %s opened", rawURL)
	return t, nil
}

func (t *Target) openFile(u *url.URL) error {
	f, err := os.OpenFile(u.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	t.closer(f)
	s := serial.New(f)
	if val := u.Query().Get("crlf"); val != "" {
		if s.CRLF, err = strconv.ParseBool(val); err != nil {
			return fmt.Errorf("invalid crlf: %v", err)
		}
	}
	t.sink = s
	return nil
}

func (t *Target) packetSink(w transport.PacketWriter) {
	t.lines = packet.NewFramed(w, t.opts.Source)
	t.sink = t.lines
}

func (t *Target) openTCP(u *url.URL) error {
	conn, err := net.DialTimeout("tcp", u.Host, t.opts.DialTimeout)
	if err != nil {
		return err
	}
	rw := stream.New(conn)
	t.closer(rw)
	t.packetSink(rw)
	return nil
}

func (t *Target) openWebsocket(u *url.URL) error {
	origin := "http://" + u.Host + "/"
	if u.Scheme == "wss" {
		origin = "https://" + u.Host + "/"
	}
	rw, err := websocket.Dial(u.String(), origin)
	if err != nil {
		return err
	}
	t.closer(rw)
	t.packetSink(rw)
	return nil
}

func (t *Target) openMQTT(u *url.URL) error {
	opts, prefix, err := mqtt.ClientOptionsFromURL(u.String())
	if err != nil {
		return err
	}
	mqtt.WillOptions(opts, prefix, t.opts.Source)
	q := mqtt.NewQueue(opts, prefix)
	announcer, err := mqtt.NewAnnouncer(q, t.opts.Source, t.opts.Meta)
	if err != nil {
		return err
	}
	token := q.Connect()
	if !token.WaitTimeout(t.opts.DialTimeout) {
		q.Close()
		return fmt.Errorf("connect %s timeout", u.Host)
	}
	if err := token.Error(); err != nil {
		return err
	}
	t.closer(q)
	t.onClose(func() error {
		token := announcer.Withdraw()
		token.WaitTimeout(t.opts.DialTimeout)
		return token.Error()
	})
	t.packetSink(mqtt.NewWriter(q, mqtt.LogTopic(t.opts.Source)))
	return nil
}

func (t *Target) openNATS(u *url.URL) error {
	conn, prefix, err := nats.Dial(u.String(), "ringlog:"+t.opts.Source, t.opts.DialTimeout)
	if err != nil {
		return err
	}
	t.onClose(func() error {
		conn.Close()
		return nil
	})
	t.packetSink(nats.NewWriter(conn, nats.LogSubject(prefix, t.opts.Source)))
	return nil
}
