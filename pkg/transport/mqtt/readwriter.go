package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Topic conventions under the queue prefix:
//
//	SOURCE/log   chunks of log output
//	SOURCE/meta  retained SourceMeta, cleared when the source goes away
const (
	LogTopicSuffix  = "/log"
	MetaTopicSuffix = "/meta"
)

// LogTopic returns the topic a source publishes log chunks to.
func LogTopic(source string) string {
	return source + LogTopicSuffix
}

// MetaTopic returns the topic a source announces itself on.
func MetaTopic(source string) string {
	return source + MetaTopicSuffix
}

// SourceMeta describes a log source.
type SourceMeta struct {
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// ErrTimeout indicates a publish not confirmed in time.
var ErrTimeout = errors.New("publish timeout")

// Publisher publishes payloads. Queue implements it.
type Publisher interface {
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
}

// Writer implements PacketWriter and TimedPacketWriter by publishing each
// packet to Topic.
//
// A publish not confirmed within the timeout stays pending: retrying the
// same packet waits for the pending publish instead of publishing it
// again, so a slow broker doesn't cause duplicates.
type Writer struct {
	Publisher Publisher
	Topic     string
	QoS       byte

	lock       sync.Mutex
	pending    paho.Token
	pendingPkt []byte
}

// NewWriter creates a Writer.
func NewWriter(pub Publisher, topic string) *Writer {
	return &Writer{Publisher: pub, Topic: topic, QoS: 1}
}

// WritePacket implements PacketWriter.
func (w *Writer) WritePacket(pkt []byte) error {
	return w.WritePacketTimeout(pkt, 0)
}

// WritePacketTimeout implements TimedPacketWriter, 0 means no timeout.
func (w *Writer) WritePacketTimeout(pkt []byte, timeout time.Duration) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.pending == nil || !bytes.Equal(w.pendingPkt, pkt) {
		w.pending = w.Publisher.PubWith(w.Topic, pkt, w.QoS, false)
		w.pendingPkt = append(w.pendingPkt[:0], pkt...)
	}
	if timeout > 0 {
		if !w.pending.WaitTimeout(timeout) {
			return ErrTimeout
		}
	} else {
		w.pending.Wait()
	}
	err := w.pending.Error()
	w.pending, w.pendingPkt = nil, w.pendingPkt[:0]
	return err
}

// Announcer keeps a retained SourceMeta of a source on the broker while
// connected. Use WillOptions on the client options to clear it on
// unexpected disconnects.
type Announcer struct {
	Queue  *Queue
	Source string
	Meta   SourceMeta

	metaJSON []byte
}

// NewAnnouncer creates an Announcer and hooks it on Queue connects.
func NewAnnouncer(q *Queue, source string, meta SourceMeta) (*Announcer, error) {
	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	a := &Announcer{Queue: q, Source: source, Meta: meta, metaJSON: metaJSON}
	q.OnConnect = func(*Queue) { a.Announce() }
	return a, nil
}

// WillOptions sets a will clearing the source's meta.
func WillOptions(opts *paho.ClientOptions, topicPrefix, source string) {
	opts.SetBinaryWill(topicPrefix+MetaTopic(source), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("ringlog:" + source)
	}
}

// Announce publishes the meta.
func (a *Announcer) Announce() paho.Token {
	return a.Queue.PubWith(MetaTopic(a.Source), a.metaJSON, 1, true)
}

// Withdraw clears the meta.
func (a *Announcer) Withdraw() paho.Token {
	return a.Queue.PubWith(MetaTopic(a.Source), nil, 1, true)
}

// Reader implements PacketReader on a subscription.
type Reader struct {
	Queue *Queue
	Topic string

	packetCh chan Packet
	doneCh   chan struct{}
}

// Packet is a received payload with the topic it came from.
type Packet struct {
	Topic   string
	Payload []byte
}

// NewReader creates a Reader for topic (wildcards allowed).
func NewReader(q *Queue, topic string) *Reader {
	return &Reader{
		Queue:    q,
		Topic:    topic,
		packetCh: make(chan Packet, 16),
		doneCh:   make(chan struct{}),
	}
}

// ReadPacket implements PacketReader.
func (r *Reader) ReadPacket() ([]byte, error) {
	pkt, err := r.ReadTopicPacket()
	return pkt.Payload, err
}

// ReadTopicPacket reads the next packet along with its topic.
// It returns io.EOF once Run has stopped.
func (r *Reader) ReadTopicPacket() (Packet, error) {
	select {
	case pkt := <-r.packetCh:
		return pkt, nil
	case <-r.doneCh:
		return Packet{}, io.EOF
	}
}

// Run implements Runnable. The subscription lives until ctx is done.
func (r *Reader) Run(ctx context.Context) error {
	sub := r.Queue.Sub(r.Topic, Handler(r.handleMsg))
	defer close(r.doneCh)
	defer sub.Close()
	<-ctx.Done()
	return ctx.Err()
}

func (r *Reader) handleMsg(topic string, payload []byte) {
	select {
	case r.packetCh <- Packet{Topic: topic, Payload: payload}:
	default:
		glog.Warningf("reader %q overrun, packet from %q dropped", r.Topic, topic)
	}
}
