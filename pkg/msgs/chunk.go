package msgs

import (
	"errors"

	"github.com/golang/protobuf/proto"
)

// Chunk is a protobuf message:
//
//	message Chunk {
//	  string source = 1;
//	  uint64 seq = 2;
//	  bytes data = 3;
//	}
type Chunk struct {
	Source string `protobuf:"bytes,1,opt,name=source,proto3" json:"source,omitempty"`
	Seq    uint64 `protobuf:"varint,2,opt,name=seq,proto3" json:"seq,omitempty"`
	Data   []byte `protobuf:"bytes,3,opt,name=data,proto3" json:"data,omitempty"`
}

// Reset implements proto.Message.
func (m *Chunk) Reset() { *m = Chunk{} }

// String implements proto.Message.
func (m *Chunk) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*Chunk) ProtoMessage() {}

// ErrEmptySource indicates a chunk without source.
var ErrEmptySource = errors.New("chunk source is empty")

// Encode encodes the Chunk to bytes.
func (m *Chunk) Encode() ([]byte, error) {
	if m.Source == "" {
		return nil, ErrEmptySource
	}
	return proto.Marshal(m)
}

// DecodeChunk decodes bytes into Chunk.
func DecodeChunk(data []byte) (*Chunk, error) {
	var chunk Chunk
	if err := proto.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	if chunk.Source == "" {
		return nil, ErrEmptySource
	}
	return &chunk, nil
}

// Framer turns lines into encoded Chunks of one source.
type Framer struct {
	Source string

	seq uint64
}

// NewFramer creates a Framer for source.
func NewFramer(source string) *Framer {
	return &Framer{Source: source}
}

// Peek encodes line with the next sequence number without consuming it.
func (f *Framer) Peek(line []byte) ([]byte, error) {
	return (&Chunk{Source: f.Source, Seq: f.seq + 1, Data: line}).Encode()
}

// Commit consumes the sequence number after a successful Peek was sent.
func (f *Framer) Commit() {
	f.seq++
}

// Seq returns the sequence number of the last committed chunk.
func (f *Framer) Seq() uint64 {
	return f.seq
}
