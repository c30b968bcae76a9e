// Package cbor implements canonical CBOR marshaling and a length-prefixed
// message codec used for both on-disk block content and the wire protocol
// (see protocol.Connection and runtime/host/protocol.connection in the
// teacher tree, which this codec mirrors).
package cbor

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CanonicalEncOptions()
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshaler is implemented by types with a custom CBOR encoding.
type Marshaler interface {
	MarshalCBOR() []byte
}

// Unmarshaler is implemented by types with a custom CBOR decoding.
type Unmarshaler interface {
	UnmarshalCBOR([]byte) error
}

// Marshal serializes v using the canonical (deterministic field order)
// encoding required by content addressing: identical values must always
// produce identical bytes.
func Marshal(v interface{}) []byte {
	b, err := encMode.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("cbor: marshal failure: %v", err))
	}
	return b
}

// Unmarshal deserializes data into v.
func Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}

// maxMessageSize bounds a single framed message, guarding against a
// malformed length prefix turning into an unbounded allocation.
const maxMessageSize = 64 << 20

// MessageCodec reads and writes canonical-CBOR messages framed with a
// 4-byte big-endian length prefix over an underlying stream.
type MessageCodec struct {
	rw io.ReadWriter
}

// NewMessageCodec wraps rw with length-prefixed CBOR framing.
func NewMessageCodec(rw io.ReadWriter) *MessageCodec {
	return &MessageCodec{rw: rw}
}

// Write encodes v and writes it as one length-prefixed frame.
func (c *MessageCodec) Write(v interface{}) error {
	body := Marshal(v)
	if len(body) > maxMessageSize {
		return fmt.Errorf("cbor: message too large: %d bytes", len(body))
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := c.rw.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.rw.Write(body)
	return err
}

// Read decodes the next length-prefixed frame into v.
func (c *MessageCodec) Read(v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.rw, lenBuf[:]); err != nil {
		return err
	}

	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxMessageSize {
		return fmt.Errorf("cbor: frame too large: %d bytes", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(c.rw, body); err != nil {
		return err
	}

	return Unmarshal(body, v)
}
