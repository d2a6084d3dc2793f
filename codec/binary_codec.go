package codec

import (
	"encoding/binary"
	"errors"

	"rpc-duplex/message"
)

var (
	errNotPing   = errors.New("BinaryCodec: v must be *message.Ping")
	errTruncated = errors.New("BinaryCodec: truncated data")
)

// BinaryCodec is a fixed-layout codec for pings:
//
//	Seq (8 bytes) | SentAt (8 bytes) | Payload length (4 bytes) | Payload
//
// All integers are big-endian.
type BinaryCodec struct{}

const binaryHeaderLen = 8 + 8 + 4

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*message.Ping)
	if !ok {
		return nil, errNotPing
	}
	buf := make([]byte, binaryHeaderLen+len(msg.Payload))

	binary.BigEndian.PutUint64(buf[0:8], msg.Seq)
	binary.BigEndian.PutUint64(buf[8:16], uint64(msg.SentAt))
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(msg.Payload)))
	copy(buf[binaryHeaderLen:], msg.Payload)
	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.Ping)
	if !ok {
		return errNotPing
	}
	// Check lengths before slicing: the data comes off the wire
	if len(data) < binaryHeaderLen {
		return errTruncated
	}
	payloadLen := int(binary.BigEndian.Uint32(data[16:20]))
	if len(data)-binaryHeaderLen != payloadLen {
		return errTruncated
	}

	msg.Seq = binary.BigEndian.Uint64(data[0:8])
	msg.SentAt = int64(binary.BigEndian.Uint64(data[8:16]))
	msg.Payload = nil
	if payloadLen > 0 {
		msg.Payload = make([]byte, payloadLen)
		copy(msg.Payload, data[binaryHeaderLen:])
	}
	return nil
}

func (c *BinaryCodec) Name() string {
	return "binary"
}
