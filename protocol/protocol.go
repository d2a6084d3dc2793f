// Package protocol implements the frame codecs that turn a byte stream into discrete frames.
//
// A Codec splits into two halves: an Encoder that owns the write side of a connection and a
// Decoder that owns the read side. Each Encode call writes exactly one frame, and each Decode
// call returns exactly one frame, so frame boundaries survive TCP's sticky packet problem.
//
// Two codecs are provided:
//   - Framed: fixed 9-byte header followed by the body (supports heartbeat frames)
//   - Lines:  newline-delimited frames, as used by JSON-RPC stream transports
package protocol

import (
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame body. Larger frames are rejected on both sides
// so a corrupt length field cannot make the decoder allocate gigabytes.
const MaxFrameSize = 16 << 20

var (
	ErrFrameTooLarge    = errors.New("protocol: frame too large")
	ErrUnknownCodec     = errors.New("protocol: unknown codec")
	ErrDelimiterInFrame = errors.New("protocol: frame contains delimiter")
	ErrEmptyFrame       = errors.New("protocol: empty frame")
)

// Codec builds the encoder and decoder for one connection.
type Codec interface {
	Name() string
	// Validate reports whether frame can be encoded, without writing anything.
	Validate(frame []byte) error
	NewEncoder(w io.Writer) Encoder
	NewDecoder(r io.Reader) Decoder
}

// Encoder writes frames to a stream. It is not safe for concurrent use:
// the owner must serialize calls, otherwise frames interleave and corrupt the stream.
type Encoder interface {
	Encode(frame []byte) error
}

// HeartbeatEncoder is implemented by encoders whose wire format has a control frame
// that the peer's decoder discards.
type HeartbeatEncoder interface {
	Encoder
	EncodeHeartbeat() error
}

// Decoder reads frames from a stream. It returns io.EOF when the stream ends cleanly
// on a frame boundary.
type Decoder interface {
	Decode() ([]byte, error)
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "framed":
		return Framed{}, nil
	case "lines":
		return Lines{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}
