package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Framed header layout:
//
//	0      3  4  5         9
//	┌──────┬──┬──┬─────────┬───────────────┐
//	│magic │v │mt│ bodyLen │    body ...    │
//	│ rdx  │01│  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴─────────┴───────────────┘
//
// The magic bytes reject non-protocol peers (e.g. an HTTP server on the wrong port).
const (
	MagicNumber byte = 0x72 // 'r'
	MagicByte2  byte = 0x64 // 'd'
	MagicByte3  byte = 0x78 // 'x'
	Version     byte = 0x01
	HeaderSize  int  = 9 // 3 (magic) + 1 (version) + 1 (msgType) + 4 (bodyLen)
)

// MsgType distinguishes data frames from heartbeat frames.
type MsgType byte

const (
	MsgTypeData      MsgType = 0
	MsgTypeHeartbeat MsgType = 1 // KeepAlive frame, no body, never surfaced by the decoder
)

// Framed is the length-prefixed codec.
type Framed struct{}

func (Framed) Name() string { return "framed" }

func (Framed) Validate(frame []byte) error {
	if len(frame) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	return nil
}

func (Framed) NewEncoder(w io.Writer) Encoder {
	return &framedEncoder{w: bufio.NewWriter(w)}
}

func (Framed) NewDecoder(r io.Reader) Decoder {
	return &framedDecoder{r: bufio.NewReader(r)}
}

// WriteFrame writes a complete frame (header + body) to w.
func WriteFrame(w io.Writer, t MsgType, body []byte) error {
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var header [HeaderSize]byte
	header[0], header[1], header[2] = MagicNumber, MagicByte2, MagicByte3
	header[3] = Version
	header[4] = byte(t)
	// Body length, big-endian (network byte order)
	binary.BigEndian.PutUint32(header[5:9], uint32(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads a complete frame from r, validating magic, version and message type.
// A stream that ends before the first header byte yields io.EOF; a stream that ends
// mid-frame yields io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) (MsgType, []byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	if header[0] != MagicNumber || header[1] != MagicByte2 || header[2] != MagicByte3 {
		return 0, nil, fmt.Errorf("invalid magic number: %x", header[0:3])
	}
	if header[3] != Version {
		return 0, nil, fmt.Errorf("unsupported version: %d", header[3])
	}
	t := MsgType(header[4])
	if t != MsgTypeData && t != MsgTypeHeartbeat {
		return 0, nil, fmt.Errorf("unsupported message type: %d", header[4])
	}

	bodyLen := binary.BigEndian.Uint32(header[5:9])
	if bodyLen > MaxFrameSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, bodyLen)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	return t, body, nil
}

type framedEncoder struct {
	w *bufio.Writer
}

func (e *framedEncoder) Encode(frame []byte) error {
	return e.write(MsgTypeData, frame)
}

func (e *framedEncoder) EncodeHeartbeat() error {
	return e.write(MsgTypeHeartbeat, nil)
}

// write flushes after every frame so one Encode maps to one frame on the wire.
func (e *framedEncoder) write(t MsgType, body []byte) error {
	if err := WriteFrame(e.w, t, body); err != nil {
		return err
	}
	return e.w.Flush()
}

type framedDecoder struct {
	r *bufio.Reader
}

func (d *framedDecoder) Decode() ([]byte, error) {
	for {
		t, body, err := ReadFrame(d.r)
		if err != nil {
			return nil, err
		}
		if t == MsgTypeHeartbeat {
			continue
		}
		return body, nil
	}
}
