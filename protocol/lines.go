package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Lines is the newline-delimited codec used by JSON-RPC stream servers.
// A frame must not contain '\n'; compact JSON never does. The decoder drops blank
// lines and a trailing '\r', so empty frames and frames ending in '\r' are rejected.
type Lines struct{}

func (Lines) Name() string { return "lines" }

func (Lines) Validate(frame []byte) error {
	if len(frame) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	if len(frame) == 0 {
		return ErrEmptyFrame
	}
	if bytes.IndexByte(frame, '\n') >= 0 || frame[len(frame)-1] == '\r' {
		return ErrDelimiterInFrame
	}
	return nil
}

func (Lines) NewEncoder(w io.Writer) Encoder {
	return &linesEncoder{w: bufio.NewWriter(w)}
}

func (Lines) NewDecoder(r io.Reader) Decoder {
	return &linesDecoder{r: bufio.NewReader(r)}
}

type linesEncoder struct {
	w *bufio.Writer
}

func (e *linesEncoder) Encode(frame []byte) error {
	if err := (Lines{}).Validate(frame); err != nil {
		return err
	}
	if _, err := e.w.Write(frame); err != nil {
		return err
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return err
	}
	return e.w.Flush()
}

type linesDecoder struct {
	r   *bufio.Reader
	buf []byte
}

// Decode skips blank lines. A trailing line without '\n' at EOF is still a frame.
func (d *linesDecoder) Decode() ([]byte, error) {
	for {
		line, err := d.readLine()
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			return nil, err
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		return frame, nil
	}
}

func (d *linesDecoder) readLine() ([]byte, error) {
	d.buf = d.buf[:0]
	for {
		chunk, err := d.r.ReadSlice('\n')
		d.buf = append(d.buf, chunk...)
		if len(d.buf) > MaxFrameSize+1 {
			return nil, ErrFrameTooLarge
		}
		switch {
		case err == nil:
			return d.buf[:len(d.buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return d.buf, err
		}
	}
}
