package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	body := []byte("hello world")

	var buf bytes.Buffer
	if err := WriteFrame(&buf, MsgTypeData, body); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if buf.Len() != HeaderSize+len(body) {
		t.Fatalf("frame length mismatch: got %d, want %d", buf.Len(), HeaderSize+len(body))
	}

	msgType, decodedBody, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if msgType != MsgTypeData {
		t.Errorf("MsgType mismatch: got %d, want %d", msgType, MsgTypeData)
	}
	if !bytes.Equal(decodedBody, body) {
		t.Errorf("Body mismatch: got %s, want %s", string(decodedBody), string(body))
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	invalid := []byte{0x00, 0x00, 0x00, Version, byte(MsgTypeData), 0x00, 0x00, 0x00, 0x0B}
	var buf bytes.Buffer
	buf.Write(invalid)
	buf.Write([]byte("hello world"))

	_, _, err := ReadFrame(&buf)
	if err == nil {
		t.Fatal("expected error for invalid magic number, got nil")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("invalid magic number")) {
		t.Errorf("error should mention invalid magic, got: %v", err)
	}
}

func TestDecodeInvalidVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{
		MagicNumber, MagicByte2, MagicByte3,
		0xFF, // wrong version
		byte(MsgTypeData),
		0, 0, 0, 0,
	})

	_, _, err := ReadFrame(&buf)
	if err == nil {
		t.Fatal("expected error for bad version, got nil")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("unsupported version")) {
		t.Errorf("error should mention unsupported version, got: %v", err)
	}
}

func TestDecodeRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{MagicNumber, MagicByte2, MagicByte3, Version, byte(MsgTypeData), 0xFF, 0xFF, 0xFF, 0xFF})

	_, _, err := ReadFrame(&buf)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, MsgTypeData, []byte("truncated")); err != nil {
		t.Fatal(err)
	}
	buf.Truncate(buf.Len() - 3)

	_, _, err := ReadFrame(&buf)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestDecodeLargeBody(t *testing.T) {
	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	var buf bytes.Buffer
	enc := Framed{}.NewEncoder(&buf)
	if err := enc.Encode(largeBody); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Framed{}.NewDecoder(&buf).Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded, largeBody) {
		t.Errorf("large body mismatch")
	}
}

func TestFramedSkipsHeartbeats(t *testing.T) {
	var buf bytes.Buffer
	enc := Framed{}.NewEncoder(&buf).(HeartbeatEncoder)
	if err := enc.EncodeHeartbeat(); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode([]byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := enc.EncodeHeartbeat(); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode([]byte{}); err != nil {
		t.Fatal(err)
	}

	dec := Framed{}.NewDecoder(&buf)
	first, err := dec.Decode()
	if err != nil || string(first) != "a" {
		t.Fatalf("expect frame 'a', got %q (%v)", first, err)
	}
	second, err := dec.Decode()
	if err != nil || len(second) != 0 {
		t.Fatalf("expect empty frame, got %q (%v)", second, err)
	}
	if _, err := dec.Decode(); err != io.EOF {
		t.Fatalf("expect io.EOF at end of stream, got %v", err)
	}
}

func TestLinesRoundTrip(t *testing.T) {
	frames := []string{`{"jsonrpc":"2.0","id":1}`, "ping", `{"id":2}`}

	var buf bytes.Buffer
	enc := Lines{}.NewEncoder(&buf)
	for _, f := range frames {
		if err := enc.Encode([]byte(f)); err != nil {
			t.Fatalf("Encode(%q) failed: %v", f, err)
		}
	}

	dec := Lines{}.NewDecoder(&buf)
	for _, want := range frames {
		got, err := dec.Decode()
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if string(got) != want {
			t.Fatalf("expect %q, got %q", want, got)
		}
	}
	if _, err := dec.Decode(); err != io.EOF {
		t.Fatalf("expect io.EOF, got %v", err)
	}
}

func TestLinesDecoderToleratesCRLFAndBlankLines(t *testing.T) {
	dec := Lines{}.NewDecoder(bytes.NewBufferString("\n\r\nfirst\r\n\nsecond"))

	for _, want := range []string{"first", "second"} {
		got, err := dec.Decode()
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if string(got) != want {
			t.Fatalf("expect %q, got %q", want, got)
		}
	}
	if _, err := dec.Decode(); err != io.EOF {
		t.Fatalf("expect io.EOF, got %v", err)
	}
}

func TestLinesEncoderRejectsDelimiter(t *testing.T) {
	var buf bytes.Buffer
	err := Lines{}.NewEncoder(&buf).Encode([]byte("a\nb"))
	if !errors.Is(err, ErrDelimiterInFrame) {
		t.Fatalf("expect ErrDelimiterInFrame, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing should be written, got %d bytes", buf.Len())
	}
}

func TestLinesValidateMatchesDecoder(t *testing.T) {
	// 空帧会变成空行被跳过，结尾的 \r 会被当成 CRLF 去掉，所以都要在编码前拒绝
	cases := []struct {
		frame string
		want  error
	}{
		{"a", nil},
		{"", ErrEmptyFrame},
		{"b\r", ErrDelimiterInFrame},
		{"c\rd", nil},
		{"e\n", ErrDelimiterInFrame},
	}

	var buf bytes.Buffer
	enc := Lines{}.NewEncoder(&buf)
	var accepted []string
	for _, tc := range cases {
		err := Lines{}.Validate([]byte(tc.frame))
		if !errors.Is(err, tc.want) {
			t.Fatalf("Validate(%q) = %v, want %v", tc.frame, err, tc.want)
		}
		if encErr := enc.Encode([]byte(tc.frame)); !errors.Is(encErr, tc.want) {
			t.Fatalf("Encode(%q) = %v, want %v", tc.frame, encErr, tc.want)
		}
		if err == nil {
			accepted = append(accepted, tc.frame)
		}
	}

	// Every accepted frame comes back intact and in order.
	dec := Lines{}.NewDecoder(&buf)
	for _, want := range accepted {
		got, err := dec.Decode()
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if string(got) != want {
			t.Fatalf("expect %q, got %q", want, got)
		}
	}
	if _, err := dec.Decode(); err != io.EOF {
		t.Fatalf("expect io.EOF, got %v", err)
	}
}

func TestByName(t *testing.T) {
	for name, want := range map[string]string{"": "framed", "framed": "framed", "lines": "lines"} {
		c, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if c.Name() != want {
			t.Fatalf("ByName(%q) = %s, want %s", name, c.Name(), want)
		}
	}
	if _, err := ByName("xml"); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("expect ErrUnknownCodec, got %v", err)
	}
}
