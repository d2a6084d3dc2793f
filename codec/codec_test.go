package codec

import (
	"bytes"
	"testing"

	"rpc-duplex/message"
)

func TestCodecs(t *testing.T) {
	for _, name := range []string{"json", "binary", "cbor"} {
		t.Run(name, func(t *testing.T) {
			c, err := ByName(name)
			if err != nil {
				t.Fatalf("ByName: %v", err)
			}
			if c.Name() != name {
				t.Fatalf("Name = %q, want %q", c.Name(), name)
			}

			original := &message.Ping{Seq: 42, SentAt: 1700000000123456789, Payload: []byte("ping")}
			data, err := c.Encode(original)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			var decoded message.Ping
			if err := c.Decode(data, &decoded); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if decoded.Seq != original.Seq || decoded.SentAt != original.SentAt || !bytes.Equal(decoded.Payload, original.Payload) {
				t.Errorf("decoded %+v, want %+v", decoded, original)
			}
		})
	}
}

func TestJSONHasNoNewline(t *testing.T) {
	// lines 帧编码要求 payload 里没有换行
	data, err := (&JSONCodec{}).Encode(&message.Ping{Seq: 1, Payload: []byte("a\nb")})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.IndexByte(data, '\n') >= 0 {
		t.Fatalf("JSON encoding contains a newline: %q", data)
	}
}

func TestCBORIsDeterministic(t *testing.T) {
	c, err := NewCBORCodec()
	if err != nil {
		t.Fatal(err)
	}
	p := &message.Ping{Seq: 9, SentAt: 123, Payload: []byte("x")}
	a, _ := c.Encode(p)
	b, _ := c.Encode(p)
	if !bytes.Equal(a, b) {
		t.Fatalf("encodings differ: %x vs %x", a, b)
	}
}

func TestBinaryCodecRejectsBadInput(t *testing.T) {
	c := &BinaryCodec{}
	if _, err := c.Encode("not a ping"); err == nil {
		t.Fatal("Encode accepted a non-ping")
	}

	data, _ := c.Encode(&message.Ping{Seq: 1, Payload: []byte("hello")})
	var p message.Ping
	if err := c.Decode(data[:len(data)-1], &p); err == nil {
		t.Fatal("Decode accepted truncated data")
	}
	if err := c.Decode(data[:5], &p); err == nil {
		t.Fatal("Decode accepted a truncated header")
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName("xml"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}
