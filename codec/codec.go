// Package codec serializes diagnostic pings into frame bodies.
package codec

import "fmt"

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// ByName returns the codec for "json", "binary" or "cbor".
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return &JSONCodec{}, nil
	case "binary":
		return &BinaryCodec{}, nil
	case "cbor":
		c, err := NewCBORCodec()
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown payload codec %q", name)
}
