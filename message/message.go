// Package message defines the ping message exchanged by the diagnostic dialer.
//
// A Ping is serialized by the codec layer and sent as one frame; an echo server sends
// the same bytes back, so the dialer can match replies to pings and measure round trips.
package message

import "time"

// Ping carries one diagnostic payload.
//
//   - Seq counts pings on one connection, starting at 1.
//   - SentAt is the sender's clock in Unix nanoseconds at submission time.
type Ping struct {
	Seq     uint64 `json:"seq" cbor:"seq"`
	SentAt  int64  `json:"sent_at" cbor:"sent_at"`
	Payload []byte `json:"payload,omitempty" cbor:"payload,omitempty"`
}

// NewPing stamps a ping with the current time.
func NewPing(seq uint64, payload []byte) *Ping {
	return &Ping{Seq: seq, SentAt: time.Now().UnixNano(), Payload: payload}
}

// RoundTrip returns how long ago the ping was sent, as seen at now.
func (p *Ping) RoundTrip(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, p.SentAt))
}
