package message

import (
	"testing"
	"time"
)

func TestPingRoundTrip(t *testing.T) {
	p := NewPing(1, []byte("hello"))
	if p.Seq != 1 || string(p.Payload) != "hello" {
		t.Fatalf("unexpected ping %+v", p)
	}

	// 回程时间 = now - SentAt
	now := time.Unix(0, p.SentAt).Add(250 * time.Millisecond)
	if got := p.RoundTrip(now); got != 250*time.Millisecond {
		t.Fatalf("RoundTrip = %v, want 250ms", got)
	}
}

func TestNewPingUsesCurrentTime(t *testing.T) {
	before := time.Now()
	p := NewPing(7, nil)
	after := time.Now()

	sent := time.Unix(0, p.SentAt)
	if sent.Before(before) || sent.After(after) {
		t.Fatalf("SentAt %v not within [%v, %v]", sent, before, after)
	}
}
