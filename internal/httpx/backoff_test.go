package httpx

import (
	"testing"
	"time"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 50*time.Millisecond, 0)
	want := []time.Duration{10, 20, 40, 50, 50}
	for i, w := range want {
		if got := b.Next(); got != w*time.Millisecond {
			t.Fatalf("attempt %d: expected %v, got %v", i, w*time.Millisecond, got)
		}
	}
	b.Reset()
	if got := b.Next(); got != 10*time.Millisecond {
		t.Fatalf("expected reset to base delay, got %v", got)
	}
	if got := b.ForAttempt(100); got != 50*time.Millisecond {
		t.Fatalf("expected max delay for large attempts, got %v", got)
	}
}

func TestBackoffDefaultsAndJitter(t *testing.T) {
	b := NewBackoff(0, 0, 0.5)
	if b.BaseDelay != 50*time.Millisecond || b.MaxDelay != time.Second {
		t.Fatalf("unexpected defaults: base %v max %v", b.BaseDelay, b.MaxDelay)
	}
	for i := 0; i < 100; i++ {
		d := b.ForAttempt(0)
		if d < 25*time.Millisecond || d > 75*time.Millisecond {
			t.Fatalf("jittered delay %v outside [25ms, 75ms]", d)
		}
	}
}
