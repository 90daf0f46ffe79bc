package circle

import (
	"testing"
	"time"
)

func TestRealtimeConfigDefaults(t *testing.T) {
	cfg := &RealtimeConfig{}
	cfg.defaults()

	if cfg.ReconnectBaseDelay != time.Second {
		t.Fatalf("base delay = %v", cfg.ReconnectBaseDelay)
	}
	if cfg.ReconnectMaxDelay != 30*time.Second {
		t.Fatalf("max delay = %v", cfg.ReconnectMaxDelay)
	}
	if cfg.MaxReconnectAttempts != 10 {
		t.Fatalf("max attempts = %d", cfg.MaxReconnectAttempts)
	}
	if cfg.HeartbeatInterval != 25*time.Second {
		t.Fatalf("heartbeat = %v", cfg.HeartbeatInterval)
	}
}

func TestReconnectorBackoffIsBoundedAndMonotonic(t *testing.T) {
	cfg := &RealtimeConfig{
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  10 * time.Second,
	}
	cfg.defaults()
	r := newReconnector(cfg)

	prev := time.Duration(0)
	for i := 0; i < 8; i++ {
		d := r.nextDelay()
		if d > cfg.ReconnectMaxDelay {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", i, d, cfg.ReconnectMaxDelay)
		}
		if d < prev/2 {
			// Jitter wiggles the exact values; a large drop means the
			// ladder reset unexpectedly.
			t.Fatalf("attempt %d: delay %v dropped from %v", i, d, prev)
		}
		prev = d
	}
}

func TestReconnectorGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := &RealtimeConfig{MaxReconnectAttempts: 3}
	cfg.defaults()
	r := newReconnector(cfg)

	for i := 0; i < 3; i++ {
		if !r.shouldReconnect() {
			t.Fatalf("gave up early at attempt %d", i)
		}
		r.nextDelay()
	}
	if r.shouldReconnect() {
		t.Fatal("should give up after max attempts")
	}
}

func TestReconnectorResetsAfterStableConnection(t *testing.T) {
	cfg := &RealtimeConfig{ReconnectBaseDelay: time.Second}
	cfg.defaults()
	r := newReconnector(cfg)

	r.nextDelay()
	r.nextDelay()
	r.nextDelay()

	// A connection that held for over a minute starts the ladder over.
	r.connectedAt = time.Now().Add(-2 * time.Minute)
	d := r.nextDelay()
	if d > 2*cfg.ReconnectBaseDelay {
		t.Fatalf("delay after stable connection = %v, want near base", d)
	}
	if r.attempt != 1 {
		t.Fatalf("attempt = %d, want 1 after reset", r.attempt)
	}
}

func TestRealtimeAccessorIsMemoized(t *testing.T) {
	client := NewClient("tok")
	a := client.Realtime(&RealtimeConfig{AutoReconnect: true})
	b := client.Realtime(nil)
	if a != b {
		t.Fatal("Realtime must return the same client instance")
	}
	if a.State() != StateDisconnected {
		t.Fatalf("initial state = %q", a.State())
	}
}
