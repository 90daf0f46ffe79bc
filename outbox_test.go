package circle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// sendRecorder is a scriptable SendFunc that records dispatched items.
type sendRecorder struct {
	mu    sync.Mutex
	items []PendingItem
	fail  bool
}

func (s *sendRecorder) send(ctx context.Context, item PendingItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	if s.fail {
		return errors.New("send failed")
	}
	return nil
}

func (s *sendRecorder) sends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *sendRecorder) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

// waitForStatus polls until the item reaches status or the deadline passes.
func waitForStatus(t *testing.T, o *Outbox, clientID string, status PendingStatus) PendingItem {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, item := range o.Items() {
			if item.ClientID == clientID && item.Status == status {
				return item
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("item %s never reached status %q; items: %+v", clientID, status, o.Items())
	return PendingItem{}
}

func waitForEmpty(t *testing.T, o *Outbox) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.Size() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("outbox never drained; items: %+v", o.Items())
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestOutboxSuccessfulSendExpires(t *testing.T) {
	rec := &sendRecorder{}
	o := NewOutbox(rec.send, &OutboxOptions{SentDisplay: 30 * time.Millisecond})
	defer o.Close()

	id := o.Submit(context.Background(), MessageDraft{ChatID: "c1", Content: "hi"})
	if id == "" {
		t.Fatal("Submit returned empty client id")
	}

	waitForStatus(t, o, id, PendingSent)
	waitForEmpty(t, o)

	if rec.sends() != 1 {
		t.Fatalf("send called %d times, want 1", rec.sends())
	}
}

func TestOutboxFailedSendSticksAround(t *testing.T) {
	rec := &sendRecorder{fail: true}
	o := NewOutbox(rec.send, &OutboxOptions{SentDisplay: 30 * time.Millisecond})
	defer o.Close()

	id := o.Submit(context.Background(), MessageDraft{ChatID: "c1", Content: "hi"})
	item := waitForStatus(t, o, id, PendingFailed)
	if item.Err == "" {
		t.Fatal("failed item should carry the error text")
	}

	// Failed items do not auto-remove.
	time.Sleep(60 * time.Millisecond)
	if o.Size() != 1 {
		t.Fatalf("failed item disappeared, size=%d", o.Size())
	}
}

func TestOutboxRetryKeepsClientID(t *testing.T) {
	rec := &sendRecorder{fail: true}
	o := NewOutbox(rec.send, &OutboxOptions{SentDisplay: 30 * time.Millisecond})
	defer o.Close()

	id := o.Submit(context.Background(), MessageDraft{ChatID: "c1", Content: "hi"})
	waitForStatus(t, o, id, PendingFailed)

	rec.setFail(false)
	o.Retry(context.Background(), id)
	waitForStatus(t, o, id, PendingSent)

	rec.mu.Lock()
	second := rec.items[1]
	rec.mu.Unlock()
	if second.ClientID != id {
		t.Fatalf("retry changed client id: %s -> %s", id, second.ClientID)
	}
	waitForEmpty(t, o)
}

func TestOutboxRetryIgnoresNonFailedItems(t *testing.T) {
	rec := &sendRecorder{}
	o := NewOutbox(rec.send, &OutboxOptions{SentDisplay: time.Second})
	defer o.Close()

	id := o.Submit(context.Background(), MessageDraft{ChatID: "c1", Content: "hi"})
	waitForStatus(t, o, id, PendingSent)

	o.Retry(context.Background(), id)
	time.Sleep(20 * time.Millisecond)
	if rec.sends() != 1 {
		t.Fatalf("retry of a sent item re-dispatched, sends=%d", rec.sends())
	}
}

func TestOutboxDiscardRemovesFailedOnly(t *testing.T) {
	rec := &sendRecorder{}
	o := NewOutbox(rec.send, &OutboxOptions{SentDisplay: time.Second})
	defer o.Close()

	id := o.Submit(context.Background(), MessageDraft{ChatID: "c1", Content: "hi"})
	waitForStatus(t, o, id, PendingSent)

	o.Discard(id)
	if o.Size() != 1 {
		t.Fatal("discard removed a non-failed item")
	}

	rec.setFail(true)
	failed := o.Submit(context.Background(), MessageDraft{ChatID: "c1", Content: "again"})
	waitForStatus(t, o, failed, PendingFailed)
	o.Discard(failed)
	for _, item := range o.Items() {
		if item.ClientID == failed {
			t.Fatal("failed item still present after discard")
		}
	}
}

func TestOutboxMultiplePendingCoexist(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	released := false
	o := NewOutbox(func(ctx context.Context, item PendingItem) error {
		mu.Lock()
		done := released
		mu.Unlock()
		if !done {
			<-block
		}
		return nil
	}, &OutboxOptions{SentDisplay: time.Second})
	defer o.Close()

	first := o.Submit(context.Background(), MessageDraft{Content: "one"})
	second := o.Submit(context.Background(), MessageDraft{Content: "two"})

	if o.Size() != 2 {
		t.Fatalf("size = %d, want 2 concurrent pending items", o.Size())
	}
	items := o.Items()
	if items[0].ClientID != first || items[1].ClientID != second {
		t.Fatal("items not in submission order")
	}

	mu.Lock()
	released = true
	mu.Unlock()
	close(block)
	waitForStatus(t, o, first, PendingSent)
	waitForStatus(t, o, second, PendingSent)
}

func TestOutboxOnChangeFires(t *testing.T) {
	rec := &sendRecorder{}
	o := NewOutbox(rec.send, &OutboxOptions{SentDisplay: 20 * time.Millisecond})
	defer o.Close()

	var mu sync.Mutex
	changes := 0
	o.OnChange(func() {
		mu.Lock()
		changes++
		mu.Unlock()
	})

	o.Submit(context.Background(), MessageDraft{Content: "hi"})
	waitForEmpty(t, o)

	// submit, sent, expire
	mu.Lock()
	got := changes
	mu.Unlock()
	if got < 3 {
		t.Fatalf("OnChange fired %d times, want at least 3", got)
	}
}
