package circle

import (
	"context"
	"sync"
)

// FlushFunc sends one batch of viewed ids to the server.
type FlushFunc func(ctx context.Context, ids []string) error

// ReceiptBatcher accumulates "viewed" entity ids during a view session and
// flushes them as one batched mark-as-read request when the session ends.
// Each id is recorded at most once; the caller decides when an item counts
// as viewed (typically a visibility threshold).
type ReceiptBatcher struct {
	flush FlushFunc

	mu       sync.Mutex
	flushing bool
	seen     map[string]struct{}
	order    []string
}

// NewReceiptBatcher creates a batcher that flushes through fn.
func NewReceiptBatcher(fn FlushFunc) *ReceiptBatcher {
	return &ReceiptBatcher{
		flush: fn,
		seen:  make(map[string]struct{}),
	}
}

// MarkViewed records id. Repeat calls for the same id are no-ops.
func (b *ReceiptBatcher) MarkViewed(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.seen[id]; ok {
		return
	}
	b.seen[id] = struct{}{}
	b.order = append(b.order, id)
}

// Size returns the number of accumulated ids.
func (b *ReceiptBatcher) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Flush sends the accumulated ids as one batch. Empty accumulators are a
// no-op, and at most one flush is in flight at a time: a call overlapping a
// running flush is a no-op rather than re-sending the same batch and
// double-decrementing the counters. On success the accumulator is cleared;
// on failure the ids are kept so a caller that retries does not lose them.
func (b *ReceiptBatcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.flushing || len(b.order) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.flushing = true
	ids := append([]string{}, b.order...)
	b.mu.Unlock()

	err := b.flush(ctx, ids)

	b.mu.Lock()
	b.flushing = false
	if err != nil {
		b.mu.Unlock()
		return err
	}
	for _, id := range ids {
		delete(b.seen, id)
	}
	kept := b.order[:0]
	for _, id := range b.order {
		if _, ok := b.seen[id]; ok {
			kept = append(kept, id)
		}
	}
	b.order = kept
	b.mu.Unlock()
	return nil
}
