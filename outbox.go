package circle

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Pending item state machine
// ============================================================================

// PendingStatus is the lifecycle state of an optimistic send.
type PendingStatus string

const (
	PendingSending PendingStatus = "sending"
	PendingSent    PendingStatus = "sent"
	PendingFailed  PendingStatus = "failed"
)

// PendingItem is one user-submitted chat message or comment shown locally
// before the server confirms it. It is identified by its client-generated id
// until it disappears; the confirmed copy enters the entity cache separately
// through the mutation success patch or a push event, never through the
// outbox.
type PendingItem struct {
	ClientID  string
	Payload   any
	Status    PendingStatus
	Err       string
	CreatedAt time.Time
}

// SendFunc performs the real send for a pending item. On success the
// implementation is expected to run the normal mutation success path (cache
// patch + peer notification); the outbox itself never reads or writes the
// cache.
type SendFunc func(ctx context.Context, item PendingItem) error

// OutboxOptions configures an Outbox.
type OutboxOptions struct {
	// SentDisplay is how long a sent item stays visible before auto-removal.
	// Purely cosmetic: it confirms the server copy is now visible through
	// the normal cache. Defaults to 2s.
	SentDisplay time.Duration
}

// Outbox is the per-view optimistic send tracker. Multiple pending items may
// coexist; every operation is a keyed lookup by client id, not positional.
type Outbox struct {
	send        SendFunc
	sentDisplay time.Duration

	mu     sync.Mutex
	items  []*PendingItem
	timers map[string]*time.Timer

	changeMu sync.RWMutex
	onChange []func()
}

// NewOutbox creates an outbox that sends through fn.
func NewOutbox(fn SendFunc, opts *OutboxOptions) *Outbox {
	o := &Outbox{
		send:        fn,
		sentDisplay: 2 * time.Second,
		timers:      make(map[string]*time.Timer),
	}
	if opts != nil && opts.SentDisplay > 0 {
		o.sentDisplay = opts.SentDisplay
	}
	return o
}

// OnChange registers fn to run after any lifecycle transition.
func (o *Outbox) OnChange(fn func()) {
	o.changeMu.Lock()
	o.onChange = append(o.onChange, fn)
	o.changeMu.Unlock()
}

func (o *Outbox) notifyChange() {
	o.changeMu.RLock()
	handlers := o.onChange
	o.changeMu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }()
			h()
		}()
	}
}

// Submit stages payload as a new sending item and dispatches the real send.
// It returns the assigned client id immediately.
func (o *Outbox) Submit(ctx context.Context, payload any) string {
	item := &PendingItem{
		ClientID:  ulid.Make().String(),
		Payload:   payload,
		Status:    PendingSending,
		CreatedAt: time.Now(),
	}
	o.mu.Lock()
	o.items = append(o.items, item)
	o.mu.Unlock()
	o.notifyChange()

	go o.dispatch(ctx, item.ClientID)
	return item.ClientID
}

// Retry re-issues a failed item's payload under the same client id and
// returns it to sending. Not-failed items are left alone.
func (o *Outbox) Retry(ctx context.Context, clientID string) {
	o.mu.Lock()
	item := o.lookup(clientID)
	if item == nil || item.Status != PendingFailed {
		o.mu.Unlock()
		return
	}
	item.Status = PendingSending
	item.Err = ""
	o.mu.Unlock()
	o.notifyChange()

	go o.dispatch(ctx, clientID)
}

// Discard removes a failed item. The user gave up on it; nothing else
// happens.
func (o *Outbox) Discard(clientID string) {
	o.mu.Lock()
	item := o.lookup(clientID)
	if item == nil || item.Status != PendingFailed {
		o.mu.Unlock()
		return
	}
	o.removeLocked(clientID)
	o.mu.Unlock()
	o.notifyChange()
}

// Items returns a snapshot of the pending list in submission order.
func (o *Outbox) Items() []PendingItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PendingItem, len(o.items))
	for i, it := range o.items {
		out[i] = *it
	}
	return out
}

// Size returns the number of pending items.
func (o *Outbox) Size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Close cancels the scheduled removals. Pending items are dropped; the view
// is going away.
func (o *Outbox) Close() {
	o.mu.Lock()
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
	o.items = nil
	o.mu.Unlock()
}

// ── internals ────────────────────────────────────────────

func (o *Outbox) dispatch(ctx context.Context, clientID string) {
	o.mu.Lock()
	item := o.lookup(clientID)
	if item == nil {
		o.mu.Unlock()
		return
	}
	snapshot := *item
	o.mu.Unlock()

	err := o.send(ctx, snapshot)

	o.mu.Lock()
	item = o.lookup(clientID)
	if item == nil {
		o.mu.Unlock()
		return
	}
	if err != nil {
		glog.Warningf("outbox send failed for %s: %v", clientID, err)
		item.Status = PendingFailed
		item.Err = err.Error()
		o.mu.Unlock()
		o.notifyChange()
		return
	}
	item.Status = PendingSent
	o.timers[clientID] = time.AfterFunc(o.sentDisplay, func() {
		o.expire(clientID)
	})
	o.mu.Unlock()
	o.notifyChange()
}

func (o *Outbox) expire(clientID string) {
	o.mu.Lock()
	item := o.lookup(clientID)
	if item == nil || item.Status != PendingSent {
		o.mu.Unlock()
		return
	}
	o.removeLocked(clientID)
	o.mu.Unlock()
	o.notifyChange()
}

func (o *Outbox) lookup(clientID string) *PendingItem {
	for _, it := range o.items {
		if it.ClientID == clientID {
			return it
		}
	}
	return nil
}

func (o *Outbox) removeLocked(clientID string) {
	kept := o.items[:0]
	for _, it := range o.items {
		if it.ClientID != clientID {
			kept = append(kept, it)
		}
	}
	o.items = kept
	if t, ok := o.timers[clientID]; ok {
		t.Stop()
		delete(o.timers, clientID)
	}
}
