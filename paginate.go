package circle

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// visibilityDebounce is how long repeated viewport-intersection triggers for
// the same query are coalesced. Rapid layout reflow can fire the trigger
// several times before the first fetch even starts.
const visibilityDebounce = 200 * time.Millisecond

// PageFetch fetches one page starting at cursor and reports whether more
// pages follow.
type PageFetch func(ctx context.Context, cursor string) (Page, bool, error)

// Paginator drives page fetches against cache entries. It guarantees at most
// one in-flight fetch per query key and monotonic page advancement: a query
// whose HasMore is false never issues another request.
type Paginator struct {
	cache *Cache

	mu          sync.Mutex
	inFlight    map[QueryKey]bool
	lastTrigger map[QueryKey]time.Time
}

func newPaginator(cache *Cache) *Paginator {
	return &Paginator{
		cache:       cache,
		inFlight:    make(map[QueryKey]bool),
		lastTrigger: make(map[QueryKey]time.Time),
	}
}

// begin marks key in flight. Returns false if a fetch is already running.
func (p *Paginator) begin(key QueryKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[key] {
		return false
	}
	p.inFlight[key] = true
	return true
}

func (p *Paginator) end(key QueryKey) {
	p.mu.Lock()
	delete(p.inFlight, key)
	p.mu.Unlock()
}

// InFlight reports whether a fetch for key is currently running.
func (p *Paginator) InFlight(key QueryKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight[key]
}

// LoadFirst fetches the first page for key and installs the entry. If the
// entry already holds pages it is left alone; call Refresh to refetch. A
// failed first fetch installs an error-status entry with no pages so the
// view can show a retry affordance.
func (p *Paginator) LoadFirst(ctx context.Context, key QueryKey, fetch PageFetch) error {
	if entry, ok := p.cache.Read(key); ok && len(entry.Pages) > 0 {
		return nil
	}
	return p.Refresh(ctx, key, fetch)
}

// Refresh refetches the first page for key, replacing any existing entry on
// success. On failure an already-loaded entry keeps its pages and HasMore
// and only gains the error status.
func (p *Paginator) Refresh(ctx context.Context, key QueryKey, fetch PageFetch) error {
	if !p.begin(key) {
		return nil
	}
	defer p.end(key)

	p.cache.Write(key, func(e CacheEntry) CacheEntry {
		e.Status = StatusLoading
		e.FetchErr = nil
		return e
	})

	page, hasMore, err := fetch(ctx, "")
	if err != nil {
		p.markError(key, err)
		return err
	}

	p.cache.Seed(key, CacheEntry{
		Pages:      []Page{page},
		NextCursor: page.NextCursor,
		HasMore:    hasMore,
		Status:     StatusReady,
	})
	return nil
}

// RequestNextPage fetches the next page for key. It is a no-op unless the
// entry exists, its HasMore is true, and no fetch for key is in flight. A
// failed fetch leaves HasMore and already-loaded pages untouched and
// surfaces a retryable error to the caller.
func (p *Paginator) RequestNextPage(ctx context.Context, key QueryKey, fetch PageFetch) error {
	entry, ok := p.cache.Read(key)
	if !ok || !entry.HasMore {
		return nil
	}
	if !p.begin(key) {
		return nil
	}
	defer p.end(key)

	p.cache.Write(key, func(e CacheEntry) CacheEntry {
		e.Status = StatusFetching
		e.FetchErr = nil
		return e
	})

	page, hasMore, err := fetch(ctx, entry.NextCursor)
	if err != nil {
		p.markError(key, err)
		return err
	}

	p.cache.Write(key, func(e CacheEntry) CacheEntry {
		e.Pages = append(e.Pages, page)
		e.NextCursor = page.NextCursor
		e.HasMore = hasMore
		e.Status = StatusReady
		return e
	})
	return nil
}

// TriggerVisible is the viewport-intersection entry point for "load more".
// Triggers within the debounce window are dropped.
func (p *Paginator) TriggerVisible(ctx context.Context, key QueryKey, fetch PageFetch) error {
	p.mu.Lock()
	if time.Since(p.lastTrigger[key]) < visibilityDebounce {
		p.mu.Unlock()
		return nil
	}
	p.lastTrigger[key] = time.Now()
	p.mu.Unlock()

	return p.RequestNextPage(ctx, key, fetch)
}

func (p *Paginator) markError(key QueryKey, err error) {
	glog.Warningf("page fetch failed for %s: %v", key, err)
	fetchErr, ok := err.(*Error)
	if !ok {
		fetchErr = &Error{Kind: ErrUnknown, Message: err.Error(), cause: err}
	}
	if _, present := p.cache.Read(key); !present {
		p.cache.Seed(key, CacheEntry{Status: StatusError, FetchErr: fetchErr})
		return
	}
	p.cache.Write(key, func(e CacheEntry) CacheEntry {
		e.Status = StatusError
		e.FetchErr = fetchErr
		return e
	})
}
