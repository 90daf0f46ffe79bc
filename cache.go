package circle

import (
	"sync"
)

// ============================================================================
// Query Keys
// ============================================================================

// QueryKey identifies one paginated view over the cache, e.g. the friends
// list or a single chat's message history. Distinct keys may hold overlapping
// copies of the same entity.
type QueryKey string

func FriendsQuery() QueryKey        { return "friends" }
func FriendRequestsQuery() QueryKey { return "friend-requests" }
func SuggestedUsersQuery() QueryKey { return "suggested-users" }
func ChatsQuery() QueryKey          { return "chats" }
func ArchivedChatsQuery() QueryKey  { return "archived-chats" }
func FeedQuery() QueryKey           { return "feed" }
func SharedFeedQuery() QueryKey     { return "shared-feed" }
func SavedFeedQuery() QueryKey      { return "saved-feed" }
func NotificationsQuery() QueryKey  { return "notifications" }

func ChatMessagesQuery(chatID string) QueryKey {
	return QueryKey("chat-messages:" + chatID)
}

func UserFeedQuery(userID string) QueryKey {
	return QueryKey("user-feed:" + userID)
}

func CommentsQuery(contentID string) QueryKey {
	return QueryKey("content-comments:" + contentID)
}

// ============================================================================
// Entries
// ============================================================================

// EntryStatus is the fetch state of one cache entry.
type EntryStatus string

const (
	StatusLoading  EntryStatus = "loading"  // first page in flight
	StatusReady    EntryStatus = "ready"    // at least one page loaded
	StatusFetching EntryStatus = "fetching" // next page in flight
	StatusError    EntryStatus = "error"    // last fetch failed, retryable
)

// Page is one fetched batch. Insertion order of pages is fetch order;
// flattening all pages yields the view's item list.
type Page struct {
	Items      []Entity
	NextCursor string
}

// CacheEntry is the cached value of one query: its pages, continuation
// state, and fetch status. A failed fetch keeps Pages and HasMore intact and
// records the error in FetchErr.
type CacheEntry struct {
	Pages      []Page
	NextCursor string
	HasMore    bool
	Status     EntryStatus
	FetchErr   *Error
}

// Items flattens all pages in fetch order.
func (e CacheEntry) Items() []Entity {
	n := 0
	for _, p := range e.Pages {
		n += len(p.Items)
	}
	out := make([]Entity, 0, n)
	for _, p := range e.Pages {
		out = append(out, p.Items...)
	}
	return out
}

// Contains reports whether any page holds an entity with the given id.
func (e CacheEntry) Contains(id string) bool {
	for _, p := range e.Pages {
		for _, it := range p.Items {
			if it.EntityID() == id {
				return true
			}
		}
	}
	return false
}

// clonePages copies the page slice and each item slice so an updater can
// rewrite them freely. Unchanged entities keep their identity; only the
// containers are fresh, which is what the presentation layer's change
// detection relies on.
func clonePages(pages []Page) []Page {
	out := make([]Page, len(pages))
	for i, p := range pages {
		items := make([]Entity, len(p.Items))
		copy(items, p.Items)
		out[i] = Page{Items: items, NextCursor: p.NextCursor}
	}
	return out
}

// ============================================================================
// Cache
// ============================================================================

// Updater transforms a cache entry. Updaters receive a copy and return the
// replacement; they must be pure.
type Updater func(CacheEntry) CacheEntry

// Cache is the keyed store of paginated result sets shared by every view.
// All writers (mutation success handlers, the push event router) go through
// Write or the patch primitives; nothing mutates pages in place.
type Cache struct {
	mu      sync.RWMutex
	entries map[QueryKey]CacheEntry

	subMu sync.RWMutex
	subs  map[QueryKey][]func()
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[QueryKey]CacheEntry),
		subs:    make(map[QueryKey][]func()),
	}
}

// Read returns a snapshot of the entry for key, if present.
func (c *Cache) Read(key QueryKey) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Write applies updater to the entry for key. Absent entries are left
// absent, so patches are safe to apply for views that have never fetched.
func (c *Cache) Write(key QueryKey, updater Updater) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.Pages = clonePages(e.Pages)
	c.entries[key] = updater(e)
	c.mu.Unlock()

	c.notify(key)
}

// Seed installs an entry for key, replacing any existing one. Used by the
// paginator when the first page arrives and by tests.
func (c *Cache) Seed(key QueryKey, entry CacheEntry) {
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	c.notify(key)
}

// Drop removes the entry for key. Used on logout.
func (c *Cache) Drop(key QueryKey) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Reset clears every entry. Used on logout / profile change.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[QueryKey]CacheEntry)
	c.mu.Unlock()
}

// Subscribe registers fn to run after every write to key. Subscriptions are
// how mounted views learn that their query changed.
func (c *Cache) Subscribe(key QueryKey, fn func()) {
	c.subMu.Lock()
	c.subs[key] = append(c.subs[key], fn)
	c.subMu.Unlock()
}

func (c *Cache) notify(key QueryKey) {
	c.subMu.RLock()
	handlers := c.subs[key]
	c.subMu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in view callbacks
			h()
		}()
	}
}

// ============================================================================
// Patch primitives
// ============================================================================
//
// Every primitive is pagination-shape-preserving: it changes item slices
// within pages, never page count or page order. Prepend grows the first page
// in place; no re-chunking is attempted.

// Prepend inserts e at the front of the first page. If the entry has no
// pages yet, a single page is created.
func (c *Cache) Prepend(key QueryKey, e Entity) {
	c.Write(key, func(entry CacheEntry) CacheEntry {
		if len(entry.Pages) == 0 {
			entry.Pages = []Page{{}}
		}
		first := entry.Pages[0]
		first.Items = append([]Entity{e}, first.Items...)
		entry.Pages[0] = first
		return entry
	})
}

// PrependUnique inserts e at the front of the first page unless an entity
// with the same id is already present in any page. This is the idempotent
// upsert used by push reconciliation. It reports whether the entity was
// actually inserted, so callers can gate counter bumps on first delivery.
func (c *Cache) PrependUnique(key QueryKey, e Entity) bool {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok || entry.Contains(e.EntityID()) {
		c.mu.Unlock()
		return false
	}
	entry.Pages = clonePages(entry.Pages)
	if len(entry.Pages) == 0 {
		entry.Pages = []Page{{}}
	}
	first := entry.Pages[0]
	first.Items = append([]Entity{e}, first.Items...)
	entry.Pages[0] = first
	c.entries[key] = entry
	c.mu.Unlock()

	c.notify(key)
	return true
}

// KeysMatching returns the cached query keys accepted by pred. Used to fan
// a patch out across every cached query that could hold an entity.
func (c *Cache) KeysMatching(pred func(QueryKey) bool) []QueryKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []QueryKey
	for k := range c.entries {
		if pred(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// RemoveWhere deletes every entity matching pred across all pages.
func (c *Cache) RemoveWhere(key QueryKey, pred func(Entity) bool) {
	c.Write(key, func(entry CacheEntry) CacheEntry {
		for i, p := range entry.Pages {
			kept := p.Items[:0]
			for _, it := range p.Items {
				if !pred(it) {
					kept = append(kept, it)
				}
			}
			entry.Pages[i].Items = kept
		}
		return entry
	})
}

// RemoveByID deletes the entity with the given id, wherever it sits.
func (c *Cache) RemoveByID(key QueryKey, id string) {
	c.RemoveWhere(key, func(e Entity) bool { return e.EntityID() == id })
}

// MapWhere rewrites every entity matching pred across all pages.
func (c *Cache) MapWhere(key QueryKey, pred func(Entity) bool, fn func(Entity) Entity) {
	c.Write(key, func(entry CacheEntry) CacheEntry {
		for i, p := range entry.Pages {
			for j, it := range p.Items {
				if pred(it) {
					entry.Pages[i].Items[j] = fn(it)
				}
			}
		}
		return entry
	})
}

// MapByID rewrites the entity with the given id, wherever it sits.
func (c *Cache) MapByID(key QueryKey, id string, fn func(Entity) Entity) {
	c.MapWhere(key, func(e Entity) bool { return e.EntityID() == id }, fn)
}

// Move removes entities matching pred from one query and prepends them,
// optionally transformed, into another. Used for archive/unarchive and the
// friend-request → friends transitions. Either side being absent is a no-op
// for that side.
func (c *Cache) Move(from, to QueryKey, pred func(Entity) bool, transform func(Entity) Entity) {
	var moved []Entity
	c.Write(from, func(entry CacheEntry) CacheEntry {
		for i, p := range entry.Pages {
			kept := p.Items[:0]
			for _, it := range p.Items {
				if pred(it) {
					moved = append(moved, it)
				} else {
					kept = append(kept, it)
				}
			}
			entry.Pages[i].Items = kept
		}
		return entry
	})
	for i := len(moved) - 1; i >= 0; i-- {
		e := moved[i]
		if transform != nil {
			e = transform(e)
		}
		c.PrependUnique(to, e)
	}
}
