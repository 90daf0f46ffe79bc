package circle

import (
	"testing"
)

// ============================================================================
// Test helpers
// ============================================================================

func user(id string) User {
	return User{ID: id, Username: "user-" + id}
}

func seedUsers(c *Cache, key QueryKey, pages ...[]Entity) {
	entry := CacheEntry{Status: StatusReady}
	for _, items := range pages {
		entry.Pages = append(entry.Pages, Page{Items: items})
	}
	c.Seed(key, entry)
}

func ids(entry CacheEntry) []string {
	var out []string
	for _, e := range entry.Items() {
		out = append(out, e.EntityID())
	}
	return out
}

func wantIDs(t *testing.T, c *Cache, key QueryKey, want ...string) {
	t.Helper()
	entry, ok := c.Read(key)
	if !ok {
		t.Fatalf("entry %q missing", key)
	}
	got := ids(entry)
	if len(got) != len(want) {
		t.Fatalf("entry %q: got ids %v, want %v", key, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %q: got ids %v, want %v", key, got, want)
		}
	}
}

// ============================================================================
// Entry basics
// ============================================================================

func TestCacheWriteAbsentKeyIsNoOp(t *testing.T) {
	c := NewCache()
	c.Write(FriendsQuery(), func(e CacheEntry) CacheEntry {
		e.Pages = []Page{{Items: []Entity{user("u1")}}}
		return e
	})
	if _, ok := c.Read(FriendsQuery()); ok {
		t.Fatal("write to an absent key must not create an entry")
	}
}

func TestCachePatchPrimitivesSkipAbsentKeys(t *testing.T) {
	c := NewCache()
	c.Prepend(FriendsQuery(), user("u1"))
	if inserted := c.PrependUnique(FriendsQuery(), user("u1")); inserted {
		t.Fatal("PrependUnique on absent key reported an insert")
	}
	c.RemoveByID(FriendsQuery(), "u1")
	c.MapByID(FriendsQuery(), "u1", func(e Entity) Entity { return e })
	if _, ok := c.Read(FriendsQuery()); ok {
		t.Fatal("patch primitives must not create entries")
	}
}

func TestCacheItemsFlattensPagesInOrder(t *testing.T) {
	c := NewCache()
	seedUsers(c, FriendsQuery(),
		[]Entity{user("u1"), user("u2")},
		[]Entity{user("u3")},
	)
	wantIDs(t, c, FriendsQuery(), "u1", "u2", "u3")
}

// ============================================================================
// Pagination shape
// ============================================================================

func TestCachePrependGrowsFirstPageOnly(t *testing.T) {
	c := NewCache()
	seedUsers(c, FriendsQuery(),
		[]Entity{user("u1"), user("u2")},
		[]Entity{user("u3"), user("u4")},
	)

	c.Prepend(FriendsQuery(), user("u0"))

	entry, _ := c.Read(FriendsQuery())
	if len(entry.Pages) != 2 {
		t.Fatalf("page count changed: got %d, want 2", len(entry.Pages))
	}
	if len(entry.Pages[0].Items) != 3 {
		t.Fatalf("first page length: got %d, want 3", len(entry.Pages[0].Items))
	}
	if len(entry.Pages[1].Items) != 2 {
		t.Fatalf("second page length changed: got %d, want 2", len(entry.Pages[1].Items))
	}
	wantIDs(t, c, FriendsQuery(), "u0", "u1", "u2", "u3", "u4")
}

func TestCacheRemoveLeavesPageBoundariesAlone(t *testing.T) {
	c := NewCache()
	seedUsers(c, FriendsQuery(),
		[]Entity{user("u1"), user("u2")},
		[]Entity{user("u3")},
	)

	c.RemoveByID(FriendsQuery(), "u3")

	entry, _ := c.Read(FriendsQuery())
	if len(entry.Pages) != 2 {
		t.Fatalf("page count changed: got %d, want 2", len(entry.Pages))
	}
	if len(entry.Pages[1].Items) != 0 {
		t.Fatal("second page should be empty, not collapsed")
	}
	wantIDs(t, c, FriendsQuery(), "u1", "u2")
}

// ============================================================================
// PrependUnique
// ============================================================================

func TestCachePrependUniqueIsIdempotent(t *testing.T) {
	c := NewCache()
	seedUsers(c, FriendsQuery(), []Entity{user("u1")})

	if !c.PrependUnique(FriendsQuery(), user("u2")) {
		t.Fatal("first insert should report true")
	}
	if c.PrependUnique(FriendsQuery(), user("u2")) {
		t.Fatal("second insert of the same id should report false")
	}
	wantIDs(t, c, FriendsQuery(), "u2", "u1")
}

func TestCachePrependUniqueChecksAllPages(t *testing.T) {
	c := NewCache()
	seedUsers(c, FriendsQuery(),
		[]Entity{user("u1")},
		[]Entity{user("u2")},
	)
	if c.PrependUnique(FriendsQuery(), user("u2")) {
		t.Fatal("entity on a later page must still block the insert")
	}
	wantIDs(t, c, FriendsQuery(), "u1", "u2")
}

// ============================================================================
// Map / Move / KeysMatching
// ============================================================================

func TestCacheMapByIDRewritesEverywhere(t *testing.T) {
	c := NewCache()
	seedUsers(c, FriendsQuery(),
		[]Entity{user("u1")},
		[]Entity{user("u2")},
	)

	c.MapByID(FriendsQuery(), "u2", func(e Entity) Entity {
		u := e.(User)
		u.Relationship = RelationFriends
		return u
	})

	entry, _ := c.Read(FriendsQuery())
	got := entry.Pages[1].Items[0].(User)
	if got.Relationship != RelationFriends {
		t.Fatalf("relationship not rewritten: got %q", got.Relationship)
	}
}

func TestCacheMove(t *testing.T) {
	c := NewCache()
	seedUsers(c, ChatsQuery(), []Entity{
		Chat{ID: "c1"}, Chat{ID: "c2"},
	})
	seedUsers(c, ArchivedChatsQuery(), []Entity{Chat{ID: "c3"}})

	c.Move(ChatsQuery(), ArchivedChatsQuery(),
		func(e Entity) bool { return e.EntityID() == "c2" },
		func(e Entity) Entity {
			chat := e.(Chat)
			chat.Archived = true
			return chat
		})

	wantIDs(t, c, ChatsQuery(), "c1")
	wantIDs(t, c, ArchivedChatsQuery(), "c2", "c3")

	entry, _ := c.Read(ArchivedChatsQuery())
	if !entry.Pages[0].Items[0].(Chat).Archived {
		t.Fatal("transform not applied during move")
	}
}

func TestCacheKeysMatchingOnlySeesCachedKeys(t *testing.T) {
	c := NewCache()
	seedUsers(c, FeedQuery(), []Entity{})
	seedUsers(c, UserFeedQuery("u1"), []Entity{})
	seedUsers(c, ChatsQuery(), []Entity{})

	keys := contentQueries(c)
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2 (feed + user-feed:u1): %v", len(keys), keys)
	}
	for _, k := range keys {
		if k == ChatsQuery() {
			t.Fatal("chats query must not match content queries")
		}
	}
}

// ============================================================================
// Subscriptions
// ============================================================================

func TestCacheSubscribeFiresOnWrite(t *testing.T) {
	c := NewCache()
	seedUsers(c, FriendsQuery(), []Entity{user("u1")})

	fired := 0
	c.Subscribe(FriendsQuery(), func() { fired++ })

	c.Prepend(FriendsQuery(), user("u2"))
	if fired != 1 {
		t.Fatalf("subscriber fired %d times, want 1", fired)
	}

	// Absent-key writes do not notify.
	c.Prepend(ChatsQuery(), Chat{ID: "c1"})
	if fired != 1 {
		t.Fatalf("unrelated write notified the friends subscriber")
	}
}

func TestCacheSubscriberPanicDoesNotPoisonWrites(t *testing.T) {
	c := NewCache()
	seedUsers(c, FriendsQuery(), []Entity{})
	c.Subscribe(FriendsQuery(), func() { panic("view exploded") })

	c.Prepend(FriendsQuery(), user("u1")) // must not panic
	wantIDs(t, c, FriendsQuery(), "u1")
}
