package circle

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestToggleReactionPatchesEveryCachedCopy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/content/p1/reaction", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, contentMutationData{
			Reaction: &Reaction{UserID: "u-self", Kind: "like"},
			OwnerID:  "u-owner",
		})
	})
	client := newTestClient(t, mux)
	seedContent(client.cache, "p1", FeedQuery(), SavedFeedQuery(), UserFeedQuery("u-owner"))

	if err := client.Feed().ToggleReaction(context.Background(), "p1", "like"); err != nil {
		t.Fatalf("ToggleReaction: %v", err)
	}

	for _, key := range []QueryKey{FeedQuery(), SavedFeedQuery(), UserFeedQuery("u-owner")} {
		entry, _ := client.cache.Read(key)
		content := entry.Items()[0].(Content)
		if content.Reactions.Total != 1 {
			t.Fatalf("%s: reaction not applied: %+v", key, content.Reactions)
		}
		if content.Reactions.Reactions[0].UserID != "u-self" {
			t.Fatalf("%s: wrong reacting user", key)
		}
	}
}

func TestToggleReactionRemovalClearsViewerEntry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/content/p1/reaction", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, contentMutationData{OwnerID: "u-owner"}) // nil reaction = removed
	})
	client := newTestClient(t, mux)
	withReaction := Content{ID: "p1", AuthorID: "u-owner", Reactions: ReactionDetails{
		Total: 2,
		Reactions: []Reaction{
			{UserID: "u-self", Kind: "like"},
			{UserID: "u-other", Kind: "love"},
		},
	}}
	seedUsers(client.cache, FeedQuery(), []Entity{withReaction})

	if err := client.Feed().ToggleReaction(context.Background(), "p1", ""); err != nil {
		t.Fatalf("ToggleReaction: %v", err)
	}

	entry, _ := client.cache.Read(FeedQuery())
	content := entry.Items()[0].(Content)
	if content.Reactions.Total != 1 || content.Reactions.Reactions[0].UserID != "u-other" {
		t.Fatalf("reaction set = %+v, want only u-other's entry", content.Reactions)
	}
}

func TestShareSetsAbsoluteCount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/content/p1/share", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, contentMutationData{
			Share:      &Content{ID: "p2", AuthorID: "u-self", SharedFrom: "p1"},
			OriginalID: "p1",
			OwnerID:    "u-owner",
			ShareCount: 7,
		})
	})
	client := newTestClient(t, mux)
	seedContent(client.cache, "p1", FeedQuery())
	seedUsers(client.cache, SharedFeedQuery(), []Entity{})

	share, err := client.Feed().Share(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if share.ID != "p2" {
		t.Fatalf("share id = %q", share.ID)
	}

	wantIDs(t, client.cache, SharedFeedQuery(), "p2")
	wantIDs(t, client.cache, FeedQuery(), "p2", "p1")
	entry, _ := client.cache.Read(FeedQuery())
	for _, e := range entry.Items() {
		if c := e.(Content); c.ID == "p1" && c.ShareCount != 7 {
			t.Fatalf("share count = %d, want 7 (server total)", c.ShareCount)
		}
	}
}

func TestDeleteRemovesFromEveryFeedAndDropsComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/content/p1", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, contentMutationData{})
	})
	client := newTestClient(t, mux)
	seedContent(client.cache, "p1", FeedQuery(), SavedFeedQuery())
	seedUsers(client.cache, CommentsQuery("p1"), []Entity{
		Comment{ID: "cm1", ContentID: "p1"},
	})

	if err := client.Feed().Delete(context.Background(), "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	wantIDs(t, client.cache, FeedQuery())
	wantIDs(t, client.cache, SavedFeedQuery())
	if _, ok := client.cache.Read(CommentsQuery("p1")); ok {
		t.Fatal("comments entry should be dropped with its content")
	}
}

func TestCommentOutboxPatchesThreadAndCount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/content/p1/comment", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, contentMutationData{
			Comment:      &Comment{ID: "cm1", ContentID: "p1", Body: "nice"},
			OwnerID:      "u-owner",
			CommentCount: 5,
		})
	})
	client := newTestClient(t, mux)
	seedContent(client.cache, "p1", FeedQuery())
	seedUsers(client.cache, CommentsQuery("p1"), []Entity{})

	outbox := client.Feed().NewCommentOutbox("p1", &OutboxOptions{SentDisplay: 20 * time.Millisecond})
	defer outbox.Close()

	id := outbox.Submit(context.Background(), CommentDraft{ContentID: "p1", Body: "nice"})
	waitForStatus(t, outbox, id, PendingSent)
	waitForEmpty(t, outbox)

	wantIDs(t, client.cache, CommentsQuery("p1"), "cm1")
	entry, _ := client.cache.Read(FeedQuery())
	if got := entry.Items()[0].(Content).CommentCount; got != 5 {
		t.Fatalf("comment count = %d, want 5 (server total)", got)
	}
}

func TestCommentOutboxRejectsWrongPayloadType(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())
	outbox := client.Feed().NewCommentOutbox("p1", nil)
	defer outbox.Close()

	id := outbox.Submit(context.Background(), "just a string")
	item := waitForStatus(t, outbox, id, PendingFailed)
	if item.Err == "" {
		t.Fatal("expected a payload type error")
	}
}

func TestCommentOutboxRejectsMismatchedContentID(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())
	outbox := client.Feed().NewCommentOutbox("p1", nil)
	defer outbox.Close()

	id := outbox.Submit(context.Background(), CommentDraft{ContentID: "p-other", Body: "nice"})
	item := waitForStatus(t, outbox, id, PendingFailed)
	if item.Err == "" {
		t.Fatal("expected a content id mismatch error")
	}
}

func TestSaveAndUnsave(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/content/p1/save", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			okJSON(w, contentMutationData{Content: &Content{ID: "p1", AuthorID: "u-owner"}})
		case http.MethodDelete:
			okJSON(w, contentMutationData{})
		}
	})
	client := newTestClient(t, mux)
	seedUsers(client.cache, SavedFeedQuery(), []Entity{})

	if err := client.Feed().Save(context.Background(), "p1"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	wantIDs(t, client.cache, SavedFeedQuery(), "p1")

	if err := client.Feed().Unsave(context.Background(), "p1"); err != nil {
		t.Fatalf("Unsave: %v", err)
	}
	wantIDs(t, client.cache, SavedFeedQuery())
}
