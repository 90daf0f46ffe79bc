package circle

import (
	"context"
	"net/http"
	"testing"
)


func TestFriendsListLoadsIntoCache(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/friend/list", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			pageJSON(w, []User{user("u1"), user("u2")}, "cur-1", true)
		case "cur-1":
			pageJSON(w, []User{user("u3")}, "", false)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	if err := client.Friends().List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	wantIDs(t, client.cache, FriendsQuery(), "u1", "u2")

	if err := client.Friends().LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	wantIDs(t, client.cache, FriendsQuery(), "u1", "u2", "u3")

	// Exhausted: no further request (the handler would t.Errorf).
	if err := client.Friends().LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore after exhaustion: %v", err)
	}
}

func TestSendRequestPatchesOnSuccess(t *testing.T) {
	subject := user("u1")
	mux := http.NewServeMux()
	mux.HandleFunc("/friend/request", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, friendMutationData{
			Request: &FriendRequest{ID: "r1", From: user("u-self")},
			Subject: &subject,
			Viewer:  ptr(user("u-self")),
		})
	})
	client := newTestClient(t, mux)
	seedUsers(client.cache, SuggestedUsersQuery(), []Entity{subject, user("u2")})

	if err := client.Friends().SendRequest(context.Background(), "u1"); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	wantIDs(t, client.cache, SuggestedUsersQuery(), "u2")
}

func TestSendRequestFailureLeavesCacheUntouched(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/friend/request", func(w http.ResponseWriter, r *http.Request) {
		failJSON(w, 400, "ALREADY_REQUESTED", "request exists")
	})
	client := newTestClient(t, mux)
	seedUsers(client.cache, SuggestedUsersQuery(), []Entity{user("u1")})

	if err := client.Friends().SendRequest(context.Background(), "u1"); err == nil {
		t.Fatal("expected mutation error")
	}
	// No optimistic application: the subject is still suggested.
	wantIDs(t, client.cache, SuggestedUsersQuery(), "u1")
}

func TestAcceptMovesRequesterToFriends(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/friend/accept", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, friendMutationData{
			Subject: ptr(user("u1")),
			Viewer:  ptr(user("u-self")),
		})
	})
	client := newTestClient(t, mux)
	seedUsers(client.cache, FriendRequestsQuery(), []Entity{
		FriendRequest{ID: "r1", From: user("u1")},
	})
	seedUsers(client.cache, FriendsQuery(), []Entity{user("u9")})
	client.counters.IncRequests()

	if err := client.Friends().Accept(context.Background(), "r1"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	wantIDs(t, client.cache, FriendRequestsQuery())
	wantIDs(t, client.cache, FriendsQuery(), "u1", "u9")
	if client.counters.Requests() != 0 {
		t.Fatalf("request counter = %d, want 0", client.counters.Requests())
	}

	entry, _ := client.cache.Read(FriendsQuery())
	if entry.Items()[0].(User).Relationship != RelationFriends {
		t.Fatal("accepted requester not marked as friend")
	}
}

func TestRemoveReturnsSubjectToSuggested(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/friend/u1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		okJSON(w, friendMutationData{
			Subject: ptr(user("u1")),
			Viewer:  ptr(user("u-self")),
		})
	})
	client := newTestClient(t, mux)
	friend := user("u1")
	friend.Relationship = RelationFriends
	seedUsers(client.cache, FriendsQuery(), []Entity{friend})
	seedUsers(client.cache, SuggestedUsersQuery(), []Entity{})

	if err := client.Friends().Remove(context.Background(), "u1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	wantIDs(t, client.cache, FriendsQuery())
	wantIDs(t, client.cache, SuggestedUsersQuery(), "u1")
}

func ptr[T any](v T) *T { return &v }
