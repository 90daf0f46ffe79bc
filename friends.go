package circle

import (
	"context"
	"fmt"
)

// FriendsClient handles the friend graph: the friends, incoming requests,
// and suggested-users lists, and the mutations that move users between them.
// A user id appears in at most one of the three lists at any time; every
// mutation and reconciliation below preserves that by removing before
// inserting.
type FriendsClient struct {
	client *Client
}

// friendMutationData is the wire shape of every friend mutation response. It
// always carries enough of both sides for the success patch to apply without
// a follow-up read.
type friendMutationData struct {
	Request      *FriendRequest `json:"request,omitempty"`
	Subject      *User          `json:"subject,omitempty"`
	Viewer       *User          `json:"viewer,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
}

// ============================================================================
// Reads
// ============================================================================

// List loads the first page of the friends list into the cache.
func (f *FriendsClient) List(ctx context.Context) error {
	return f.client.paginator.LoadFirst(ctx, FriendsQuery(), f.fetchFriends)
}

// LoadMore fetches the next friends page.
func (f *FriendsClient) LoadMore(ctx context.Context) error {
	return f.client.paginator.RequestNextPage(ctx, FriendsQuery(), f.fetchFriends)
}

// Requests loads the first page of incoming friend requests.
func (f *FriendsClient) Requests(ctx context.Context) error {
	return f.client.paginator.LoadFirst(ctx, FriendRequestsQuery(), f.fetchRequests)
}

// LoadMoreRequests fetches the next requests page.
func (f *FriendsClient) LoadMoreRequests(ctx context.Context) error {
	return f.client.paginator.RequestNextPage(ctx, FriendRequestsQuery(), f.fetchRequests)
}

// Suggested loads the first page of suggested users.
func (f *FriendsClient) Suggested(ctx context.Context) error {
	return f.client.paginator.LoadFirst(ctx, SuggestedUsersQuery(), f.fetchSuggested)
}

// LoadMoreSuggested fetches the next suggested-users page.
func (f *FriendsClient) LoadMoreSuggested(ctx context.Context) error {
	return f.client.paginator.RequestNextPage(ctx, SuggestedUsersQuery(), f.fetchSuggested)
}

func (f *FriendsClient) fetchFriends(ctx context.Context, cursor string) (Page, bool, error) {
	return fetchPage(ctx, f.client, "/friend/list", cursor, entityDecoder[User])
}

func (f *FriendsClient) fetchRequests(ctx context.Context, cursor string) (Page, bool, error) {
	return fetchPage(ctx, f.client, "/friend/requests", cursor, entityDecoder[FriendRequest])
}

func (f *FriendsClient) fetchSuggested(ctx context.Context, cursor string) (Page, bool, error) {
	return fetchPage(ctx, f.client, "/friend/suggested", cursor, entityDecoder[User])
}

// ============================================================================
// Mutations
// ============================================================================

// SendRequest sends a friend request to userID. On success the subject
// leaves the viewer's suggested list with status pending_sent, and the
// recipient's sessions are told to surface the request.
func (f *FriendsClient) SendRequest(ctx context.Context, userID string) error {
	data, err := f.mutate(ctx, "POST", "/friend/request", map[string]string{"userId": userID})
	if err != nil {
		return err
	}
	if data.Subject == nil || data.Request == nil {
		return fmt.Errorf("friend request response missing subject or request")
	}

	cache := f.client.cache
	cache.RemoveByID(SuggestedUsersQuery(), data.Subject.ID)
	patchRelationship(cache, data.Subject.ID, RelationPendingSent)

	f.client.emitEvent(ctx, EventFriendRequestReceived, []string{data.Subject.ID, f.client.userID},
		FriendRequestReceivedPayload{Request: *data.Request, To: *data.Subject})
	f.emitNotification(ctx, data)
	return nil
}

// Accept accepts an incoming request. The requester moves from the requests
// list into friends; their sessions learn the acceptance.
func (f *FriendsClient) Accept(ctx context.Context, requestID string) error {
	data, err := f.mutate(ctx, "POST", "/friend/accept", map[string]string{"requestId": requestID})
	if err != nil {
		return err
	}
	if data.Subject == nil || data.Viewer == nil {
		return fmt.Errorf("friend accept response missing subject or viewer")
	}

	cache := f.client.cache
	cache.RemoveByID(FriendRequestsQuery(), requestID)
	friend := *data.Subject
	friend.Relationship = RelationFriends
	cache.PrependUnique(FriendsQuery(), friend)
	patchRelationship(cache, friend.ID, RelationFriends)
	f.client.counters.DecRequests()

	f.client.emitEvent(ctx, EventFriendRequestAccepted, []string{friend.ID, f.client.userID},
		FriendUserPayload{Actor: *data.Viewer, Subject: *data.Subject, RequestID: requestID})
	f.emitNotification(ctx, data)
	return nil
}

// Decline declines an incoming request. The requester returns to the
// suggested list with status none.
func (f *FriendsClient) Decline(ctx context.Context, requestID string) error {
	data, err := f.mutate(ctx, "POST", "/friend/decline", map[string]string{"requestId": requestID})
	if err != nil {
		return err
	}
	if data.Subject == nil || data.Viewer == nil {
		return fmt.Errorf("friend decline response missing subject or viewer")
	}

	cache := f.client.cache
	cache.RemoveByID(FriendRequestsQuery(), requestID)
	subject := *data.Subject
	subject.Relationship = RelationNone
	cache.PrependUnique(SuggestedUsersQuery(), subject)
	patchRelationship(cache, subject.ID, RelationNone)
	f.client.counters.DecRequests()

	f.client.emitEvent(ctx, EventFriendRequestDeclined, []string{subject.ID, f.client.userID},
		FriendUserPayload{Actor: *data.Viewer, Subject: *data.Subject, RequestID: requestID})
	return nil
}

// Cancel withdraws the viewer's own outgoing request to userID.
func (f *FriendsClient) Cancel(ctx context.Context, userID string) error {
	data, err := f.mutate(ctx, "POST", "/friend/cancel", map[string]string{"userId": userID})
	if err != nil {
		return err
	}
	if data.Subject == nil || data.Viewer == nil {
		return fmt.Errorf("friend cancel response missing subject or viewer")
	}

	cache := f.client.cache
	subject := *data.Subject
	subject.Relationship = RelationNone
	cache.PrependUnique(SuggestedUsersQuery(), subject)
	patchRelationship(cache, subject.ID, RelationNone)

	requestID := ""
	if data.Request != nil {
		requestID = data.Request.ID
	}
	f.client.emitEvent(ctx, EventFriendRequestCancelled, []string{subject.ID, f.client.userID},
		FriendUserPayload{Actor: *data.Viewer, Subject: *data.Subject, RequestID: requestID})
	return nil
}

// Remove unfriends userID. Applied only after confirmed success: an
// optimistic removal with a failed delete would leave the view
// desynchronized with no recovery path.
func (f *FriendsClient) Remove(ctx context.Context, userID string) error {
	data, err := f.mutate(ctx, "DELETE", "/friend/"+userID, nil)
	if err != nil {
		return err
	}
	if data.Subject == nil || data.Viewer == nil {
		return fmt.Errorf("friend remove response missing subject or viewer")
	}

	cache := f.client.cache
	cache.RemoveByID(FriendsQuery(), userID)
	subject := *data.Subject
	subject.Relationship = RelationNone
	cache.PrependUnique(SuggestedUsersQuery(), subject)
	patchRelationship(cache, userID, RelationNone)

	f.client.emitEvent(ctx, EventFriendRemoved, []string{userID, f.client.userID},
		FriendUserPayload{Actor: *data.Viewer, Subject: *data.Subject})
	return nil
}

func (f *FriendsClient) mutate(ctx context.Context, method, path string, body any) (*friendMutationData, error) {
	result, err := f.client.do(ctx, method, path, body, nil)
	if err != nil {
		return nil, err
	}
	var data friendMutationData
	if err := result.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode friend mutation: %w", err)
	}
	return &data, nil
}

// emitNotification forwards a server-created derived notification ("X sent
// you a friend request") to the counterparty.
func (f *FriendsClient) emitNotification(ctx context.Context, data *friendMutationData) {
	if data.Notification == nil || data.Subject == nil {
		return
	}
	f.client.emitEvent(ctx, EventNotificationNew, []string{data.Subject.ID},
		NotificationNewPayload{Notification: *data.Notification})
}

// patchRelationship rewrites the relationship field for userID wherever a
// copy of that user is cached: the three relationship lists and any feed
// entries embedding the author.
func patchRelationship(cache *Cache, userID string, status RelationshipStatus) {
	setUser := func(e Entity) Entity {
		switch v := e.(type) {
		case User:
			v.Relationship = status
			return v
		case FriendRequest:
			if v.From.ID == userID {
				v.From.Relationship = status
			}
			return v
		default:
			return e
		}
	}
	matches := func(e Entity) bool {
		switch v := e.(type) {
		case User:
			return v.ID == userID
		case FriendRequest:
			return v.From.ID == userID
		default:
			return false
		}
	}
	for _, key := range []QueryKey{SuggestedUsersQuery(), FriendsQuery(), FriendRequestsQuery()} {
		cache.MapWhere(key, matches, setUser)
	}
}
