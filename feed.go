package circle

import (
	"context"
	"fmt"
	"strings"
)

// FeedClient handles content feeds, reactions, shares, saves, and comments.
// A content item can be cached under several feed queries at once (global
// feed, a user feed, the shared feed, the saved feed); every patch below
// fans out across all of them so overlapping copies never diverge.
type FeedClient struct {
	client *Client
}

// contentMutationData is the wire shape of content mutation responses. The
// comment and share counts are the server's resulting totals; patches set
// them rather than adjusting, which keeps re-application harmless.
type contentMutationData struct {
	Content      *Content      `json:"content,omitempty"`
	Reaction     *Reaction     `json:"reaction,omitempty"`
	Comment      *Comment      `json:"comment,omitempty"`
	Share        *Content      `json:"share,omitempty"`
	OriginalID   string        `json:"originalId,omitempty"`
	OwnerID      string        `json:"ownerId,omitempty"`
	CommentCount int           `json:"commentCount,omitempty"`
	ShareCount   int           `json:"shareCount,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// CommentDraft is the outbox payload for an optimistic comment.
type CommentDraft struct {
	ContentID string `json:"contentId"`
	Body      string `json:"body"`
}

// ============================================================================
// Reads
// ============================================================================

// Home loads the first page of the global feed.
func (f *FeedClient) Home(ctx context.Context) error {
	return f.client.paginator.LoadFirst(ctx, FeedQuery(), f.fetcher("/content/feed"))
}

// LoadMoreHome fetches the next global feed page.
func (f *FeedClient) LoadMoreHome(ctx context.Context) error {
	return f.client.paginator.RequestNextPage(ctx, FeedQuery(), f.fetcher("/content/feed"))
}

// User loads the first page of one user's feed.
func (f *FeedClient) User(ctx context.Context, userID string) error {
	return f.client.paginator.LoadFirst(ctx, UserFeedQuery(userID), f.fetcher("/content/user/"+userID))
}

// LoadMoreUser fetches the next page of one user's feed.
func (f *FeedClient) LoadMoreUser(ctx context.Context, userID string) error {
	return f.client.paginator.RequestNextPage(ctx, UserFeedQuery(userID), f.fetcher("/content/user/"+userID))
}

// Shared loads the first page of the shared-content feed.
func (f *FeedClient) Shared(ctx context.Context) error {
	return f.client.paginator.LoadFirst(ctx, SharedFeedQuery(), f.fetcher("/content/shared"))
}

// Saved loads the first page of the saved-content feed.
func (f *FeedClient) Saved(ctx context.Context) error {
	return f.client.paginator.LoadFirst(ctx, SavedFeedQuery(), f.fetcher("/content/saved"))
}

// Comments loads the first page of a content item's comments.
func (f *FeedClient) Comments(ctx context.Context, contentID string) error {
	return f.client.paginator.LoadFirst(ctx, CommentsQuery(contentID), f.commentFetcher(contentID))
}

// LoadMoreComments fetches the next comments page.
func (f *FeedClient) LoadMoreComments(ctx context.Context, contentID string) error {
	return f.client.paginator.RequestNextPage(ctx, CommentsQuery(contentID), f.commentFetcher(contentID))
}

func (f *FeedClient) fetcher(path string) PageFetch {
	return func(ctx context.Context, cursor string) (Page, bool, error) {
		return fetchPage(ctx, f.client, path, cursor, entityDecoder[Content])
	}
}

func (f *FeedClient) commentFetcher(contentID string) PageFetch {
	return func(ctx context.Context, cursor string) (Page, bool, error) {
		return fetchPage(ctx, f.client, "/content/"+contentID+"/comments", cursor, entityDecoder[Comment])
	}
}

// ============================================================================
// Mutations
// ============================================================================

// Post publishes a new content item and prepends it to the global feed and
// the viewer's own feed.
func (f *FeedClient) Post(ctx context.Context, opts *PostContentOptions) (*Content, error) {
	data, err := f.mutate(ctx, "POST", "/content", opts)
	if err != nil {
		return nil, err
	}
	if data.Content == nil {
		return nil, fmt.Errorf("content post response missing content")
	}
	f.client.cache.PrependUnique(FeedQuery(), *data.Content)
	f.client.cache.PrependUnique(UserFeedQuery(f.client.userID), *data.Content)
	return data.Content, nil
}

// Delete removes a content item. Applied only after confirmed success; an
// optimistic removal with a failed delete would leave the feeds showing
// less than the server holds with no recovery path.
func (f *FeedClient) Delete(ctx context.Context, contentID string) error {
	if _, err := f.mutate(ctx, "DELETE", "/content/"+contentID, nil); err != nil {
		return err
	}
	for _, key := range contentQueries(f.client.cache) {
		f.client.cache.RemoveByID(key, contentID)
	}
	f.client.cache.Drop(CommentsQuery(contentID))
	return nil
}

// ToggleReaction sets the viewer's reaction on a content item to kind, or
// removes it when kind is empty. The patch replaces or deletes keyed by the
// reacting user id, never appends, so the reaction set holds at most one
// entry per user regardless of how toggles interleave.
func (f *FeedClient) ToggleReaction(ctx context.Context, contentID, kind string) error {
	body := map[string]string{}
	if kind != "" {
		body["kind"] = kind
	}
	data, err := f.mutate(ctx, "POST", "/content/"+contentID+"/reaction", body)
	if err != nil {
		return err
	}

	applyReactionPatch(f.client.cache, contentQueries(f.client.cache), contentID, f.client.userID, data.Reaction)

	f.client.emitEvent(ctx, EventContentReaction, []string{data.OwnerID, f.client.userID}, ContentReactionPayload{
		ContentID: contentID,
		UserID:    f.client.userID,
		Reaction:  data.Reaction,
	})
	f.emitNotification(ctx, data)
	return nil
}

// Share reposts a content item. The new share entity lands in the shared
// feed and the original's share count is bumped wherever it is cached.
func (f *FeedClient) Share(ctx context.Context, contentID string) (*Content, error) {
	data, err := f.mutate(ctx, "POST", "/content/"+contentID+"/share", nil)
	if err != nil {
		return nil, err
	}
	if data.Share == nil {
		return nil, fmt.Errorf("content share response missing share")
	}

	f.client.cache.PrependUnique(SharedFeedQuery(), *data.Share)
	f.client.cache.PrependUnique(FeedQuery(), *data.Share)
	setShareCount(f.client.cache, contentQueries(f.client.cache), contentID, data.ShareCount)

	f.client.emitEvent(ctx, EventContentShared, []string{data.OwnerID, f.client.userID}, ContentSharedPayload{
		Share:      *data.Share,
		OriginalID: contentID,
		ShareCount: data.ShareCount,
	})
	f.emitNotification(ctx, data)
	return data.Share, nil
}

// Save adds a content item to the viewer's saved feed.
func (f *FeedClient) Save(ctx context.Context, contentID string) error {
	data, err := f.mutate(ctx, "POST", "/content/"+contentID+"/save", nil)
	if err != nil {
		return err
	}
	if data.Content != nil {
		f.client.cache.PrependUnique(SavedFeedQuery(), *data.Content)
	}
	return nil
}

// Unsave removes a content item from the saved feed, after confirmed
// success.
func (f *FeedClient) Unsave(ctx context.Context, contentID string) error {
	if _, err := f.mutate(ctx, "DELETE", "/content/"+contentID+"/save", nil); err != nil {
		return err
	}
	f.client.cache.RemoveByID(SavedFeedQuery(), contentID)
	return nil
}

// NewCommentOutbox creates the optimistic send tracker for a content item's
// comment box. Submitted drafts show as pending locally; the confirmed
// comment enters the cache only through the success patch here (or a push
// event on another session).
func (f *FeedClient) NewCommentOutbox(contentID string, opts *OutboxOptions) *Outbox {
	return NewOutbox(func(ctx context.Context, item PendingItem) error {
		draft, ok := item.Payload.(CommentDraft)
		if !ok {
			return fmt.Errorf("comment outbox payload must be CommentDraft")
		}
		if draft.ContentID != "" && draft.ContentID != contentID {
			return fmt.Errorf("comment draft targets content %s, outbox posts to %s", draft.ContentID, contentID)
		}
		data, err := f.mutate(ctx, "POST", "/content/"+contentID+"/comment", map[string]string{"body": draft.Body})
		if err != nil {
			return err
		}
		if data.Comment == nil {
			return fmt.Errorf("comment response missing comment")
		}

		applyCommentPatch(f.client.cache, contentQueries(f.client.cache), *data.Comment, data.CommentCount)

		f.client.emitEvent(ctx, EventCommentNew, []string{data.OwnerID, f.client.userID},
			CommentNewPayload{Comment: *data.Comment, CommentCount: data.CommentCount})
		f.emitNotification(ctx, data)
		return nil
	}, opts)
}

// DeleteComment removes a comment after confirmed success and decrements
// the comment count wherever the content is cached.
func (f *FeedClient) DeleteComment(ctx context.Context, contentID, commentID string) error {
	data, err := f.mutate(ctx, "DELETE", "/content/"+contentID+"/comment/"+commentID, nil)
	if err != nil {
		return err
	}

	f.client.cache.RemoveByID(CommentsQuery(contentID), commentID)
	setCommentCount(f.client.cache, contentQueries(f.client.cache), contentID, data.CommentCount)

	f.client.emitEvent(ctx, EventCommentDeleted, []string{data.OwnerID, f.client.userID}, CommentDeletedPayload{
		ContentID:    contentID,
		CommentID:    commentID,
		CommentCount: data.CommentCount,
	})
	return nil
}

func (f *FeedClient) mutate(ctx context.Context, method, path string, body any) (*contentMutationData, error) {
	result, err := f.client.do(ctx, method, path, body, nil)
	if err != nil {
		return nil, err
	}
	var data contentMutationData
	if err := result.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode content mutation: %w", err)
	}
	return &data, nil
}

// emitNotification forwards a server-created derived notification ("X
// reacted to your post") to the content owner.
func (f *FeedClient) emitNotification(ctx context.Context, data *contentMutationData) {
	if data.Notification == nil || data.OwnerID == "" || data.OwnerID == f.client.userID {
		return
	}
	f.client.emitEvent(ctx, EventNotificationNew, []string{data.OwnerID},
		NotificationNewPayload{Notification: *data.Notification})
}

// contentQueries enumerates every cached query that could hold a copy of a
// content item. Content patches fan out across all of them so overlapping
// copies never diverge, and queries that were never fetched stay absent.
func contentQueries(cache *Cache) []QueryKey {
	return cache.KeysMatching(func(key QueryKey) bool {
		switch key {
		case FeedQuery(), SharedFeedQuery(), SavedFeedQuery():
			return true
		}
		return strings.HasPrefix(string(key), "user-feed:")
	})
}

// ============================================================================
// Shared content patches
// ============================================================================
//
// These are used by both the mutation success paths above and the push
// router's reconciliation, which keeps the two application paths identical
// and therefore idempotent with respect to each other.

// applyReactionPatch replaces or deletes userID's entry in the reaction set
// of contentID, across every query that could hold the content. The total is
// recomputed from the set, not adjusted incrementally.
func applyReactionPatch(cache *Cache, keys []QueryKey, contentID, userID string, reaction *Reaction) {
	for _, key := range keys {
		cache.MapByID(key, contentID, func(e Entity) Entity {
			content, ok := e.(Content)
			if !ok {
				return e
			}
			kept := make([]Reaction, 0, len(content.Reactions.Reactions)+1)
			for _, r := range content.Reactions.Reactions {
				if r.UserID != userID {
					kept = append(kept, r)
				}
			}
			if reaction != nil {
				kept = append(kept, *reaction)
			}
			content.Reactions = ReactionDetails{Total: len(kept), Reactions: kept}
			return content
		})
	}
}

// setShareCount sets the original's share count everywhere it is cached.
// The count is the server's resulting total, so re-application is harmless.
func setShareCount(cache *Cache, keys []QueryKey, originalID string, shareCount int) {
	for _, key := range keys {
		cache.MapByID(key, originalID, func(e Entity) Entity {
			content, ok := e.(Content)
			if !ok {
				return e
			}
			content.ShareCount = shareCount
			return content
		})
	}
}

// applyCommentPatch upserts the comment into its thread (idempotent by
// comment id) and sets the content's comment count to the carried total.
func applyCommentPatch(cache *Cache, keys []QueryKey, comment Comment, commentCount int) {
	cache.PrependUnique(CommentsQuery(comment.ContentID), comment)
	setCommentCount(cache, keys, comment.ContentID, commentCount)
}

func setCommentCount(cache *Cache, keys []QueryKey, contentID string, commentCount int) {
	for _, key := range keys {
		cache.MapByID(key, contentID, func(e Entity) Entity {
			content, ok := e.(Content)
			if !ok {
				return e
			}
			content.CommentCount = clamp(commentCount)
			return content
		})
	}
}
