package circle

import (
	"encoding/json"
	"sync"

	"github.com/golang/glog"
)

// Router reconciles inbound push events into the cache and counters. It is
// the only consumer of the push channel's envelopes.
//
// Delivery is at-least-once and unordered, so every handler is idempotent:
// presence patches are keyed by entity id (PrependUnique, RemoveByID,
// replace-by-id), counts are applied as absolute values carried in the
// payload, and counter bumps are gated on an actual cache change. Applying
// any event twice lands on the same state as applying it once.
//
// Self-echo is handled here, once: an envelope stamped with this session's
// own id is dropped before any handler runs, because the originating
// session already applied the identical patch on its mutation success path.
// Events from the same user's other sessions carry a different session id
// and are applied like anyone else's.
type Router struct {
	client *Client

	alertMu sync.RWMutex
	onAlert []func(event string, text string)
}

func newRouter(c *Client) *Router {
	return &Router{client: c}
}

// OnAlert registers a handler for user-facing alerts derived from push
// events: new messages from other users and new notifications. Cache
// reconciliation happens regardless of any alert handlers.
func (r *Router) OnAlert(h func(event string, text string)) {
	r.alertMu.Lock()
	r.onAlert = append(r.onAlert, h)
	r.alertMu.Unlock()
}

func (r *Router) alert(event, text string) {
	r.alertMu.RLock()
	handlers := append([]func(string, string){}, r.onAlert...)
	r.alertMu.RUnlock()
	for _, h := range handlers {
		go h(event, text)
	}
}

// HandleEvent applies one push envelope. Unknown events and malformed
// payloads are logged and dropped; they never disturb cache state.
func (r *Router) HandleEvent(env PushEnvelope) {
	if env.SessionID != "" && env.SessionID == r.client.sessionID {
		glog.V(2).Infof("dropping self-echo of %s", env.Event)
		return
	}

	switch env.Event {
	case EventFriendRequestReceived:
		if p, ok := decodeEvent[FriendRequestReceivedPayload](env); ok {
			r.handleFriendRequestReceived(p)
		}
	case EventFriendRequestAccepted:
		if p, ok := decodeEvent[FriendUserPayload](env); ok {
			r.handleFriendRequestAccepted(p)
		}
	case EventFriendRequestDeclined, EventFriendRequestCancelled:
		if p, ok := decodeEvent[FriendUserPayload](env); ok {
			r.handleFriendRequestClosed(p)
		}
	case EventFriendRemoved:
		if p, ok := decodeEvent[FriendUserPayload](env); ok {
			r.handleFriendRemoved(p)
		}
	case EventMessageNew:
		if p, ok := decodeEvent[MessageNewPayload](env); ok {
			r.handleMessageNew(p)
		}
	case EventMessageDeleted:
		if p, ok := decodeEvent[MessageDeletedPayload](env); ok {
			applyMessageDeletedPatch(r.client.cache, p.ChatID, p.MessageID, p.LastMessage)
		}
	case EventChatArchived:
		if p, ok := decodeEvent[ChatArchivedPayload](env); ok {
			chat := p.Chat
			chat.Archived = true
			applyArchivePatch(r.client.cache, chat, true)
		}
	case EventChatUnarchived:
		if p, ok := decodeEvent[ChatArchivedPayload](env); ok {
			chat := p.Chat
			chat.Archived = false
			applyArchivePatch(r.client.cache, chat, false)
		}
	case EventContentReaction:
		if p, ok := decodeEvent[ContentReactionPayload](env); ok {
			cache := r.client.cache
			applyReactionPatch(cache, contentQueries(cache), p.ContentID, p.UserID, p.Reaction)
		}
	case EventContentShared:
		if p, ok := decodeEvent[ContentSharedPayload](env); ok {
			r.handleContentShared(p)
		}
	case EventCommentNew:
		if p, ok := decodeEvent[CommentNewPayload](env); ok {
			cache := r.client.cache
			applyCommentPatch(cache, contentQueries(cache), p.Comment, p.CommentCount)
		}
	case EventCommentDeleted:
		if p, ok := decodeEvent[CommentDeletedPayload](env); ok {
			cache := r.client.cache
			cache.RemoveByID(CommentsQuery(p.ContentID), p.CommentID)
			setCommentCount(cache, contentQueries(cache), p.ContentID, p.CommentCount)
		}
	case EventNotificationNew:
		if p, ok := decodeEvent[NotificationNewPayload](env); ok {
			r.handleNotificationNew(p)
		}
	default:
		glog.V(1).Infof("ignoring unknown push event %q", env.Event)
	}
}

func decodeEvent[T any](env PushEnvelope) (T, bool) {
	var p T
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		glog.Warningf("discarding malformed %s payload: %v", env.Event, err)
		return p, false
	}
	return p, true
}

// ============================================================================
// Friend graph
// ============================================================================

// handleFriendRequestReceived surfaces an incoming request. The requester
// leaves the suggested list, the request enters the requests list, and the
// pending-request counter bumps only when the request was actually new. On
// the requester's own other devices only the outgoing side applies: the
// recipient leaves suggested with pending_sent, and nothing enters the
// incoming-requests list.
func (r *Router) handleFriendRequestReceived(p FriendRequestReceivedPayload) {
	cache := r.client.cache
	req := p.Request

	if req.From.ID == r.client.userID {
		cache.RemoveByID(SuggestedUsersQuery(), p.To.ID)
		patchRelationship(cache, p.To.ID, RelationPendingSent)
		return
	}

	req.From.Relationship = RelationPendingReceived
	cache.RemoveByID(SuggestedUsersQuery(), req.From.ID)
	if cache.PrependUnique(FriendRequestsQuery(), req) {
		r.client.counters.IncRequests()
	}
	patchRelationship(cache, req.From.ID, RelationPendingReceived)
}

// handleFriendRequestAccepted runs on the requester's sessions (the accepter
// moves into friends) and the accepter's own other devices (the requester
// moves from requests into friends). The counter decrement is gated on the
// request actually being cached.
func (r *Router) handleFriendRequestAccepted(p FriendUserPayload) {
	cache := r.client.cache
	friend := p.counterpart(r.client.userID)
	friend.Relationship = RelationFriends

	if p.RequestID != "" {
		if entry, ok := cache.Read(FriendRequestsQuery()); ok && entry.Contains(p.RequestID) {
			cache.RemoveByID(FriendRequestsQuery(), p.RequestID)
			r.client.counters.DecRequests()
		}
	}
	cache.RemoveByID(SuggestedUsersQuery(), friend.ID)
	cache.PrependUnique(FriendsQuery(), friend)
	patchRelationship(cache, friend.ID, RelationFriends)
}

// handleFriendRequestClosed runs for declines and cancellations alike: the
// request leaves the requests list where cached and the counterpart returns
// to suggested with no standing. The counter decrement is gated on the
// request actually being present, so a redelivery cannot double-decrement.
func (r *Router) handleFriendRequestClosed(p FriendUserPayload) {
	cache := r.client.cache
	other := p.counterpart(r.client.userID)
	other.Relationship = RelationNone

	if p.RequestID != "" {
		if entry, ok := cache.Read(FriendRequestsQuery()); ok && entry.Contains(p.RequestID) {
			cache.RemoveByID(FriendRequestsQuery(), p.RequestID)
			r.client.counters.DecRequests()
		}
	}
	cache.PrependUnique(SuggestedUsersQuery(), other)
	patchRelationship(cache, other.ID, RelationNone)
}

// handleFriendRemoved runs on both sides of an unfriending: whichever user
// is not the viewer leaves the friends list and returns to suggested.
func (r *Router) handleFriendRemoved(p FriendUserPayload) {
	cache := r.client.cache
	other := p.counterpart(r.client.userID)
	other.Relationship = RelationNone

	cache.RemoveByID(FriendsQuery(), other.ID)
	cache.PrependUnique(SuggestedUsersQuery(), other)
	patchRelationship(cache, other.ID, RelationNone)
}

// ============================================================================
// Chats
// ============================================================================

// handleMessageNew patches the message into the chat history and chat list
// and bumps unread counts. The bump is gated on a cached view actually
// gaining the message: the history insert when the history is cached,
// otherwise the chat list's last-message change. With neither view cached
// there is nothing to bump; the counts arrive with the next fetch.
func (r *Router) handleMessageNew(p MessageNewPayload) {
	cache := r.client.cache
	msg := p.Message

	_, historyCached := cache.Read(ChatMessagesQuery(msg.ChatID))
	seen := messageAlreadySeen(cache, msg)
	inserted := applyNewMessagePatch(cache, msg, p.Chat)

	if msg.SenderID == r.client.userID {
		return
	}
	fresh := inserted
	if !historyCached {
		fresh = !seen && chatListed(cache, msg.ChatID)
	}
	if !fresh {
		return
	}
	r.client.counters.IncMessages(msg.ChatID)
	cache.MapByID(ChatsQuery(), msg.ChatID, func(e Entity) Entity {
		chat, ok := e.(Chat)
		if !ok {
			return e
		}
		chat.UnreadCount++
		return chat
	})
	r.alert(EventMessageNew, msg.Content)
}

func chatListed(cache *Cache, chatID string) bool {
	entry, ok := cache.Read(ChatsQuery())
	return ok && entry.Contains(chatID)
}

func messageAlreadySeen(cache *Cache, msg Message) bool {
	if entry, ok := cache.Read(ChatMessagesQuery(msg.ChatID)); ok {
		return entry.Contains(msg.ID)
	}
	if entry, ok := cache.Read(ChatsQuery()); ok {
		for _, e := range entry.Items() {
			if chat, ok := e.(Chat); ok && chat.ID == msg.ChatID {
				return chat.LastMessage != nil && chat.LastMessage.ID == msg.ID
			}
		}
	}
	return false
}

// ============================================================================
// Content
// ============================================================================

// handleContentShared sets the original's share count to the carried total
// and surfaces the share in the global feed. The shared feed holds only
// contents the viewer shared, so the share enters it only on the sharer's
// own other devices, never on the content owner's.
func (r *Router) handleContentShared(p ContentSharedPayload) {
	cache := r.client.cache
	cache.PrependUnique(FeedQuery(), p.Share)
	if p.Share.AuthorID == r.client.userID {
		cache.PrependUnique(SharedFeedQuery(), p.Share)
	}
	setShareCount(cache, contentQueries(cache), p.OriginalID, p.ShareCount)
}

// ============================================================================
// Notifications
// ============================================================================

func (r *Router) handleNotificationNew(p NotificationNewPayload) {
	inserted := r.client.cache.PrependUnique(NotificationsQuery(), p.Notification)
	if inserted && !p.Notification.Read {
		r.client.counters.IncNotifications()
	}
	if inserted {
		r.alert(EventNotificationNew, p.Notification.Body)
	}
}
