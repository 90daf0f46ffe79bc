package circle

import "encoding/json"

// ============================================================================
// Push channel wire format
// ============================================================================

// PushEnvelope is the wire format for all push events, inbound and outbound.
// ActorID identifies who performed the underlying mutation; SessionID
// identifies which client instance, so a session can drop echoes of its own
// actions. Audience is outbound only: the user ids the event is addressed to.
type PushEnvelope struct {
	Event     string          `json:"event"`
	ActorID   string          `json:"actorId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Audience  []string        `json:"audience,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Event names. Adding one means adding a payload type below and a case to
// the router's dispatch switch.
const (
	EventFriendRequestReceived  = "friend.request.received"
	EventFriendRequestAccepted  = "friend.request.accepted"
	EventFriendRequestCancelled = "friend.request.cancelled"
	EventFriendRequestDeclined  = "friend.request.declined"
	EventFriendRemoved          = "friend.removed"
	EventMessageNew             = "message.new"
	EventMessageDeleted         = "message.deleted"
	EventChatArchived           = "chat.archived"
	EventChatUnarchived         = "chat.unarchived"
	EventContentReaction        = "content.reaction"
	EventContentShared          = "content.shared"
	EventCommentNew             = "content.comment.new"
	EventCommentDeleted         = "content.comment.deleted"
	EventNotificationNew        = "notification.new"
)

// ============================================================================
// Event payloads
// ============================================================================

// FriendRequestReceivedPayload carries a new incoming request plus its
// recipient. The recipient's sessions move the requester out of suggested
// users and into friend requests; the requester's own other devices mirror
// the outgoing side of the same transition.
type FriendRequestReceivedPayload struct {
	Request FriendRequest `json:"request"`
	To      User          `json:"to"`
}

// FriendUserPayload carries both sides of the accepted / cancelled /
// declined / removed transitions, plus the request id where one existed.
// One event serves every addressed session: each receiver patches the
// counterpart, whichever of the two users is not itself.
type FriendUserPayload struct {
	Actor     User   `json:"actor"`
	Subject   User   `json:"subject"`
	RequestID string `json:"requestId,omitempty"`
}

// counterpart picks whichever side of the payload is not the viewer.
func (p FriendUserPayload) counterpart(selfID string) User {
	if p.Actor.ID == selfID {
		return p.Subject
	}
	return p.Actor
}

// MessageNewPayload carries a message delivered to the recipient, with
// enough of the chat to patch the chat list (or insert a brand-new chat).
type MessageNewPayload struct {
	Message Message `json:"message"`
	Chat    *Chat   `json:"chat,omitempty"`
}

// MessageDeletedPayload carries a deletion plus the chat's new last message
// so the chat list can be patched without a follow-up read.
type MessageDeletedPayload struct {
	ChatID      string   `json:"chatId"`
	MessageID   string   `json:"messageId"`
	LastMessage *Message `json:"lastMessage,omitempty"`
}

// ChatArchivedPayload carries an archive/unarchive done on another device of
// the same user.
type ChatArchivedPayload struct {
	Chat Chat `json:"chat"`
}

// ContentReactionPayload carries a reaction toggle. A nil Reaction means the
// user removed their reaction; otherwise it replaces whatever reaction that
// user had.
type ContentReactionPayload struct {
	ContentID string    `json:"contentId"`
	UserID    string    `json:"userId"`
	Reaction  *Reaction `json:"reaction,omitempty"`
}

// ContentSharedPayload carries a new share entity, the original it points
// at, and the original's resulting share count. The count is carried as an
// absolute value so applying the event twice sets the same state.
type ContentSharedPayload struct {
	Share      Content `json:"share"`
	OriginalID string  `json:"originalId"`
	ShareCount int     `json:"shareCount"`
}

// CommentNewPayload carries a new comment and the content's resulting
// comment count (absolute, for idempotent application).
type CommentNewPayload struct {
	Comment      Comment `json:"comment"`
	CommentCount int     `json:"commentCount"`
}

// CommentDeletedPayload carries a comment deletion and the resulting count.
type CommentDeletedPayload struct {
	ContentID    string `json:"contentId"`
	CommentID    string `json:"commentId"`
	CommentCount int    `json:"commentCount"`
}

// NotificationNewPayload carries a freshly created notification.
type NotificationNewPayload struct {
	Notification Notification `json:"notification"`
}
