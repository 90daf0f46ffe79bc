package circle

import "encoding/json"

// ============================================================================
// Errors
// ============================================================================

// ErrorKind classifies a failure for callers that branch on it.
type ErrorKind string

const (
	ErrValidation ErrorKind = "validation"
	ErrAuth       ErrorKind = "auth"
	ErrNotFound   ErrorKind = "not_found"
	ErrNetwork    ErrorKind = "network"
	ErrUnknown    ErrorKind = "unknown"
)

// APIError is the wire-level error shape returned by the Circle API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Error wraps a failure with its taxonomy kind. Mutation and fetch paths
// return *Error so callers can distinguish retryable network failures from
// validation or auth failures.
type Error struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return string(e.Kind) + ": " + e.Code + ": " + e.Message
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func kindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 404:
		return ErrNotFound
	case status >= 400 && status < 500:
		return ErrValidation
	default:
		return ErrUnknown
	}
}

// ============================================================================
// Entities
// ============================================================================

// Entity is anything addressable by its stable server-assigned id. Every
// cache patch primitive operates on entities by id or predicate, never by
// position.
type Entity interface {
	EntityID() string
}

// RelationshipStatus is the viewer's relationship to another user. A user id
// appears in at most one of the suggested / requests / friends lists at any
// time, and this field must agree with whichever list holds it.
type RelationshipStatus string

const (
	RelationNone            RelationshipStatus = "none"
	RelationPendingSent     RelationshipStatus = "pending_sent"
	RelationPendingReceived RelationshipStatus = "pending_received"
	RelationFriends         RelationshipStatus = "friends"
)

// User is a Circle account as seen by the viewer.
type User struct {
	ID           string             `json:"id"`
	Username     string             `json:"username"`
	DisplayName  string             `json:"displayName,omitempty"`
	AvatarURL    string             `json:"avatarUrl,omitempty"`
	Relationship RelationshipStatus `json:"relationship,omitempty"`
}

func (u User) EntityID() string { return u.ID }

// FriendRequest is an incoming request from another user.
type FriendRequest struct {
	ID        string `json:"id"`
	From      User   `json:"from"`
	CreatedAt string `json:"createdAt"`
}

func (r FriendRequest) EntityID() string { return r.ID }

// Message is a confirmed chat message. Optimistic (not yet confirmed)
// messages live in the Outbox, not in any cache page.
type Message struct {
	ID          string          `json:"id"`
	ChatID      string          `json:"chatId"`
	SenderID    string          `json:"senderId"`
	Content     string          `json:"content"`
	Type        string          `json:"type"`
	Attachments []string        `json:"attachments,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   string          `json:"createdAt"`
}

func (m Message) EntityID() string { return m.ID }

// Chat is one conversation in the chat list.
type Chat struct {
	ID          string   `json:"id"`
	Peer        User     `json:"peer"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int      `json:"unreadCount,omitempty"`
	Archived    bool     `json:"archived,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

func (c Chat) EntityID() string { return c.ID }

// Reaction is a single user's reaction to a content item. The reaction set
// of a content item holds at most one entry per user id.
type Reaction struct {
	UserID    string `json:"userId"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// ReactionDetails is the embedded reaction aggregate on a content item.
type ReactionDetails struct {
	Total     int        `json:"total"`
	Reactions []Reaction `json:"reactions,omitempty"`
}

// Content is a feed item (post, share, or saved item depending on the query
// it was fetched under).
type Content struct {
	ID           string          `json:"id"`
	AuthorID     string          `json:"authorId"`
	Author       *User           `json:"author,omitempty"`
	Body         string          `json:"body,omitempty"`
	MediaURL     string          `json:"mediaUrl,omitempty"`
	Reactions    ReactionDetails `json:"reactionDetails"`
	CommentCount int             `json:"commentCount,omitempty"`
	ShareCount   int             `json:"shareCount,omitempty"`
	SharedFrom   string          `json:"sharedFrom,omitempty"`
	CreatedAt    string          `json:"createdAt"`
}

func (c Content) EntityID() string { return c.ID }

// Comment is a confirmed comment on a content item.
type Comment struct {
	ID        string `json:"id"`
	ContentID string `json:"contentId"`
	AuthorID  string `json:"authorId"`
	Author    *User  `json:"author,omitempty"`
	Body      string `json:"body"`
	CreatedAt string `json:"createdAt"`
}

func (c Comment) EntityID() string { return c.ID }

// Notification is an item in the notifications list.
type Notification struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	ActorID   string `json:"actorId,omitempty"`
	SubjectID string `json:"subjectId,omitempty"`
	Body      string `json:"body,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

func (n Notification) EntityID() string { return n.ID }

// ============================================================================
// Wire types
// ============================================================================

// Result is the generic Circle API response envelope.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Meta  map[string]any  `json:"meta,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *Result) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// pageEnvelope is the wire shape of one fetched page for any list endpoint.
type pageEnvelope struct {
	Items      json.RawMessage `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
	HasMore    bool            `json:"hasMore"`
}

// PostContentOptions configures a new feed post.
type PostContentOptions struct {
	Body     string `json:"body"`
	MediaURL string `json:"mediaUrl,omitempty"`
}
