package circle

import (
	"context"
	"fmt"
)

// ChatsClient handles the chat list, archived chats, per-chat message
// histories, optimistic message sends, and read receipts.
type ChatsClient struct {
	client *Client
}

// chatMutationData is the wire shape of chat mutation responses.
type chatMutationData struct {
	Message     *Message `json:"message,omitempty"`
	Chat        *Chat    `json:"chat,omitempty"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	PeerID      string   `json:"peerId,omitempty"`
}

// MessageDraft is the outbox payload for an optimistic chat message.
type MessageDraft struct {
	ChatID      string   `json:"chatId"`
	Content     string   `json:"content"`
	Type        string   `json:"type,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// ============================================================================
// Reads
// ============================================================================

// List loads the first page of the chat list.
func (c *ChatsClient) List(ctx context.Context) error {
	return c.client.paginator.LoadFirst(ctx, ChatsQuery(), c.chatFetcher("/chat/list"))
}

// LoadMore fetches the next chat-list page.
func (c *ChatsClient) LoadMore(ctx context.Context) error {
	return c.client.paginator.RequestNextPage(ctx, ChatsQuery(), c.chatFetcher("/chat/list"))
}

// Archived loads the first page of archived chats.
func (c *ChatsClient) Archived(ctx context.Context) error {
	return c.client.paginator.LoadFirst(ctx, ArchivedChatsQuery(), c.chatFetcher("/chat/archived"))
}

// LoadMoreArchived fetches the next archived-chats page.
func (c *ChatsClient) LoadMoreArchived(ctx context.Context) error {
	return c.client.paginator.RequestNextPage(ctx, ArchivedChatsQuery(), c.chatFetcher("/chat/archived"))
}

// Messages loads the first page of one chat's history.
func (c *ChatsClient) Messages(ctx context.Context, chatID string) error {
	return c.client.paginator.LoadFirst(ctx, ChatMessagesQuery(chatID), c.messageFetcher(chatID))
}

// LoadMoreMessages fetches the next history page for a chat.
func (c *ChatsClient) LoadMoreMessages(ctx context.Context, chatID string) error {
	return c.client.paginator.RequestNextPage(ctx, ChatMessagesQuery(chatID), c.messageFetcher(chatID))
}

func (c *ChatsClient) chatFetcher(path string) PageFetch {
	return func(ctx context.Context, cursor string) (Page, bool, error) {
		return fetchPage(ctx, c.client, path, cursor, entityDecoder[Chat])
	}
}

func (c *ChatsClient) messageFetcher(chatID string) PageFetch {
	return func(ctx context.Context, cursor string) (Page, bool, error) {
		return fetchPage(ctx, c.client, "/chat/"+chatID+"/messages", cursor, entityDecoder[Message])
	}
}

// ============================================================================
// Optimistic sends
// ============================================================================

// NewMessageOutbox creates the optimistic send tracker for one chat view.
// Submitted drafts show as pending; on confirmed success the server's copy
// of the message is patched into the cache and the peer is notified, while
// the pending item expires out of the tracker on its own.
func (c *ChatsClient) NewMessageOutbox(chatID string, opts *OutboxOptions) *Outbox {
	return NewOutbox(func(ctx context.Context, item PendingItem) error {
		draft, ok := item.Payload.(MessageDraft)
		if !ok {
			return fmt.Errorf("message outbox payload must be MessageDraft")
		}
		body := map[string]any{"content": draft.Content}
		if draft.Type != "" {
			body["type"] = draft.Type
		}
		if len(draft.Attachments) > 0 {
			body["attachments"] = draft.Attachments
		}
		data, err := c.mutate(ctx, "POST", "/chat/"+chatID+"/message", body)
		if err != nil {
			return err
		}
		if data.Message == nil {
			return fmt.Errorf("message send response missing message")
		}

		applyNewMessagePatch(c.client.cache, *data.Message, data.Chat)

		c.client.emitEvent(ctx, EventMessageNew, []string{data.PeerID, c.client.userID}, MessageNewPayload{
			Message: *data.Message,
			Chat:    data.Chat,
		})
		return nil
	}, opts)
}

// ============================================================================
// Mutations
// ============================================================================

// DeleteMessage removes a message after confirmed success and patches the
// chat list's last message from the response.
func (c *ChatsClient) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	data, err := c.mutate(ctx, "DELETE", "/chat/"+chatID+"/message/"+messageID, nil)
	if err != nil {
		return err
	}

	applyMessageDeletedPatch(c.client.cache, chatID, messageID, data.LastMessage)

	c.client.emitEvent(ctx, EventMessageDeleted, []string{data.PeerID, c.client.userID}, MessageDeletedPayload{
		ChatID:      chatID,
		MessageID:   messageID,
		LastMessage: data.LastMessage,
	})
	return nil
}

// Archive moves a chat from the active list to the archived list. Other
// devices of the same user learn of it over the push channel; the peer is
// not involved.
func (c *ChatsClient) Archive(ctx context.Context, chatID string) error {
	data, err := c.mutate(ctx, "POST", "/chat/"+chatID+"/archive", nil)
	if err != nil {
		return err
	}
	chat := chatOrStub(data.Chat, chatID)
	chat.Archived = true
	applyArchivePatch(c.client.cache, chat, true)

	c.client.emitEvent(ctx, EventChatArchived, []string{c.client.userID}, ChatArchivedPayload{Chat: chat})
	return nil
}

// Unarchive moves a chat back to the active list.
func (c *ChatsClient) Unarchive(ctx context.Context, chatID string) error {
	data, err := c.mutate(ctx, "POST", "/chat/"+chatID+"/unarchive", nil)
	if err != nil {
		return err
	}
	chat := chatOrStub(data.Chat, chatID)
	chat.Archived = false
	applyArchivePatch(c.client.cache, chat, false)

	c.client.emitEvent(ctx, EventChatUnarchived, []string{c.client.userID}, ChatArchivedPayload{Chat: chat})
	return nil
}

// NewReadReceipts creates the read-receipt batcher for one chat view
// session. Ids accumulate as messages cross the visibility threshold; Flush
// on view teardown sends them as one batch and decrements the unread
// counters by the flushed count instead of re-fetching, which avoids racing
// concurrently arriving unread messages.
func (c *ChatsClient) NewReadReceipts(chatID string) *ReceiptBatcher {
	return NewReceiptBatcher(func(ctx context.Context, ids []string) error {
		_, err := c.client.do(ctx, "POST", "/chat/"+chatID+"/read", map[string]any{"messageIds": ids}, nil)
		if err != nil {
			return err
		}
		c.client.counters.DecMessages(chatID, len(ids))
		c.client.cache.MapByID(ChatsQuery(), chatID, func(e Entity) Entity {
			chat, ok := e.(Chat)
			if !ok {
				return e
			}
			chat.UnreadCount = clamp(chat.UnreadCount - len(ids))
			return chat
		})
		return nil
	})
}

func (c *ChatsClient) mutate(ctx context.Context, method, path string, body any) (*chatMutationData, error) {
	result, err := c.client.do(ctx, method, path, body, nil)
	if err != nil {
		return nil, err
	}
	var data chatMutationData
	if err := result.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode chat mutation: %w", err)
	}
	return &data, nil
}

func chatOrStub(chat *Chat, chatID string) Chat {
	if chat != nil {
		return *chat
	}
	return Chat{ID: chatID}
}

// ============================================================================
// Shared chat patches
// ============================================================================

// applyNewMessagePatch upserts the message into its chat's history and
// patches the chat list's last message. If the chat itself is new and the
// payload carries it, it is inserted at the front of the chat list. The
// return reports whether the message was newly inserted into a cached
// history, letting callers bump unread counts exactly once per message.
func applyNewMessagePatch(cache *Cache, msg Message, chat *Chat) bool {
	inserted := cache.PrependUnique(ChatMessagesQuery(msg.ChatID), msg)

	if chat != nil {
		cache.PrependUnique(ChatsQuery(), *chat)
	}
	m := msg
	cache.MapByID(ChatsQuery(), msg.ChatID, func(e Entity) Entity {
		c, ok := e.(Chat)
		if !ok {
			return e
		}
		c.LastMessage = &m
		c.UpdatedAt = m.CreatedAt
		return c
	})
	return inserted
}

// applyMessageDeletedPatch removes the message from its chat's history and
// overwrites the chat list's last message with the carried replacement.
func applyMessageDeletedPatch(cache *Cache, chatID, messageID string, lastMessage *Message) {
	cache.RemoveByID(ChatMessagesQuery(chatID), messageID)
	cache.MapByID(ChatsQuery(), chatID, func(e Entity) Entity {
		c, ok := e.(Chat)
		if !ok {
			return e
		}
		if c.LastMessage != nil && c.LastMessage.ID == messageID {
			c.LastMessage = lastMessage
		}
		return c
	})
}

// applyArchivePatch moves a chat between the active and archived lists.
func applyArchivePatch(cache *Cache, chat Chat, archived bool) {
	from, to := ChatsQuery(), ArchivedChatsQuery()
	if !archived {
		from, to = to, from
	}
	cache.RemoveByID(from, chat.ID)
	cache.RemoveByID(to, chat.ID) // idempotent re-application
	cache.PrependUnique(to, chat)
}
