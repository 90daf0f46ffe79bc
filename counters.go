package circle

import "sync"

// Counters holds the derived unread counts the client maintains locally:
// optimistic increment when a push arrives while the viewer is elsewhere,
// optimistic decrement when a read-receipt flush confirms. Every counter is
// clamped at zero; a decrement can race a concurrently arriving unread item
// and over-counting down must not go negative.
type Counters struct {
	mu            sync.Mutex
	messages      int
	perChat       map[string]int
	notifications int
	requests      int
}

// NewCounters creates zeroed counters.
func NewCounters() *Counters {
	return &Counters{perChat: make(map[string]int)}
}

// IncMessages bumps the total unread message count and the given chat's.
func (c *Counters) IncMessages(chatID string) {
	c.mu.Lock()
	c.messages++
	c.perChat[chatID]++
	c.mu.Unlock()
}

// DecMessages subtracts n read messages for chatID, clamping at zero.
func (c *Counters) DecMessages(chatID string, n int) {
	c.mu.Lock()
	c.messages = clamp(c.messages - n)
	c.perChat[chatID] = clamp(c.perChat[chatID] - n)
	c.mu.Unlock()
}

// Messages returns the total unread message count.
func (c *Counters) Messages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages
}

// ChatMessages returns the unread count for one chat.
func (c *Counters) ChatMessages(chatID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perChat[chatID]
}

// IncNotifications bumps the unread notification count.
func (c *Counters) IncNotifications() {
	c.mu.Lock()
	c.notifications++
	c.mu.Unlock()
}

// DecNotifications subtracts n read notifications, clamping at zero.
func (c *Counters) DecNotifications(n int) {
	c.mu.Lock()
	c.notifications = clamp(c.notifications - n)
	c.mu.Unlock()
}

// Notifications returns the unread notification count.
func (c *Counters) Notifications() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifications
}

// IncRequests bumps the pending friend-request count.
func (c *Counters) IncRequests() {
	c.mu.Lock()
	c.requests++
	c.mu.Unlock()
}

// DecRequests subtracts one pending friend request, clamping at zero.
func (c *Counters) DecRequests() {
	c.mu.Lock()
	c.requests = clamp(c.requests - 1)
	c.mu.Unlock()
}

// Requests returns the pending friend-request count.
func (c *Counters) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// Reset zeroes every counter. Used on logout / profile change.
func (c *Counters) Reset() {
	c.mu.Lock()
	c.messages = 0
	c.notifications = 0
	c.requests = 0
	c.perChat = make(map[string]int)
	c.mu.Unlock()
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
