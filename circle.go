// Package circle provides the official Go client SDK for the Circle social
// network. The SDK keeps many independent, paginated, overlapping views of
// shared server state (friends, chats, feeds, notifications) consistent
// through a small eventually-consistent replicated cache: locally issued
// mutations patch the cache only on confirmed success, a push channel
// reconciles changes made by other actors, and optimistic sends for chat
// messages and comments live in a separate tracker until confirmed.
//
// Example:
//
//	client := circle.NewClient("tok-...", circle.WithUserID("u-self"))
//
//	// Reads go through the paginator into the cache
//	client.Friends().List(ctx)
//
//	// Mutations patch the cache on success and notify peers
//	client.Feed().ToggleReaction(ctx, contentID, "like")
//
//	// Push channel reconciles everyone else's mutations
//	rt := client.Realtime(&circle.RealtimeConfig{AutoReconnect: true})
//	rt.Connect(ctx)
package circle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	DefaultBaseURL = "https://api.circle.app"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the entry point to the Circle API. It owns the shared Cache and
// Counters and hands out per-domain sub-clients.
type Client struct {
	token      string
	userID     string
	sessionID  string
	baseURL    string
	httpClient *http.Client

	cache     *Cache
	counters  *Counters
	paginator *Paginator
	router    *Router

	realtimeOnce sync.Once
	realtime     *RealtimeClient

	friends       *FriendsClient
	feed          *FeedClient
	chats         *ChatsClient
	notifications *NotificationsClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithUserID sets the current user's id up front. The id gates self-echo
// detection and the viewer-side reaction patches; it can also be set later
// via SetUser after an authentication call.
func WithUserID(userID string) ClientOption {
	return func(c *Client) { c.userID = userID }
}

// NewClient creates a new Circle client authenticated with a bearer token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:     token,
		sessionID: ulid.Make().String(),
		baseURL:   DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		cache:    NewCache(),
		counters: NewCounters(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.paginator = newPaginator(c.cache)
	c.router = newRouter(c)
	c.friends = &FriendsClient{client: c}
	c.feed = &FeedClient{client: c}
	c.chats = &ChatsClient{client: c}
	c.notifications = &NotificationsClient{client: c}
	return c
}

// SetToken sets or updates the bearer token.
func (c *Client) SetToken(token string) { c.token = token }

// SetUser records the authenticated user's id.
func (c *Client) SetUser(userID string) { c.userID = userID }

// UserID returns the authenticated user's id, if known.
func (c *Client) UserID() string { return c.userID }

// SessionID returns this client instance's session id. Every outbound push
// event carries it so receivers, including this session's own echo, can tell
// which client instance originated a change.
func (c *Client) SessionID() string { return c.sessionID }

// Cache returns the shared entity cache.
func (c *Client) Cache() *Cache { return c.cache }

// Counters returns the shared unread counters.
func (c *Client) Counters() *Counters { return c.counters }

// Paginator returns the shared pagination manager.
func (c *Client) Paginator() *Paginator { return c.paginator }

// Router returns the push event router.
func (c *Client) Router() *Router { return c.router }

// Friends returns the friend-graph sub-client.
func (c *Client) Friends() *FriendsClient { return c.friends }

// Feed returns the content feed sub-client.
func (c *Client) Feed() *FeedClient { return c.feed }

// Chats returns the chat sub-client.
func (c *Client) Chats() *ChatsClient { return c.chats }

// Notifications returns the notifications sub-client.
func (c *Client) Notifications() *NotificationsClient { return c.notifications }

// Logout clears the cache, counters, and token. The caller is responsible
// for disconnecting any realtime client first.
func (c *Client) Logout() {
	c.token = ""
	c.userID = ""
	c.cache.Reset()
	c.counters.Reset()
}

// ============================================================================
// Request helper
// ============================================================================

// do performs one API request and maps the outcome onto the error taxonomy:
// transport failures are ErrNetwork, HTTP/API failures carry the kind
// derived from the status code. A non-nil *Result is returned only for
// successful calls.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, query map[string]string) (*Result, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Message: "request failed", cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Message: "read response", cause: err}
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &Error{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if resp.StatusCode >= 400 || !result.OK {
		apiErr := result.Error
		if apiErr == nil {
			apiErr = &APIError{Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
		}
		return nil, &Error{
			Kind:    kindForStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Code:    apiErr.Code,
			Message: apiErr.Message,
		}
	}
	return &result, nil
}

// fetchPage fetches one page of a list endpoint and decodes its items into
// cache entities via decode.
func fetchPage(ctx context.Context, c *Client, path string, cursor string, decode func(json.RawMessage) ([]Entity, error)) (Page, bool, error) {
	query := map[string]string{}
	if cursor != "" {
		query["cursor"] = cursor
	}
	result, err := c.do(ctx, "GET", path, nil, query)
	if err != nil {
		return Page{}, false, err
	}
	var env pageEnvelope
	if err := result.Decode(&env); err != nil {
		return Page{}, false, fmt.Errorf("failed to decode page: %w", err)
	}
	items, err := decode(env.Items)
	if err != nil {
		return Page{}, false, err
	}
	return Page{Items: items, NextCursor: env.NextCursor}, env.HasMore, nil
}

// entityDecoder adapts a concrete entity slice type to the generic decode
// signature fetchPage wants.
func entityDecoder[T Entity](raw json.RawMessage) ([]Entity, error) {
	if raw == nil {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	out := make([]Entity, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out, nil
}
