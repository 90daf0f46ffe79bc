package circle

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the push channel.
type RealtimeConfig struct {
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
}

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	// A connection that held for a minute resets the backoff ladder.
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// RealtimeClient
// ============================================================================

// RealtimeClient is the bidirectional push channel: inbound envelopes are
// handed to the event router for cache reconciliation, outbound envelopes
// notify affected peers of locally confirmed mutations. The connection
// auto-reconnects with exponential backoff when configured to.
type RealtimeClient struct {
	client *Client
	config *RealtimeConfig

	mu               sync.Mutex
	conn             *websocket.Conn
	state            RealtimeState
	intentionalClose bool
	cancelFn         context.CancelFunc

	handlerMu      sync.RWMutex
	onConnected    []func()
	onDisconnected []func(reason string)
	onReconnecting []func(attempt int, delay time.Duration)

	recon *reconnector
}

// Realtime returns the push channel client, creating it on first use. The
// config is only consulted on that first call.
func (c *Client) Realtime(config *RealtimeConfig) *RealtimeClient {
	c.realtimeOnce.Do(func() {
		if config == nil {
			config = &RealtimeConfig{}
		}
		config.defaults()
		c.realtime = &RealtimeClient{
			client: c,
			config: config,
			state:  StateDisconnected,
			recon:  newReconnector(config),
		}
	})
	return c.realtime
}

// OnConnected registers a handler for the connected meta-event.
func (rt *RealtimeClient) OnConnected(h func()) {
	rt.handlerMu.Lock()
	rt.onConnected = append(rt.onConnected, h)
	rt.handlerMu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (rt *RealtimeClient) OnDisconnected(h func(reason string)) {
	rt.handlerMu.Lock()
	rt.onDisconnected = append(rt.onDisconnected, h)
	rt.handlerMu.Unlock()
}

// OnReconnecting registers a handler for the reconnecting meta-event.
func (rt *RealtimeClient) OnReconnecting(h func(attempt int, delay time.Duration)) {
	rt.handlerMu.Lock()
	rt.onReconnecting = append(rt.onReconnecting, h)
	rt.handlerMu.Unlock()
}

// State returns the current connection state.
func (rt *RealtimeClient) State() RealtimeState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// Connect establishes the push channel connection.
func (rt *RealtimeClient) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state == StateConnected || rt.state == StateConnecting {
		rt.mu.Unlock()
		return nil
	}
	rt.state = StateConnecting
	rt.intentionalClose = false
	rt.mu.Unlock()

	wsURL := strings.Replace(rt.client.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/push?token=" + rt.client.token + "&session=" + rt.client.sessionID

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.mu.Unlock()
		return &Error{Kind: ErrNetwork, Message: "push channel dial", cause: err}
	}

	rt.mu.Lock()
	rt.conn = conn
	rt.state = StateConnected
	rt.mu.Unlock()
	rt.recon.markConnected()
	rt.emitConnected()

	connCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	rt.cancelFn = cancel
	rt.mu.Unlock()

	go rt.readLoop(connCtx, conn)
	go rt.heartbeatLoop(connCtx, conn)

	return nil
}

// Disconnect gracefully closes the connection.
func (rt *RealtimeClient) Disconnect() error {
	rt.mu.Lock()
	rt.intentionalClose = true
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	conn := rt.conn
	rt.conn = nil
	rt.state = StateDisconnected
	rt.mu.Unlock()

	rt.emitDisconnected("client disconnect")
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// Send writes one envelope to the push channel.
func (rt *RealtimeClient) Send(ctx context.Context, env PushEnvelope) error {
	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()

	if conn == nil {
		return &Error{Kind: ErrNetwork, Message: "push channel not connected"}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return &Error{Kind: ErrNetwork, Message: "push channel write", cause: err}
	}
	return nil
}

func (rt *RealtimeClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			rt.mu.Lock()
			intentional := rt.intentionalClose
			rt.state = StateDisconnected
			rt.conn = nil
			rt.mu.Unlock()
			if intentional {
				return
			}

			rt.emitDisconnected(err.Error())
			if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
				rt.scheduleReconnect()
			}
			return
		}

		var env PushEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			glog.Warningf("push channel: discarding malformed envelope: %v", err)
			continue
		}
		rt.client.router.HandleEvent(env)
	}
}

func (rt *RealtimeClient) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(rt.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				// Force a close so the read loop notices and reconnects.
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func (rt *RealtimeClient) scheduleReconnect() {
	delay := rt.recon.nextDelay()
	rt.mu.Lock()
	rt.state = StateReconnecting
	rt.mu.Unlock()

	rt.emitReconnecting(rt.recon.attempt, delay)

	time.Sleep(delay)

	rt.mu.Lock()
	// Disconnect may have raced the timer.
	if rt.intentionalClose {
		rt.state = StateDisconnected
		rt.mu.Unlock()
		return
	}
	rt.state = StateDisconnected
	rt.mu.Unlock()

	if err := rt.Connect(context.Background()); err != nil {
		if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
			rt.scheduleReconnect()
		}
	}
}

func (rt *RealtimeClient) emitConnected() {
	rt.handlerMu.RLock()
	handlers := append([]func(){}, rt.onConnected...)
	rt.handlerMu.RUnlock()
	for _, h := range handlers {
		go h()
	}
}

func (rt *RealtimeClient) emitDisconnected(reason string) {
	rt.handlerMu.RLock()
	handlers := append([]func(string){}, rt.onDisconnected...)
	rt.handlerMu.RUnlock()
	for _, h := range handlers {
		go h(reason)
	}
}

func (rt *RealtimeClient) emitReconnecting(attempt int, delay time.Duration) {
	rt.handlerMu.RLock()
	handlers := append([]func(int, time.Duration){}, rt.onReconnecting...)
	rt.handlerMu.RUnlock()
	for _, h := range handlers {
		go h(attempt, delay)
	}
}

// emitEvent pushes an outbound event for a locally confirmed mutation. It is
// best-effort: the server is the source of truth either way, affected peers
// just reconcile sooner when the push lands. Failures and a disconnected
// channel are logged, never surfaced to the mutation caller.
func (c *Client) emitEvent(ctx context.Context, event string, audience []string, payload any) {
	rt := c.realtime
	if rt == nil || rt.State() != StateConnected {
		glog.V(2).Infof("push channel down, skipping emit of %s", event)
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		glog.Errorf("failed to marshal %s payload: %v", event, err)
		return
	}
	env := PushEnvelope{
		Event:     event,
		ActorID:   c.userID,
		SessionID: c.sessionID,
		Audience:  audience,
		Payload:   raw,
	}
	if err := rt.Send(ctx, env); err != nil {
		glog.Warningf("failed to emit %s: %v", event, err)
	}
}
