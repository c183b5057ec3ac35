package coach

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ChannelState is the lifecycle state of a session channel.
type ChannelState int

const (
	// ChannelConnecting means no socket is open; a dial is in progress
	// or a reconnect is scheduled.
	ChannelConnecting ChannelState = iota
	// ChannelOpen means events flow in both directions.
	ChannelOpen
	// ChannelClosed is terminal: the caller disconnected, the server
	// closed the session normally, or reconnects ran out.
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelConnecting:
		return "connecting"
	case ChannelOpen:
		return "open"
	case ChannelClosed:
		return "closed"
	default:
		return fmt.Sprintf("ChannelState(%d)", int(s))
	}
}

const (
	defaultHeartbeatInterval    = 30 * time.Second
	defaultReconnectBase        = time.Second
	defaultReconnectMax         = 30 * time.Second
	defaultMaxReconnectAttempts = 5
)

type channelConfig struct {
	heartbeatInterval time.Duration
	reconnectBase     time.Duration
	reconnectMax      time.Duration
	maxAttempts       int
	dialer            *websocket.Dialer
	onEvent           func(*ServerEvent)
	onState           func(ChannelState)
}

// ChannelOption configures a Channel.
type ChannelOption func(*channelConfig)

// OnEvent registers the handler for inbound server events. Heartbeat
// pongs are consumed by the channel and not delivered. The handler runs
// on the read loop goroutine; it must not block for long.
func OnEvent(fn func(*ServerEvent)) ChannelOption {
	return func(c *channelConfig) { c.onEvent = fn }
}

// OnState registers a handler for channel state transitions.
func OnState(fn func(ChannelState)) ChannelOption {
	return func(c *channelConfig) { c.onState = fn }
}

// WithHeartbeatInterval sets the ping cadence on an open channel.
func WithHeartbeatInterval(d time.Duration) ChannelOption {
	return func(c *channelConfig) { c.heartbeatInterval = d }
}

// WithReconnectBackoff sets the initial reconnect delay and its cap.
// The delay doubles after each failed attempt.
func WithReconnectBackoff(base, max time.Duration) ChannelOption {
	return func(c *channelConfig) {
		c.reconnectBase = base
		c.reconnectMax = max
	}
}

// WithMaxReconnectAttempts caps consecutive reconnect attempts. The
// counter resets when a connection opens successfully.
func WithMaxReconnectAttempts(n int) ChannelOption {
	return func(c *channelConfig) { c.maxAttempts = n }
}

// WithDialer overrides the WebSocket dialer.
func WithDialer(d *websocket.Dialer) ChannelOption {
	return func(c *channelConfig) { c.dialer = d }
}

// Channel is one realtime session connection. It dials the session's
// WebSocket endpoint, keeps it alive with heartbeats, and redials with
// exponential backoff when the connection drops unexpectedly. A normal
// closure (code 1000) from either side is final.
type Channel struct {
	client    *Client
	sessionID string
	config    *channelConfig
	logger    *slog.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	state         ChannelState
	closed        bool // Disconnect was called
	attempts      int  // consecutive failed reconnects
	welcomed      bool // request_welcome sent for this session
	redialTimer   *time.Timer
	heartbeatStop chan struct{}
}

// Channel creates a channel for a session. Connect must be called
// before events flow.
func (c *Client) Channel(sessionID string, opts ...ChannelOption) *Channel {
	config := &channelConfig{
		heartbeatInterval: defaultHeartbeatInterval,
		reconnectBase:     defaultReconnectBase,
		reconnectMax:      defaultReconnectMax,
		maxAttempts:       defaultMaxReconnectAttempts,
		dialer:            websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(config)
	}
	return &Channel{
		client:    c,
		sessionID: sessionID,
		config:    config,
		logger:    c.config.logger.With("session_id", sessionID),
		state:     ChannelConnecting,
	}
}

// URL is the WebSocket endpoint this channel dials.
func (ch *Channel) URL() string {
	return ch.client.config.wsBaseURL + "/ws/" + ch.sessionID
}

// Connect dials the session endpoint. On the first successful open of
// the session it requests a spoken welcome. A dial failure here is
// returned to the caller; automatic redials only follow unexpected
// drops of an established connection.
func (ch *Channel) Connect(ctx context.Context) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return ErrNotConnected
	}
	if ch.conn != nil {
		ch.mu.Unlock()
		return nil
	}
	ch.mu.Unlock()

	conn, _, err := ch.config.dialer.DialContext(ctx, ch.URL(), nil)
	if err != nil {
		return fmt.Errorf("coach: dial %s: %w", ch.URL(), err)
	}
	ch.adopt(conn)
	return nil
}

// adopt installs an open connection and starts its read loop and
// heartbeat. Also sends the one-time welcome request.
func (ch *Channel) adopt(conn *websocket.Conn) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		conn.Close()
		return
	}
	ch.conn = conn
	ch.attempts = 0
	ch.heartbeatStop = make(chan struct{})
	wantWelcome := !ch.welcomed
	ch.welcomed = true
	stop := ch.heartbeatStop
	ch.setStateLocked(ChannelOpen)
	ch.mu.Unlock()

	go ch.readLoop(conn)
	go ch.heartbeat(stop)

	if wantWelcome {
		if err := ch.Send(RequestWelcome()); err != nil {
			ch.logger.Warn("coach: welcome request failed", "error", err)
		}
	}
}

// Send writes one event to the channel. If the channel is not open the
// event is dropped and ErrNotConnected is returned.
func (ch *Channel) Send(ev ClientEvent) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state != ChannelOpen || ch.conn == nil {
		return ErrNotConnected
	}
	if err := ch.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("coach: send %s: %w", ev.Type, err)
	}
	return nil
}

// IsOpen reports whether events can be sent right now.
func (ch *Channel) IsOpen() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state == ChannelOpen
}

// State returns the current channel state.
func (ch *Channel) State() ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Disconnect closes the channel for good. It sends a normal closure to
// the server, cancels any pending reconnect, and moves the channel to
// ChannelClosed. Safe to call more than once.
func (ch *Channel) Disconnect() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	if ch.redialTimer != nil {
		ch.redialTimer.Stop()
		ch.redialTimer = nil
	}
	ch.stopHeartbeatLocked()
	if ch.conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		ch.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		ch.conn.Close()
		ch.conn = nil
	}
	ch.setStateLocked(ChannelClosed)
	ch.mu.Unlock()
}

func (ch *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			ch.handleReadError(conn, err)
			return
		}
		ev, perr := ParseServerEvent(data)
		if perr != nil {
			ch.logger.Warn("coach: bad server event", "error", perr)
			continue
		}
		if ev.Type == EventPong {
			continue
		}
		if ch.config.onEvent != nil {
			ch.config.onEvent(ev)
		}
	}
}

func (ch *Channel) handleReadError(conn *websocket.Conn, err error) {
	ch.mu.Lock()
	if ch.conn != conn {
		// A newer connection replaced this one.
		ch.mu.Unlock()
		return
	}
	ch.stopHeartbeatLocked()
	ch.conn.Close()
	ch.conn = nil
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		// Server ended the session cleanly. Do not reconnect.
		ch.setStateLocked(ChannelClosed)
		ch.mu.Unlock()
		return
	}
	ch.logger.Warn("coach: connection lost", "error", err)
	ch.setStateLocked(ChannelConnecting)
	ch.scheduleRedialLocked()
	ch.mu.Unlock()
}

// scheduleRedialLocked arms the next reconnect attempt, or gives up
// when attempts are exhausted. Caller holds ch.mu.
func (ch *Channel) scheduleRedialLocked() {
	if ch.attempts >= ch.config.maxAttempts {
		ch.logger.Warn("coach: reconnect attempts exhausted", "attempts", ch.attempts)
		ch.setStateLocked(ChannelClosed)
		return
	}
	ch.attempts++
	delay := ch.config.redialDelay(ch.attempts)
	ch.logger.Info("coach: reconnecting", "attempt", ch.attempts, "delay", delay)
	ch.redialTimer = time.AfterFunc(delay, ch.redial)
}

// redialDelay is the backoff before reconnect attempt n (1-based): the
// base delay doubled per prior attempt, clamped to the cap.
func (c *channelConfig) redialDelay(attempt int) time.Duration {
	delay := c.reconnectBase << uint(attempt-1)
	if delay > c.reconnectMax || delay <= 0 {
		delay = c.reconnectMax
	}
	return delay
}

func (ch *Channel) redial() {
	ch.mu.Lock()
	if ch.closed || ch.state == ChannelClosed {
		ch.mu.Unlock()
		return
	}
	ch.mu.Unlock()

	conn, _, err := ch.config.dialer.Dial(ch.URL(), nil)
	if err != nil {
		ch.logger.Warn("coach: reconnect failed", "error", err)
		ch.mu.Lock()
		if !ch.closed {
			ch.scheduleRedialLocked()
		}
		ch.mu.Unlock()
		return
	}
	ch.adopt(conn)
}

func (ch *Channel) heartbeat(stop chan struct{}) {
	ticker := time.NewTicker(ch.config.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := ch.Send(Ping()); err != nil {
				return
			}
		}
	}
}

func (ch *Channel) stopHeartbeatLocked() {
	if ch.heartbeatStop != nil {
		close(ch.heartbeatStop)
		ch.heartbeatStop = nil
	}
}

// setStateLocked updates state and fires the callback. Caller holds
// ch.mu; the callback runs async so handlers may call back into the
// channel.
func (ch *Channel) setStateLocked(s ChannelState) {
	if ch.state == s {
		return
	}
	ch.state = s
	if ch.config.onState != nil {
		go ch.config.onState(s)
	}
}
