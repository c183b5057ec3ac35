package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
)

const (
	// DefaultBaseURL is the session API endpoint of a local server.
	DefaultBaseURL = "http://localhost:8000"

	defaultMaxRetries = 3
)

type clientConfig struct {
	baseURL    string
	wsBaseURL  string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
}

// Option configures a Client.
type Option func(*clientConfig)

// WithBaseURL sets the HTTP endpoint. The WebSocket endpoint is derived
// from it unless WithWSBaseURL is also given.
func WithBaseURL(u string) Option {
	return func(c *clientConfig) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithWSBaseURL overrides the derived WebSocket endpoint.
func WithWSBaseURL(u string) Option {
	return func(c *clientConfig) { c.wsBaseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient sets the HTTP client used for session API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = hc }
}

// WithLogger sets the logger for the client and its channels.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// WithMaxRetries caps retries of retryable session API failures.
func WithMaxRetries(n int) Option {
	return func(c *clientConfig) { c.maxRetries = n }
}

// Client talks to the voicecoach session API.
type Client struct {
	config *clientConfig
}

// NewClient creates a session API client for a local server by default.
func NewClient(opts ...Option) *Client {
	config := &clientConfig{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.wsBaseURL == "" {
		config.wsBaseURL = deriveWSBaseURL(config.baseURL)
	}
	return &Client{config: config}
}

func deriveWSBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

// Session is a coaching session as reported by the session API.
type Session struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	TurnCount int       `json:"turn_count,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// HistoryTurn is one stored exchange of a session.
type HistoryTurn struct {
	TurnID        string    `json:"turn_id"`
	UserMessage   string    `json:"user_message"`
	CoachResponse string    `json:"coach_response"`
	Emotion       string    `json:"emotion,omitempty"`
	Intensity     float64   `json:"intensity,omitempty"`
	Technique     string    `json:"technique,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// CreateSession starts a new coaching session. userContext is optional
// free-text background passed to the coach.
func (c *Client) CreateSession(ctx context.Context, userContext string) (*Session, error) {
	body := map[string]string{}
	if userContext != "" {
		body["context"] = userContext
	}
	var sess Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/sessions", body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession fetches the current status of a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID, nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// EndSession ends a session. Ending an already-ended session is not an
// error.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/end", nil, nil)
}

// History returns the stored turns of a session, oldest first.
func (c *Client) History(ctx context.Context, sessionID string) ([]HistoryTurn, error) {
	var resp struct {
		SessionID string        `json:"session_id"`
		Turns     []HistoryTurn `json:"turns"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID+"/history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Turns, nil
}

// AdminSessions lists every session the server knows about, active and
// ended.
func (c *Client) AdminSessions(ctx context.Context) ([]Session, error) {
	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// AdminEvents returns up to limit recent cognition events, oldest
// first. Events are returned raw so callers can filter or reshape them.
func (c *Client) AdminEvents(ctx context.Context, limit int) ([]json.RawMessage, error) {
	var resp struct {
		Events []json.RawMessage `json:"events"`
	}
	path := fmt.Sprintf("/api/admin/events?limit=%d", limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// AdminStreamURL is the WebSocket URL of the live cognition event
// stream.
func (c *Client) AdminStreamURL() string {
	return c.config.wsBaseURL + "/ws/admin/events"
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	bo := gax.Backoff{
		Initial:    500 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2,
	}
	for attempt := 0; ; attempt++ {
		err := c.doOnce(ctx, method, path, in, out)
		if err == nil {
			return nil
		}
		if apiErr, ok := AsError(err); ok && !apiErr.Retryable() {
			return err
		}
		if attempt >= c.config.maxRetries {
			return err
		}
		c.config.logger.Warn("coach: retrying request",
			"method", method, "path", path, "attempt", attempt+1, "error", err)
		if err := gax.Sleep(ctx, bo.Pause()); err != nil {
			return err
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("coach: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("coach: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.config.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coach: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("coach: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("coach: decode response: %w", err)
		}
	}
	return nil
}

func parseAPIError(status int, data []byte) error {
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	apiErr := &Error{StatusCode: status}
	if json.Unmarshal(data, &payload) == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Detail
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
