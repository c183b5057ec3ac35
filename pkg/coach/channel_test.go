package coach

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

func wsClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return NewClient(WithBaseURL(srv.URL), WithWSBaseURL("ws"+strings.TrimPrefix(srv.URL, "http")))
}

func waitState(t *testing.T, states <-chan ChannelState, want ChannelState) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func TestChannel_WelcomeOnceThenSpeech(t *testing.T) {
	received := make(chan ClientEvent, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var ev ClientEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			received <- ev
			if ev.Type == EventUserSpeech {
				conn.WriteJSON(map[string]any{
					"type":    EventCoachResponse,
					"text":    "I hear you.",
					"emotion": "calm",
				})
			}
		}
	}))
	defer srv.Close()

	events := make(chan *ServerEvent, 8)
	ch := wsClient(t, srv).Channel("s1", OnEvent(func(ev *ServerEvent) { events <- ev }))
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ch.Disconnect()

	select {
	case ev := <-received:
		if ev.Type != EventRequestWelcome {
			t.Fatalf("first event = %q, want %q", ev.Type, EventRequestWelcome)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("welcome request never arrived")
	}

	if err := ch.Send(UserSpeech("hello", 1.2)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Type != EventCoachResponse || ev.Text != "I hear you." {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("coach response never arrived")
	}
}

func TestChannel_ReconnectsOnAbnormalDrop(t *testing.T) {
	var dials atomic.Int32
	received := make(chan ClientEvent, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			// Drop the first connection without a close handshake.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			var ev ClientEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			received <- ev
		}
	}))
	defer srv.Close()

	states := make(chan ChannelState, 16)
	ch := wsClient(t, srv).Channel("s1",
		WithReconnectBackoff(10*time.Millisecond, 100*time.Millisecond),
		OnState(func(s ChannelState) { states <- s }))
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ch.Disconnect()

	waitState(t, states, ChannelConnecting)
	waitState(t, states, ChannelOpen)
	if n := dials.Load(); n != 2 {
		t.Fatalf("dials = %d, want 2", n)
	}

	// The welcome request is not repeated after a reconnect, and the
	// reopened channel carries traffic.
	if err := ch.Send(UserSpeech("still here", 0.8)); err != nil {
		t.Fatalf("Send after reconnect: %v", err)
	}
	select {
	case ev := <-received:
		if ev.Type != EventUserSpeech {
			t.Fatalf("event after reconnect = %q, want %q", ev.Type, EventUserSpeech)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("speech never arrived after reconnect")
	}
}

func TestChannel_NormalCloseIsFinal(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}))
	defer srv.Close()

	states := make(chan ChannelState, 16)
	ch := wsClient(t, srv).Channel("s1",
		WithReconnectBackoff(10*time.Millisecond, 100*time.Millisecond),
		OnState(func(s ChannelState) { states <- s }))
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, states, ChannelClosed)

	time.Sleep(50 * time.Millisecond)
	if n := dials.Load(); n != 1 {
		t.Fatalf("dials = %d, want 1 (no reconnect after normal close)", n)
	}
	if err := ch.Send(Ping()); err != ErrNotConnected {
		t.Fatalf("Send on closed channel = %v, want ErrNotConnected", err)
	}
}

func TestChannel_GivesUpAfterMaxAttempts(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if dials.Add(1) > 1 {
			// Refuse the upgrade so every redial fails.
			http.Error(w, "gone", http.StatusGone)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	states := make(chan ChannelState, 16)
	ch := wsClient(t, srv).Channel("s1",
		WithReconnectBackoff(5*time.Millisecond, 20*time.Millisecond),
		WithMaxReconnectAttempts(3),
		OnState(func(s ChannelState) { states <- s }))
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, states, ChannelClosed)

	// Initial dial plus three failed redials.
	if n := dials.Load(); n != 4 {
		t.Fatalf("dials = %d, want 4", n)
	}
}

func TestChannel_RedialBackoffSchedule(t *testing.T) {
	config := &channelConfig{
		reconnectBase: defaultReconnectBase,
		reconnectMax:  defaultReconnectMax,
	}
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		if got := config.redialDelay(i + 1); got != w {
			t.Errorf("redialDelay(%d) = %v, want %v", i+1, got, w)
		}
	}

	// The cap also absorbs shift overflow on absurd attempt counts.
	if got := config.redialDelay(80); got != defaultReconnectMax {
		t.Errorf("redialDelay(80) = %v, want %v", got, defaultReconnectMax)
	}

	short := &channelConfig{reconnectBase: 10 * time.Millisecond, reconnectMax: 35 * time.Millisecond}
	for i, w := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 35 * time.Millisecond} {
		if got := short.redialDelay(i + 1); got != w {
			t.Errorf("short redialDelay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestChannel_HeartbeatPongSwallowed(t *testing.T) {
	pings := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var ev ClientEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			if ev.Type == EventPing {
				pings <- struct{}{}
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
			}
		}
	}))
	defer srv.Close()

	events := make(chan *ServerEvent, 8)
	ch := wsClient(t, srv).Channel("s1",
		WithHeartbeatInterval(20*time.Millisecond),
		OnEvent(func(ev *ServerEvent) { events <- ev }))
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ch.Disconnect()

	select {
	case <-pings:
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeat ping never arrived")
	}
	select {
	case ev := <-events:
		t.Fatalf("pong leaked to handler: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelState_JSONStrings(t *testing.T) {
	for s, want := range map[ChannelState]string{
		ChannelConnecting: "connecting",
		ChannelOpen:       "open",
		ChannelClosed:     "closed",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
	if _, err := json.Marshal(ChannelOpen); err != nil {
		t.Fatal(err)
	}
}
