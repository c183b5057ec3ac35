package coachd

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mindloop/voicecoach/pkg/kv"
)

// Options assembles a Server. Zero-value AI fields fall back to the
// scripted implementations so the server runs without credentials.
type Options struct {
	Store       kv.Store
	Logger      *slog.Logger
	Analyzer    Analyzer
	Responder   Responder
	Synthesizer Synthesizer

	// EventBuffer caps the admin event ring. 0 means 500.
	EventBuffer int
}

// Server is the wellness coach reference server: a session REST API,
// one realtime WebSocket per session, and an admin surface streaming
// the AI's cognition events.
type Server struct {
	logger    *slog.Logger
	sessions  *SessionStore
	memory    *MemoryManager
	bus       *Bus
	safety    SafetyEvaluator
	analyzer  Analyzer
	responder Responder
	synth     Synthesizer
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
}

// NewServer wires a server from options.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := NewBus(opts.EventBuffer)
	s := &Server{
		logger:    logger,
		sessions:  NewSessionStore(opts.Store),
		memory:    NewMemoryManager(bus),
		bus:       bus,
		analyzer:  opts.Analyzer,
		responder: opts.Responder,
		synth:     opts.Synthesizer,
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	if s.analyzer == nil {
		s.analyzer = ScriptedAnalyzer{}
	}
	if s.responder == nil {
		s.responder = ScriptedResponder{}
	}
	if s.synth == nil {
		s.synth = SilentSynthesizer{}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/end", s.handleEndSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/sessions/{id}/state", s.handleSessionState)
	mux.HandleFunc("GET /api/admin/sessions", s.handleAdminSessions)
	mux.HandleFunc("GET /api/admin/events", s.handleAdminEvents)
	mux.HandleFunc("GET /ws/admin/events", s.handleAdminStream)
	mux.HandleFunc("GET /ws/{id}", s.handleSession)
	s.mux = mux
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Bus exposes the cognition event bus, mainly for tests and embedding.
func (s *Server) Bus() *Bus { return s.bus }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Context string `json:"context"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}
	rec, err := s.sessions.Create(r.Context(), body.Context)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "create session failed")
		return
	}
	s.logger.Info("session created", "session_id", rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.sessions.End(r.Context(), id)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.memory.Forget(id)
	s.logger.Info("session ended", "session_id", id)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	turns, err := s.sessions.Turns(r.Context(), id)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"turns":      turns,
	})
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"status":     rec.Status,
		"memory":     s.memory.State(id),
	})
}

func (s *Server) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	recs, err := s.sessions.Sessions(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list sessions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": recs})
}

func (s *Server) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.bus.Recent(limit)})
}

// adminReplayCount is how many recent events a newly connected admin
// stream receives before live events.
const adminReplayCount = 20

func (s *Server) handleAdminStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := s.bus.Subscribe()
	defer cancel()

	for _, ev := range s.bus.Recent(adminReplayCount) {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}

	// Reads are drained so close frames get processed; a text "ping"
	// is answered from the write loop to keep writes on one goroutine.
	done := make(chan struct{})
	pings := make(chan struct{}, 1)
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "ping" {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-pings:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("pong")); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	if err == ErrSessionNotFound {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
