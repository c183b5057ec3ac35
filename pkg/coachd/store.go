package coachd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mindloop/voicecoach/pkg/kv"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("coachd: session not found")

// SessionRecord is a persisted coaching session.
type SessionRecord struct {
	ID        string    `msgpack:"id" json:"session_id"`
	Status    string    `msgpack:"status" json:"status"`
	Context   string    `msgpack:"context,omitempty" json:"context,omitempty"`
	CreatedAt time.Time `msgpack:"created_at" json:"created_at"`
	EndedAt   time.Time `msgpack:"ended_at,omitempty" json:"ended_at,omitzero"`
	TurnCount int       `msgpack:"turn_count" json:"turn_count"`
}

// TurnRecord is one persisted exchange.
type TurnRecord struct {
	TurnID        string    `msgpack:"turn_id" json:"turn_id"`
	SessionID     string    `msgpack:"session_id" json:"-"`
	Seq           int       `msgpack:"seq" json:"-"`
	UserMessage   string    `msgpack:"user_message" json:"user_message"`
	CoachResponse string    `msgpack:"coach_response" json:"coach_response"`
	Emotion       string    `msgpack:"emotion,omitempty" json:"emotion,omitempty"`
	Intensity     float64   `msgpack:"intensity,omitempty" json:"intensity,omitempty"`
	Technique     string    `msgpack:"technique,omitempty" json:"technique,omitempty"`
	CreatedAt     time.Time `msgpack:"created_at" json:"timestamp"`
}

// SessionStore persists sessions and turns in a kv store. Records are
// msgpack-encoded; keys are ["session", id] and ["turn", id, seq].
type SessionStore struct {
	db kv.Store
}

// NewSessionStore wraps a kv store.
func NewSessionStore(db kv.Store) *SessionStore {
	return &SessionStore{db: db}
}

func sessionKey(id string) kv.Key { return kv.Key{"session", id} }

func turnKey(sessionID string, seq int) kv.Key {
	return kv.Key{"turn", sessionID, fmt.Sprintf("%06d", seq)}
}

// Create starts a new session and returns its record.
func (s *SessionStore) Create(ctx context.Context, userContext string) (SessionRecord, error) {
	rec := SessionRecord{
		ID:        uuid.NewString(),
		Status:    "active",
		Context:   userContext,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.put(ctx, rec); err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

// Get returns a session by id.
func (s *SessionStore) Get(ctx context.Context, id string) (SessionRecord, error) {
	data, err := s.db.Get(ctx, sessionKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return SessionRecord{}, ErrSessionNotFound
	}
	if err != nil {
		return SessionRecord{}, err
	}
	var rec SessionRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return SessionRecord{}, fmt.Errorf("coachd: decode session record: %w", err)
	}
	return rec, nil
}

// End marks a session ended. Ending an ended session is a no-op.
func (s *SessionStore) End(ctx context.Context, id string) (SessionRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return SessionRecord{}, err
	}
	if rec.Status == "ended" {
		return rec, nil
	}
	rec.Status = "ended"
	rec.EndedAt = time.Now().UTC()
	if err := s.put(ctx, rec); err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

// AppendTurn persists one exchange and bumps the session's turn count.
func (s *SessionStore) AppendTurn(ctx context.Context, sessionID string, turn TurnRecord) (TurnRecord, error) {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return TurnRecord{}, err
	}
	rec.TurnCount++

	turn.TurnID = uuid.NewString()
	turn.SessionID = sessionID
	turn.Seq = rec.TurnCount
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	turnData, err := msgpack.Marshal(turn)
	if err != nil {
		return TurnRecord{}, fmt.Errorf("coachd: encode turn record: %w", err)
	}
	recData, err := msgpack.Marshal(rec)
	if err != nil {
		return TurnRecord{}, fmt.Errorf("coachd: encode session record: %w", err)
	}
	err = s.db.BatchSet(ctx, []kv.Entry{
		{Key: turnKey(sessionID, turn.Seq), Value: turnData},
		{Key: sessionKey(sessionID), Value: recData},
	})
	if err != nil {
		return TurnRecord{}, err
	}
	return turn, nil
}

// Turns returns a session's exchanges, oldest first.
func (s *SessionStore) Turns(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	var out []TurnRecord
	for entry, err := range s.db.List(ctx, kv.Key{"turn", sessionID}) {
		if err != nil {
			return nil, err
		}
		var turn TurnRecord
		if err := msgpack.Unmarshal(entry.Value, &turn); err != nil {
			return nil, fmt.Errorf("coachd: decode turn record: %w", err)
		}
		out = append(out, turn)
	}
	return out, nil
}

// Sessions lists all session records, unordered.
func (s *SessionStore) Sessions(ctx context.Context) ([]SessionRecord, error) {
	var out []SessionRecord
	for entry, err := range s.db.List(ctx, kv.Key{"session"}) {
		if err != nil {
			return nil, err
		}
		var rec SessionRecord
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return nil, fmt.Errorf("coachd: decode session record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Purge removes a session and all its turns.
func (s *SessionStore) Purge(ctx context.Context, sessionID string) error {
	if err := s.db.Delete(ctx, sessionKey(sessionID)); err != nil {
		return err
	}
	return s.db.DeletePrefix(ctx, kv.Key{"turn", sessionID})
}

func (s *SessionStore) put(ctx context.Context, rec SessionRecord) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("coachd: encode session record: %w", err)
	}
	return s.db.Set(ctx, sessionKey(rec.ID), data)
}
