package session

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/mindloop/voicecoach/pkg/coach"
	"github.com/mindloop/voicecoach/pkg/insights"
	"github.com/mindloop/voicecoach/pkg/jsontime"
)

// Role is the speaker of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleCoach Role = "coach"
)

// Turn is one utterance in the conversation. Immutable once appended;
// insertion order is conversational order.
type Turn struct {
	ID        string         `json:"turn_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Emotion   string         `json:"emotion,omitempty"`
	Technique string         `json:"technique,omitempty"`
	Time      jsontime.Milli `json:"timestamp"`
}

// NewTurn builds a turn with a fresh id and the current time.
func NewTurn(role Role, content string) Turn {
	return Turn{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		Time:    jsontime.Now(),
	}
}

// State is everything the client knows about one session. It is owned
// by a Store and only mutated through commands.
type State struct {
	SessionID string        `json:"session_id"`
	Activity  VoiceActivity `json:"activity"`

	Turns    []Turn           `json:"turns"`
	Emotions []insights.Point `json:"emotions"`

	// What the AI just decided, overwritten each turn. Not a log.
	Decisions *coach.AIDecisions `json:"decisions,omitempty"`

	CurrentEmotion   string `json:"current_emotion,omitempty"`
	CurrentTechnique string `json:"current_technique,omitempty"`

	Crisis          bool             `json:"crisis"`
	CrisisResources []coach.Resource `json:"crisis_resources,omitempty"`

	ClosureSuggested bool   `json:"closure_suggested"`
	ClosureReason    string `json:"closure_reason,omitempty"`
}

// Command is one store mutation. All state changes funnel through
// Store.Apply so transitions stay serialized and observable.
type Command interface {
	apply(*State)
}

// AppendTurn adds a turn to the history.
type AppendTurn struct{ Turn Turn }

func (c AppendTurn) apply(s *State) { s.Turns = append(s.Turns, c.Turn) }

// SetActivity moves the voice pipeline to a new activity.
type SetActivity struct{ Activity VoiceActivity }

func (c SetActivity) apply(s *State) { s.Activity = c.Activity }

// AppendEmotion records one labeled emotion observation.
type AppendEmotion struct{ Point insights.Point }

func (c AppendEmotion) apply(s *State) { s.Emotions = append(s.Emotions, c.Point) }

// SetMood updates the current emotion and technique labels.
type SetMood struct{ Emotion, Technique string }

func (c SetMood) apply(s *State) {
	if c.Emotion != "" {
		s.CurrentEmotion = c.Emotion
	}
	if c.Technique != "" {
		s.CurrentTechnique = c.Technique
	}
}

// SetDecisions overwrites the latest AI decision snapshot.
type SetDecisions struct{ Decisions *coach.AIDecisions }

func (c SetDecisions) apply(s *State) {
	if c.Decisions != nil {
		s.Decisions = c.Decisions
	}
}

// SetCrisis raises or clears the crisis flag and its resources.
type SetCrisis struct {
	Active    bool
	Resources []coach.Resource
}

func (c SetCrisis) apply(s *State) {
	s.Crisis = c.Active
	if c.Active {
		s.CrisisResources = c.Resources
	} else {
		s.CrisisResources = nil
	}
}

// SuggestClosure raises or dismisses the end-of-session suggestion.
type SuggestClosure struct {
	Suggested bool
	Reason    string
}

func (c SuggestClosure) apply(s *State) {
	s.ClosureSuggested = c.Suggested
	s.ClosureReason = c.Reason
	if !c.Suggested {
		s.ClosureReason = ""
	}
}

// Clear resets everything except the session id.
type Clear struct{}

func (Clear) apply(s *State) {
	*s = State{SessionID: s.SessionID}
}

// Store holds the session state behind a reducer-style entry point.
// Listeners observe each applied batch with a consistent snapshot.
type Store struct {
	mu        sync.RWMutex
	state     State
	listeners []func(State)
}

// NewStore creates a store for one session.
func NewStore(sessionID string) *Store {
	return &Store{state: State{SessionID: sessionID}}
}

// Apply runs the commands in order as one atomic batch, then notifies
// listeners with the resulting snapshot.
func (s *Store) Apply(cmds ...Command) {
	s.mu.Lock()
	for _, cmd := range cmds {
		cmd.apply(&s.state)
	}
	snap := s.snapshotLocked()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// Subscribe registers a listener for state changes. Listeners run
// synchronously on the applying goroutine, after the batch commits.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns a copy of the current state. Slices are cloned so
// callers cannot reach back into the store.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	snap := s.state
	snap.Turns = slices.Clone(s.state.Turns)
	snap.Emotions = slices.Clone(s.state.Emotions)
	snap.CrisisResources = slices.Clone(s.state.CrisisResources)
	return snap
}

// Activity returns the current voice activity.
func (s *Store) Activity() VoiceActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Activity
}

// SessionID returns the session this store belongs to.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SessionID
}

// Summary derives the end-of-session analytics from the current state.
func (s *Store) Summary() insights.Summary {
	snap := s.Snapshot()
	var userTexts, coachTexts []string
	for _, t := range snap.Turns {
		switch t.Role {
		case RoleUser:
			userTexts = append(userTexts, t.Content)
		case RoleCoach:
			coachTexts = append(coachTexts, t.Content)
		}
	}
	return insights.Summarize(snap.Emotions, userTexts, coachTexts)
}
