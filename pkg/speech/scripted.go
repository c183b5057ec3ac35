package speech

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrUnsupported is returned by Start when capture is unavailable.
var ErrUnsupported = errors.New("speech: capture not supported in this environment")

// Scripted is a Recognizer fed from a list of utterances instead of a
// microphone. Each Start consumes the next utterance, split into
// word-final segments, as if it had been spoken. Used by the CLI's
// scripted session mode and by tests.
type Scripted struct {
	perWord    time.Duration
	lock       sync.Mutex
	utterances []string
	next       int
	capturing  bool
	startedAt  time.Time
	duration   time.Duration
	finals     []string
	interim    string
	available  bool
}

// NewScripted creates a recognizer that replays the given utterances.
// perWord sets the simulated capture duration per word.
func NewScripted(utterances []string, perWord time.Duration) *Scripted {
	return &Scripted{perWord: perWord, utterances: utterances, available: true}
}

// Append queues more utterances for later Starts. The interactive CLI
// feeds typed lines through here one at a time.
func (s *Scripted) Append(utterances ...string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.utterances = append(s.utterances, utterances...)
}

// SetSupported toggles environment support, for exercising fallbacks.
func (s *Scripted) SetSupported(ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.available = ok
}

func (s *Scripted) Supported() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.available
}

func (s *Scripted) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.available {
		return ErrUnsupported
	}
	if s.capturing {
		return nil
	}
	s.capturing = true
	s.startedAt = time.Now()
	if s.next < len(s.utterances) {
		s.finals = append(s.finals, s.utterances[s.next])
		s.next++
	}
	return nil
}

func (s *Scripted) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.capturing {
		return
	}
	s.capturing = false
	s.duration = s.simulatedDuration()
	s.interim = ""
}

func (s *Scripted) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.finals = nil
	s.interim = ""
	s.duration = 0
}

func (s *Scripted) Transcript() Transcript {
	s.lock.Lock()
	defer s.lock.Unlock()
	return Transcript{Final: strings.Join(s.finals, " "), Interim: s.interim}
}

func (s *Scripted) Duration() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.capturing {
		return time.Since(s.startedAt)
	}
	return s.duration
}

// simulatedDuration charges perWord for every captured word so scripted
// sessions report plausible audio lengths. Falls back to wall time.
func (s *Scripted) simulatedDuration() time.Duration {
	if s.perWord <= 0 {
		return time.Since(s.startedAt)
	}
	words := 0
	for _, f := range s.finals {
		words += len(strings.Fields(f))
	}
	if words == 0 {
		return 0
	}
	return time.Duration(words) * s.perWord
}
