package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mindloop/voicecoach/pkg/coach"
	"github.com/mindloop/voicecoach/pkg/insights"
	"github.com/mindloop/voicecoach/pkg/jsontime"
	"github.com/mindloop/voicecoach/pkg/speech"
)

// Sender is the outbound side of a session channel.
type Sender interface {
	Send(coach.ClientEvent) error
	IsOpen() bool
	Disconnect()
}

// AudioPlayer renders coach audio clips.
type AudioPlayer interface {
	Play(audioBase64 string) (*speech.Playback, error)
	Stop()
}

// SessionEnder ends a session on the server. *coach.Client satisfies
// this.
type SessionEnder interface {
	EndSession(ctx context.Context, sessionID string) error
}

// ErrProcessing is returned by PressTalk while the previous turn is
// still in flight. Capture restarts only from idle, or by cutting off
// coach playback.
var ErrProcessing = errors.New("session: turn in flight")

const (
	defaultSettleDelay   = 500 * time.Millisecond
	defaultCrisisWindow  = 10 * time.Second
	defaultExerciseDelay = 2 * time.Second
)

type controllerConfig struct {
	settleDelay   time.Duration
	crisisWindow  time.Duration
	exerciseDelay time.Duration
	logger        *slog.Logger
	onExercise    func(Exercise)
	ender         SessionEnder
}

// ControllerOption configures a Controller.
type ControllerOption func(*controllerConfig)

// WithSettleDelay sets the pause between releasing talk and reading
// the final transcript, giving the recognizer time to finalize.
func WithSettleDelay(d time.Duration) ControllerOption {
	return func(c *controllerConfig) { c.settleDelay = d }
}

// WithCrisisWindow sets how long the crisis flag stays raised after a
// safety alert.
func WithCrisisWindow(d time.Duration) ControllerOption {
	return func(c *controllerConfig) { c.crisisWindow = d }
}

// WithExerciseDelay sets the pause before a detected exercise is
// surfaced, so it does not cut into the coach's audio.
func WithExerciseDelay(d time.Duration) ControllerOption {
	return func(c *controllerConfig) { c.exerciseDelay = d }
}

// OnExercise registers the handler that presents a guided exercise.
func OnExercise(fn func(Exercise)) ControllerOption {
	return func(c *controllerConfig) { c.onExercise = fn }
}

// WithSessionEnder sets the collaborator used by ConfirmEnd to end the
// session server-side.
func WithSessionEnder(e SessionEnder) ControllerOption {
	return func(c *controllerConfig) { c.ender = e }
}

// WithControllerLogger sets the controller's logger.
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *controllerConfig) { c.logger = l }
}

// Controller is the one place where capture, channel, and playback
// events become store mutations. It drives the voice activity machine
// idle -> listening -> processing -> speaking -> idle.
type Controller struct {
	store      *Store
	sender     Sender
	recognizer speech.Recognizer
	player     AudioPlayer
	config     *controllerConfig
	logger     *slog.Logger

	mu          sync.Mutex
	settleTimer *time.Timer
	captureSeq  int
	crisisTimer *time.Timer
	ended       bool
}

// NewController wires a controller over its collaborators.
func NewController(store *Store, sender Sender, recognizer speech.Recognizer, player AudioPlayer, opts ...ControllerOption) *Controller {
	config := &controllerConfig{
		settleDelay:   defaultSettleDelay,
		crisisWindow:  defaultCrisisWindow,
		exerciseDelay: defaultExerciseDelay,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(config)
	}
	return &Controller{
		store:      store,
		sender:     sender,
		recognizer: recognizer,
		player:     player,
		config:     config,
		logger:     config.logger.With("session_id", store.SessionID()),
	}
}

// PressTalk starts capturing the user. Any coach audio still playing
// is cut off first. A press while the previous turn is still being
// processed is rejected with ErrProcessing.
func (c *Controller) PressTalk() error {
	if !c.recognizer.Supported() {
		return speech.ErrUnsupported
	}
	if c.store.Activity() == ActivityProcessing {
		return ErrProcessing
	}
	c.mu.Lock()
	// A re-press inside the settle window supersedes the pending
	// capture; its transcript must not become a turn.
	c.captureSeq++
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
	c.mu.Unlock()
	c.player.Stop()
	c.recognizer.Reset()
	if err := c.recognizer.Start(); err != nil {
		c.logger.Warn("capture start failed", "error", err)
		return err
	}
	c.store.Apply(SetActivity{ActivityListening})
	return nil
}

// ReleaseTalk stops capturing. After a settle delay the finalized
// transcript is read; a non-empty transcript becomes a user turn and a
// user_speech send, an empty one returns the session to idle.
func (c *Controller) ReleaseTalk() {
	c.recognizer.Stop()
	c.mu.Lock()
	if c.settleTimer != nil {
		c.settleTimer.Stop()
	}
	seq := c.captureSeq
	c.settleTimer = time.AfterFunc(c.config.settleDelay, func() { c.finishCapture(seq) })
	c.mu.Unlock()
}

// finishCapture runs when the settle delay elapses. A stale seq means
// the talk button was pressed again after this timer was armed.
func (c *Controller) finishCapture(seq int) {
	c.mu.Lock()
	if seq != c.captureSeq {
		c.mu.Unlock()
		return
	}
	c.settleTimer = nil
	c.mu.Unlock()
	tr := c.recognizer.Transcript()
	if tr.Empty() {
		c.store.Apply(SetActivity{ActivityIdle})
		return
	}
	c.sendUserTurn(tr.Text(), c.recognizer.Duration().Seconds())
}

// sendUserTurn appends a user turn and sends it as user_speech. A
// closed channel drops the turn with a log; nothing is queued.
func (c *Controller) sendUserTurn(text string, audioSeconds float64) {
	if !c.sender.IsOpen() {
		c.logger.Warn("channel closed, dropping user speech", "chars", len(text))
		c.store.Apply(SetActivity{ActivityIdle})
		return
	}
	c.store.Apply(
		AppendTurn{NewTurn(RoleUser, text)},
		SetActivity{ActivityProcessing},
	)
	if err := c.sender.Send(coach.UserSpeech(text, audioSeconds)); err != nil {
		c.logger.Warn("user speech send failed", "error", err)
		c.store.Apply(SetActivity{ActivityIdle})
	}
}

// HandleEvent processes one inbound channel event. Wire it to the
// channel's OnEvent option.
func (c *Controller) HandleEvent(ev *coach.ServerEvent) {
	switch ev.Type {
	case coach.EventCoachResponse:
		c.handleCoachResponse(ev)
	case coach.EventSafetyAlert:
		c.handleSafetyAlert(ev)
	case coach.EventError:
		c.logger.Error("coach server error", "message", ev.ErrorMessage())
		c.store.Apply(SetActivity{ActivityIdle})
	case coach.EventSessionClosureReady:
		c.store.Apply(SuggestClosure{Suggested: true, Reason: ev.Reason})
	default:
		c.logger.Debug("ignoring event", "type", ev.Type)
	}
}

func (c *Controller) handleCoachResponse(ev *coach.ServerEvent) {
	turn := NewTurn(RoleCoach, ev.Text)
	turn.Emotion = ev.Emotion
	turn.Technique = ev.Technique

	cmds := []Command{
		AppendTurn{turn},
		SetMood{Emotion: ev.Emotion, Technique: ev.Technique},
		SetDecisions{ev.AIDecisions},
	}
	if ev.Emotion != "" {
		cmds = append(cmds, AppendEmotion{insights.Point{
			Time:      jsontime.Now(),
			Emotion:   ev.Emotion,
			Intensity: ev.Intensity,
			Technique: ev.Technique,
		}})
	}
	c.store.Apply(cmds...)

	c.playThenIdle(ev.AudioBase64)

	if ex, ok := DetectExercise(ev.Technique, ev.Text); ok && c.config.onExercise != nil {
		time.AfterFunc(c.config.exerciseDelay, func() { c.config.onExercise(ex) })
	}
}

func (c *Controller) handleSafetyAlert(ev *coach.ServerEvent) {
	c.store.Apply(
		SetCrisis{Active: true, Resources: ev.Resources},
		AppendTurn{NewTurn(RoleCoach, ev.Text)},
	)

	c.mu.Lock()
	if c.crisisTimer != nil {
		c.crisisTimer.Stop()
	}
	c.crisisTimer = time.AfterFunc(c.config.crisisWindow, func() {
		c.store.Apply(SetCrisis{Active: false})
	})
	c.mu.Unlock()

	c.playThenIdle(ev.AudioBase64)
}

// playThenIdle plays a clip if present and returns the session to idle
// when it ends, was stopped, or failed. Playback failures never wedge
// the activity machine.
func (c *Controller) playThenIdle(audioBase64 string) {
	if audioBase64 == "" {
		c.store.Apply(SetActivity{ActivityIdle})
		return
	}
	pb, err := c.player.Play(audioBase64)
	if err != nil {
		c.logger.Warn("playback failed", "error", err)
		c.store.Apply(SetActivity{ActivityIdle})
		return
	}
	c.store.Apply(SetActivity{ActivitySpeaking})
	go func() {
		<-pb.Done()
		if err := pb.Err(); err != nil {
			c.logger.Warn("playback error", "error", err)
		}
		// Only unwind if nothing else moved the machine on, such as
		// the user pressing talk mid-playback.
		if c.store.Activity() == ActivitySpeaking {
			c.store.Apply(SetActivity{ActivityIdle})
		}
	}()
}

// CompleteExercise feeds a finished guided exercise back into the
// conversation as a synthetic user turn.
func (c *Controller) CompleteExercise(ex Exercise) {
	c.sendUserTurn(fmt.Sprintf("I just finished the %s exercise.", ex.Title), 0)
}

// DismissClosure drops the end-of-session suggestion.
func (c *Controller) DismissClosure() {
	c.store.Apply(SuggestClosure{Suggested: false})
}

// End surfaces the session summary. Nothing is torn down; the caller
// shows the summary and either confirms with ConfirmEnd or keeps
// going.
func (c *Controller) End() insights.Summary {
	return c.store.Summary()
}

// ConfirmEnd ends the session for good: tells the server, closes the
// channel, and clears the store. Safe to call once.
func (c *Controller) ConfirmEnd(ctx context.Context) error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return nil
	}
	c.ended = true
	if c.settleTimer != nil {
		c.settleTimer.Stop()
	}
	if c.crisisTimer != nil {
		c.crisisTimer.Stop()
	}
	c.mu.Unlock()

	c.player.Stop()
	c.recognizer.Stop()

	var endErr error
	if c.config.ender != nil {
		if err := c.config.ender.EndSession(ctx, c.store.SessionID()); err != nil {
			endErr = fmt.Errorf("session: end session: %w", err)
		}
	}
	c.sender.Disconnect()
	c.store.Apply(Clear{})
	return endErr
}
