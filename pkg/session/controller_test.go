package session

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/mindloop/voicecoach/pkg/coach"
	"github.com/mindloop/voicecoach/pkg/speech"
)

type fakeSender struct {
	mu           sync.Mutex
	open         bool
	sent         []coach.ClientEvent
	disconnected bool
}

func (f *fakeSender) Send(ev coach.ClientEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return coach.ErrNotConnected
	}
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeSender) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeSender) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.disconnected = true
}

func (f *fakeSender) events() []coach.ClientEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]coach.ClientEvent, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeEnder struct {
	mu    sync.Mutex
	ended []string
}

func (f *fakeEnder) EndSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, id)
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestController(t *testing.T, utterances []string, opts ...ControllerOption) (*Controller, *Store, *fakeSender) {
	t.Helper()
	store := NewStore("s1")
	sender := &fakeSender{open: true}
	rec := speech.NewScripted(utterances, 200*time.Millisecond)
	player := speech.NewPlayer(speech.DiscardSink)
	opts = append([]ControllerOption{WithSettleDelay(5 * time.Millisecond)}, opts...)
	return NewController(store, sender, rec, player, opts...), store, sender
}

func TestController_TalkFlow(t *testing.T) {
	ctrl, store, sender := newTestController(t, []string{"I feel anxious about work"})

	if err := ctrl.PressTalk(); err != nil {
		t.Fatalf("PressTalk: %v", err)
	}
	if store.Activity() != ActivityListening {
		t.Fatalf("activity = %v, want listening", store.Activity())
	}

	ctrl.ReleaseTalk()
	waitFor(t, "processing state", func() bool { return store.Activity() == ActivityProcessing })

	snap := store.Snapshot()
	if len(snap.Turns) != 1 || snap.Turns[0].Role != RoleUser {
		t.Fatalf("turns = %+v", snap.Turns)
	}
	if snap.Turns[0].Content != "I feel anxious about work" {
		t.Fatalf("content = %q", snap.Turns[0].Content)
	}

	sent := sender.events()
	if len(sent) != 1 || sent[0].Type != coach.EventUserSpeech {
		t.Fatalf("sent = %+v", sent)
	}
	if sent[0].AudioDuration <= 0 {
		t.Fatalf("audio_duration = %v, want positive", sent[0].AudioDuration)
	}
}

func TestController_EmptyTranscriptReturnsToIdle(t *testing.T) {
	ctrl, store, sender := newTestController(t, nil)

	if err := ctrl.PressTalk(); err != nil {
		t.Fatalf("PressTalk: %v", err)
	}
	ctrl.ReleaseTalk()
	waitFor(t, "idle state", func() bool { return store.Activity() == ActivityIdle })

	if n := len(store.Snapshot().Turns); n != 0 {
		t.Fatalf("turns = %d, want 0", n)
	}
	if n := len(sender.events()); n != 0 {
		t.Fatalf("sent = %d events, want 0", n)
	}
}

func TestController_SpeechDroppedWhileDisconnected(t *testing.T) {
	ctrl, store, sender := newTestController(t, []string{"anyone there"})
	sender.mu.Lock()
	sender.open = false
	sender.mu.Unlock()

	if err := ctrl.PressTalk(); err != nil {
		t.Fatalf("PressTalk: %v", err)
	}
	ctrl.ReleaseTalk()
	waitFor(t, "idle state", func() bool { return store.Activity() == ActivityIdle })

	if n := len(store.Snapshot().Turns); n != 0 {
		t.Fatalf("turns = %d, want 0 when channel closed", n)
	}
}

func TestController_RepressInsideSettleWindow(t *testing.T) {
	ctrl, store, sender := newTestController(t, []string{"never mind", "I could use some help"},
		WithSettleDelay(60*time.Millisecond))

	if err := ctrl.PressTalk(); err != nil {
		t.Fatalf("PressTalk: %v", err)
	}
	ctrl.ReleaseTalk()
	time.Sleep(15 * time.Millisecond)

	// Pressing again before the settle delay elapses discards the
	// first capture instead of letting it become a turn.
	if err := ctrl.PressTalk(); err != nil {
		t.Fatalf("second PressTalk: %v", err)
	}
	if store.Activity() != ActivityListening {
		t.Fatalf("activity = %v, want listening", store.Activity())
	}
	ctrl.ReleaseTalk()
	waitFor(t, "processing state", func() bool { return store.Activity() == ActivityProcessing })

	// Long enough for the superseded timer to have fired if it were
	// still armed.
	time.Sleep(80 * time.Millisecond)

	snap := store.Snapshot()
	if len(snap.Turns) != 1 || snap.Turns[0].Role != RoleUser {
		t.Fatalf("turns = %+v, want exactly one user turn", snap.Turns)
	}
	if snap.Turns[0].Content != "I could use some help" {
		t.Fatalf("content = %q, want the second utterance", snap.Turns[0].Content)
	}
	if n := len(sender.events()); n != 1 {
		t.Fatalf("sent %d events, want 1", n)
	}
}

func TestController_PressRejectedWhileProcessing(t *testing.T) {
	ctrl, store, sender := newTestController(t, []string{"I keep replaying the argument"})

	if err := ctrl.PressTalk(); err != nil {
		t.Fatalf("PressTalk: %v", err)
	}
	ctrl.ReleaseTalk()
	waitFor(t, "processing state", func() bool { return store.Activity() == ActivityProcessing })

	if err := ctrl.PressTalk(); err != ErrProcessing {
		t.Fatalf("PressTalk = %v, want ErrProcessing", err)
	}
	if store.Activity() != ActivityProcessing {
		t.Fatalf("activity = %v, want processing unchanged", store.Activity())
	}
	if n := len(sender.events()); n != 1 {
		t.Fatalf("sent %d events, want 1", n)
	}
}

func TestController_UnsupportedCapture(t *testing.T) {
	store := NewStore("s1")
	sender := &fakeSender{open: true}
	rec := speech.NewScripted(nil, 0)
	rec.SetSupported(false)
	ctrl := NewController(store, sender, rec, speech.NewPlayer(speech.DiscardSink))

	if err := ctrl.PressTalk(); err != speech.ErrUnsupported {
		t.Fatalf("PressTalk = %v, want ErrUnsupported", err)
	}
	if store.Activity() != ActivityIdle {
		t.Fatalf("activity = %v, want idle", store.Activity())
	}
}

func TestController_CoachResponse(t *testing.T) {
	ctrl, store, _ := newTestController(t, nil)

	audio := base64.StdEncoding.EncodeToString([]byte("pcm"))
	ctrl.HandleEvent(&coach.ServerEvent{
		Type:        coach.EventCoachResponse,
		Text:        "That sounds exhausting.",
		AudioBase64: audio,
		Emotion:     "sadness",
		Technique:   "validation",
		Intensity:   0.8,
		AIDecisions: &coach.AIDecisions{
			EmotionAnalysis: &coach.EmotionAnalysis{Emotion: "sadness", Intensity: 0.8},
		},
	})

	waitFor(t, "idle after playback", func() bool { return store.Activity() == ActivityIdle })

	snap := store.Snapshot()
	if len(snap.Turns) != 1 || snap.Turns[0].Role != RoleCoach {
		t.Fatalf("turns = %+v", snap.Turns)
	}
	if snap.Turns[0].Emotion != "sadness" || snap.Turns[0].Technique != "validation" {
		t.Fatalf("turn labels = %q/%q", snap.Turns[0].Emotion, snap.Turns[0].Technique)
	}
	if len(snap.Emotions) != 1 || snap.Emotions[0].Intensity != 0.8 {
		t.Fatalf("emotions = %+v", snap.Emotions)
	}
	if snap.CurrentEmotion != "sadness" || snap.Decisions == nil {
		t.Fatalf("mood/decisions not applied: %+v", snap)
	}
}

func TestController_EmotionHistoryTracksLabeledResponses(t *testing.T) {
	ctrl, store, _ := newTestController(t, nil)

	emotions := []string{"anxiety", "", "sadness", "calm", ""}
	for _, e := range emotions {
		ctrl.HandleEvent(&coach.ServerEvent{Type: coach.EventCoachResponse, Text: "mm", Emotion: e})
	}

	snap := store.Snapshot()
	if len(snap.Emotions) != 3 {
		t.Fatalf("emotion points = %d, want 3 (one per labeled response)", len(snap.Emotions))
	}
	want := []string{"anxiety", "sadness", "calm"}
	for i, p := range snap.Emotions {
		if p.Emotion != want[i] {
			t.Fatalf("emotion[%d] = %q, want %q (arrival order)", i, p.Emotion, want[i])
		}
	}
	if len(snap.Turns) != 5 {
		t.Fatalf("turns = %d, want 5", len(snap.Turns))
	}
}

func TestController_SafetyAlertCrisisWindow(t *testing.T) {
	ctrl, store, _ := newTestController(t, nil, WithCrisisWindow(40*time.Millisecond))

	ctrl.HandleEvent(&coach.ServerEvent{
		Type:      coach.EventSafetyAlert,
		Text:      "I'm really glad you told me.",
		Resources: []coach.Resource{{Name: "988 Lifeline", Phone: "988"}},
	})

	snap := store.Snapshot()
	if !snap.Crisis || len(snap.CrisisResources) != 1 {
		t.Fatalf("crisis not raised: %+v", snap)
	}
	if len(snap.Turns) != 1 || snap.Turns[0].Role != RoleCoach {
		t.Fatalf("alert text not appended as coach turn: %+v", snap.Turns)
	}

	waitFor(t, "crisis auto-clear", func() bool { return !store.Snapshot().Crisis })
	if store.Snapshot().CrisisResources != nil {
		t.Fatal("resources not cleared with crisis flag")
	}
}

func TestController_SecondAlertResetsCrisisWindow(t *testing.T) {
	ctrl, store, _ := newTestController(t, nil, WithCrisisWindow(60*time.Millisecond))

	ctrl.HandleEvent(&coach.ServerEvent{Type: coach.EventSafetyAlert, Text: "first"})
	time.Sleep(35 * time.Millisecond)
	ctrl.HandleEvent(&coach.ServerEvent{Type: coach.EventSafetyAlert, Text: "second"})
	time.Sleep(35 * time.Millisecond)

	// The first window would have expired by now; the second alert
	// restarted it.
	if !store.Snapshot().Crisis {
		t.Fatal("crisis cleared too early after second alert")
	}
	waitFor(t, "crisis auto-clear", func() bool { return !store.Snapshot().Crisis })
}

func TestController_ErrorEventClearsProcessing(t *testing.T) {
	ctrl, store, _ := newTestController(t, nil)
	store.Apply(SetActivity{ActivityProcessing})

	ctrl.HandleEvent(&coach.ServerEvent{Type: coach.EventError, Message: "synthesis failed"})
	if store.Activity() != ActivityIdle {
		t.Fatalf("activity = %v, want idle", store.Activity())
	}
	if n := len(store.Snapshot().Turns); n != 0 {
		t.Fatalf("error event appended %d turns, want 0", n)
	}
}

func TestController_ClosureSuggestion(t *testing.T) {
	ctrl, store, _ := newTestController(t, nil)
	store.Apply(SetActivity{ActivityProcessing})

	ctrl.HandleEvent(&coach.ServerEvent{Type: coach.EventSessionClosureReady, Reason: "wellness_improved"})
	snap := store.Snapshot()
	if !snap.ClosureSuggested || snap.ClosureReason != "wellness_improved" {
		t.Fatalf("closure = %+v", snap)
	}
	if snap.Activity != ActivityProcessing {
		t.Fatalf("closure suggestion changed activity to %v", snap.Activity)
	}

	ctrl.DismissClosure()
	if store.Snapshot().ClosureSuggested {
		t.Fatal("closure suggestion not dismissed")
	}
}

func TestController_ExerciseFlow(t *testing.T) {
	got := make(chan Exercise, 1)
	ctrl, store, sender := newTestController(t, nil,
		WithExerciseDelay(5*time.Millisecond),
		OnExercise(func(ex Exercise) { got <- ex }))

	ctrl.HandleEvent(&coach.ServerEvent{
		Type:      coach.EventCoachResponse,
		Text:      "Let's slow down together.",
		Technique: "breathing_exercise",
	})

	var ex Exercise
	select {
	case ex = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("exercise never surfaced")
	}
	if ex.Kind != "breathing" {
		t.Fatalf("exercise kind = %q", ex.Kind)
	}

	ctrl.CompleteExercise(ex)
	if store.Activity() != ActivityProcessing {
		t.Fatalf("activity = %v, want processing after completion", store.Activity())
	}
	sent := sender.events()
	if len(sent) != 1 || sent[0].Type != coach.EventUserSpeech {
		t.Fatalf("sent = %+v", sent)
	}
	snap := store.Snapshot()
	last := snap.Turns[len(snap.Turns)-1]
	if last.Role != RoleUser {
		t.Fatalf("synthetic turn role = %v", last.Role)
	}
}

func TestController_ConfirmEnd(t *testing.T) {
	ender := &fakeEnder{}
	ctrl, store, sender := newTestController(t, nil, WithSessionEnder(ender))
	store.Apply(AppendTurn{NewTurn(RoleUser, "bye")})

	sum := ctrl.End()
	if sum.UserTurns != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	// End only surfaces the summary; nothing is torn down yet.
	if !sender.IsOpen() {
		t.Fatal("End must not disconnect")
	}

	if err := ctrl.ConfirmEnd(context.Background()); err != nil {
		t.Fatalf("ConfirmEnd: %v", err)
	}
	if !sender.disconnected {
		t.Fatal("channel not disconnected")
	}
	if len(ender.ended) != 1 || ender.ended[0] != "s1" {
		t.Fatalf("ended = %v", ender.ended)
	}
	if n := len(store.Snapshot().Turns); n != 0 {
		t.Fatalf("store not cleared: %d turns", n)
	}

	// Idempotent.
	if err := ctrl.ConfirmEnd(context.Background()); err != nil {
		t.Fatalf("second ConfirmEnd: %v", err)
	}
	if len(ender.ended) != 1 {
		t.Fatalf("EndSession called %d times", len(ender.ended))
	}
}
