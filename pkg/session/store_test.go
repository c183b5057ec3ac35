package session

import (
	"encoding/json"
	"testing"

	"github.com/mindloop/voicecoach/pkg/coach"
	"github.com/mindloop/voicecoach/pkg/insights"
)

func TestStore_ApplyBatch(t *testing.T) {
	store := NewStore("s1")
	store.Apply(
		AppendTurn{NewTurn(RoleUser, "hello")},
		SetActivity{ActivityProcessing},
	)

	snap := store.Snapshot()
	if len(snap.Turns) != 1 || snap.Turns[0].Content != "hello" {
		t.Fatalf("turns = %+v", snap.Turns)
	}
	if snap.Turns[0].ID == "" || snap.Turns[0].Time.IsZero() {
		t.Fatal("turn missing id or timestamp")
	}
	if snap.Activity != ActivityProcessing {
		t.Fatalf("activity = %v", snap.Activity)
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	store := NewStore("s1")
	store.Apply(AppendTurn{NewTurn(RoleUser, "one")})

	snap := store.Snapshot()
	snap.Turns[0].Content = "mutated"
	snap.Turns = append(snap.Turns, NewTurn(RoleCoach, "extra"))

	again := store.Snapshot()
	if len(again.Turns) != 1 || again.Turns[0].Content != "one" {
		t.Fatalf("store state leaked through snapshot: %+v", again.Turns)
	}
}

func TestStore_Clear(t *testing.T) {
	store := NewStore("s1")
	store.Apply(
		AppendTurn{NewTurn(RoleUser, "hello")},
		AppendEmotion{insights.Point{Emotion: "anxiety"}},
		SetCrisis{Active: true},
		SetActivity{ActivitySpeaking},
	)
	store.Apply(Clear{})

	snap := store.Snapshot()
	if snap.SessionID != "s1" {
		t.Fatalf("session id = %q, want preserved", snap.SessionID)
	}
	if len(snap.Turns) != 0 || len(snap.Emotions) != 0 || snap.Crisis || snap.Activity != ActivityIdle {
		t.Fatalf("state not cleared: %+v", snap)
	}
}

func TestStore_SubscribeSeesBatchResult(t *testing.T) {
	store := NewStore("s1")
	var got []State
	store.Subscribe(func(s State) { got = append(got, s) })

	store.Apply(
		AppendTurn{NewTurn(RoleUser, "a")},
		AppendTurn{NewTurn(RoleCoach, "b")},
	)
	if len(got) != 1 {
		t.Fatalf("listener fired %d times, want once per batch", len(got))
	}
	if len(got[0].Turns) != 2 {
		t.Fatalf("listener saw %d turns, want the committed batch", len(got[0].Turns))
	}
}

func TestStore_CommandSemantics(t *testing.T) {
	store := NewStore("s1")

	store.Apply(SetMood{Emotion: "sadness", Technique: "validation"})
	store.Apply(SetMood{Emotion: "", Technique: ""}) // blanks do not erase
	if snap := store.Snapshot(); snap.CurrentEmotion != "sadness" || snap.CurrentTechnique != "validation" {
		t.Fatalf("mood = %q/%q", snap.CurrentEmotion, snap.CurrentTechnique)
	}

	store.Apply(SetDecisions{nil}) // nil snapshot keeps previous
	store.Apply(SetDecisions{&coach.AIDecisions{}})
	if store.Snapshot().Decisions == nil {
		t.Fatal("decisions not set")
	}

	store.Apply(SetCrisis{Active: true, Resources: []coach.Resource{{Name: "988", Phone: "988"}}})
	if snap := store.Snapshot(); !snap.Crisis || len(snap.CrisisResources) != 1 {
		t.Fatalf("crisis = %+v", snap)
	}
	store.Apply(SetCrisis{Active: false})
	if snap := store.Snapshot(); snap.Crisis || snap.CrisisResources != nil {
		t.Fatalf("crisis not cleared: %+v", snap)
	}

	store.Apply(SuggestClosure{Suggested: true, Reason: "wellness_improved"})
	if snap := store.Snapshot(); !snap.ClosureSuggested || snap.ClosureReason != "wellness_improved" {
		t.Fatalf("closure = %+v", snap)
	}
	store.Apply(SuggestClosure{Suggested: false})
	if snap := store.Snapshot(); snap.ClosureSuggested || snap.ClosureReason != "" {
		t.Fatalf("closure not dismissed: %+v", snap)
	}
}

func TestStore_Summary(t *testing.T) {
	store := NewStore("s1")
	store.Apply(
		AppendTurn{NewTurn(RoleUser, "work is stressful")},
		AppendTurn{NewTurn(RoleCoach, "that sounds heavy")},
		AppendEmotion{insights.Point{Emotion: "anxiety"}},
	)
	sum := store.Summary()
	if sum.UserTurns != 1 || sum.CoachTurns != 1 || sum.EmotionPoints != 1 {
		t.Fatalf("summary counts = %+v", sum)
	}
	if sum.DominantEmotion != "anxiety" {
		t.Fatalf("dominant = %q", sum.DominantEmotion)
	}
}

func TestVoiceActivity_JSON(t *testing.T) {
	for a, want := range map[VoiceActivity]string{
		ActivityIdle:       `"idle"`,
		ActivityListening:  `"listening"`,
		ActivityProcessing: `"processing"`,
		ActivitySpeaking:   `"speaking"`,
	} {
		data, err := json.Marshal(a)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != want {
			t.Errorf("marshal %v = %s, want %s", a, data, want)
		}
		var back VoiceActivity
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		if back != a {
			t.Errorf("round trip %v = %v", a, back)
		}
	}
	var a VoiceActivity
	if err := json.Unmarshal([]byte(`"shouting"`), &a); err == nil {
		t.Fatal("expected error for unknown activity")
	}
}
