package speech

import (
	"testing"
	"time"
)

func TestTranscript_Text(t *testing.T) {
	cases := []struct {
		tr   Transcript
		want string
	}{
		{Transcript{}, ""},
		{Transcript{Final: "hello there"}, "hello there"},
		{Transcript{Interim: "still talk"}, "still talk"},
		{Transcript{Final: "hello", Interim: "there"}, "hello there"},
		{Transcript{Final: "  hello  ", Interim: "  "}, "hello"},
	}
	for _, tc := range cases {
		if got := tc.tr.Text(); got != tc.want {
			t.Errorf("Text(%+v) = %q, want %q", tc.tr, got, tc.want)
		}
	}
	if !(Transcript{Interim: "   "}).Empty() {
		t.Error("whitespace-only transcript should be empty")
	}
}

func TestScripted_ConsumesUtterances(t *testing.T) {
	rec := NewScripted([]string{"first thing", "second"}, 300*time.Millisecond)
	if !rec.Supported() {
		t.Fatal("scripted recognizer should be supported")
	}

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	rec.Stop()
	if got := rec.Transcript().Text(); got != "first thing" {
		t.Fatalf("transcript = %q", got)
	}
	if got := rec.Duration(); got != 600*time.Millisecond {
		t.Fatalf("duration = %v, want 600ms", got)
	}

	rec.Reset()
	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	rec.Stop()
	if got := rec.Transcript().Text(); got != "second" {
		t.Fatalf("transcript after reset = %q", got)
	}

	// Utterances exhausted: capture yields nothing.
	rec.Reset()
	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	rec.Stop()
	if !rec.Transcript().Empty() {
		t.Fatalf("transcript = %q, want empty", rec.Transcript().Text())
	}
}

func TestScripted_Append(t *testing.T) {
	rec := NewScripted(nil, 100*time.Millisecond)

	// Nothing queued yet.
	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	rec.Stop()
	if !rec.Transcript().Empty() {
		t.Fatalf("transcript = %q, want empty", rec.Transcript().Text())
	}

	rec.Append("typed line")
	rec.Reset()
	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	rec.Stop()
	if got := rec.Transcript().Text(); got != "typed line" {
		t.Fatalf("transcript = %q", got)
	}
}

func TestScripted_Unsupported(t *testing.T) {
	rec := NewScripted(nil, 0)
	rec.SetSupported(false)
	if rec.Supported() {
		t.Fatal("Supported() = true after SetSupported(false)")
	}
	if err := rec.Start(); err != ErrUnsupported {
		t.Fatalf("Start = %v, want ErrUnsupported", err)
	}
}
