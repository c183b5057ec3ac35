package session

import "testing"

func TestDetectExercise(t *testing.T) {
	cases := []struct {
		technique string
		text      string
		wantKind  string
		wantOK    bool
	}{
		{"breathing_exercise", "", "breathing", true},
		{"grounding_technique", "", "grounding", true},
		{"validation", "Let's try a breathing exercise together", "breathing", true},
		{"", "Can you name five things you can see around you?", "grounding", true},
		{"", "Slowly inhale, then exhale", "breathing", true},
		{"validation", "That sounds really difficult", "", false},
		{"reframing", "", "", false},
	}
	for _, tc := range cases {
		ex, ok := DetectExercise(tc.technique, tc.text)
		if ok != tc.wantOK {
			t.Errorf("DetectExercise(%q, %q) ok = %v, want %v", tc.technique, tc.text, ok, tc.wantOK)
			continue
		}
		if ok && ex.Kind != tc.wantKind {
			t.Errorf("DetectExercise(%q, %q) kind = %q, want %q", tc.technique, tc.text, ex.Kind, tc.wantKind)
		}
		if ok && (ex.Title == "" || len(ex.Steps) == 0) {
			t.Errorf("exercise %q missing title or steps", ex.Kind)
		}
	}
}
