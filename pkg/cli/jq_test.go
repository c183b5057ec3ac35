package cli

import "testing"

func TestCompileJQ_Invalid(t *testing.T) {
	if _, err := CompileJQ("...["); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}

func TestJQFilter_Apply(t *testing.T) {
	f, err := CompileJQ(".event_type")
	if err != nil {
		t.Fatalf("CompileJQ error: %v", err)
	}

	type event struct {
		Type string `json:"event_type"`
		Data int    `json:"data"`
	}
	out, err := f.Apply(event{Type: "memory.state.updated", Data: 3})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if len(out) != 1 || out[0] != "memory.state.updated" {
		t.Fatalf("out = %v", out)
	}
}

func TestJQFilter_ApplySelect(t *testing.T) {
	f, err := CompileJQ(`select(.turn == 2)`)
	if err != nil {
		t.Fatalf("CompileJQ error: %v", err)
	}
	out, err := f.Apply(map[string]any{"turn": 1})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("select should filter out non-matching input, got %v", out)
	}
}
