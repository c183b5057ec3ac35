package blob

import (
	"context"
	"errors"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLocal_PutGet(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	clip := []byte("fake-mp3-bytes")
	if err := s.Put(ctx, "clips/s1/turn-3.mp3", clip); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "clips/s1/turn-3.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(clip) {
		t.Fatalf("Get = %q, want %q", got, clip)
	}

	ok, err := s.Exists(ctx, "clips/s1/turn-3.mp3")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
	}
}

func TestLocal_GetNotExist(t *testing.T) {
	s := newTestLocal(t)
	_, err := s.Get(context.Background(), "clips/none.mp3")
	if !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestLocal_DeleteIdempotent(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if err := s.Put(ctx, "clips/x.mp3", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "clips/x.mp3"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "clips/x.mp3"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	ok, err := s.Exists(ctx, "clips/x.mp3")
	if err != nil || ok {
		t.Fatalf("Exists after delete = %v, %v; want false, nil", ok, err)
	}
}
