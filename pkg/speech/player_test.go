package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

// blockingSink plays until its release channel or ctx says otherwise.
type blockingSink struct {
	started chan []byte
	release chan error
}

func newBlockingSink() *blockingSink {
	return &blockingSink{started: make(chan []byte, 4), release: make(chan error)}
}

func (s *blockingSink) Play(ctx context.Context, audio []byte) error {
	s.started <- audio
	select {
	case err := <-s.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clip(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func waitDone(t *testing.T, pb *Playback) {
	t.Helper()
	select {
	case <-pb.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("playback never finished")
	}
}

func TestPlayer_PlayToCompletion(t *testing.T) {
	sink := newBlockingSink()
	player := NewPlayer(sink)

	pb, err := player.Play(clip("audio-1"))
	if err != nil {
		t.Fatal(err)
	}
	<-sink.started
	if !player.Playing() {
		t.Fatal("Playing() = false during playback")
	}
	sink.release <- nil
	waitDone(t, pb)
	if pb.Err() != nil || pb.Stopped() {
		t.Fatalf("err=%v stopped=%v, want clean completion", pb.Err(), pb.Stopped())
	}
	if player.Playing() {
		t.Fatal("Playing() = true after completion")
	}
}

func TestPlayer_NewClipStopsCurrent(t *testing.T) {
	sink := newBlockingSink()
	player := NewPlayer(sink)

	first, err := player.Play(clip("one"))
	if err != nil {
		t.Fatal(err)
	}
	<-sink.started

	second, err := player.Play(clip("two"))
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, first)
	if !first.Stopped() {
		t.Fatal("first playback should be stopped")
	}
	if first.Err() != nil {
		t.Fatalf("stopped playback has err %v", first.Err())
	}

	<-sink.started
	sink.release <- nil
	waitDone(t, second)
	if second.Stopped() {
		t.Fatal("second playback should have completed")
	}
}

func TestPlayer_Stop(t *testing.T) {
	sink := newBlockingSink()
	player := NewPlayer(sink)

	pb, err := player.Play(clip("one"))
	if err != nil {
		t.Fatal(err)
	}
	<-sink.started
	player.Stop()
	waitDone(t, pb)
	if !pb.Stopped() || pb.Err() != nil {
		t.Fatalf("stopped=%v err=%v", pb.Stopped(), pb.Err())
	}
}

func TestPlayer_SinkError(t *testing.T) {
	sink := newBlockingSink()
	player := NewPlayer(sink)

	pb, err := player.Play(clip("one"))
	if err != nil {
		t.Fatal(err)
	}
	<-sink.started
	sinkErr := errors.New("device gone")
	sink.release <- sinkErr
	waitDone(t, pb)
	if !errors.Is(pb.Err(), sinkErr) {
		t.Fatalf("Err() = %v, want %v", pb.Err(), sinkErr)
	}
}

func TestPlayer_BadBase64(t *testing.T) {
	player := NewPlayer(DiscardSink)
	if _, err := player.Play("!!! not base64 !!!"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPlayer_EmptyClip(t *testing.T) {
	player := NewPlayer(DiscardSink)
	pb, err := player.Play("")
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, pb)
	if player.Playing() {
		t.Fatal("empty clip should not occupy the player")
	}
}
