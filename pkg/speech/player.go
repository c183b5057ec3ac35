package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
)

// Sink renders one decoded audio clip. Play blocks until the clip has
// been rendered or ctx is canceled.
type Sink interface {
	Play(ctx context.Context, audio []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, audio []byte) error

func (f SinkFunc) Play(ctx context.Context, audio []byte) error { return f(ctx, audio) }

// DiscardSink drops audio immediately. Useful for headless sessions.
var DiscardSink Sink = SinkFunc(func(context.Context, []byte) error { return nil })

// Playback tracks one clip handed to the sink.
type Playback struct {
	done    chan struct{}
	mu      sync.Mutex
	err     error
	stopped bool
}

// Done is closed when the clip finished, failed, or was stopped.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Err returns the sink error, if any. A stopped playback has no error.
func (p *Playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stopped reports whether the playback was cut off rather than played
// to completion.
func (p *Playback) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Player renders base64-encoded audio clips through a Sink, one at a
// time. Starting a new clip stops the current one first.
type Player struct {
	sink Sink

	mu      sync.Mutex
	current *Playback
	cancel  context.CancelFunc
}

// NewPlayer creates a player over the given sink.
func NewPlayer(sink Sink) *Player {
	if sink == nil {
		sink = DiscardSink
	}
	return &Player{sink: sink}
}

// Play decodes a base64 clip and starts rendering it, stopping any
// clip already playing. An empty clip completes immediately.
func (p *Player) Play(audioBase64 string) (*Playback, error) {
	audio, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return nil, fmt.Errorf("speech: decode audio: %w", err)
	}

	pb := &Playback{done: make(chan struct{})}
	if len(audio) == 0 {
		close(pb.done)
		return pb, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.stopLocked()
	p.current = pb
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		err := p.sink.Play(ctx, audio)

		pb.mu.Lock()
		if ctx.Err() != nil {
			pb.stopped = true
		} else if err != nil {
			pb.err = err
		}
		pb.mu.Unlock()
		close(pb.done)

		p.mu.Lock()
		if p.current == pb {
			p.current = nil
			p.cancel = nil
		}
		p.mu.Unlock()
	}()
	return pb, nil
}

// Stop cuts off the current playback, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()
}

// Playing reports whether a clip is being rendered right now.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func (p *Player) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.current = nil
}
