// Package speech wraps speech capture and audio playback for the
// voicecoach client. Capture is an accumulating recognizer: finalized
// segments pile up while a live interim segment trails them. Playback
// renders one base64 clip at a time; starting a new clip stops the
// previous one.
package speech

import (
	"strings"
	"time"
)

// Transcript is the text captured so far: finalized segments plus the
// current interim hypothesis.
type Transcript struct {
	Final   string
	Interim string
}

// Text joins the finalized text with the interim tail.
func (t Transcript) Text() string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(t.Final); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(t.Interim); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// Empty reports whether nothing was captured.
func (t Transcript) Empty() bool {
	return t.Text() == ""
}

// Recognizer captures speech and accumulates a transcript. A capture
// runs between Start and Stop; Reset clears the transcript for the
// next capture.
type Recognizer interface {
	// Supported reports whether capture can work in this environment.
	Supported() bool

	// Start begins capturing.
	Start() error

	// Stop ends the capture. The transcript remains readable.
	Stop()

	// Reset discards the accumulated transcript.
	Reset()

	// Transcript returns what was captured so far.
	Transcript() Transcript

	// Duration is the length of the current or last capture.
	Duration() time.Duration
}
