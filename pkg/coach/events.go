package coach

import (
	"encoding/json"
	"fmt"
)

// Client event types (client -> server).
const (
	EventUserSpeech     = "user_speech"
	EventPing           = "ping"
	EventRequestWelcome = "request_welcome"
)

// Server event types (server -> client).
const (
	EventCoachResponse       = "coach_response"
	EventSafetyAlert         = "safety_alert"
	EventError               = "error"
	EventPong                = "pong"
	EventSessionClosureReady = "session_closure_ready"
)

// ClientEvent is an outbound envelope on the session channel.
type ClientEvent struct {
	Type string `json:"type"`

	// user_speech fields.
	Transcript    string  `json:"transcript,omitempty"`
	AudioDuration float64 `json:"audio_duration,omitempty"`
}

// UserSpeech builds a user_speech event carrying a finalized transcript
// and the capture duration in seconds.
func UserSpeech(transcript string, audioDuration float64) ClientEvent {
	return ClientEvent{Type: EventUserSpeech, Transcript: transcript, AudioDuration: audioDuration}
}

// Ping builds a heartbeat event. The server answers with pong.
func Ping() ClientEvent {
	return ClientEvent{Type: EventPing}
}

// RequestWelcome asks the server to open the conversation with a
// spoken greeting. Sent at most once per session.
func RequestWelcome() ClientEvent {
	return ClientEvent{Type: EventRequestWelcome}
}

// ServerEvent is an inbound envelope on the session channel. Fields are
// populated according to Type; unused fields are zero.
type ServerEvent struct {
	Type string `json:"type"`

	// coach_response and safety_alert.
	Text        string `json:"text,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`

	// coach_response.
	Emotion     string       `json:"emotion,omitempty"`
	Technique   string       `json:"technique,omitempty"`
	Intensity   float64      `json:"intensity,omitempty"`
	AIDecisions *AIDecisions `json:"ai_decisions,omitempty"`

	// safety_alert.
	Resources []Resource `json:"resources,omitempty"`

	// error. Older servers put the message under "error".
	Message string `json:"message,omitempty"`
	Detail  string `json:"error,omitempty"`

	// session_closure_ready.
	Reason             string              `json:"reason,omitempty"`
	WellnessIndicators *WellnessIndicators `json:"wellness_indicators,omitempty"`

	// Raw is the envelope as received, for logging and replay.
	Raw json.RawMessage `json:"-"`
}

// ErrorMessage returns the message of an error event, whichever field
// the server used.
func (e *ServerEvent) ErrorMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Detail
}

// AIDecisions is the per-turn decision trace attached to a coach
// response: what the emotion analyzer saw, why the technique was
// chosen, and how the voice was adapted.
type AIDecisions struct {
	EmotionAnalysis    *EmotionAnalysis    `json:"emotion_analysis,omitempty"`
	TechniqueSelection *TechniqueSelection `json:"technique_selection,omitempty"`
	VoiceAdaptation    *VoiceAdaptation    `json:"voice_adaptation,omitempty"`
}

type EmotionAnalysis struct {
	Emotion    string  `json:"emotion"`
	Intensity  float64 `json:"intensity"`
	Confidence float64 `json:"confidence,omitempty"`
	Intent     string  `json:"intent,omitempty"`
}

type TechniqueSelection struct {
	Technique string            `json:"technique"`
	Reason    string            `json:"reason,omitempty"`
	WhyNot    map[string]string `json:"why_not,omitempty"`
}

type VoiceAdaptation struct {
	DetectedEmotion string         `json:"detected_emotion,omitempty"`
	Intensity       float64        `json:"intensity,omitempty"`
	ProfileUsed     string         `json:"profile_used,omitempty"`
	Settings        *VoiceSettings `json:"applied_settings,omitempty"`
	SpeedModifier   float64        `json:"speed_modifier,omitempty"`
}

// VoiceSettings are the synthesizer parameters for one utterance.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// Resource is a crisis support contact attached to a safety alert.
type Resource struct {
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Text        string `json:"text,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// WellnessIndicators summarize why the server considers a session
// ready to close.
type WellnessIndicators struct {
	PositiveEmotion string `json:"positive_emotion,omitempty"`
	TotalTurns      int    `json:"total_turns,omitempty"`
	Breakthroughs   int    `json:"breakthroughs,omitempty"`
	Phase           string `json:"phase,omitempty"`
}

// ParseServerEvent decodes one inbound envelope. Unknown event types
// are returned as-is so callers can log them.
func ParseServerEvent(data []byte) (*ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("coach: decode server event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("coach: server event missing type")
	}
	ev.Raw = json.RawMessage(data)
	return &ev, nil
}
