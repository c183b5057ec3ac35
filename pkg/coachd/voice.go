package coachd

import (
	"strings"

	"github.com/mindloop/voicecoach/pkg/coach"
)

// VoiceProfile is the synthesizer tuning for one detected emotion.
type VoiceProfile struct {
	Settings      coach.VoiceSettings
	SpeedModifier float64
	Description   string
}

// Voice parameters per emotion, tuned for therapeutic delivery:
// anxious users get a slow steady voice, sad users a warm one, and
// positive emotions a slightly more dynamic one.
var voiceProfiles = map[string]VoiceProfile{
	"anxiety": {
		Settings:      coach.VoiceSettings{Stability: 0.92, SimilarityBoost: 0.75, Style: 0.05, SpeakerBoost: true},
		SpeedModifier: 0.85,
		Description:   "Ultra-calm and grounding voice to reduce anxiety",
	},
	"overwhelm": {
		Settings:      coach.VoiceSettings{Stability: 0.90, SimilarityBoost: 0.75, Style: 0.08, SpeakerBoost: true},
		SpeedModifier: 0.82,
		Description:   "Slow, steady voice to help with overwhelm",
	},
	"panic": {
		Settings:      coach.VoiceSettings{Stability: 0.95, SimilarityBoost: 0.70, Style: 0.02, SpeakerBoost: true},
		SpeedModifier: 0.75,
		Description:   "Maximum stability voice for panic",
	},
	"fear": {
		Settings:      coach.VoiceSettings{Stability: 0.88, SimilarityBoost: 0.75, Style: 0.10, SpeakerBoost: true},
		SpeedModifier: 0.85,
		Description:   "Reassuring and stable voice for fear",
	},
	"sadness": {
		Settings:      coach.VoiceSettings{Stability: 0.75, SimilarityBoost: 0.85, Style: 0.25, SpeakerBoost: true},
		SpeedModifier: 0.90,
		Description:   "Warm and empathetic voice for sadness",
	},
	"loneliness": {
		Settings:      coach.VoiceSettings{Stability: 0.72, SimilarityBoost: 0.88, Style: 0.30, SpeakerBoost: true},
		SpeedModifier: 0.88,
		Description:   "Connected and warm voice for loneliness",
	},
	"hopelessness": {
		Settings:      coach.VoiceSettings{Stability: 0.78, SimilarityBoost: 0.85, Style: 0.22, SpeakerBoost: true},
		SpeedModifier: 0.88,
		Description:   "Gentle and hopeful voice for hopelessness",
	},
	"grief": {
		Settings:      coach.VoiceSettings{Stability: 0.70, SimilarityBoost: 0.90, Style: 0.28, SpeakerBoost: true},
		SpeedModifier: 0.85,
		Description:   "Deeply empathetic voice for grief",
	},
	"anger": {
		Settings:      coach.VoiceSettings{Stability: 0.85, SimilarityBoost: 0.70, Style: 0.12, SpeakerBoost: true},
		SpeedModifier: 0.92,
		Description:   "Calm and validating voice for anger",
	},
	"frustration": {
		Settings:      coach.VoiceSettings{Stability: 0.82, SimilarityBoost: 0.72, Style: 0.15, SpeakerBoost: true},
		SpeedModifier: 0.90,
		Description:   "Understanding voice for frustration",
	},
	"joy": {
		Settings:      coach.VoiceSettings{Stability: 0.60, SimilarityBoost: 0.80, Style: 0.45, SpeakerBoost: true},
		SpeedModifier: 1.05,
		Description:   "Warm and celebratory voice for joy",
	},
	"relief": {
		Settings:      coach.VoiceSettings{Stability: 0.68, SimilarityBoost: 0.80, Style: 0.35, SpeakerBoost: true},
		SpeedModifier: 1.0,
		Description:   "Supportive voice for relief",
	},
	"gratitude": {
		Settings:      coach.VoiceSettings{Stability: 0.65, SimilarityBoost: 0.82, Style: 0.40, SpeakerBoost: true},
		SpeedModifier: 1.02,
		Description:   "Appreciative voice for gratitude",
	},
	"hope": {
		Settings:      coach.VoiceSettings{Stability: 0.70, SimilarityBoost: 0.80, Style: 0.38, SpeakerBoost: true},
		SpeedModifier: 1.0,
		Description:   "Encouraging voice for hope",
	},
	"calm": {
		Settings:      coach.VoiceSettings{Stability: 0.78, SimilarityBoost: 0.78, Style: 0.18, SpeakerBoost: true},
		SpeedModifier: 0.95,
		Description:   "Matching calm voice",
	},
	"neutral": {
		Settings:      coach.VoiceSettings{Stability: 0.75, SimilarityBoost: 0.75, Style: 0.20, SpeakerBoost: true},
		SpeedModifier: 1.0,
		Description:   "Balanced default voice",
	},
}

var defaultVoiceProfile = voiceProfiles["neutral"]

// AdaptVoice blends the default voice toward the emotion's profile in
// proportion to intensity, so low-confidence detections barely change
// the voice while strong emotions adapt it fully.
func AdaptVoice(emotion string, intensity float64) (coach.VoiceSettings, coach.VoiceAdaptation) {
	profile, ok := voiceProfiles[strings.ToLower(emotion)]
	if !ok {
		profile = defaultVoiceProfile
	}
	if intensity < 0 {
		intensity = 0
	}
	if intensity > 1 {
		intensity = 1
	}

	base := defaultVoiceProfile.Settings
	blended := coach.VoiceSettings{
		Stability:       base.Stability + (profile.Settings.Stability-base.Stability)*intensity,
		SimilarityBoost: base.SimilarityBoost + (profile.Settings.SimilarityBoost-base.SimilarityBoost)*intensity,
		Style:           base.Style + (profile.Settings.Style-base.Style)*intensity,
		SpeakerBoost:    profile.Settings.SpeakerBoost,
	}
	adaptation := coach.VoiceAdaptation{
		DetectedEmotion: emotion,
		Intensity:       intensity,
		ProfileUsed:     profile.Description,
		Settings:        &blended,
		SpeedModifier:   profile.SpeedModifier,
	}
	return blended, adaptation
}
