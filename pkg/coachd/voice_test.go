package coachd

import (
	"math"
	"testing"
)

func TestAdaptVoice_FullIntensityMatchesProfile(t *testing.T) {
	settings, adaptation := AdaptVoice("anxiety", 1.0)
	if settings.Stability != 0.92 || settings.SimilarityBoost != 0.75 || settings.Style != 0.05 {
		t.Fatalf("settings = %+v, want the anxiety profile", settings)
	}
	if !settings.SpeakerBoost {
		t.Fatal("anxiety profile uses speaker boost")
	}
	if adaptation.SpeedModifier != 0.85 {
		t.Fatalf("speed = %v, want 0.85", adaptation.SpeedModifier)
	}
	if adaptation.DetectedEmotion != "anxiety" {
		t.Fatalf("detected emotion = %q", adaptation.DetectedEmotion)
	}
}

func TestAdaptVoice_ZeroIntensityStaysNeutral(t *testing.T) {
	settings, _ := AdaptVoice("panic", 0)
	base := voiceProfiles["neutral"].Settings
	if settings.Stability != base.Stability || settings.Style != base.Style {
		t.Fatalf("settings = %+v, want neutral base %+v", settings, base)
	}
}

func TestAdaptVoice_BlendsProportionally(t *testing.T) {
	settings, _ := AdaptVoice("panic", 0.5)
	// Halfway between neutral 0.75 and panic 0.95.
	if math.Abs(settings.Stability-0.85) > 1e-9 {
		t.Fatalf("stability = %v, want 0.85", settings.Stability)
	}
	if math.Abs(settings.Style-0.11) > 1e-9 {
		t.Fatalf("style = %v, want 0.11", settings.Style)
	}
}

func TestAdaptVoice_UnknownEmotionUsesDefault(t *testing.T) {
	settings, adaptation := AdaptVoice("bewilderment", 1.0)
	base := voiceProfiles["neutral"].Settings
	if settings != base {
		t.Fatalf("settings = %+v, want neutral %+v", settings, base)
	}
	if adaptation.SpeedModifier != 1.0 {
		t.Fatalf("speed = %v, want 1.0", adaptation.SpeedModifier)
	}
}

func TestAdaptVoice_ClampsIntensity(t *testing.T) {
	over, _ := AdaptVoice("grief", 1.8)
	exact, _ := AdaptVoice("grief", 1.0)
	if over != exact {
		t.Fatalf("intensity above 1 should clamp: %+v vs %+v", over, exact)
	}
	under, _ := AdaptVoice("grief", -0.5)
	neutralized, _ := AdaptVoice("grief", 0)
	if under != neutralized {
		t.Fatalf("negative intensity should clamp to 0")
	}
}
