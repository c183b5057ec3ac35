package coachd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mindloop/voicecoach/pkg/blob"
	"github.com/mindloop/voicecoach/pkg/coach"
)

// OpenAISynthesizer speaks coach replies through the OpenAI TTS API.
// The voice adaptation profile tunes the playback speed; the remaining
// settings are reported to the client for the decision dashboard.
type OpenAISynthesizer struct {
	client openai.Client
	voice  openai.AudioSpeechNewParamsVoice
	logger *slog.Logger
}

// NewOpenAISynthesizer creates a TTS synthesizer. voice may be empty
// for the default.
func NewOpenAISynthesizer(apiKey, voice string, logger *slog.Logger) *OpenAISynthesizer {
	if voice == "" {
		voice = string(openai.AudioSpeechNewParamsVoiceNova)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAISynthesizer{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		voice:  openai.AudioSpeechNewParamsVoice(voice),
		logger: logger,
	}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text, emotion string, intensity float64) ([]byte, coach.VoiceAdaptation, error) {
	settings, adaptation := AdaptVoice(emotion, intensity)

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModelTTS1,
		Voice:          s.voice,
		Input:          text,
		Speed:          openai.Float(adaptation.SpeedModifier),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, adaptation, fmt.Errorf("coachd: synthesize speech: %w", err)
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, adaptation, fmt.Errorf("coachd: read synthesized audio: %w", err)
	}

	s.logger.Info("emotion-adaptive synthesis complete",
		"emotion", emotion,
		"stability", settings.Stability,
		"speed", adaptation.SpeedModifier,
		"bytes", len(audio))
	return audio, adaptation, nil
}

// CachedSynthesizer caches synthesized clips in a blob store, keyed by
// text, emotion, and intensity. Repeated phrases such as the welcome
// greeting and crisis responses then cost one synthesis total.
type CachedSynthesizer struct {
	Inner Synthesizer
	Store blob.Store
}

func (c *CachedSynthesizer) Synthesize(ctx context.Context, text, emotion string, intensity float64) ([]byte, coach.VoiceAdaptation, error) {
	key := clipKey(text, emotion, intensity)
	if audio, err := c.Store.Get(ctx, key); err == nil {
		_, adaptation := AdaptVoice(emotion, intensity)
		return audio, adaptation, nil
	} else if !errors.Is(err, blob.ErrNotExist) {
		return nil, coach.VoiceAdaptation{}, err
	}

	audio, adaptation, err := c.Inner.Synthesize(ctx, text, emotion, intensity)
	if err != nil {
		return nil, adaptation, err
	}
	if len(audio) > 0 {
		if err := c.Store.Put(ctx, key, audio); err != nil {
			// Cache writes are best effort.
			slog.Warn("coachd: clip cache write failed", "error", err)
		}
	}
	return audio, adaptation, nil
}

func clipKey(text, emotion string, intensity float64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%.2f", text, emotion, intensity))
	return "clips/" + hex.EncodeToString(sum[:]) + ".mp3"
}
