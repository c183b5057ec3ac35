package coachd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/googleapis/gax-go/v2"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/kaptinlin/jsonrepair"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

const analysisPrompt = `Analyze the emotional state in this message from a wellness coaching session.

Message: %q

Recent conversation:
%s

Reply with ONLY valid JSON:
{"emotion": "primary emotion label", "intensity": 0.0-1.0, "intent": "what the user needs", "confidence": 0.0-1.0, "secondary_emotions": ["other", "emotions"]}

Use lowercase single-word emotion labels such as anxiety, sadness, anger, frustration, loneliness, fear, overwhelm, relief, gratitude, joy, hope, calm, neutral.`

const techniquePrompt = `Select a coaching technique for this user.

Emotion: %s (intensity: %.1f)
Intent: %s

Techniques: %s

%s

Reply with ONLY valid JSON including WHY you chose this AND why NOT other techniques:
{"technique": "technique_name", "reason": "why this technique fits", "why_not": {"other_technique": "brief reason why not"}}`

const responsePrompt = `You are Aria, a warm and empathetic AI wellness coach having a real conversation.

The user just said: %q

Their emotional state: %s (intensity: %.1f/1.0)

Technique to use: %s
Why: %s

%s

Recent conversation:
%s

Reply with 2-4 sentences of natural spoken language. No markdown, no lists, no stage directions. Never diagnose, never mention medication, always speak as a supportive coach rather than a clinician.`

const welcomePrompt = `You are Aria, a warm AI wellness coach. Greet a user who just started a voice session. Two short sentences, spoken language, inviting them to share what's on their mind.`

// GeminiAI implements Analyzer and Responder on the Gemini API.
type GeminiAI struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiAI creates a Gemini-backed analyzer/responder. model may be
// empty for the default.
func NewGeminiAI(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiAI, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("coachd: create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiAI{client: client, model: model, logger: logger}, nil
}

type analysisPayload struct {
	Emotion           string   `json:"emotion"`
	Intensity         float64  `json:"intensity"`
	Intent            string   `json:"intent"`
	Confidence        float64  `json:"confidence"`
	SecondaryEmotions []string `json:"secondary_emotions,omitempty"`
}

type techniquePayload struct {
	Technique string            `json:"technique"`
	Reason    string            `json:"reason"`
	WhyNot    map[string]string `json:"why_not,omitempty"`
}

var (
	analysisSchema  = mustResolveSchema[analysisPayload]()
	techniqueSchema = mustResolveSchema[techniquePayload]()
)

func mustResolveSchema[T any]() *jsonschema.Resolved {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		panic(err)
	}
	r, err := s.Resolve(nil)
	if err != nil {
		panic(err)
	}
	return r
}

func (g *GeminiAI) Analyze(ctx context.Context, message string, history []HistoryEntry) (Analysis, error) {
	prompt := fmt.Sprintf(analysisPrompt, message, formatHistory(history))
	text, err := g.generate(ctx, prompt, true)
	if err != nil {
		return Analysis{}, fmt.Errorf("coachd: emotion analysis: %w", err)
	}

	var payload analysisPayload
	if err := decodeModelJSON(text, analysisSchema, &payload); err != nil {
		return Analysis{}, fmt.Errorf("coachd: emotion analysis: %w", err)
	}
	if payload.Emotion == "" {
		payload.Emotion = "neutral"
	}
	payload.Intensity = clamp01(payload.Intensity)
	payload.Confidence = clamp01(payload.Confidence)
	return Analysis{
		Emotion:           strings.ToLower(payload.Emotion),
		Intensity:         payload.Intensity,
		Intent:            payload.Intent,
		Confidence:        payload.Confidence,
		SecondaryEmotions: payload.SecondaryEmotions,
	}, nil
}

func (g *GeminiAI) SelectTechnique(ctx context.Context, analysis Analysis, memory *Memory) (Technique, error) {
	names := make([]string, 0, len(techniqueCatalog))
	for name := range techniqueCatalog {
		names = append(names, name)
	}
	var memoryContext string
	if memory != nil {
		memoryContext = memory.ContextString()
	}
	prompt := fmt.Sprintf(techniquePrompt,
		analysis.Emotion, analysis.Intensity, analysis.Intent,
		strings.Join(names, ", "), memoryContext)

	text, err := g.generate(ctx, prompt, true)
	if err != nil {
		return Technique{}, fmt.Errorf("coachd: technique selection: %w", err)
	}
	var payload techniquePayload
	if err := decodeModelJSON(text, techniqueSchema, &payload); err != nil {
		return Technique{}, fmt.Errorf("coachd: technique selection: %w", err)
	}
	if _, known := techniqueCatalog[payload.Technique]; !known {
		g.logger.Warn("coachd: model chose unknown technique, falling back", "technique", payload.Technique)
		payload.Technique = "validation"
	}
	return Technique{Name: payload.Technique, Reason: payload.Reason, WhyNot: payload.WhyNot}, nil
}

func (g *GeminiAI) Respond(ctx context.Context, userMessage string, analysis Analysis, technique Technique, memory *Memory, history []HistoryEntry) (string, error) {
	var memoryContext string
	if memory != nil {
		memoryContext = memory.ContextString()
	}
	prompt := fmt.Sprintf(responsePrompt,
		userMessage, analysis.Emotion, analysis.Intensity,
		technique.Name, technique.Reason,
		memoryContext, formatHistory(history))

	text, err := g.generate(ctx, prompt, false)
	if err != nil {
		return "", fmt.Errorf("coachd: response generation: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (g *GeminiAI) Welcome(ctx context.Context) (string, error) {
	text, err := g.generate(ctx, welcomePrompt, false)
	if err != nil {
		g.logger.Warn("coachd: welcome generation failed, using canned text", "error", err)
		return welcomeText, nil
	}
	return strings.TrimSpace(text), nil
}

// generate runs one completion, retrying transient API failures.
func (g *GeminiAI) generate(ctx context.Context, prompt string, asJSON bool) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if asJSON {
		cfg.ResponseMIMEType = "application/json"
	}
	contents := genai.Text(prompt)

	bo := gax.Backoff{Initial: time.Second, Max: 8 * time.Second, Multiplier: 2}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			if err := gax.Sleep(ctx, bo.Pause()); err != nil {
				return "", err
			}
		}
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err != nil {
			if e, ok := err.(*apierror.APIError); ok {
				err = e.Unwrap()
			}
			lastErr = err
			g.logger.Warn("coachd: gemini call failed", "attempt", attempt+1, "error", err)
			continue
		}
		if len(resp.Candidates) == 0 {
			lastErr = fmt.Errorf("no candidates")
			continue
		}
		var sb strings.Builder
		for _, p := range resp.Candidates[0].Content.Parts {
			if p.Text != "" {
				sb.WriteString(p.Text)
			}
		}
		return sb.String(), nil
	}
	return "", lastErr
}

// decodeModelJSON parses model output that should be JSON: fences are
// stripped, malformed output is repaired, and the result is validated
// against the payload schema before decoding.
func decodeModelJSON(text string, schema *jsonschema.Resolved, v any) error {
	text = stripFences(text)

	data := []byte(text)
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		fixed, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return fmt.Errorf("parse model output: %w", err)
		}
		data = []byte(fixed)
		if err := json.Unmarshal(data, &probe); err != nil {
			return fmt.Errorf("parse repaired model output: %w", err)
		}
	}
	if err := schema.Validate(probe); err != nil {
		return fmt.Errorf("model output failed schema validation: %w", err)
	}
	return json.Unmarshal(data, v)
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func formatHistory(history []HistoryEntry) string {
	if len(history) == 0 {
		return "This is the start of the conversation."
	}
	if len(history) > 4 {
		history = history[len(history)-4:]
	}
	var lines []string
	for _, h := range history {
		role := "User"
		if h.Role == "coach" {
			role = "Coach"
		}
		line := fmt.Sprintf("%s: %s", role, h.Content)
		if h.Technique != "" {
			line += fmt.Sprintf(" [Used: %s]", h.Technique)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
