package coachd

import (
	"context"
	"fmt"
	"strings"

	"github.com/mindloop/voicecoach/pkg/coach"
)

// Analysis is the analyzer's verdict on one user message.
type Analysis struct {
	Emotion           string   `json:"emotion"`
	Intensity         float64  `json:"intensity"`
	Intent            string   `json:"intent"`
	Confidence        float64  `json:"confidence"`
	SecondaryEmotions []string `json:"secondary_emotions,omitempty"`
}

// Technique is a chosen coaching strategy with its rationale, plus why
// the alternatives were passed over.
type Technique struct {
	Name   string            `json:"technique"`
	Reason string            `json:"reason"`
	WhyNot map[string]string `json:"why_not,omitempty"`
}

// techniqueCatalog lists the coaching techniques the responder picks
// from, with the situations each suits best.
var techniqueCatalog = map[string][]string{
	"reflective_listening":   {"venting", "validation", "being heard"},
	"open_ended_questioning": {"exploration", "self-discovery", "clarity"},
	"cognitive_reframing":    {"negative thinking", "stuck patterns", "problem-solving"},
	"grounding_exercise":     {"anxiety", "overwhelm", "panic", "stress"},
	"validation":             {"emotional pain", "feeling invalidated", "sadness"},
	"strength_recognition":   {"low confidence", "hopelessness", "self-doubt"},
	"action_planning":        {"feeling stuck", "problem-solving", "motivation"},
}

// HistoryEntry is one prior turn given to the AI as context.
type HistoryEntry struct {
	Role      string
	Content   string
	Emotion   string
	Technique string
}

// Analyzer detects the user's emotional state.
type Analyzer interface {
	Analyze(ctx context.Context, message string, history []HistoryEntry) (Analysis, error)
}

// Responder picks a technique and writes the coach's reply.
type Responder interface {
	SelectTechnique(ctx context.Context, analysis Analysis, memory *Memory) (Technique, error)
	Respond(ctx context.Context, userMessage string, analysis Analysis, technique Technique, memory *Memory, history []HistoryEntry) (string, error)
	Welcome(ctx context.Context) (string, error)
}

// Synthesizer turns a reply into speech with an emotion-adapted voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, emotion string, intensity float64) ([]byte, coach.VoiceAdaptation, error)
}

// emotionCues drives the scripted analyzer's keyword detection.
var emotionCues = map[string][]string{
	"anxiety":     {"anxious", "anxiety", "worried", "nervous", "stress", "stressed", "panic"},
	"sadness":     {"sad", "down", "depressed", "crying", "miserable", "empty"},
	"anger":       {"angry", "furious", "mad", "annoyed", "resentful"},
	"frustration": {"frustrated", "frustrating", "stuck", "fed up"},
	"loneliness":  {"lonely", "alone", "isolated", "no one"},
	"fear":        {"afraid", "scared", "terrified", "fear"},
	"overwhelm":   {"overwhelmed", "overwhelming", "too much", "drowning"},
	"relief":      {"relieved", "relief", "lighter", "weight off"},
	"gratitude":   {"thank", "grateful", "appreciate"},
	"joy":         {"happy", "great", "wonderful", "excited", "joy"},
	"hope":        {"hopeful", "hope", "optimistic", "looking forward"},
	"calm":        {"calm", "calmer", "peaceful", "relaxed", "better now", "feel better"},
}

// ScriptedAnalyzer is a deterministic keyword analyzer for running the
// server without AI credentials, and for tests.
type ScriptedAnalyzer struct{}

func (ScriptedAnalyzer) Analyze(_ context.Context, message string, _ []HistoryEntry) (Analysis, error) {
	lower := strings.ToLower(message)
	best, hits := "neutral", 0
	var secondary []string
	for emotion, cues := range emotionCues {
		n := 0
		for _, cue := range cues {
			if strings.Contains(lower, cue) {
				n++
			}
		}
		if n > hits {
			if best != "neutral" {
				secondary = append(secondary, best)
			}
			best, hits = emotion, n
		} else if n > 0 {
			secondary = append(secondary, emotion)
		}
	}

	intensity := 0.5
	if hits > 1 {
		intensity = 0.8
	} else if hits == 1 {
		intensity = 0.6
	}
	if strings.Contains(lower, "really") || strings.Contains(lower, "so ") || strings.Contains(lower, "very") {
		intensity = min(intensity+0.15, 1.0)
	}

	intent := "sharing"
	switch {
	case strings.Contains(lower, "?") || strings.Contains(lower, "what should") || strings.Contains(lower, "how can"):
		intent = "seeking guidance"
	case hits > 0 && intensity >= 0.7:
		intent = "venting"
	}

	return Analysis{
		Emotion:           best,
		Intensity:         intensity,
		Intent:            intent,
		Confidence:        0.9,
		SecondaryEmotions: secondary,
	}, nil
}

// techniqueForEmotion is the scripted responder's selection table.
var techniqueForEmotion = map[string]string{
	"anxiety":      "grounding_exercise",
	"overwhelm":    "grounding_exercise",
	"panic":        "grounding_exercise",
	"fear":         "grounding_exercise",
	"sadness":      "validation",
	"loneliness":   "validation",
	"grief":        "validation",
	"anger":        "reflective_listening",
	"frustration":  "cognitive_reframing",
	"hopelessness": "strength_recognition",
	"relief":       "strength_recognition",
	"joy":          "strength_recognition",
	"gratitude":    "reflective_listening",
	"hope":         "action_planning",
	"calm":         "open_ended_questioning",
}

var responseTemplates = map[string]string{
	"grounding_exercise": "I can hear how much pressure you're under right now. " +
		"Let's slow things down together. Try a breathing exercise with me: " +
		"breathe in slowly for four counts, hold for seven, and exhale for eight. " +
		"How does your body feel as you do that?",
	"validation": "What you're feeling makes complete sense given what you're carrying. " +
		"You don't have to justify it or fix it right away. " +
		"I'm here with you. What feels heaviest at this moment?",
	"reflective_listening": "It sounds like %s has been taking up a lot of space for you lately. " +
		"I want to make sure I understand. What part of this weighs on you the most?",
	"cognitive_reframing": "I hear how stuck this feels. Sometimes a situation looks different " +
		"from another angle. If a close friend described this exact situation to you, " +
		"what would you notice that they can't see right now?",
	"strength_recognition": "I want to pause on something: you showed up and put words to this, " +
		"and that takes real strength. What has helped you get through moments like this before?",
	"action_planning": "It sounds like you're ready to move forward. " +
		"What's one small step, something tiny, that you could take this week? " +
		"We can start wherever feels manageable.",
	"open_ended_questioning": "Thank you for sharing that with me. " +
		"What's been on your mind the most today?",
}

const welcomeText = "Hi, I'm Aria. This is a space for whatever is on your mind. " +
	"There's no rush and no right way to do this. How are you feeling today?"

// ScriptedResponder is a deterministic rule-based responder used when
// no AI backend is configured.
type ScriptedResponder struct{}

func (ScriptedResponder) SelectTechnique(_ context.Context, analysis Analysis, memory *Memory) (Technique, error) {
	name, ok := techniqueForEmotion[analysis.Emotion]
	if !ok {
		name = "open_ended_questioning"
	}
	// Vary when one technique dominates the session.
	if memory != nil && memory.TechniquesUsed[name] >= 2 && name != "open_ended_questioning" {
		return Technique{
			Name:   "open_ended_questioning",
			Reason: fmt.Sprintf("%s already used %dx this session, varying the approach", name, memory.TechniquesUsed[name]),
			WhyNot: map[string]string{name: "overused this session"},
		}, nil
	}
	return Technique{
		Name:   name,
		Reason: fmt.Sprintf("best fit for %s (%s)", analysis.Emotion, analysis.Intent),
	}, nil
}

func (ScriptedResponder) Respond(_ context.Context, _ string, analysis Analysis, technique Technique, _ *Memory, _ []HistoryEntry) (string, error) {
	tpl, ok := responseTemplates[technique.Name]
	if !ok {
		tpl = responseTemplates["open_ended_questioning"]
	}
	if strings.Contains(tpl, "%s") {
		subject := analysis.Emotion
		if subject == "neutral" {
			subject = "this"
		}
		return fmt.Sprintf(tpl, subject), nil
	}
	return tpl, nil
}

func (ScriptedResponder) Welcome(context.Context) (string, error) {
	return welcomeText, nil
}

// SilentSynthesizer produces no audio. The client renders text only.
type SilentSynthesizer struct{}

func (SilentSynthesizer) Synthesize(_ context.Context, _, emotion string, intensity float64) ([]byte, coach.VoiceAdaptation, error) {
	_, adaptation := AdaptVoice(emotion, intensity)
	return nil, adaptation, nil
}
