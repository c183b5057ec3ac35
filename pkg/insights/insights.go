// Package insights derives presentation-facing session analytics from
// the accumulated emotion history and conversation turns. Everything
// here is a pure function recomputed on read; the inputs are already
// labeled by the coach server, nothing is inferred from raw audio.
package insights

import (
	"regexp"
	"strings"

	"github.com/mindloop/voicecoach/pkg/jsontime"
)

// Point is one labeled emotion observation, appended per coach
// response that carries an emotion.
type Point struct {
	Time      jsontime.Milli `json:"timestamp"`
	Emotion   string         `json:"emotion"`
	Intensity float64        `json:"intensity"`
	Technique string         `json:"technique,omitempty"`
}

// Trend classifies the direction of an emotion history.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// categoryScores maps emotion labels to signed category scores.
// Unlisted labels count as neutral.
var categoryScores = map[string]float64{
	"anxiety":      -1,
	"sadness":      -1,
	"anger":        -1,
	"fear":         -1,
	"frustration":  -1,
	"loneliness":   -1,
	"overwhelm":    -1,
	"hopelessness": -1,
	"grief":        -1,
	"panic":        -1,
	"shame":        -1,

	"joy":       1,
	"relief":    1,
	"gratitude": 1,
	"hope":      1,
	"calm":      1,
	"pride":     1,
}

// Score returns the signed category score of an emotion label:
// -1 negative, 0 neutral, +1 positive.
func Score(emotion string) float64 {
	return categoryScores[strings.ToLower(strings.TrimSpace(emotion))]
}

// Dominant returns the most frequent emotion label, or "" for an empty
// history. Ties break toward the label seen earliest.
func Dominant(points []Point) string {
	counts := make(map[string]int, len(points))
	best, bestCount := "", 0
	for _, p := range points {
		counts[p.Emotion]++
		if counts[p.Emotion] > bestCount {
			best, bestCount = p.Emotion, counts[p.Emotion]
		}
	}
	return best
}

// TrendOf compares the mean category score of the last three points
// against an earlier window of up to three points. Histories shorter
// than three points are always stable.
func TrendOf(points []Point) Trend {
	if len(points) < 3 {
		return TrendStable
	}
	recent := points[len(points)-3:]
	earlier := points[:len(points)-3]
	if len(earlier) > 3 {
		earlier = earlier[:3]
	}
	if len(earlier) == 0 {
		earlier = points[:1]
	}
	diff := meanScore(recent) - meanScore(earlier)
	switch {
	case diff > 0.3:
		return TrendImproving
	case diff < -0.3:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func meanScore(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += Score(p.Emotion)
	}
	return sum / float64(len(points))
}

// WellnessScore summarizes a session's emotional trajectory as a
// number in [0,100]. An empty history scores 50. The score starts at
// 50, rewards ending on a positive note and an overall positive shift,
// and adds up to 20 for the fraction of positive or neutral points.
func WellnessScore(points []Point) int {
	if len(points) == 0 {
		return 50
	}
	score := 50.0

	switch finalCat := Score(points[len(points)-1].Emotion); {
	case finalCat > 0:
		score += 40
	case finalCat == 0:
		score += 20
	default:
		score -= 10
	}

	shift := Score(points[len(points)-1].Emotion) - Score(points[0].Emotion)
	switch {
	case shift > 0:
		score += 30
	case shift == 0:
		score += 10
	default:
		score -= 15
	}

	var weight float64
	for _, p := range points {
		switch cat := Score(p.Emotion); {
		case cat > 0:
			weight += 1
		case cat == 0:
			weight += 0.5
		}
	}
	score += 20 * weight / float64(len(points))

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(score)
}

// insightRule maps co-occurring phrasing in user turns to one canned
// insight string.
type insightRule struct {
	patterns []*regexp.Regexp // all must match the combined user text
	insight  string
}

var insightRules = []insightRule{
	{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bi\s+(realize|realized|see\s+now|understand\s+now|never\s+thought|didn't\s+know)\b`),
		},
		insight: "You reached a new realization about your situation.",
	},
	{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(work|job|boss|deadline|meeting)s?\b`),
			regexp.MustCompile(`(?i)\b(stress(ed)?|overwhelm(ed|ing)?|pressure|anxious|anxiety)\b`),
		},
		insight: "Work pressure came up as a recurring source of stress.",
	},
	{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(sleep|insomnia|tired|exhaust(ed|ing))\b`),
		},
		insight: "Sleep and energy levels are affecting how you feel.",
	},
	{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(partner|friend|family|mother|father|relationship|alone|lonely)\b`),
		},
		insight: "Relationships were central to this conversation.",
	},
	{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(breath(e|ing)?|grounding|exercise)\b`),
			regexp.MustCompile(`(?i)\b(help(ed|s)?|better|calmer|easier)\b`),
		},
		insight: "Coping exercises made a noticeable difference for you.",
	},
}

const maxInsights = 4

// KeyInsights runs the insight rules over the user-side turn text and
// returns matching canned insights, de-duplicated and capped at four.
func KeyInsights(userTexts []string) []string {
	combined := strings.Join(userTexts, "\n")
	var out []string
	seen := make(map[string]bool)
	for _, rule := range insightRules {
		matched := true
		for _, re := range rule.patterns {
			if !re.MatchString(combined) {
				matched = false
				break
			}
		}
		if !matched || seen[rule.insight] {
			continue
		}
		seen[rule.insight] = true
		out = append(out, rule.insight)
		if len(out) == maxInsights {
			break
		}
	}
	return out
}

// Summary is the end-of-session view shown before teardown.
type Summary struct {
	DominantEmotion string   `json:"dominant_emotion,omitempty"`
	Trend           Trend    `json:"trend"`
	WellnessScore   int      `json:"wellness_score"`
	KeyInsights     []string `json:"key_insights,omitempty"`
	EmotionPoints   int      `json:"emotion_points"`
	UserTurns       int      `json:"user_turns"`
	CoachTurns      int      `json:"coach_turns"`
}

// Summarize derives the full session summary from the emotion history
// and the user/coach turn texts.
func Summarize(points []Point, userTexts, coachTexts []string) Summary {
	return Summary{
		DominantEmotion: Dominant(points),
		Trend:           TrendOf(points),
		WellnessScore:   WellnessScore(points),
		KeyInsights:     KeyInsights(userTexts),
		EmotionPoints:   len(points),
		UserTurns:       len(userTexts),
		CoachTurns:      len(coachTexts),
	}
}
