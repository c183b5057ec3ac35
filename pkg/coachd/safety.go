package coachd

import (
	"regexp"
	"strings"

	"github.com/mindloop/voicecoach/pkg/coach"
)

// Severity grades crisis indicators found in user speech.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// SafetyResult is the outcome of screening one user message.
type SafetyResult struct {
	Crisis          bool
	Severity        Severity
	Keywords        []string
	Resources       []coach.Resource
	RequiresHandoff bool
}

var crisisPatterns = map[Severity][]*regexp.Regexp{
	SeverityCritical: compileAll(
		`\b(suicide|suicidal)\b`,
		`\bkill (myself|me)\b`,
		`\bend (my|it all|everything)\b`,
		`\bdon'?t want to (live|be alive|exist)\b`,
		`\bbetter off dead\b`,
		`\bno reason to live\b`,
		`\bplan to (die|end it)\b`,
	),
	SeverityHigh: compileAll(
		`\bself[- ]?harm\b`,
		`\bhurt (myself|me)\b`,
		`\bcut(ting)? (myself|me)\b`,
		`\bwant to (die|disappear)\b`,
		`\bcan'?t (go on|take it|do this)\b`,
		`\bgive up\b`,
		`\bhopeless\b`,
	),
	SeverityMedium: compileAll(
		`\bworthless\b`,
		`\buseless\b`,
		`\bburden\b`,
		`\bno one (cares|would miss)\b`,
		`\bwhat'?s the point\b`,
		`\bgive up on life\b`,
	),
}

// Phrasings that suggest the user is asking about methods. Any hit
// escalates an already-flagged message to at least high severity.
var methodIndicators = []string{
	"how to", "ways to", "best way to", "easiest way to",
}

var crisisResources = []coach.Resource{
	{
		Name:        "988 Suicide and Crisis Lifeline",
		Phone:       "988",
		Description: "24/7 crisis support - call or text",
		URL:         "https://988lifeline.org",
	},
	{
		Name:        "Crisis Text Line",
		Text:        "HOME to 741741",
		Description: "Text-based crisis support",
	},
	{
		Name:        "SAMHSA National Helpline",
		Phone:       "1-800-662-4357",
		Description: "Treatment referral and information",
	},
	{
		Name:        "International Association for Suicide Prevention",
		URL:         "https://www.iasp.info/resources/Crisis_Centres/",
		Description: "Directory of crisis centers worldwide",
	},
}

var unsafeReplyPatterns = compileAll(
	`\bshould (take|use) (medication|drugs)\b`,
	`\bdiagnos(e|is|ed)\b`,
	`\byou (have|suffer from) (depression|anxiety|bipolar)\b`,
	`\bstop (taking|your) medication\b`,
	`\bdon'?t (need|see) (a )?(therapist|doctor|professional)\b`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// SafetyEvaluator screens user messages for crisis indicators before
// any AI processing, and checks generated replies for advice the coach
// must never give.
type SafetyEvaluator struct{}

// Evaluate screens one user message. Severities high and critical are
// treated as a crisis; critical additionally asks for a human handoff.
func (SafetyEvaluator) Evaluate(text string) SafetyResult {
	var detected []string
	max := SeverityNone
	for severity, patterns := range crisisPatterns {
		for _, re := range patterns {
			matches := re.FindAllString(text, -1)
			if len(matches) == 0 {
				continue
			}
			detected = append(detected, matches...)
			if severity > max {
				max = severity
			}
		}
	}

	if max != SeverityNone && max < SeverityHigh {
		lower := strings.ToLower(text)
		for _, ind := range methodIndicators {
			if strings.Contains(lower, ind) {
				max = SeverityHigh
				break
			}
		}
	}

	result := SafetyResult{
		Severity:        max,
		Keywords:        dedupe(detected),
		Crisis:          max >= SeverityHigh,
		RequiresHandoff: max == SeverityCritical,
	}
	if max >= SeverityMedium {
		result.Resources = crisisResources
	}
	return result
}

// ReplySafe reports whether a generated coach reply is free of the
// advice patterns the coach must never produce.
func (SafetyEvaluator) ReplySafe(reply string) bool {
	for _, re := range unsafeReplyPatterns {
		if re.MatchString(reply) {
			return false
		}
	}
	return true
}

// CrisisResponse is the spoken message for a crisis of the given
// severity.
func (r SafetyResult) CrisisResponse() string {
	switch r.Severity {
	case SeverityCritical:
		return "I can hear that you're going through something really difficult right now. " +
			"What you're feeling matters, and I want you to know that support is available. " +
			"Please reach out to a crisis helpline where trained counselors are available 24/7. " +
			"In the US, you can call or text 988 for the Suicide and Crisis Lifeline. " +
			"Would you like me to share more resources?"
	case SeverityHigh:
		return "I'm concerned about what you're sharing, and I want to make sure you have the support you need. " +
			"These feelings can be overwhelming, but you don't have to face them alone. " +
			"There are people who specialize in helping with exactly what you're going through. " +
			"Can we talk about getting you connected with someone who can help?"
	default:
		return "It sounds like you're dealing with some heavy thoughts. " +
			"I'm here to listen, and I want to make sure you're okay. " +
			"How are you feeling right now?"
	}
}

func dedupe(vals []string) []string {
	seen := make(map[string]bool, len(vals))
	var out []string
	for _, v := range vals {
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
