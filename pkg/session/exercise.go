package session

import "strings"

// Exercise is a guided exercise the client can walk the user through
// when the coach suggests one.
type Exercise struct {
	Kind  string   `json:"kind"`
	Title string   `json:"title"`
	Steps []string `json:"steps"`
}

var exercises = map[string]Exercise{
	"breathing": {
		Kind:  "breathing",
		Title: "4-7-8 Breathing",
		Steps: []string{
			"Sit comfortably and let your shoulders drop",
			"Breathe in through your nose for 4 counts",
			"Hold your breath for 7 counts",
			"Exhale slowly through your mouth for 8 counts",
			"Repeat for four full cycles",
		},
	},
	"grounding": {
		Kind:  "grounding",
		Title: "5-4-3-2-1 Grounding",
		Steps: []string{
			"Name 5 things you can see",
			"Name 4 things you can touch",
			"Name 3 things you can hear",
			"Name 2 things you can smell",
			"Name 1 thing you can taste",
		},
	},
}

var exerciseKeywords = map[string][]string{
	"breathing": {
		"breathing exercise", "breathe with me", "deep breath",
		"inhale", "exhale", "4-7-8", "box breathing",
	},
	"grounding": {
		"grounding", "5-4-3-2-1", "five things you can see",
		"notice your surroundings", "feel your feet",
	},
}

var exerciseTechniques = map[string]string{
	"breathing_exercise":  "breathing",
	"grounding_technique": "grounding",
}

// DetectExercise checks a coach turn's technique label and text for an
// exercise suggestion.
func DetectExercise(technique, text string) (Exercise, bool) {
	if kind, ok := exerciseTechniques[technique]; ok {
		return exercises[kind], true
	}
	lower := strings.ToLower(text)
	for kind, words := range exerciseKeywords {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return exercises[kind], true
			}
		}
	}
	return Exercise{}, false
}
