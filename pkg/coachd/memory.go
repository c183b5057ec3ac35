package coachd

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Phase is the therapeutic stage of a conversation.
type Phase string

const (
	PhaseOpening     Phase = "opening"
	PhaseExploration Phase = "exploration"
	PhaseDeepening   Phase = "deepening"
	PhaseTechnique   Phase = "technique"
	PhaseIntegration Phase = "integration"
	PhaseClosing     Phase = "closing"
)

// Memory decay tuning. Emotions fade fast so stale feelings stop
// dominating the prompt; topics linger a little longer. Weights below
// the threshold are forgotten entirely.
const (
	emotionDecayFactor    = 0.7
	topicDecayFactor      = 0.85
	minRelevanceThreshold = 0.2
)

type phaseTransition struct {
	next         Phase
	minExchanges int
	signals      []string
}

var phaseTransitions = map[Phase]phaseTransition{
	PhaseOpening: {
		next:         PhaseExploration,
		minExchanges: 1,
		signals:      []string{"feel", "been feeling", "struggling", "help", "want to talk about", "going through"},
	},
	PhaseExploration: {
		next:         PhaseDeepening,
		minExchanges: 2,
		signals:      []string{"because", "think it's", "started when", "always", "never", "reminds me"},
	},
	PhaseDeepening: {
		next:         PhaseTechnique,
		minExchanges: 2,
		signals:      []string{"what should i", "how can i", "want to change", "need help", "what do you think"},
	},
	PhaseTechnique: {
		next:         PhaseIntegration,
		minExchanges: 2,
		signals:      []string{"that helps", "i see", "makes sense", "never thought of it", "feel better"},
	},
	PhaseIntegration: {
		next:         PhaseClosing,
		minExchanges: 1,
		signals:      []string{"thank you", "helpful", "going to try", "feel better", "appreciate"},
	},
}

var topicKeywords = map[string][]string{
	"work":          {"work", "job", "boss", "colleague", "deadline", "meeting", "career", "office"},
	"relationships": {"partner", "friend", "family", "mother", "father", "relationship", "dating", "marriage"},
	"health":        {"health", "sleep", "tired", "sick", "pain", "body", "eating"},
	"anxiety":       {"anxious", "worried", "nervous", "panic", "fear", "scared", "stress"},
	"sadness":       {"sad", "depressed", "hopeless", "crying", "lonely", "empty", "grief"},
	"anger":         {"angry", "frustrated", "annoyed", "mad", "furious", "resentful"},
	"self_worth":    {"worthless", "failure", "not good enough", "hate myself", "stupid", "useless"},
	"future":        {"future", "tomorrow", "next week", "goals", "plans", "dream"},
}

// Emotions that can carry a genuine breakthrough. A realization voiced
// in a negative state is more likely sarcasm or dismissal.
var positiveEmotions = map[string]bool{
	"joy": true, "relief": true, "gratitude": true, "hope": true,
	"hopeful": true, "calm": true, "curious": true, "peaceful": true,
	"content": true, "happy": true, "better": true, "good": true,
}

var breakthroughSignals = []string{
	"i realize", "i never thought", "that makes sense",
	"i see now", "i understand", "aha", "oh wow",
	"you're right", "i didn't think of it", "that's true",
	"that helps", "i feel better", "this is helping",
}

// ExerciseRecord is one completed guided exercise.
type ExerciseRecord struct {
	Kind     string `json:"exercise_type"`
	Outcome  string `json:"outcome"`
	Feedback string `json:"user_feedback,omitempty"`
}

// Memory is the per-session conversation memory: what the user has
// shared, how strongly each feeling still matters after decay, and how
// far the therapeutic arc has progressed.
type Memory struct {
	Phase            Phase
	ExchangesInPhase int
	TotalExchanges   int

	EmotionWeights map[string]float64
	Topics         []string
	TopicWeights   map[string]float64
	Insights       []string
	TechniquesUsed map[string]int
	Breakthroughs  []string
	Exercises      []ExerciseRecord
}

func newMemory() *Memory {
	return &Memory{
		Phase:          PhaseOpening,
		EmotionWeights: make(map[string]float64),
		TopicWeights:   make(map[string]float64),
		TechniquesUsed: make(map[string]int),
	}
}

// DominantEmotion returns the emotion with the highest decayed weight,
// or neutral when nothing is known.
func (m *Memory) DominantEmotion() (string, float64) {
	best, weight := "neutral", 0.5
	first := true
	for e, w := range m.EmotionWeights {
		if first || w > weight || (w == weight && e < best) {
			best, weight = e, w
			first = false
		}
	}
	return best, weight
}

// ContextString renders the memory as prompt context for the AI,
// including decayed weights so the model focuses on current feelings.
func (m *Memory) ContextString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CONVERSATION STATE:\n- Phase: %s (exchange %d in this phase)\n- Total exchanges: %d\n",
		strings.ToUpper(string(m.Phase)), m.ExchangesInPhase+1, m.TotalExchanges)

	if len(m.TopicWeights) > 0 {
		var topics []string
		for _, t := range m.Topics {
			if w := m.TopicWeights[t]; w >= minRelevanceThreshold {
				if w > 0.5 {
					topics = append(topics, t)
				} else {
					topics = append(topics, t+"(fading)")
				}
			}
		}
		if len(topics) > 0 {
			fmt.Fprintf(&b, "- User's topics: %s\n", strings.Join(topics, ", "))
		}
	}

	if len(m.EmotionWeights) > 0 {
		type ew struct {
			emotion string
			weight  float64
		}
		sorted := make([]ew, 0, len(m.EmotionWeights))
		for e, w := range m.EmotionWeights {
			sorted = append(sorted, ew{e, w})
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].weight > sorted[j].weight })
		var parts []string
		for _, x := range sorted {
			switch {
			case x.weight >= 0.7:
				parts = append(parts, fmt.Sprintf("%s(%.1f - strong)", x.emotion, x.weight))
			case x.weight >= 0.4:
				parts = append(parts, fmt.Sprintf("%s(%.1f)", x.emotion, x.weight))
			default:
				parts = append(parts, fmt.Sprintf("%s(%.1f - fading)", x.emotion, x.weight))
			}
		}
		dominant, weight := m.DominantEmotion()
		fmt.Fprintf(&b, "- CURRENT emotional state (with decay): %s\n", strings.Join(parts, ", "))
		fmt.Fprintf(&b, "- Dominant emotion NOW: %s (relevance: %.1f)\n", dominant, weight)
	}

	if len(m.Insights) > 0 {
		tail := m.Insights
		if len(tail) > 3 {
			tail = tail[len(tail)-3:]
		}
		fmt.Fprintf(&b, "- Key insights gathered: %s\n", strings.Join(tail, "; "))
	}
	if len(m.TechniquesUsed) > 0 {
		var parts []string
		for t, c := range m.TechniquesUsed {
			parts = append(parts, fmt.Sprintf("%s(%dx)", t, c))
		}
		sort.Strings(parts)
		fmt.Fprintf(&b, "- Techniques used: %s\n", strings.Join(parts, ", "))
	}
	if len(m.Breakthroughs) > 0 {
		tail := m.Breakthroughs
		if len(tail) > 2 {
			tail = tail[len(tail)-2:]
		}
		fmt.Fprintf(&b, "- Breakthroughs: %s\n", strings.Join(tail, "; "))
	}
	if len(m.Exercises) > 0 {
		var kinds []string
		for _, ex := range m.Exercises {
			kinds = append(kinds, ex.Kind)
		}
		fmt.Fprintf(&b, "- EXERCISES ALREADY COMPLETED: %s - do not suggest these again\n", strings.Join(kinds, ", "))
	}
	return b.String()
}

// MemoryManager tracks conversation memories by session and applies
// decay on every exchange. All state changes are published to the bus.
type MemoryManager struct {
	mu       sync.Mutex
	sessions map[string]*Memory
	bus      *Bus
}

// NewMemoryManager creates a manager publishing cognition events to
// bus. A nil bus disables event emission.
func NewMemoryManager(bus *Bus) *MemoryManager {
	return &MemoryManager{sessions: make(map[string]*Memory), bus: bus}
}

// Get returns the session's memory, creating it on first use.
func (mm *MemoryManager) Get(sessionID string) *Memory {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.getLocked(sessionID)
}

func (mm *MemoryManager) getLocked(sessionID string) *Memory {
	m, ok := mm.sessions[sessionID]
	if !ok {
		m = newMemory()
		mm.sessions[sessionID] = m
	}
	return m
}

// Forget drops a session's memory.
func (mm *MemoryManager) Forget(sessionID string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	delete(mm.sessions, sessionID)
}

func (mm *MemoryManager) emit(sessionID string, turn int, eventType, reason string, data map[string]any) {
	if mm.bus == nil {
		return
	}
	mm.bus.Publish(Event{
		Type:       eventType,
		SessionID:  sessionID,
		TurnNumber: turn,
		Data:       data,
		Reason:     reason,
	})
}

// Update records one completed exchange: decays old memories, blends
// in the new emotion, tracks topics, insights, technique usage, phase
// transitions, and breakthroughs.
func (mm *MemoryManager) Update(sessionID, userMessage, emotion string, intensity float64, technique string) *Memory {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	m := mm.getLocked(sessionID)
	previousPhase := m.Phase

	mm.decayLocked(sessionID, m)

	m.TotalExchanges++
	m.ExchangesInPhase++
	turn := m.TotalExchanges

	// Blend the emotion weight instead of overwriting so feelings stay
	// continuous across turns.
	previous := m.EmotionWeights[emotion]
	if previous > 0 {
		m.EmotionWeights[emotion] = max(previous*0.6+intensity*0.4, intensity*0.8)
	} else {
		m.EmotionWeights[emotion] = intensity * 0.9
	}
	reason := fmt.Sprintf("Detected new emotion %q (intensity %.1f) from user's words", emotion, intensity)
	if previous > 0 {
		reason = fmt.Sprintf("User reinforced existing emotion %q - blended from %.1f to %.1f", emotion, previous, m.EmotionWeights[emotion])
	}
	mm.emit(sessionID, turn, "memory.emotion.detected", reason, map[string]any{
		"emotion":         emotion,
		"intensity":       intensity,
		"previous_weight": previous,
		"is_new":          previous == 0,
	})

	lower := strings.ToLower(userMessage)
	var newTopics []string
	for topic, keywords := range topicKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				if _, known := m.TopicWeights[topic]; !known && !slices.Contains(m.Topics, topic) {
					m.Topics = append(m.Topics, topic)
					newTopics = append(newTopics, topic)
				}
				m.TopicWeights[topic] = 1.0
				break
			}
		}
	}
	if len(newTopics) > 0 {
		sort.Strings(newTopics)
		mm.emit(sessionID, turn, "memory.topic.identified",
			fmt.Sprintf("User introduced new topic(s): %s", strings.Join(newTopics, ", ")),
			map[string]any{"new_topics": newTopics, "all_topics": m.Topics})
	}

	if insight := extractInsight(userMessage, emotion); insight != "" && !slices.Contains(m.Insights, insight) {
		m.Insights = append(m.Insights, insight)
		mm.emit(sessionID, turn, "memory.insight.extracted",
			fmt.Sprintf("User expressed meaningful insight during %s state", emotion),
			map[string]any{"insight": insight, "total_insights": len(m.Insights)})
	}

	if technique != "" {
		m.TechniquesUsed[technique]++
		mm.emit(sessionID, turn, "memory.technique.used",
			fmt.Sprintf("Applied %q (%dx this session)", technique, m.TechniquesUsed[technique]),
			map[string]any{"technique": technique, "usage_count": m.TechniquesUsed[technique]})
	}

	mm.transitionPhaseLocked(m, lower)
	if m.Phase != previousPhase {
		mm.emit(sessionID, turn, "memory.phase.transitioned",
			fmt.Sprintf("User signals moved the conversation from %s to %s", previousPhase, m.Phase),
			map[string]any{"from_phase": string(previousPhase), "to_phase": string(m.Phase)})
	}

	if bt := detectBreakthrough(userMessage, emotion); bt != "" {
		m.Breakthroughs = append(m.Breakthroughs, bt)
		mm.emit(sessionID, turn, "memory.breakthrough.detected",
			"User showed a moment of clarity - a significant therapeutic moment",
			map[string]any{"breakthrough": bt, "total_breakthroughs": len(m.Breakthroughs)})
	}

	dominant, weight := m.DominantEmotion()
	mm.emit(sessionID, turn, "memory.state.updated",
		fmt.Sprintf("Turn %d complete. User feeling primarily %s (%.0f%% relevance). Phase: %s.",
			m.TotalExchanges, dominant, weight*100, m.Phase),
		map[string]any{
			"exchange_number":  m.TotalExchanges,
			"phase":            string(m.Phase),
			"dominant_emotion": dominant,
		})

	return m
}

// LogExercise records a completed guided exercise so the responder
// stops suggesting it.
func (mm *MemoryManager) LogExercise(sessionID, kind, outcome, feedback string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	m := mm.getLocked(sessionID)
	m.Exercises = append(m.Exercises, ExerciseRecord{Kind: kind, Outcome: outcome, Feedback: feedback})
	mm.emit(sessionID, m.TotalExchanges, "memory.exercise.completed",
		fmt.Sprintf("User completed a %s exercise (%s)", kind, outcome),
		map[string]any{"exercise_type": kind, "outcome": outcome})
}

var exerciseDoneSignals = []string{
	"finished the", "completed the", "just did the", "i did the", "done with the",
}

var exerciseHelpedSignals = []string{
	"help", "better", "calmer", "calm now", "good", "great", "nice", "relaxed",
}

// DetectExerciseFeedback recognizes the user reporting a finished
// guided exercise and classifies which one and how it went.
func DetectExerciseFeedback(transcript string) (kind, outcome string, ok bool) {
	lower := strings.ToLower(transcript)
	done := false
	for _, sig := range exerciseDoneSignals {
		if strings.Contains(lower, sig) {
			done = true
			break
		}
	}
	if !done || !strings.Contains(lower, "exercise") {
		return "", "", false
	}
	switch {
	case strings.Contains(lower, "breath"):
		kind = "breathing"
	case strings.Contains(lower, "ground") || strings.Contains(lower, "5-4-3-2-1"):
		kind = "grounding"
	default:
		kind = "guided"
	}
	outcome = "completed"
	for _, sig := range exerciseHelpedSignals {
		if strings.Contains(lower, sig) {
			outcome = "helpful"
			break
		}
	}
	return kind, outcome, true
}

// MemoryState is a point-in-time view of one session's memory for the
// state introspection endpoint.
type MemoryState struct {
	Phase            Phase            `json:"phase"`
	ExchangesInPhase int              `json:"exchanges_in_phase"`
	TotalExchanges   int              `json:"total_exchanges"`
	DominantEmotion  string           `json:"dominant_emotion"`
	EmotionWeight    float64          `json:"emotion_weight"`
	Topics           []string         `json:"topics,omitempty"`
	Insights         []string         `json:"insights,omitempty"`
	Breakthroughs    []string         `json:"breakthroughs,omitempty"`
	TechniquesUsed   map[string]int   `json:"techniques_used,omitempty"`
	Exercises        []ExerciseRecord `json:"exercises,omitempty"`
}

// State returns a copy of the session's memory safe to serialize.
func (mm *MemoryManager) State(sessionID string) MemoryState {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	m := mm.getLocked(sessionID)
	emotion, weight := m.DominantEmotion()
	st := MemoryState{
		Phase:            m.Phase,
		ExchangesInPhase: m.ExchangesInPhase,
		TotalExchanges:   m.TotalExchanges,
		DominantEmotion:  emotion,
		EmotionWeight:    weight,
		Topics:           slices.Clone(m.Topics),
		Insights:         slices.Clone(m.Insights),
		Breakthroughs:    slices.Clone(m.Breakthroughs),
		Exercises:        slices.Clone(m.Exercises),
	}
	if len(m.TechniquesUsed) > 0 {
		st.TechniquesUsed = maps.Clone(m.TechniquesUsed)
	}
	return st
}

func (mm *MemoryManager) decayLocked(sessionID string, m *Memory) {
	turn := m.TotalExchanges
	for emotion, weight := range m.EmotionWeights {
		next := weight * emotionDecayFactor
		if next < minRelevanceThreshold {
			delete(m.EmotionWeights, emotion)
			mm.emit(sessionID, turn, "memory.emotion.faded",
				fmt.Sprintf("%q dropped below the relevance threshold - user hasn't mentioned this feeling recently", emotion),
				map[string]any{"emotion": emotion})
		} else {
			m.EmotionWeights[emotion] = next
		}
	}
	for topic, weight := range m.TopicWeights {
		next := weight * topicDecayFactor
		if next < minRelevanceThreshold {
			delete(m.TopicWeights, topic)
		} else {
			m.TopicWeights[topic] = next
		}
	}
}

func (mm *MemoryManager) transitionPhaseLocked(m *Memory, lowerMessage string) {
	tr, ok := phaseTransitions[m.Phase]
	if !ok || m.ExchangesInPhase < tr.minExchanges {
		return
	}
	for _, signal := range tr.signals {
		if strings.Contains(lowerMessage, signal) {
			m.Phase = tr.next
			m.ExchangesInPhase = 0
			return
		}
	}
}

// SuggestClosure reports whether the session looks positively resolved
// enough to propose ending it: at least four exchanges, a sufficiently
// intense positive emotion, and either a breakthrough or a late phase.
func (mm *MemoryManager) SuggestClosure(sessionID, emotion string, intensity float64) bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	m := mm.getLocked(sessionID)

	if m.TotalExchanges < 4 {
		return false
	}
	if !positiveEmotions[strings.ToLower(emotion)] {
		return false
	}
	if intensity < 0.5 {
		return false
	}
	latePhase := m.Phase == PhaseTechnique || m.Phase == PhaseIntegration || m.Phase == PhaseClosing
	return len(m.Breakthroughs) > 0 || latePhase
}

func extractInsight(message, emotion string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"because", "since", "when", "after", "before", "makes me"} {
		if idx := strings.Index(lower, pattern); idx >= 0 {
			start := max(0, idx-20)
			end := min(len(message), idx+50)
			return fmt.Sprintf("User feels %s %s...", emotion, strings.TrimSpace(message[start:end]))
		}
	}
	for _, pattern := range []string{"i think", "i feel like", "i believe", "i always", "i never"} {
		if idx := strings.Index(lower, pattern); idx >= 0 {
			end := min(len(message), idx+60)
			return fmt.Sprintf("Core belief: %q", strings.TrimSpace(message[idx:end]))
		}
	}
	return ""
}

func detectBreakthrough(message, emotion string) string {
	if !positiveEmotions[strings.ToLower(emotion)] {
		return ""
	}
	lower := strings.ToLower(message)
	for _, signal := range breakthroughSignals {
		if strings.Contains(lower, signal) {
			trimmed := message
			if len(trimmed) > 60 {
				trimmed = trimmed[:60]
			}
			return fmt.Sprintf("User had insight: %q", trimmed)
		}
	}
	return ""
}
