package coachd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/mindloop/voicecoach/pkg/coach"
)

// historyWindow is how many stored turns feed the AI prompt.
const historyWindow = 4

// safeFallbackReply replaces a generated response that tripped the
// output safety screen.
const safeFallbackReply = "I hear you, and what you're feeling matters. " +
	"I'm not able to give medical advice, but I'm here to listen. " +
	"Can you tell me more about what's going on for you?"

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sessions.Get(r.Context(), id); err != nil {
		s.writeSessionError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sc := &sessionConn{
		srv:       s,
		conn:      conn,
		sessionID: id,
		logger:    s.logger.With("session_id", id),
	}
	sc.run(r.Context())
}

// sessionConn is one realtime connection to a session. All reads and
// writes happen on the run goroutine, so no write lock is needed.
type sessionConn struct {
	srv       *Server
	conn      *websocket.Conn
	sessionID string
	logger    *slog.Logger
}

func (sc *sessionConn) run(ctx context.Context) {
	defer sc.conn.Close()
	sc.logger.Info("session connected")
	for {
		_, data, err := sc.conn.ReadMessage()
		if err != nil {
			// The client may come back on a fresh socket, so the
			// session stays open until it is ended explicitly.
			sc.logger.Info("session disconnected", "error", err)
			return
		}
		var ev coach.ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			sc.sendError("decode", "malformed event")
			continue
		}
		switch ev.Type {
		case coach.EventPing:
			sc.send(map[string]string{"type": coach.EventPong})
		case coach.EventRequestWelcome:
			sc.welcome(ctx)
		case coach.EventUserSpeech:
			if strings.TrimSpace(ev.Transcript) == "" {
				continue
			}
			sc.turn(ctx, ev)
		default:
			sc.logger.Warn("unknown client event", "type", ev.Type)
		}
	}
}

func (sc *sessionConn) welcome(ctx context.Context) {
	srv := sc.srv
	text, err := srv.responder.Welcome(ctx)
	if err != nil {
		sc.sendError("welcome", "welcome generation failed: "+err.Error())
		return
	}
	audio, _, err := srv.synth.Synthesize(ctx, text, "neutral", 0.3)
	if err != nil {
		sc.logger.Warn("welcome synthesis failed", "error", err)
	}
	sc.send(map[string]any{
		"type":         coach.EventCoachResponse,
		"text":         text,
		"audio_base64": encodeAudio(audio),
	})
}

// turn runs the full coaching pipeline for one user utterance: safety
// screen, emotion analysis, technique selection, response generation,
// speech synthesis, memory update, persistence.
func (sc *sessionConn) turn(ctx context.Context, ev coach.ClientEvent) {
	srv := sc.srv
	turnNo := srv.memory.Get(sc.sessionID).TotalExchanges + 1

	safety := srv.safety.Evaluate(ev.Transcript)
	if safety.Crisis {
		sc.crisis(ctx, ev, safety, turnNo)
		return
	}

	if kind, outcome, ok := DetectExerciseFeedback(ev.Transcript); ok {
		srv.memory.LogExercise(sc.sessionID, kind, outcome, ev.Transcript)
	}

	history := sc.history(ctx)

	analysis, err := srv.analyzer.Analyze(ctx, ev.Transcript, history)
	if err != nil {
		sc.sendError("emotion_analysis", "Emotion analysis failed: "+err.Error())
		return
	}
	srv.bus.Publish(Event{
		Type:       "ai.emotion.analyzed",
		SessionID:  sc.sessionID,
		TurnNumber: turnNo,
		Data: map[string]any{
			"emotion":    analysis.Emotion,
			"intensity":  analysis.Intensity,
			"intent":     analysis.Intent,
			"confidence": analysis.Confidence,
		},
		Reason: "analyzed user utterance",
	})

	mem := srv.memory.Get(sc.sessionID)
	technique, err := srv.responder.SelectTechnique(ctx, analysis, mem)
	if err != nil {
		sc.sendError("technique_selection", "Technique selection failed: "+err.Error())
		return
	}
	srv.bus.Publish(Event{
		Type:       "ai.technique.selected",
		SessionID:  sc.sessionID,
		TurnNumber: turnNo,
		Data: map[string]any{
			"technique": technique.Name,
			"why_not":   technique.WhyNot,
		},
		Reason: technique.Reason,
	})

	reply, err := srv.responder.Respond(ctx, ev.Transcript, analysis, technique, mem, history)
	if err != nil {
		sc.sendError("response_generation", "Response generation failed: "+err.Error())
		return
	}
	if !srv.safety.ReplySafe(reply) {
		sc.logger.Warn("generated reply failed output screen", "turn", turnNo)
		srv.bus.Publish(Event{
			Type:       "ai.response.replaced",
			SessionID:  sc.sessionID,
			TurnNumber: turnNo,
			Reason:     "generated reply tripped the output safety screen",
		})
		reply = safeFallbackReply
	}

	audio, adaptation, err := srv.synth.Synthesize(ctx, reply, analysis.Emotion, analysis.Intensity)
	if err != nil {
		// Text still goes out when the voice backend is down.
		sc.logger.Warn("speech synthesis failed", "error", err)
		audio = nil
	}
	srv.bus.Publish(Event{
		Type:       "ai.voice.adapted",
		SessionID:  sc.sessionID,
		TurnNumber: turnNo,
		Data: map[string]any{
			"profile":        adaptation.ProfileUsed,
			"speed_modifier": adaptation.SpeedModifier,
		},
		Reason: "matched voice delivery to detected emotion",
	})

	mem = srv.memory.Update(sc.sessionID, ev.Transcript, analysis.Emotion, analysis.Intensity, technique.Name)

	if _, err := srv.sessions.AppendTurn(ctx, sc.sessionID, TurnRecord{
		UserMessage:   ev.Transcript,
		CoachResponse: reply,
		Emotion:       analysis.Emotion,
		Intensity:     analysis.Intensity,
		Technique:     technique.Name,
	}); err != nil {
		sc.logger.Error("persist turn failed", "error", err)
	}

	sc.send(map[string]any{
		"type":         coach.EventCoachResponse,
		"text":         reply,
		"audio_base64": encodeAudio(audio),
		"emotion":      analysis.Emotion,
		"technique":    technique.Name,
		"intensity":    analysis.Intensity,
		"ai_decisions": &coach.AIDecisions{
			EmotionAnalysis: &coach.EmotionAnalysis{
				Emotion:    analysis.Emotion,
				Intensity:  analysis.Intensity,
				Confidence: analysis.Confidence,
				Intent:     analysis.Intent,
			},
			TechniqueSelection: &coach.TechniqueSelection{
				Technique: technique.Name,
				Reason:    technique.Reason,
				WhyNot:    technique.WhyNot,
			},
			VoiceAdaptation: &adaptation,
		},
	})

	if srv.memory.SuggestClosure(sc.sessionID, analysis.Emotion, analysis.Intensity) {
		sc.send(map[string]any{
			"type":   coach.EventSessionClosureReady,
			"reason": "positive_resolution",
			"wellness_indicators": &coach.WellnessIndicators{
				PositiveEmotion: analysis.Emotion,
				TotalTurns:      mem.TotalExchanges,
				Breakthroughs:   len(mem.Breakthroughs),
				Phase:           string(mem.Phase),
			},
		})
	}
}

// crisis short-circuits the coaching pipeline and answers with the
// scripted crisis response plus support resources.
func (sc *sessionConn) crisis(ctx context.Context, ev coach.ClientEvent, safety SafetyResult, turnNo int) {
	srv := sc.srv
	sc.logger.Warn("crisis detected",
		"severity", safety.Severity.String(),
		"keywords", safety.Keywords,
		"handoff", safety.RequiresHandoff)
	srv.bus.Publish(Event{
		Type:       "safety.crisis_detected",
		SessionID:  sc.sessionID,
		TurnNumber: turnNo,
		Data: map[string]any{
			"severity":         safety.Severity.String(),
			"keywords":         safety.Keywords,
			"requires_handoff": safety.RequiresHandoff,
		},
		Reason: "crisis language in user speech",
	})

	text := safety.CrisisResponse()
	audio, _, err := srv.synth.Synthesize(ctx, text, "calm", 0.8)
	if err != nil {
		sc.logger.Warn("crisis synthesis failed", "error", err)
	}

	if _, err := srv.sessions.AppendTurn(ctx, sc.sessionID, TurnRecord{
		UserMessage:   ev.Transcript,
		CoachResponse: text,
		Emotion:       "crisis",
		Intensity:     1,
		Technique:     "safety_protocol",
	}); err != nil {
		sc.logger.Error("persist crisis turn failed", "error", err)
	}

	sc.send(map[string]any{
		"type":         coach.EventSafetyAlert,
		"text":         text,
		"audio_base64": encodeAudio(audio),
		"resources":    safety.Resources,
	})
}

// history loads the tail of the stored transcript as prompt context.
func (sc *sessionConn) history(ctx context.Context) []HistoryEntry {
	turns, err := sc.srv.sessions.Turns(ctx, sc.sessionID)
	if err != nil {
		sc.logger.Warn("load history failed", "error", err)
		return nil
	}
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	entries := make([]HistoryEntry, 0, 2*len(turns))
	for _, t := range turns {
		entries = append(entries,
			HistoryEntry{Role: "user", Content: t.UserMessage, Emotion: t.Emotion},
			HistoryEntry{Role: "coach", Content: t.CoachResponse, Technique: t.Technique})
	}
	return entries
}

func (sc *sessionConn) send(v any) {
	if err := sc.conn.WriteJSON(v); err != nil {
		sc.logger.Warn("write failed", "error", err)
	}
}

func (sc *sessionConn) sendError(stage, message string) {
	sc.send(map[string]string{
		"type":    coach.EventError,
		"message": message,
		"stage":   stage,
	})
}

func encodeAudio(audio []byte) string {
	if len(audio) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(audio)
}
