// Package heart is the proactive-behavior core of the agent: an
// adaptive flow loop, a graded emotion engine, bounded working memory
// with promotion to long-term storage, a memory strength model, and a
// priority-gated speech dispatcher. A Coordinator wires them together.
package heart

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidConfig is wrapped by all construction-time validation errors.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNotFound is returned when a referenced turn or record does not exist.
	ErrNotFound = errors.New("not found")
)

// Emotion is a closed set of affective labels.
type Emotion string

const (
	EmotionNeutral Emotion = "neutral"
	EmotionHappy   Emotion = "happy"
	EmotionExcited Emotion = "excited"
	EmotionCalm    Emotion = "calm"
	EmotionCurious Emotion = "curious"
	EmotionSad     Emotion = "sad"
	EmotionAnxious Emotion = "anxious"
	EmotionAngry   Emotion = "angry"
)

// Valid reports whether e is one of the known emotion labels.
func (e Emotion) Valid() bool {
	switch e {
	case EmotionNeutral, EmotionHappy, EmotionExcited, EmotionCalm,
		EmotionCurious, EmotionSad, EmotionAnxious, EmotionAngry:
		return true
	}
	return false
}

// Priority ranks speech events for gating.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// Action types reported by the actor.
const (
	ActionSpeak   = "speak"
	ActionSilence = "silence"
)

// Perception is one environment snapshot taken at the top of a cycle.
type Perception struct {
	CurrentEmotion       Emotion       `json:"current_emotion"`
	EmotionIntensity     float64       `json:"emotion_intensity"` // 0..1
	HasRecentMessages    bool          `json:"has_recent_messages"`
	TimeSinceInteraction time.Duration `json:"time_since_interaction"`
	EnvironmentNoise     float64       `json:"environment_noise"` // 0..1
	SilenceDuration      time.Duration `json:"silence_duration"`
	ObservedAt           time.Time     `json:"observed_at"`
}

// Thoughts is what the thinker produced from a perception.
type Thoughts struct {
	InnerThoughts []string `json:"inner_thoughts,omitempty"`
}

// SpeakDecision is the decider's verdict for one cycle.
type SpeakDecision struct {
	ShouldSpeak bool     `json:"should_speak"`
	Reason      string   `json:"reason"`
	Priority    Priority `json:"priority"`
}

// DecisionRecord is one entry in the bounded recent-decisions list.
type DecisionRecord struct {
	At          time.Time `json:"at"`
	ShouldSpeak bool      `json:"should_speak"`
	Reason      string    `json:"reason"`
	Priority    Priority  `json:"priority"`
	Spoke       bool      `json:"spoke"` // the action actually produced speech
}

// ActionResult is what the actor did with a decision.
type ActionResult struct {
	Success        bool           `json:"success"`
	ActionType     string         `json:"action_type"` // ActionSpeak or ActionSilence
	Message        string         `json:"message,omitempty"`
	DecisionRecord DecisionRecord `json:"decision_record"`
}

// InternalState is the agent's drive state. It is a value snapshot:
// every cycle produces a new one from the previous plus perception
// deltas, and readers get deep copies.
type InternalState struct {
	ImpulseValue         float64          `json:"impulse_value"` // 0..1
	CurrentEmotion       Emotion          `json:"current_emotion"`
	EmotionIntensity     float64          `json:"emotion_intensity"`
	LastSpeakAt          time.Time        `json:"last_speak_at"`
	LastProactiveSpeakAt time.Time        `json:"last_proactive_speak_at"`
	LastPassiveReplyAt   time.Time        `json:"last_passive_reply_at"`
	LastInteractionAt    time.Time        `json:"last_interaction_at"`
	RecentDecisions      []DecisionRecord `json:"recent_decisions,omitempty"`
	PendingThoughts      []string         `json:"pending_thoughts,omitempty"`
	IgnoredCount         int              `json:"ignored_count"`
	RecentSpeakRatio     float64          `json:"recent_speak_ratio"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

func (s InternalState) clone() InternalState {
	out := s
	if s.RecentDecisions != nil {
		out.RecentDecisions = make([]DecisionRecord, len(s.RecentDecisions))
		copy(out.RecentDecisions, s.RecentDecisions)
	}
	if s.PendingThoughts != nil {
		out.PendingThoughts = make([]string, len(s.PendingThoughts))
		copy(out.PendingThoughts, s.PendingThoughts)
	}
	return out
}

// FlowCycleRecord captures one completed cycle for the bounded history.
type FlowCycleRecord struct {
	CycleID     int64                    `json:"cycle_id"`
	StartedAt   time.Time                `json:"started_at"`
	Perception  Perception               `json:"perception"`
	Thoughts    Thoughts                 `json:"thoughts"`
	Decision    SpeakDecision            `json:"decision"`
	Action      ActionResult             `json:"action"`
	PhaseTiming map[string]time.Duration `json:"phase_timing"`
	Duration    time.Duration            `json:"duration"`
	Err         string                   `json:"err,omitempty"`
}

// ProactiveSpeakEvent is emitted by the loop when the agent decides to
// speak on its own. It flows into the speak gate.
type ProactiveSpeakEvent struct {
	Message  string    `json:"message"`
	Priority Priority  `json:"priority"`
	Reason   string    `json:"reason"`
	Timing   time.Time `json:"timing"`
}

// TtsPlayEvent is a gated speech event ready for playback downstream.
type TtsPlayEvent struct {
	MessageID string    `json:"message_id"`
	Content   string    `json:"content"`
	Priority  Priority  `json:"priority"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationTurn is one utterance pair held in working memory.
type ConversationTurn struct {
	ID               string    `json:"id"`
	SpeakerID        string    `json:"speaker_id,omitempty"`
	UserText         string    `json:"user_text"`
	AgentText        string    `json:"agent_text,omitempty"`
	Importance       float64   `json:"importance"`        // 0..1
	EmotionIntensity float64   `json:"emotion_intensity"` // 0..1
	ShouldPromote    bool      `json:"should_promote"`
	CreatedAt        time.Time `json:"created_at"`
}

// Memory is a long-term record. Strength is derived on demand by the
// strength calculator and never stored.
type Memory struct {
	ID                 string    `json:"id"`
	Content            string    `json:"content"`
	Importance         float64   `json:"importance"`        // 0..1
	Confidence         float64   `json:"confidence"`        // 0..1
	EmotionalValence   float64   `json:"emotional_valence"` // -1..1
	AccessCount        int       `json:"access_count"`
	ReinforcementCount int       `json:"reinforcement_count"`
	CreatedAt          time.Time `json:"created_at"`
	LastAccessedAt     time.Time `json:"last_accessed_at,omitempty"`
	Source             string    `json:"source,omitempty"`
}

// Perceiver observes the environment for the loop.
type Perceiver interface {
	Perceive(ctx context.Context) (Perception, error)
	RecordSpeak(at time.Time)
	LastPerception() (Perception, bool)
}

// Thinker turns a perception into inner thoughts.
type Thinker interface {
	Think(ctx context.Context, p Perception) (Thoughts, error)
}

// Decider decides whether the agent should speak this cycle.
type Decider interface {
	Decide(ctx context.Context, p Perception, t Thoughts, state InternalState) (SpeakDecision, error)
}

// Actor carries out a decision, producing speech or deliberate silence.
type Actor interface {
	Act(ctx context.Context, d SpeakDecision, p Perception, t Thoughts) (ActionResult, error)
}

// LongTermStore receives promoted memories. Concrete backends live
// outside the core.
type LongTermStore interface {
	SaveMemory(ctx context.Context, m Memory) error
}
