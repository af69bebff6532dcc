// Package console adapts a terminal conversation into the flow loop's
// collaborator interfaces: stdin lines are the environment the agent
// perceives, and composed phrases are its voice.
package console

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/heartflow/internal/heart"
)

const (
	recentMessageWindow = 2 * time.Minute
	noiseWindow         = 5 * time.Minute
	careCheckinAfter    = time.Hour
)

// Session tracks terminal activity and answers the loop's perceive,
// think, decide and act phases.
type Session struct {
	engine *heart.EmotionEngine
	cfg    heart.Config
	log    zerolog.Logger

	mu             sync.Mutex
	start          time.Time
	lastInputAt    time.Time
	lastSpeakAt    time.Time
	inputTimes     []time.Time
	lastPerception heart.Perception
	havePerception bool
}

func NewSession(engine *heart.EmotionEngine, cfg heart.Config, log zerolog.Logger) *Session {
	return &Session{
		engine: engine,
		cfg:    cfg,
		log:    log,
		start:  time.Now(),
	}
}

// NotifyInput records a user line and nudges the emotion engine from
// its tone. The nudges stay below the inertia threshold so a single
// message cannot yank the mood around.
func (s *Session) NotifyInput(line string) {
	now := time.Now()
	s.mu.Lock()
	s.lastInputAt = now
	s.inputTimes = append(s.inputTimes, now)
	s.trimInputs(now)
	s.mu.Unlock()

	if target, intensity := readTone(line); target != "" {
		s.engine.RequestEmotionChange(target, "user message tone", intensity, false, 0)
	}
}

// trimInputs drops activity outside the noise window. Callers hold the
// mutex.
func (s *Session) trimInputs(now time.Time) {
	cutoff := now.Add(-noiseWindow)
	for len(s.inputTimes) > 0 && s.inputTimes[0].Before(cutoff) {
		s.inputTimes = s.inputTimes[1:]
	}
}

// readTone maps obvious textual cues onto an emotion request.
func readTone(line string) (heart.Emotion, float64) {
	lower := strings.ToLower(line)
	switch {
	case strings.Count(line, "!") >= 2:
		return heart.EmotionExcited, 0.65
	case containsAny(lower, "sad", "tired", "lonely", "miss you", "rough day"):
		return heart.EmotionSad, 0.6
	case containsAny(lower, "love", "great", "awesome", "thank"):
		return heart.EmotionHappy, 0.6
	case strings.Contains(line, "?"):
		return heart.EmotionCurious, 0.55
	}
	return "", 0
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (s *Session) Perceive(ctx context.Context) (heart.Perception, error) {
	if err := ctx.Err(); err != nil {
		return heart.Perception{}, err
	}
	now := time.Now()
	emo := s.engine.Current()

	s.mu.Lock()
	defer s.mu.Unlock()

	lastInput := s.lastInputAt
	if lastInput.IsZero() {
		lastInput = s.start
	}
	sinceInput := now.Sub(lastInput)

	// Silence ends when either side talks.
	silence := sinceInput
	if !s.lastSpeakAt.IsZero() {
		if d := now.Sub(s.lastSpeakAt); d < silence {
			silence = d
		}
	}

	s.trimInputs(now)
	noise := float64(len(s.inputTimes)) / 10
	if noise > 1 {
		noise = 1
	}

	p := heart.Perception{
		CurrentEmotion:       emo.Emotion,
		EmotionIntensity:     emo.Intensity,
		HasRecentMessages:    sinceInput < recentMessageWindow,
		TimeSinceInteraction: sinceInput,
		EnvironmentNoise:     noise,
		SilenceDuration:      silence,
		ObservedAt:           now,
	}
	s.lastPerception = p
	s.havePerception = true
	return p, nil
}

func (s *Session) RecordSpeak(at time.Time) {
	s.mu.Lock()
	s.lastSpeakAt = at
	s.mu.Unlock()
}

func (s *Session) LastPerception() (heart.Perception, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPerception, s.havePerception
}

func (s *Session) Think(ctx context.Context, p heart.Perception) (heart.Thoughts, error) {
	if err := ctx.Err(); err != nil {
		return heart.Thoughts{}, err
	}
	if !s.cfg.EnableInnerThoughts {
		return heart.Thoughts{}, nil
	}

	var thoughts []string
	switch {
	case p.EnvironmentNoise >= 0.6:
		thoughts = append(thoughts, "the conversation is lively right now")
	case p.SilenceDuration > careCheckinAfter:
		thoughts = append(thoughts, "it has been quiet for a long while")
	case p.SilenceDuration > 30*time.Minute:
		thoughts = append(thoughts, "things have settled down")
	}
	if p.EmotionIntensity > 0.7 {
		thoughts = append(thoughts, fmt.Sprintf("feeling strongly %s", p.CurrentEmotion))
	}
	if s.cfg.EnableCuriosity && p.CurrentEmotion == heart.EmotionCurious {
		thoughts = append(thoughts, "I wonder what they are up to")
	}
	return heart.Thoughts{InnerThoughts: thoughts}, nil
}

// Decide compares impulse against a threshold shaped by talkativeness
// and by how often recent speech went unanswered.
func (s *Session) Decide(ctx context.Context, p heart.Perception, t heart.Thoughts, state heart.InternalState) (heart.SpeakDecision, error) {
	if err := ctx.Err(); err != nil {
		return heart.SpeakDecision{}, err
	}

	threshold := 0.9 - 0.5*s.cfg.TalkativeLevel + 0.1*float64(state.IgnoredCount)
	if threshold > 0.95 {
		threshold = 0.95
	}

	if state.ImpulseValue >= threshold {
		return heart.SpeakDecision{
			ShouldSpeak: true,
			Reason:      fmt.Sprintf("impulse %.2f cleared threshold %.2f", state.ImpulseValue, threshold),
			Priority:    heart.PriorityNormal,
		}, nil
	}

	if s.cfg.EnableProactiveCare && p.SilenceDuration > careCheckinAfter {
		lastCare := state.LastProactiveSpeakAt
		if lastCare.IsZero() || p.ObservedAt.Sub(lastCare) > careCheckinAfter {
			return heart.SpeakDecision{
				ShouldSpeak: true,
				Reason:      "checking in after a long silence",
				Priority:    heart.PriorityNormal,
			}, nil
		}
	}

	return heart.SpeakDecision{
		ShouldSpeak: false,
		Reason:      fmt.Sprintf("impulse %.2f below threshold %.2f", state.ImpulseValue, threshold),
		Priority:    heart.PriorityNormal,
	}, nil
}

func (s *Session) Act(ctx context.Context, d heart.SpeakDecision, p heart.Perception, t heart.Thoughts) (heart.ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return heart.ActionResult{}, err
	}
	if !d.ShouldSpeak {
		return heart.ActionResult{Success: true, ActionType: heart.ActionSilence}, nil
	}
	return heart.ActionResult{
		Success:    true,
		ActionType: heart.ActionSpeak,
		Message:    composeLine(s.cfg.PersonalityType, p, d),
	}, nil
}

// TurnFromLine builds a working-memory turn from a raw input line,
// estimating importance and emotional charge from surface cues.
func TurnFromLine(line string) heart.ConversationTurn {
	lower := strings.ToLower(line)
	importance := 0.3
	if len(line) > 80 {
		importance += 0.1
	}
	if containsAny(lower, "important", "birthday", "always", "never forget", "promise") {
		importance = 0.7
	}

	intensity := 0.3 * float64(strings.Count(line, "!"))
	if intensity > 1 {
		intensity = 1
	}

	return heart.ConversationTurn{
		SpeakerID:        "user",
		UserText:         line,
		Importance:       importance,
		EmotionIntensity: intensity,
		ShouldPromote:    strings.Contains(lower, "remember"),
	}
}
