package heart

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config tunes the flow loop pacing and the behavior toggles passed
// through to collaborators.
type Config struct {
	BaseLoopInterval time.Duration `json:"base_loop_interval"`
	MinLoopInterval  time.Duration `json:"min_loop_interval"`
	MaxLoopInterval  time.Duration `json:"max_loop_interval"`

	TalkativeLevel  float64 `json:"talkative_level"` // 0..1
	PersonalityType string  `json:"personality_type"`

	EnableInnerThoughts bool `json:"enable_inner_thoughts"`
	EnableCuriosity     bool `json:"enable_curiosity"`
	EnableProactiveCare bool `json:"enable_proactive_care"`
}

// DefaultConfig returns the stock pacing and toggles.
func DefaultConfig() Config {
	return Config{
		BaseLoopInterval:    time.Minute,
		MinLoopInterval:     15 * time.Second,
		MaxLoopInterval:     10 * time.Minute,
		TalkativeLevel:      0.5,
		PersonalityType:     "companion",
		EnableInnerThoughts: true,
		EnableCuriosity:     true,
		EnableProactiveCare: true,
	}
}

func (c Config) Validate() error {
	if c.MinLoopInterval <= 0 {
		return fmt.Errorf("%w: min loop interval %s must be positive", ErrInvalidConfig, c.MinLoopInterval)
	}
	if c.BaseLoopInterval < c.MinLoopInterval {
		return fmt.Errorf("%w: base loop interval %s below min %s", ErrInvalidConfig, c.BaseLoopInterval, c.MinLoopInterval)
	}
	if c.MaxLoopInterval < c.BaseLoopInterval {
		return fmt.Errorf("%w: max loop interval %s below base %s", ErrInvalidConfig, c.MaxLoopInterval, c.BaseLoopInterval)
	}
	if c.TalkativeLevel < 0 || c.TalkativeLevel > 1 {
		return fmt.Errorf("%w: talkative level %g outside [0,1]", ErrInvalidConfig, c.TalkativeLevel)
	}
	return nil
}

// Loop lifecycle states. Paused is a flag, not a state.
const (
	stateIdle int32 = iota
	stateRunning
)

// Bounds on the per-state lists carried inside InternalState.
const (
	recentDecisionsCap = 10
	pendingThoughtsCap = 10
)

// cycleFailureBackoff is the fixed wait after an aborted cycle.
const cycleFailureBackoff = 5 * time.Second

// FlowLoop runs the perceive/think/decide/act cycle on its own
// goroutine, pacing itself by environmental signal. It never dies on a
// cycle error; only Stop (or parent context cancellation) ends it.
type FlowLoop struct {
	mu    sync.RWMutex
	cfg   Config
	state InternalState

	perceiver Perceiver
	thinker   Thinker
	decider   Decider
	actor     Actor
	budget    *SpeechBudget
	onSpeak   func(ProactiveSpeakEvent)

	history *cycleHistory

	running atomic.Int32
	paused  atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	cycleSeq       atomic.Int64
	failureBackoff time.Duration
	clock          func() time.Time
	log            zerolog.Logger
}

// NewFlowLoop validates cfg and builds an idle loop. All four
// collaborators are required.
func NewFlowLoop(cfg Config, perceiver Perceiver, thinker Thinker, decider Decider, actor Actor, log zerolog.Logger) (*FlowLoop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if perceiver == nil || thinker == nil || decider == nil || actor == nil {
		return nil, fmt.Errorf("%w: perceiver, thinker, decider and actor are all required", ErrInvalidConfig)
	}

	now := time.Now()
	return &FlowLoop{
		cfg: cfg,
		state: InternalState{
			ImpulseValue:      ImpulseBaseline,
			CurrentEmotion:    EmotionNeutral,
			EmotionIntensity:  0.3,
			LastInteractionAt: now,
			UpdatedAt:         now,
		},
		perceiver:      perceiver,
		thinker:        thinker,
		decider:        decider,
		actor:          actor,
		history:        newCycleHistory(),
		failureBackoff: cycleFailureBackoff,
		clock:          time.Now,
		log:            log,
	}, nil
}

// SetOnSpeak registers the callback for successful proactive speech.
// Call before Start.
func (l *FlowLoop) SetOnSpeak(f func(ProactiveSpeakEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onSpeak = f
}

// SetBudget attaches a speech budget consulted before acting on a
// positive decision. Call before Start.
func (l *FlowLoop) SetBudget(b *SpeechBudget) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.budget = b
}

// Start launches the loop goroutine. No-op if already running.
func (l *FlowLoop) Start(ctx context.Context) {
	if !l.running.CompareAndSwap(stateIdle, stateRunning) {
		l.log.Warn().Msg("flow loop already running")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go l.run(runCtx, done)
}

// Stop cancels the loop and waits for its goroutine to unwind. Safe to
// call multiple times and before Start.
func (l *FlowLoop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Pause makes the loop idle-tick without perceiving or acting. The
// lifecycle state stays RUNNING.
func (l *FlowLoop) Pause() {
	if !l.paused.Swap(true) {
		l.log.Info().Msg("flow loop paused")
	}
}

// Resume undoes Pause.
func (l *FlowLoop) Resume() {
	if l.paused.Swap(false) {
		l.log.Info().Msg("flow loop resumed")
	}
}

// Paused reports whether the loop is currently idling.
func (l *FlowLoop) Paused() bool { return l.paused.Load() }

// Running reports whether the loop goroutine is live.
func (l *FlowLoop) Running() bool { return l.running.Load() == stateRunning }

func (l *FlowLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer l.running.Store(stateIdle)

	l.log.Info().Msg("flow loop started")
	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("flow loop stopped")
			return
		default:
		}

		var wait time.Duration
		if l.paused.Load() {
			wait = l.snapshotCfg().BaseLoopInterval
		} else {
			wait = l.runCycle(ctx)
		}

		select {
		case <-ctx.Done():
			l.log.Info().Msg("flow loop stopped")
			return
		case <-time.After(wait):
		}
	}
}

// runCycle executes one perceive/think/decide/act pass and returns the
// next wait. Errors and panics abort the cycle, get recorded, and back
// the loop off for a fixed interval; the loop itself never dies.
func (l *FlowLoop) runCycle(ctx context.Context) (wait time.Duration) {
	cfg := l.snapshotCfg()
	started := l.clock()
	rec := FlowCycleRecord{
		CycleID:     l.cycleSeq.Add(1),
		StartedAt:   started,
		PhaseTiming: make(map[string]time.Duration, 4),
	}
	wait = cfg.BaseLoopInterval

	defer func() {
		if r := recover(); r != nil {
			rec.Err = fmt.Sprintf("panic: %v", r)
		}
		rec.Duration = l.clock().Sub(started)
		l.history.Append(rec)
		if rec.Err != "" {
			l.log.Error().Int64("cycle", rec.CycleID).Str("err", rec.Err).Msg("cycle aborted")
			wait = l.failureBackoff
		}
	}()

	// 1. Perceive
	phase := l.clock()
	perception, err := l.perceiver.Perceive(ctx)
	rec.PhaseTiming["perceive"] = l.clock().Sub(phase)
	if err != nil {
		rec.Err = fmt.Errorf("perceive: %w", err).Error()
		return
	}
	rec.Perception = perception

	// 2. Think
	phase = l.clock()
	thoughts, err := l.thinker.Think(ctx, perception)
	rec.PhaseTiming["think"] = l.clock().Sub(phase)
	if err != nil {
		rec.Err = fmt.Errorf("think: %w", err).Error()
		return
	}
	rec.Thoughts = thoughts

	// 3. Decide, against the pre-update state
	phase = l.clock()
	decision, err := l.decider.Decide(ctx, perception, thoughts, l.CurrentState())
	rec.PhaseTiming["decide"] = l.clock().Sub(phase)
	if err != nil {
		rec.Err = fmt.Errorf("decide: %w", err).Error()
		return
	}

	// An exhausted speech budget converts the decision to silence.
	if decision.ShouldSpeak {
		if b := l.snapshotBudget(); b != nil && !b.Allow(l.clock()) {
			l.log.Debug().Str("reason", decision.Reason).Msg("speech budget exhausted, staying silent")
			decision.ShouldSpeak = false
			decision.Reason = "budget exhausted: " + decision.Reason
		}
	}
	rec.Decision = decision

	// 4. Act; the actor handles silence as well as speech
	phase = l.clock()
	result, err := l.actor.Act(ctx, decision, perception, thoughts)
	rec.PhaseTiming["act"] = l.clock().Sub(phase)
	if err != nil {
		rec.Err = fmt.Errorf("act: %w", err).Error()
		return
	}
	rec.Action = result

	l.applyCycle(perception, thoughts, decision, result)

	return calculateWaitTime(cfg, perception, l.clock().Sub(started))
}

// applyCycle folds one completed cycle into the internal state.
func (l *FlowLoop) applyCycle(p Perception, thoughts Thoughts, decision SpeakDecision, result ActionResult) {
	now := l.clock()
	spoke := result.Success && result.ActionType == ActionSpeak

	l.mu.Lock()
	st := l.state

	if p.HasRecentMessages {
		st.LastInteractionAt = now
		st.IgnoredCount = 0
	}

	elapsed := now.Sub(st.LastInteractionAt)
	st.ImpulseValue = clamp01(decayImpulse(st.ImpulseValue, elapsed) + emotionInfluence(p.CurrentEmotion, p.EmotionIntensity))
	st.CurrentEmotion = p.CurrentEmotion
	st.EmotionIntensity = clamp01(p.EmotionIntensity)

	if len(thoughts.InnerThoughts) > 0 {
		st.PendingThoughts = append(st.PendingThoughts, thoughts.InnerThoughts...)
		if n := len(st.PendingThoughts); n > pendingThoughtsCap {
			st.PendingThoughts = st.PendingThoughts[n-pendingThoughtsCap:]
		}
	}

	st.RecentDecisions = append(st.RecentDecisions, DecisionRecord{
		At:          now,
		ShouldSpeak: decision.ShouldSpeak,
		Reason:      decision.Reason,
		Priority:    decision.Priority,
		Spoke:       spoke,
	})
	if n := len(st.RecentDecisions); n > recentDecisionsCap {
		st.RecentDecisions = st.RecentDecisions[n-recentDecisionsCap:]
	}
	st.RecentSpeakRatio = speakRatio(st.RecentDecisions)

	var ev *ProactiveSpeakEvent
	if spoke {
		// The previous proactive utterance never got a reply.
		if !st.LastProactiveSpeakAt.IsZero() && st.LastInteractionAt.Before(st.LastProactiveSpeakAt) {
			st.IgnoredCount++
		}
		st.ImpulseValue = ImpulseBaseline
		st.LastSpeakAt = now
		st.LastProactiveSpeakAt = now
		ev = &ProactiveSpeakEvent{
			Message:  result.Message,
			Priority: decision.Priority,
			Reason:   decision.Reason,
			Timing:   now,
		}
	}

	st.UpdatedAt = now
	l.state = st
	budget := l.budget
	onSpeak := l.onSpeak
	l.mu.Unlock()

	if ev != nil {
		l.perceiver.RecordSpeak(now)
		if budget != nil {
			budget.Record(now)
		}
		if onSpeak != nil {
			onSpeak(*ev)
		}
		l.log.Info().Str("priority", ev.Priority.String()).Str("reason", ev.Reason).Msg("proactive speech emitted")
	}
}

func speakRatio(decisions []DecisionRecord) float64 {
	if len(decisions) == 0 {
		return 0
	}
	spoke := 0
	for _, d := range decisions {
		if d.Spoke {
			spoke++
		}
	}
	return float64(spoke) / float64(len(decisions))
}

// RecordPassiveReply notes that the agent answered a user directly,
// outside the proactive loop, so pacing and ignore tracking stay honest.
func (l *FlowLoop) RecordPassiveReply() {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state
	st.LastSpeakAt = now
	st.LastPassiveReplyAt = now
	st.LastInteractionAt = now
	st.IgnoredCount = 0
	st.UpdatedAt = now
	l.state = st
}

// SeedState overrides the drive state, typically from a persisted
// snapshot, before the loop starts.
func (l *FlowLoop) SeedState(impulse float64, emotion Emotion, intensity float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.ImpulseValue = clamp01(impulse)
	if emotion.Valid() {
		l.state.CurrentEmotion = emotion
	}
	l.state.EmotionIntensity = clamp01(intensity)
	l.state.UpdatedAt = l.clock()
}

// CurrentState returns a deep copy of the internal state.
func (l *FlowLoop) CurrentState() InternalState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.clone()
}

// Statistics summarizes the loop for outside observers.
type Statistics struct {
	CycleCount       int64            `json:"cycle_count"`
	CurrentImpulse   float64          `json:"current_impulse"`
	RecentDecisions  []DecisionRecord `json:"recent_decisions,omitempty"`
	PendingThoughts  []string         `json:"pending_thoughts,omitempty"`
	IgnoredCount     int              `json:"ignored_count"`
	RecentSpeakRatio float64          `json:"recent_speak_ratio"`
}

func (l *FlowLoop) Statistics() Statistics {
	st := l.CurrentState()
	return Statistics{
		CycleCount:       l.history.Stats().TotalCycles,
		CurrentImpulse:   st.ImpulseValue,
		RecentDecisions:  st.RecentDecisions,
		PendingThoughts:  st.PendingThoughts,
		IgnoredCount:     st.IgnoredCount,
		RecentSpeakRatio: st.RecentSpeakRatio,
	}
}

// CycleHistory returns every retained cycle record, oldest first.
func (l *FlowLoop) CycleHistory() []FlowCycleRecord { return l.history.All() }

// RecentCycles returns up to n of the newest retained records.
func (l *FlowLoop) RecentCycles(n int) []FlowCycleRecord { return l.history.Recent(n) }

// CycleStats returns lifetime cycle aggregates.
func (l *FlowLoop) CycleStats() CycleStats { return l.history.Stats() }

// UpdateConfig swaps the loop configuration after validation. Takes
// effect from the next cycle.
func (l *FlowLoop) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	l.log.Info().
		Dur("base", cfg.BaseLoopInterval).
		Dur("min", cfg.MinLoopInterval).
		Dur("max", cfg.MaxLoopInterval).
		Float64("talkative", cfg.TalkativeLevel).
		Msg("flow config updated")
	return nil
}

// Config returns the active configuration.
func (l *FlowLoop) Config() Config { return l.snapshotCfg() }

func (l *FlowLoop) snapshotCfg() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

func (l *FlowLoop) snapshotBudget() *SpeechBudget {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.budget
}
