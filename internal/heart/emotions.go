package heart

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Accumulation and outburst tuning.
const (
	// accumulationWindow is how long weak repeated triggers toward one
	// target stay countable before the counter resets.
	accumulationWindow = 30 * time.Second

	// outburstTriggerCount triggers within the window force the change.
	outburstTriggerCount = 3

	// outburstBoost scales the accumulated intensity when it releases.
	outburstBoost = 1.5

	// inertiaThreshold separates weak requests (which may accumulate)
	// from strong ones (which always interrupt).
	inertiaThreshold = 0.7
)

// Transition is an in-flight emotion change. Progress advances linearly
// with wall clock between StartedAt and EndsAt.
type Transition struct {
	From      Emotion   `json:"from"`
	To        Emotion   `json:"to"`
	Intensity float64   `json:"intensity"`
	Reason    string    `json:"reason"`
	StartedAt time.Time `json:"started_at"`
	EndsAt    time.Time `json:"ends_at"`
	Progress  float64   `json:"progress"`
}

// accumulation tracks repeated weak triggers toward one target.
type accumulation struct {
	count     int
	intensity float64 // max of the requested intensities
	firstAt   time.Time
	lastAt    time.Time
}

// EmotionState is the externally observable emotion. Mid-transition it
// is a blend: intensity interpolated, label switching at the midpoint.
type EmotionState struct {
	Emotion    Emotion     `json:"emotion"`
	Intensity  float64     `json:"intensity"`
	Transition *Transition `json:"transition,omitempty"`
}

// EmotionEngine moves the agent between emotions gradually. Weak
// requests against a strong or unrelated in-flight transition
// accumulate instead of interrupting; enough of them within the window
// release as an outburst. All state sits behind one mutex.
type EmotionEngine struct {
	mu         sync.Mutex
	current    Emotion
	intensity  float64
	transition *Transition
	accum      map[Emotion]*accumulation

	clock func() time.Time
	log   zerolog.Logger
}

func NewEmotionEngine(log zerolog.Logger) *EmotionEngine {
	return &EmotionEngine{
		current:   EmotionNeutral,
		intensity: 0.3,
		accum:     make(map[Emotion]*accumulation),
		clock:     time.Now,
		log:       log,
	}
}

// RequestEmotionChange asks the engine to move toward target and
// returns the emotion observable afterwards. A zero customDuration
// means "use the transition rules"; force completes immediately.
func (e *EmotionEngine) RequestEmotionChange(target Emotion, reason string, intensity float64, force bool, customDuration time.Duration) Emotion {
	now := e.clock()
	intensity = clamp01(intensity)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !target.Valid() {
		e.log.Warn().Str("target", string(target)).Msg("unknown emotion requested, ignored")
		return e.observe(now).Emotion
	}
	if target == e.current && e.transition == nil && !force {
		return e.current
	}

	if force {
		e.begin(target, reason, intensity, customDuration, now, true)
		return target
	}

	// Emotional inertia: a weak signal against an unrelated or strong
	// in-flight transition accumulates instead of interrupting it.
	if t := e.transition; t != nil && intensity < inertiaThreshold && transitionProgress(t, now) < 1 {
		if t.To != target || t.Intensity > inertiaThreshold {
			acc := e.accumulate(target, intensity, now)
			if acc.count >= outburstTriggerCount {
				delete(e.accum, target)
				boosted := math.Min(1, acc.intensity*outburstBoost)
				e.log.Info().
					Str("to", string(target)).
					Float64("intensity", boosted).
					Int("triggers", acc.count).
					Msg("accumulated pressure released as outburst")
				e.begin(target, "outburst: "+reason, boosted, 0, now, true)
				return target
			}
			e.log.Debug().
				Str("to", string(target)).
				Int("count", acc.count).
				Msg("weak emotion request accumulated")
			return e.observe(now).Emotion
		}
	}

	e.begin(target, reason, intensity, customDuration, now, false)
	return e.observe(now).Emotion
}

// accumulate bumps the per-target counter, restarting it when the
// window has lapsed since the first trigger.
func (e *EmotionEngine) accumulate(target Emotion, intensity float64, now time.Time) *accumulation {
	acc := e.accum[target]
	if acc == nil || now.Sub(acc.firstAt) > accumulationWindow {
		acc = &accumulation{firstAt: now}
		e.accum[target] = acc
	}
	acc.count++
	acc.lastAt = now
	if intensity > acc.intensity {
		acc.intensity = intensity
	}
	return acc
}

// begin replaces the in-flight transition wholesale.
func (e *EmotionEngine) begin(target Emotion, reason string, intensity float64, customDuration time.Duration, now time.Time, forced bool) {
	t := &Transition{
		From:      e.current,
		To:        target,
		Intensity: intensity,
		Reason:    reason,
		StartedAt: now,
	}
	if forced {
		t.EndsAt = now
		t.Progress = 1
	} else {
		dur := customDuration
		if dur <= 0 {
			dur = transitionDuration(e.current, target, intensity)
		}
		t.EndsAt = now.Add(dur)
	}
	e.transition = t
	e.log.Debug().
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Float64("intensity", intensity).
		Bool("forced", forced).
		Str("reason", reason).
		Msg("emotion transition started")
}

// UpdateTransition advances the in-flight transition and finalizes it
// on completion. It is the only place a transition completes; the
// Coordinator polls it every second.
func (e *EmotionEngine) UpdateTransition() Emotion {
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.pruneAccumulations(now)

	t := e.transition
	if t == nil {
		return e.current
	}
	t.Progress = transitionProgress(t, now)
	if t.Progress >= 1 {
		e.current = t.To
		e.intensity = t.Intensity
		e.transition = nil
		e.log.Debug().
			Str("emotion", string(e.current)).
			Float64("intensity", e.intensity).
			Str("reason", t.Reason).
			Msg("emotion transition completed")
	}
	return e.current
}

// Current returns the externally observable emotion, blending
// mid-transition without mutating anything.
func (e *EmotionEngine) Current() EmotionState {
	now := e.clock()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observe(now)
}

// Seed sets the settled emotion directly, typically from a snapshot.
func (e *EmotionEngine) Seed(emotion Emotion, intensity float64) {
	if !emotion.Valid() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = emotion
	e.intensity = clamp01(intensity)
	e.transition = nil
}

// observe computes the blended view at now. Callers hold the mutex.
func (e *EmotionEngine) observe(now time.Time) EmotionState {
	t := e.transition
	if t == nil {
		return EmotionState{Emotion: e.current, Intensity: e.intensity}
	}
	prog := transitionProgress(t, now)
	label := t.From
	if prog >= 0.5 {
		label = t.To
	}
	blend := e.intensity + (t.Intensity-e.intensity)*prog
	tc := *t
	tc.Progress = prog
	return EmotionState{Emotion: label, Intensity: clamp01(blend), Transition: &tc}
}

// pruneAccumulations drops entries whose window has lapsed, keeping the
// map bounded. Callers hold the mutex.
func (e *EmotionEngine) pruneAccumulations(now time.Time) {
	for target, acc := range e.accum {
		if now.Sub(acc.firstAt) > accumulationWindow {
			delete(e.accum, target)
		}
	}
}

func transitionProgress(t *Transition, now time.Time) float64 {
	if !now.Before(t.EndsAt) {
		return 1
	}
	total := t.EndsAt.Sub(t.StartedAt)
	if total <= 0 {
		return 1
	}
	return clamp01(float64(now.Sub(t.StartedAt)) / float64(total))
}
