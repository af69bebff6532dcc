package heart

import (
	"math"
	"time"
)

// Strength blends five weighted signals, then applies exponential decay.
const (
	weightImportance    = 0.30
	weightConfidence    = 0.20
	weightValence       = 0.20
	weightAccess        = 0.15
	weightReinforcement = 0.15
)

// Decay time constants by importance tier. Reinforcement stretches the
// picked constant further.
const (
	tauDefault = 10 * 24 * time.Hour
	tauSlow    = 30 * 24 * time.Hour
	tauFast    = 3 * 24 * time.Hour

	importanceHighTier = 0.7
	importanceLowTier  = 0.3

	reinforcementTauGain = 0.1
)

const (
	halfLifeHorizon   = 365 * 24 * time.Hour
	halfLifeTolerance = time.Minute
)

// CalculateStrength scores how strongly a memory holds at the given
// instant, in [0,1].
func CalculateStrength(m Memory, now time.Time) float64 {
	base := m.Importance*weightImportance +
		m.Confidence*weightConfidence +
		math.Abs(m.EmotionalValence)*weightValence +
		accessFactor(m.AccessCount)*weightAccess +
		reinforcementFactor(m.ReinforcementCount)*weightReinforcement
	return clamp01(base * decayFactor(m, now))
}

// CalculateBatch scores each memory at the same instant.
func CalculateBatch(memories []Memory, now time.Time) []float64 {
	out := make([]float64, len(memories))
	for i, m := range memories {
		out[i] = CalculateStrength(m, now)
	}
	return out
}

// PredictStrength scores the memory as of a future instant, assuming no
// access or reinforcement in between.
func PredictStrength(m Memory, future time.Time) float64 {
	return CalculateStrength(m, future)
}

// CalculateHalfLife finds how long until the memory falls to half its
// current strength, by bisection over a one-year horizon. Returns the
// horizon when the memory decays slower than that, and zero when it has
// no strength to lose.
func CalculateHalfLife(m Memory, now time.Time) time.Duration {
	current := CalculateStrength(m, now)
	if current <= 0 {
		return 0
	}
	target := current / 2

	if CalculateStrength(m, now.Add(halfLifeHorizon)) > target {
		return halfLifeHorizon
	}

	lo, hi := time.Duration(0), halfLifeHorizon
	for hi-lo > halfLifeTolerance {
		mid := lo + (hi-lo)/2
		if CalculateStrength(m, now.Add(mid)) > target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

// decayFactor computes exp(-dt/tau) since the memory was last touched.
// Clock skew (a reference in the future) decays nothing.
func decayFactor(m Memory, now time.Time) float64 {
	ref := m.LastAccessedAt
	if ref.IsZero() {
		ref = m.CreatedAt
	}
	dt := now.Sub(ref)
	if dt <= 0 {
		return 1
	}
	tau := decayTau(m)
	return math.Exp(-dt.Seconds() / tau.Seconds())
}

// decayTau picks the time constant for the memory's importance tier and
// stretches it by reinforcement.
func decayTau(m Memory) time.Duration {
	var tau time.Duration
	switch {
	case m.Importance >= importanceHighTier:
		tau = tauSlow
	case m.Importance < importanceLowTier:
		tau = tauFast
	default:
		tau = tauDefault
	}
	scale := 1 + reinforcementTauGain*float64(m.ReinforcementCount)
	return time.Duration(float64(tau) * scale)
}

// accessFactor maps an access count onto [0,1] logarithmically; 99
// accesses saturate it.
func accessFactor(count int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Min(1, math.Log(1+float64(count))/math.Log(100))
}

// reinforcementFactor saturates exponentially; five reinforcements
// reach ~63% of the maximum.
func reinforcementFactor(count int) float64 {
	if count <= 0 {
		return 0
	}
	return 1 - math.Exp(-float64(count)/5)
}
