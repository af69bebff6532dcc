package heart

import (
	"math"
	"time"
)

// Impulse dynamics. The impulse is the agent's accumulated drive to
// speak proactively: it decays with interaction recency and grows a
// little each cycle depending on the current emotion.
const (
	// ImpulseBaseline is the reset level after the agent speaks.
	ImpulseBaseline = 0.2

	// impulseGrowthStep is the per-cycle growth unit before the
	// per-emotion multiplier is applied.
	impulseGrowthStep = 0.05

	impulseDecayTau = 30 * time.Minute

	// Deltas beyond this carry no signal (clock or initialization
	// anomalies) and are treated as zero elapsed.
	maxDecayElapsed = 30 * 24 * time.Hour
)

// decayImpulse applies exponential decay to the impulse based on time
// since the last interaction. Negative or absurdly large deltas are
// treated as zero elapsed rather than producing a huge decay.
func decayImpulse(value float64, elapsed time.Duration) float64 {
	if elapsed <= 0 || elapsed > maxDecayElapsed {
		return value
	}
	return value * math.Exp(-elapsed.Seconds()/impulseDecayTau.Seconds())
}

// baseInfluence is the fixed per-emotion growth multiplier.
func baseInfluence(e Emotion) float64 {
	switch e {
	case EmotionExcited:
		return 1.5
	case EmotionCurious:
		return 1.3
	case EmotionHappy:
		return 1.2
	case EmotionAnxious:
		return 1.1
	case EmotionAngry:
		return 1.1
	case EmotionCalm:
		return 0.9
	case EmotionSad:
		return 0.8
	default:
		return 1.0
	}
}

// emotionInfluence converts the current emotion into a per-cycle
// impulse increment: stronger feelings push harder.
func emotionInfluence(e Emotion, intensity float64) float64 {
	return impulseGrowthStep * baseInfluence(e) * (0.5 + 0.5*clamp01(intensity))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
