package heart

import "time"

// Wait-time policy thresholds. Noise wins over silence: a noisy
// environment keeps the loop attentive no matter how long nobody has
// addressed the agent directly.
const (
	noiseHighThreshold     = 0.6
	noiseModerateThreshold = 0.3
	silenceSlowAfter       = 30 * time.Minute
	silenceIdleAfter       = 2 * time.Hour
	slowInterval           = 2 * time.Minute
)

// calculateWaitTime picks the next inter-cycle wait from the
// environment, then credits the time this cycle already took. The
// result is always within [MinLoopInterval, MaxLoopInterval].
func calculateWaitTime(cfg Config, p Perception, cycleTime time.Duration) time.Duration {
	var interval time.Duration
	switch {
	case p.EnvironmentNoise >= noiseHighThreshold:
		interval = cfg.MinLoopInterval
	case p.EnvironmentNoise >= noiseModerateThreshold:
		interval = cfg.BaseLoopInterval
	case p.SilenceDuration >= silenceIdleAfter:
		// Deep idle: cadence precision stops mattering, skip the
		// elapsed credit and just wait the maximum.
		return clampDuration(cfg.MaxLoopInterval, cfg.MinLoopInterval, cfg.MaxLoopInterval)
	case p.SilenceDuration >= silenceSlowAfter:
		interval = slowInterval
	default:
		interval = cfg.BaseLoopInterval
	}
	return clampDuration(interval-cycleTime, cfg.MinLoopInterval, cfg.MaxLoopInterval)
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
