package heart

import "time"

// defaultTransitionDuration applies to pairs without an explicit rule.
const defaultTransitionDuration = 10 * time.Second

type emotionPair struct {
	from, to Emotion
}

// transitionDurations encodes how quickly one emotion gives way to
// another. Positive shifts come easily; climbing out of sadness or
// anger takes longer.
var transitionDurations = map[emotionPair]time.Duration{
	{EmotionNeutral, EmotionHappy}:   6 * time.Second,
	{EmotionNeutral, EmotionCurious}: 5 * time.Second,
	{EmotionNeutral, EmotionExcited}: 8 * time.Second,
	{EmotionNeutral, EmotionCalm}:    5 * time.Second,
	{EmotionNeutral, EmotionSad}:     9 * time.Second,
	{EmotionNeutral, EmotionAnxious}: 7 * time.Second,
	{EmotionNeutral, EmotionAngry}:   6 * time.Second,

	{EmotionHappy, EmotionExcited}: 4 * time.Second,
	{EmotionHappy, EmotionNeutral}: 8 * time.Second,
	{EmotionHappy, EmotionSad}:     20 * time.Second,

	{EmotionCurious, EmotionExcited}: 5 * time.Second,
	{EmotionCurious, EmotionNeutral}: 7 * time.Second,

	{EmotionExcited, EmotionCalm}:    15 * time.Second,
	{EmotionExcited, EmotionNeutral}: 12 * time.Second,

	{EmotionCalm, EmotionNeutral}: 6 * time.Second,

	{EmotionSad, EmotionNeutral}: 20 * time.Second,
	{EmotionSad, EmotionHappy}:   25 * time.Second,

	{EmotionAnxious, EmotionCalm}:    16 * time.Second,
	{EmotionAnxious, EmotionNeutral}: 14 * time.Second,

	{EmotionAngry, EmotionNeutral}: 18 * time.Second,
	{EmotionAngry, EmotionCalm}:    22 * time.Second,
}

// transitionDuration looks up the rule for (from, to) and scales it
// with intensity: stronger feelings take longer to settle in. The
// factor spans 0.5x at zero intensity to 1.5x at full.
func transitionDuration(from, to Emotion, intensity float64) time.Duration {
	base, ok := transitionDurations[emotionPair{from, to}]
	if !ok {
		base = defaultTransitionDuration
	}
	return time.Duration(float64(base) * (0.5 + clamp01(intensity)))
}
