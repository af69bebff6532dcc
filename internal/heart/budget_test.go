package heart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpeechBudgetFirstUtteranceAllowed(t *testing.T) {
	b := NewSpeechBudget()
	assert.True(t, b.Allow(time.Now()))
}

func TestSpeechBudgetMinGap(t *testing.T) {
	b := NewSpeechBudget()
	t0 := time.Now()

	b.Record(t0)
	assert.False(t, b.Allow(t0.Add(10*time.Second)))
	assert.True(t, b.Allow(t0.Add(46*time.Second)))
}

func TestSpeechBudgetWindowCap(t *testing.T) {
	b := NewSpeechBudget()
	t0 := time.Now()

	for i := 0; i < budgetPerTenMinutes; i++ {
		b.Record(t0.Add(time.Duration(i) * time.Minute))
	}
	assert.False(t, b.Allow(t0.Add(4*time.Minute)))

	// The oldest utterance ages out of the ten-minute window.
	assert.True(t, b.Allow(t0.Add(10*time.Minute+30*time.Second)))
}

func TestSpeechBudgetHourCap(t *testing.T) {
	b := NewSpeechBudget()
	t0 := time.Now()

	for i := 0; i < budgetPerHour; i++ {
		b.Record(t0.Add(time.Duration(i) * 5 * time.Minute))
	}
	// Ten-minute window is fine, the hourly cap is not.
	assert.False(t, b.Allow(t0.Add(56*time.Minute)))

	assert.True(t, b.Allow(t0.Add(time.Hour+time.Second)))
}

func TestSpeechBudgetAllowDoesNotCharge(t *testing.T) {
	b := NewSpeechBudget()
	now := time.Now()
	for i := 0; i < 100; i++ {
		assert.True(t, b.Allow(now))
	}
}
