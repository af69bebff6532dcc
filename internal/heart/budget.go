package heart

import (
	"sync"
	"time"
)

// Proactive speech caps. Passive replies are never budgeted.
const (
	budgetPerTenMinutes = 4
	budgetPerHour       = 12
	budgetMinGap        = 45 * time.Second
)

// SpeechBudget rate-limits proactive speech over two rolling windows
// plus a minimum gap between utterances.
type SpeechBudget struct {
	mu        sync.Mutex
	perWindow []time.Time
	perHour   []time.Time
	lastSpeak time.Time

	windowMax int
	hourMax   int
	minGap    time.Duration
}

func NewSpeechBudget() *SpeechBudget {
	return &SpeechBudget{
		windowMax: budgetPerTenMinutes,
		hourMax:   budgetPerHour,
		minGap:    budgetMinGap,
	}
}

// Allow reports whether another proactive utterance fits the budget.
func (b *SpeechBudget) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trim(now)
	if !b.lastSpeak.IsZero() && now.Sub(b.lastSpeak) < b.minGap {
		return false
	}
	return len(b.perWindow) < b.windowMax && len(b.perHour) < b.hourMax
}

// Record charges one utterance against both windows.
func (b *SpeechBudget) Record(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trim(now)
	b.perWindow = append(b.perWindow, now)
	b.perHour = append(b.perHour, now)
	b.lastSpeak = now
}

// trim drops timestamps that left the rolling windows. Entries are
// appended in order, so the stale ones form a prefix.
func (b *SpeechBudget) trim(now time.Time) {
	windowCutoff := now.Add(-10 * time.Minute)
	for len(b.perWindow) > 0 && b.perWindow[0].Before(windowCutoff) {
		b.perWindow = b.perWindow[1:]
	}
	hourCutoff := now.Add(-time.Hour)
	for len(b.perHour) > 0 && b.perHour[0].Before(hourCutoff) {
		b.perHour = b.perHour[1:]
	}
}
