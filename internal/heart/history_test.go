package heart

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleHistoryCapAndOrder(t *testing.T) {
	h := newCycleHistory()
	for i := 1; i <= 25; i++ {
		h.Append(FlowCycleRecord{CycleID: int64(i)})
	}

	all := h.All()
	require.Len(t, all, cycleHistoryCap)
	assert.Equal(t, int64(6), all[0].CycleID)
	assert.Equal(t, int64(25), all[len(all)-1].CycleID)

	// Aggregates keep counting past eviction.
	assert.Equal(t, int64(25), h.Stats().TotalCycles)
}

func TestCycleHistoryClassification(t *testing.T) {
	h := newCycleHistory()
	h.Append(FlowCycleRecord{
		CycleID:  1,
		Action:   ActionResult{Success: true, ActionType: ActionSpeak},
		Duration: 100 * time.Millisecond,
	})
	h.Append(FlowCycleRecord{
		CycleID:  2,
		Action:   ActionResult{Success: true, ActionType: ActionSilence},
		Duration: 50 * time.Millisecond,
	})
	h.Append(FlowCycleRecord{
		CycleID:  3,
		Err:      "perceive: boom",
		Duration: 30 * time.Millisecond,
	})
	h.Append(FlowCycleRecord{
		CycleID: 4,
		// A failed speak attempt is not a speak.
		Action:   ActionResult{Success: false, ActionType: ActionSpeak},
		Duration: 20 * time.Millisecond,
	})

	s := h.Stats()
	assert.Equal(t, int64(4), s.TotalCycles)
	assert.Equal(t, int64(1), s.SpeakCount)
	assert.Equal(t, int64(2), s.SilenceCount)
	assert.InDelta(t, 0.75, s.SuccessRate, 1e-9)
	assert.InDelta(t, 50.0, s.AvgDurationMs, 1e-9)
}

func TestCycleHistoryRecent(t *testing.T) {
	h := newCycleHistory()
	assert.Nil(t, h.Recent(3))

	for i := 1; i <= 10; i++ {
		h.Append(FlowCycleRecord{CycleID: int64(i)})
	}

	recent := h.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, int64(8), recent[0].CycleID)
	assert.Equal(t, int64(10), recent[2].CycleID)

	assert.Nil(t, h.Recent(0))
	assert.Len(t, h.Recent(100), 10)
}

func TestCycleHistoryCopyOut(t *testing.T) {
	h := newCycleHistory()
	h.Append(FlowCycleRecord{CycleID: 1, Err: "original"})

	all := h.All()
	all[0].Err = "mutated"

	assert.Equal(t, "original", h.All()[0].Err)
}

func TestCycleHistoryEmptyStats(t *testing.T) {
	s := newCycleHistory().Stats()
	assert.Zero(t, s.TotalCycles)
	assert.Zero(t, s.SuccessRate)
	assert.Zero(t, s.AvgDurationMs)
}

func TestCycleHistoryConcurrentAppend(t *testing.T) {
	h := newCycleHistory()
	done := make(chan struct{})
	for w := 0; w < 4; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				h.Append(FlowCycleRecord{Err: fmt.Sprintf("w%d", w)})
			}
		}(w)
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.Equal(t, int64(200), h.Stats().TotalCycles)
	assert.Len(t, h.All(), cycleHistoryCap)
}
