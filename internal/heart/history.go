package heart

import (
	"sync"
	"time"
)

// cycleHistoryCap bounds the in-memory cycle record ring.
const cycleHistoryCap = 20

// CycleStats aggregates over every cycle ever run, not just the ones
// still in the ring.
type CycleStats struct {
	TotalCycles   int64   `json:"total_cycles"`
	SpeakCount    int64   `json:"speak_count"`
	SilenceCount  int64   `json:"silence_count"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// cycleHistory is a fixed-capacity FIFO of completed cycle records with
// running aggregates that survive eviction.
type cycleHistory struct {
	mu       sync.RWMutex
	records  []FlowCycleRecord
	total    int64
	speaks   int64
	silences int64
	failures int64
	durTotal time.Duration
}

func newCycleHistory() *cycleHistory {
	return &cycleHistory{records: make([]FlowCycleRecord, 0, cycleHistoryCap)}
}

func (h *cycleHistory) Append(rec FlowCycleRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, rec)
	if n := len(h.records); n > cycleHistoryCap {
		h.records = h.records[n-cycleHistoryCap:]
	}

	h.total++
	h.durTotal += rec.Duration
	switch {
	case rec.Err != "":
		h.failures++
	case rec.Action.Success && rec.Action.ActionType == ActionSpeak:
		h.speaks++
	default:
		h.silences++
	}
}

// All returns a copy of the retained records, oldest first.
func (h *cycleHistory) All() []FlowCycleRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]FlowCycleRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Recent returns up to n of the newest retained records, oldest first.
func (h *cycleHistory) Recent(n int) []FlowCycleRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || len(h.records) == 0 {
		return nil
	}
	if n > len(h.records) {
		n = len(h.records)
	}
	out := make([]FlowCycleRecord, n)
	copy(out, h.records[len(h.records)-n:])
	return out
}

func (h *cycleHistory) Stats() CycleStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := CycleStats{
		TotalCycles:  h.total,
		SpeakCount:   h.speaks,
		SilenceCount: h.silences,
	}
	if h.total > 0 {
		s.SuccessRate = float64(h.total-h.failures) / float64(h.total)
		s.AvgDurationMs = float64(h.durTotal.Milliseconds()) / float64(h.total)
	}
	return s
}
