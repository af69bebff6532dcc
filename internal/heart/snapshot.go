package heart

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/heartflow/datastore"
	"github.com/keshon/heartflow/pkg/util"
)

const snapshotKey = "agent_state"

// StateSnapshot is the durable slice of agent state restored on boot.
type StateSnapshot struct {
	Impulse          float64 `json:"impulse"`
	Emotion          Emotion `json:"emotion"`
	EmotionIntensity float64 `json:"emotion_intensity"`
	CycleCount       int64   `json:"cycle_count"`
	IgnoredCount     int     `json:"ignored_count"`
	SavedAtMs        int64   `json:"saved_at_ms"`
	SavedAt          string  `json:"saved_at"`
}

type snapshotter struct {
	ds  *datastore.DataStore
	log zerolog.Logger
}

func (s *snapshotter) save(loop *FlowLoop, engine *EmotionEngine, now time.Time) error {
	state := loop.CurrentState()
	emo := engine.Current()
	snap := StateSnapshot{
		Impulse:          state.ImpulseValue,
		Emotion:          emo.Emotion,
		EmotionIntensity: emo.Intensity,
		CycleCount:       loop.CycleStats().TotalCycles,
		IgnoredCount:     state.IgnoredCount,
		SavedAtMs:        now.UnixMilli(),
		SavedAt:          util.FormatDateTpl(now.UnixMilli(), "YYYY-MM-DD hh:mm:ss"),
	}
	s.ds.Add(snapshotKey, snap)
	return s.ds.SaveToFile()
}

// load pulls the last snapshot, tolerating a missing or corrupt record.
func (s *snapshotter) load() (StateSnapshot, bool) {
	raw, ok := s.ds.Get(snapshotKey)
	if !ok {
		return StateSnapshot{}, false
	}
	// The store hands back generic JSON values; round-trip into the
	// typed struct.
	data, err := json.Marshal(raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("snapshot record not marshalable")
		return StateSnapshot{}, false
	}
	var snap StateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Warn().Err(err).Msg("snapshot record corrupt, starting fresh")
		return StateSnapshot{}, false
	}
	return snap, true
}

// run persists state on a timer and once more on shutdown.
func (s *snapshotter) run(ctx context.Context, interval time.Duration, loop *FlowLoop, engine *EmotionEngine) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.save(loop, engine, time.Now()); err != nil {
				s.log.Warn().Err(err).Msg("final snapshot failed")
			}
			return nil
		case <-ticker.C:
			if err := s.save(loop, engine, time.Now()); err != nil {
				s.log.Warn().Err(err).Msg("snapshot failed")
			}
		}
	}
}
