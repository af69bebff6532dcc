package heart

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	queuePassInterval = 5 * time.Second
	queueEntryTTL     = 5 * time.Minute
	ttsEventBuffer    = 16
)

type queuedSpeech struct {
	id       string
	event    TtsPlayEvent
	queuedAt time.Time
}

// SpeakGate decides whether a speech event plays now or waits. Three
// environment flags gate by priority; blocked events queue and are
// retried one at a time so a burst of stale speech cannot flood the
// player when the gate opens.
type SpeakGate struct {
	ttsPlaying atomic.Bool
	userBusy   atomic.Bool
	inCall     atomic.Bool

	mu    sync.Mutex
	queue []queuedSpeech

	out     chan TtsPlayEvent
	recheck chan struct{}

	played  atomic.Int64
	queued  atomic.Int64
	expired atomic.Int64
	dropped atomic.Int64

	clock func() time.Time
	log   zerolog.Logger
}

func NewSpeakGate(log zerolog.Logger) *SpeakGate {
	return &SpeakGate{
		out:     make(chan TtsPlayEvent, ttsEventBuffer),
		recheck: make(chan struct{}, 1),
		clock:   time.Now,
		log:     log,
	}
}

// Events is the playback feed. Consume it promptly; events are dropped,
// not buffered without bound, when the consumer lags.
func (g *SpeakGate) Events() <-chan TtsPlayEvent {
	return g.out
}

// HandleSpeakEvent plays the event immediately when the gate allows it,
// otherwise queues it for the periodic pass.
func (g *SpeakGate) HandleSpeakEvent(ev TtsPlayEvent) {
	if g.allowed(ev.Priority) {
		g.play(ev, "")
		return
	}

	q := queuedSpeech{id: uuid.NewString(), event: ev, queuedAt: g.clock()}
	g.mu.Lock()
	g.queue = append(g.queue, q)
	depth := len(g.queue)
	g.mu.Unlock()

	g.queued.Add(1)
	g.log.Debug().
		Str("id", q.id).
		Str("priority", ev.Priority.String()).
		Int("queue_depth", depth).
		Msg("speech blocked, queued")
}

// allowed applies the gating matrix: playback and a busy user yield to
// high priority, a call yields only to urgent.
func (g *SpeakGate) allowed(p Priority) bool {
	if g.ttsPlaying.Load() && p < PriorityHigh {
		return false
	}
	if g.userBusy.Load() && p < PriorityHigh {
		return false
	}
	if g.inCall.Load() && p < PriorityUrgent {
		return false
	}
	return true
}

func (g *SpeakGate) play(ev TtsPlayEvent, id string) {
	if id == "" {
		id = uuid.NewString()
	}
	ev.MessageID = id
	select {
	case g.out <- ev:
		g.played.Add(1)
	default:
		g.dropped.Add(1)
		g.log.Warn().Str("id", id).Msg("tts subscriber lagging, event dropped")
	}
}

// SetTtsPlaying updates the playback flag. Clearing it pokes the queue
// so a waiting event does not sit out a full pass interval.
func (g *SpeakGate) SetTtsPlaying(v bool) {
	was := g.ttsPlaying.Swap(v)
	if was && !v {
		select {
		case g.recheck <- struct{}{}:
		default:
		}
	}
}

func (g *SpeakGate) SetUserBusy(v bool) { g.userBusy.Store(v) }

func (g *SpeakGate) SetInCall(v bool) { g.inCall.Store(v) }

// Run drives the periodic queue pass until the context ends.
func (g *SpeakGate) Run(ctx context.Context) error {
	ticker := time.NewTicker(queuePassInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.processQueue()
		case <-g.recheck:
			g.processQueue()
		}
	}
}

// processQueue drops expired entries and plays at most one eligible
// event per pass, oldest first. Later entries keep their place.
func (g *SpeakGate) processQueue() {
	now := g.clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.queue[:0]
	playedOne := false
	for i, q := range g.queue {
		if now.Sub(q.queuedAt) > queueEntryTTL {
			g.expired.Add(1)
			g.log.Debug().Str("id", q.id).Msg("queued speech expired")
			continue
		}
		if !playedOne && g.allowed(q.event.Priority) {
			g.play(q.event, q.id)
			playedOne = true
			continue
		}
		kept = append(kept, q)
		if playedOne {
			kept = append(kept, g.queue[i+1:]...)
			break
		}
	}
	g.queue = kept
}

// ClearQueue discards every queued event and reports how many.
func (g *SpeakGate) ClearQueue() int {
	g.mu.Lock()
	n := len(g.queue)
	g.queue = g.queue[:0]
	g.mu.Unlock()
	if n > 0 {
		g.log.Info().Int("dropped", n).Msg("speech queue cleared")
	}
	return n
}

// GateStats is a point-in-time view of the gate.
type GateStats struct {
	QueueLength int   `json:"queue_length"`
	Played      int64 `json:"played"`
	Queued      int64 `json:"queued"`
	Expired     int64 `json:"expired"`
	Dropped     int64 `json:"dropped"`
	TtsPlaying  bool  `json:"tts_playing"`
	UserBusy    bool  `json:"user_busy"`
	InCall      bool  `json:"in_call"`
}

func (g *SpeakGate) QueueStats() GateStats {
	g.mu.Lock()
	depth := len(g.queue)
	g.mu.Unlock()
	return GateStats{
		QueueLength: depth,
		Played:      g.played.Load(),
		Queued:      g.queued.Load(),
		Expired:     g.expired.Load(),
		Dropped:     g.dropped.Load(),
		TtsPlaying:  g.ttsPlaying.Load(),
		UserBusy:    g.userBusy.Load(),
		InCall:      g.inCall.Load(),
	}
}
