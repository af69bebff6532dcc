package heart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/heartflow/datastore"
	"github.com/keshon/heartflow/pkg/jobmgr"
)

const (
	speakEventBuffer        = 16
	emotionTickInterval     = time.Second
	janitorInterval         = time.Minute
	defaultSnapshotInterval = 30 * time.Second
)

// CoordinatorOptions wires the coordinator together. Perceiver,
// Thinker, Decider, Actor and Store are required; the rest have
// defaults.
type CoordinatorOptions struct {
	Config Config
	Memory WorkingMemoryConfig

	Store     LongTermStore
	Perceiver Perceiver
	Thinker   Thinker
	Decider   Decider
	Actor     Actor

	// Engine is constructed internally when nil, for callers that do
	// not share it with their perceiver.
	Engine *EmotionEngine

	// SnapshotStore enables state persistence across restarts.
	SnapshotStore    *datastore.DataStore
	SnapshotInterval time.Duration

	Logger zerolog.Logger
}

// Coordinator owns the flow loop, emotion engine, working memory and
// speak gate, and runs their background jobs as one unit.
type Coordinator struct {
	loop   *FlowLoop
	engine *EmotionEngine
	memory *WorkingMemory
	gate   *SpeakGate
	budget *SpeechBudget
	jobs   *jobmgr.Manager
	snap   *snapshotter

	speakCh          chan ProactiveSpeakEvent
	snapshotInterval time.Duration

	mu      sync.Mutex
	started bool

	log zerolog.Logger
}

func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	loop, err := NewFlowLoop(
		opts.Config,
		opts.Perceiver,
		opts.Thinker,
		opts.Decider,
		opts.Actor,
		opts.Logger.With().Str("comp", "flowloop").Logger(),
	)
	if err != nil {
		return nil, fmt.Errorf("flow loop: %w", err)
	}

	memory, err := NewWorkingMemory(
		opts.Memory,
		opts.Store,
		opts.Logger.With().Str("comp", "memory").Logger(),
	)
	if err != nil {
		return nil, fmt.Errorf("working memory: %w", err)
	}

	engine := opts.Engine
	if engine == nil {
		engine = NewEmotionEngine(opts.Logger.With().Str("comp", "emotions").Logger())
	}

	c := &Coordinator{
		loop:             loop,
		engine:           engine,
		memory:           memory,
		gate:             NewSpeakGate(opts.Logger.With().Str("comp", "speakgate").Logger()),
		budget:           NewSpeechBudget(),
		speakCh:          make(chan ProactiveSpeakEvent, speakEventBuffer),
		snapshotInterval: opts.SnapshotInterval,
		log:              opts.Logger,
	}
	if c.snapshotInterval <= 0 {
		c.snapshotInterval = defaultSnapshotInterval
	}
	if opts.SnapshotStore != nil {
		c.snap = &snapshotter{ds: opts.SnapshotStore, log: opts.Logger.With().Str("comp", "snapshot").Logger()}
	}

	loop.SetBudget(c.budget)
	loop.SetOnSpeak(c.onSpeak)
	c.jobs = jobmgr.NewManager(func(msg string) {
		c.log.Debug().Str("job", msg).Msg("job status")
	})
	return c, nil
}

// onSpeak fans a loop utterance out to subscribers and the speak gate.
func (c *Coordinator) onSpeak(ev ProactiveSpeakEvent) {
	select {
	case c.speakCh <- ev:
	default:
		c.log.Warn().Msg("speak subscriber lagging, event dropped")
	}
	c.gate.HandleSpeakEvent(TtsPlayEvent{
		Content:   ev.Message,
		Priority:  ev.Priority,
		Reason:    ev.Reason,
		Timestamp: ev.Timing,
	})
}

// Start restores persisted state and launches the background jobs.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("coordinator already started")
	}

	if c.snap != nil {
		if snap, ok := c.snap.load(); ok {
			c.loop.SeedState(snap.Impulse, snap.Emotion, snap.EmotionIntensity)
			c.engine.Seed(snap.Emotion, snap.EmotionIntensity)
			c.log.Info().
				Str("emotion", string(snap.Emotion)).
				Float64("impulse", snap.Impulse).
				Str("saved_at", snap.SavedAt).
				Msg("restored state snapshot")
		}
	}

	if err := c.jobs.StartAsync(ctx, "flowloop", func(ctx context.Context) error {
		c.loop.Start(ctx)
		<-ctx.Done()
		c.loop.Stop()
		return nil
	}); err != nil {
		return err
	}
	if err := c.jobs.StartAsync(ctx, "speakgate", func(ctx context.Context) error {
		return c.gate.Run(ctx)
	}); err != nil {
		return err
	}
	if err := c.jobs.StartAsync(ctx, "emotions", func(ctx context.Context) error {
		ticker := time.NewTicker(emotionTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				c.engine.UpdateTransition()
			}
		}
	}); err != nil {
		return err
	}
	if err := c.jobs.StartAsync(ctx, "janitor", func(ctx context.Context) error {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				c.memory.CleanupExpired()
			}
		}
	}); err != nil {
		return err
	}
	if c.snap != nil {
		if err := c.jobs.StartAsync(ctx, "snapshot", func(ctx context.Context) error {
			return c.snap.run(ctx, c.snapshotInterval, c.loop, c.engine)
		}); err != nil {
			return err
		}
	}

	c.started = true
	c.log.Info().Msg("coordinator started")
	return nil
}

// Stop joins every background job and takes a final snapshot.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.jobs.StopAll()
	if c.snap != nil {
		if err := c.snap.save(c.loop, c.engine, time.Now()); err != nil {
			c.log.Warn().Err(err).Msg("final snapshot failed")
		}
	}
	c.started = false
	c.log.Info().Msg("coordinator stopped")
}

func (c *Coordinator) Pause()  { c.loop.Pause() }
func (c *Coordinator) Resume() { c.loop.Resume() }

func (c *Coordinator) CurrentState() InternalState { return c.loop.CurrentState() }

func (c *Coordinator) CycleHistory() []FlowCycleRecord { return c.loop.CycleHistory() }

func (c *Coordinator) RecentCycles(n int) []FlowCycleRecord { return c.loop.RecentCycles(n) }

func (c *Coordinator) CycleStats() CycleStats { return c.loop.CycleStats() }

func (c *Coordinator) Statistics() Statistics { return c.loop.Statistics() }

// RecordPassiveReply marks a reply the agent gave when addressed, which
// resets the proactive pressure without charging the budget.
func (c *Coordinator) RecordPassiveReply() { c.loop.RecordPassiveReply() }

// SpeakEvents is the proactive-utterance feed, before gating.
func (c *Coordinator) SpeakEvents() <-chan ProactiveSpeakEvent { return c.speakCh }

// TtsEvents is the gated playback feed.
func (c *Coordinator) TtsEvents() <-chan TtsPlayEvent { return c.gate.Events() }

func (c *Coordinator) SetTtsPlayingStatus(v bool) { c.gate.SetTtsPlaying(v) }

func (c *Coordinator) SetUserBusyStatus(v bool) { c.gate.SetUserBusy(v) }

func (c *Coordinator) SetInCallStatus(v bool) { c.gate.SetInCall(v) }

func (c *Coordinator) AddTurn(ctx context.Context, turn ConversationTurn) error {
	return c.memory.AddTurn(ctx, turn)
}

func (c *Coordinator) PromoteTurn(ctx context.Context, turnID, reason string) error {
	return c.memory.PromoteManually(ctx, turnID, reason)
}

func (c *Coordinator) ClearWorkingMemory(ctx context.Context, promoteAll bool) error {
	return c.memory.Clear(ctx, promoteAll)
}

func (c *Coordinator) MemoryStats() MemoryStats { return c.memory.Statistics() }

func (c *Coordinator) MemoryContext() string { return c.memory.Context() }

func (c *Coordinator) RequestEmotionChange(target Emotion, reason string, intensity float64, force bool, customDuration time.Duration) Emotion {
	return c.engine.RequestEmotionChange(target, reason, intensity, force, customDuration)
}

func (c *Coordinator) CurrentEmotion() EmotionState { return c.engine.Current() }

func (c *Coordinator) UpdateConfig(cfg Config) error { return c.loop.UpdateConfig(cfg) }

func (c *Coordinator) QueueStats() GateStats { return c.gate.QueueStats() }
