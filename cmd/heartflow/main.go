// cmd/heartflow/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/keshon/heartflow/datastore"
	"github.com/keshon/heartflow/internal/config"
	"github.com/keshon/heartflow/internal/console"
	"github.com/keshon/heartflow/internal/heart"
	"github.com/keshon/heartflow/internal/logging"
	"github.com/keshon/heartflow/internal/storage"
	"github.com/keshon/heartflow/pkg/cmd"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("[ERR] Config: %v", err)
	}
	if err := logging.Init(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
		File:   cfg.LogFile,
	}); err != nil {
		log.Fatalf("[ERR] Logging: %v", err)
	}
	logger := logging.Component("main")
	logger.Info().Msg("Starting HeartFlow...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open long-term store")
	}
	defer store.Close()

	snapDS, err := datastore.New(cfg.SnapshotPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open snapshot store")
	}
	defer snapDS.Close()

	engine := heart.NewEmotionEngine(logging.Component("emotions"))
	heartCfg := heart.Config{
		BaseLoopInterval:    cfg.BaseInterval,
		MinLoopInterval:     cfg.MinInterval,
		MaxLoopInterval:     cfg.MaxInterval,
		TalkativeLevel:      cfg.Talkative,
		PersonalityType:     cfg.Personality,
		EnableInnerThoughts: cfg.InnerThoughts,
		EnableCuriosity:     cfg.Curiosity,
		EnableProactiveCare: cfg.ProactiveCare,
	}
	session := console.NewSession(engine, heartCfg, logging.Component("console"))

	coord, err := heart.NewCoordinator(heart.CoordinatorOptions{
		Config: heartCfg,
		Memory: heart.WorkingMemoryConfig{
			Capacity:         cfg.WMCapacity,
			PromoteThreshold: cfg.WMPromoteThreshold,
			Retention:        cfg.WMRetention,
		},
		Store:            store,
		Perceiver:        session,
		Thinker:          session,
		Decider:          session,
		Actor:            session,
		Engine:           engine,
		SnapshotStore:    snapDS,
		SnapshotInterval: cfg.SnapshotInterval,
		Logger:           logging.Component("heart"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build coordinator")
	}
	if err := coord.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start coordinator")
	}

	reg := console.Commands(coord, os.Stdout, cancel, logging.Component("console"))

	fmt.Println("HeartFlow is listening. Type to chat, /help for commands.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runVoice(gctx, coord)
	})
	g.Go(func() error {
		return runInput(gctx, cancel, reg, coord, session)
	})

	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("Received signal, shutting down...")
		cancel()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("session ended with error")
		}
		cancel()
	}

	coord.Stop()
	logger.Info().Msg("HeartFlow exited cleanly")
}

func openStore(cfg *config.Config) (storage.Store, error) {
	slog := logging.Component("storage")
	switch cfg.MemoryBackend {
	case "sqlite":
		return storage.NewSQLiteStore(cfg.SQLitePath, slog)
	case "redis":
		return storage.NewRedisStore(cfg.RedisURL, slog)
	default:
		return storage.NewFileStore(cfg.FileStorePath, slog)
	}
}

// runVoice prints gated utterances as they clear the speak gate.
func runVoice(ctx context.Context, coord *heart.Coordinator) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-coord.TtsEvents():
			fmt.Printf("\n💬 %s\n", ev.Content)
		}
	}
}

// runInput feeds stdin lines into the session and working memory until
// EOF or /quit.
func runInput(ctx context.Context, cancel context.CancelFunc, reg *cmd.Registry, coord *heart.Coordinator, session *console.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			dispatchCommand(ctx, reg, line)
			// /quit cancels the context; bail before blocking on the
			// next scan.
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		session.NotifyInput(line)
		if err := coord.AddTurn(ctx, console.TurnFromLine(line)); err != nil {
			mlog := logging.Component("main")
			mlog.Warn().Err(err).Msg("failed to buffer turn")
		}
	}
	cancel()
	return scanner.Err()
}

func dispatchCommand(ctx context.Context, reg *cmd.Registry, line string) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return
	}
	c := reg.Get(fields[0])
	if c == nil {
		fmt.Println("Unknown command, try /help")
		return
	}
	if err := c.Run(ctx, &cmd.Invocation{Args: fields[1:]}); err != nil {
		fmt.Println(err)
	}
}
