package console

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/keshon/heartflow/internal/heart"
	"github.com/keshon/heartflow/pkg/cmd"
)

// Commands builds the slash-command registry for the terminal adapter.
// quit is called when the user asks to leave; the REPL owns the actual
// shutdown.
func Commands(coord *heart.Coordinator, out io.Writer, quit func(), log zerolog.Logger) *cmd.Registry {
	reg := cmd.NewRegistry()
	mw := commandLogger(log)

	reg.Register(cmd.Apply(&stateCmd{coord: coord, out: out}, mw))
	reg.Register(cmd.Apply(&statsCmd{coord: coord, out: out}, mw))
	reg.Register(cmd.Apply(&pauseCmd{coord: coord, out: out}, mw))
	reg.Register(cmd.Apply(&resumeCmd{coord: coord, out: out}, mw))
	reg.Register(cmd.Apply(&busyCmd{coord: coord, out: out}, mw))
	reg.Register(cmd.Apply(&callCmd{coord: coord, out: out}, mw))
	reg.Register(cmd.Apply(&clearCmd{coord: coord, out: out}, mw))
	reg.Register(cmd.Apply(&quitCmd{quit: quit}, mw))
	reg.Register(cmd.Apply(&helpCmd{reg: reg, out: out}, mw))
	return reg
}

// commandLogger traces every dispatch at debug level.
func commandLogger(log zerolog.Logger) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			log.Debug().Str("command", c.Name()).Strs("args", inv.Args).Msg("Dispatching command")
			return c.Run(ctx, inv)
		})
	}
}

type stateCmd struct {
	coord *heart.Coordinator
	out   io.Writer
}

func (c *stateCmd) Name() string        { return "state" }
func (c *stateCmd) Description() string { return "Show impulse, emotion and ignore streak." }

func (c *stateCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	st := c.coord.CurrentState()
	emo := c.coord.CurrentEmotion()
	fmt.Fprintf(c.out, "impulse=%.2f emotion=%s(%.2f) ignored=%d speak_ratio=%.2f\n",
		st.ImpulseValue, emo.Emotion, emo.Intensity, st.IgnoredCount, st.RecentSpeakRatio)
	return nil
}

type statsCmd struct {
	coord *heart.Coordinator
	out   io.Writer
}

func (c *statsCmd) Name() string        { return "stats" }
func (c *statsCmd) Description() string { return "Show cycle, memory and queue counters." }

func (c *statsCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	cs := c.coord.CycleStats()
	ms := c.coord.MemoryStats()
	qs := c.coord.QueueStats()
	fmt.Fprintf(c.out, "cycles=%d speaks=%d silences=%d success=%.2f avg=%.0fms\n",
		cs.TotalCycles, cs.SpeakCount, cs.SilenceCount, cs.SuccessRate, cs.AvgDurationMs)
	fmt.Fprintf(c.out, "memory size=%d/%d promoted=%d evicted=%d expired=%d\n",
		ms.Size, ms.Capacity, ms.Promoted, ms.Evicted, ms.Expired)
	fmt.Fprintf(c.out, "queue depth=%d played=%d expired=%d dropped=%d\n",
		qs.QueueLength, qs.Played, qs.Expired, qs.Dropped)
	return nil
}

type pauseCmd struct {
	coord *heart.Coordinator
	out   io.Writer
}

func (c *pauseCmd) Name() string        { return "pause" }
func (c *pauseCmd) Description() string { return "Pause the flow loop." }

func (c *pauseCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	c.coord.Pause()
	fmt.Fprintln(c.out, "Flow loop paused.")
	return nil
}

type resumeCmd struct {
	coord *heart.Coordinator
	out   io.Writer
}

func (c *resumeCmd) Name() string        { return "resume" }
func (c *resumeCmd) Description() string { return "Resume the flow loop." }

func (c *resumeCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	c.coord.Resume()
	fmt.Fprintln(c.out, "Flow loop resumed.")
	return nil
}

type busyCmd struct {
	coord *heart.Coordinator
	out   io.Writer
}

func (c *busyCmd) Name() string        { return "busy" }
func (c *busyCmd) Description() string { return "Mark yourself busy so speech queues: /busy on|off" }

func (c *busyCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	on, err := parseOnOff(inv.Args, "busy")
	if err != nil {
		return err
	}
	c.coord.SetUserBusyStatus(on)
	fmt.Fprintf(c.out, "busy=%v\n", on)
	return nil
}

type callCmd struct {
	coord *heart.Coordinator
	out   io.Writer
}

func (c *callCmd) Name() string        { return "call" }
func (c *callCmd) Description() string { return "Mark a call in progress: /call on|off" }

func (c *callCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	on, err := parseOnOff(inv.Args, "call")
	if err != nil {
		return err
	}
	c.coord.SetInCallStatus(on)
	fmt.Fprintf(c.out, "call=%v\n", on)
	return nil
}

func parseOnOff(args []string, name string) (bool, error) {
	if len(args) == 1 {
		switch args[0] {
		case "on":
			return true, nil
		case "off":
			return false, nil
		}
	}
	return false, fmt.Errorf("usage: /%s on|off", name)
}

type clearCmd struct {
	coord *heart.Coordinator
	out   io.Writer
}

func (c *clearCmd) Name() string        { return "clear" }
func (c *clearCmd) Description() string { return "Clear working memory: /clear [promote]" }

func (c *clearCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	promote := len(inv.Args) > 0 && inv.Args[0] == "promote"
	if err := c.coord.ClearWorkingMemory(ctx, promote); err != nil {
		return fmt.Errorf("clear working memory: %w", err)
	}
	fmt.Fprintln(c.out, "Working memory cleared.")
	return nil
}

type quitCmd struct {
	quit func()
}

func (c *quitCmd) Name() string        { return "quit" }
func (c *quitCmd) Description() string { return "Leave the session." }
func (c *quitCmd) Aliases() []string   { return []string{"exit"} }

func (c *quitCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	c.quit()
	return nil
}

type helpCmd struct {
	reg *cmd.Registry
	out io.Writer
}

func (c *helpCmd) Name() string        { return "help" }
func (c *helpCmd) Description() string { return "Show this list." }

func (c *helpCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	fmt.Fprintln(c.out, "Commands:")
	for _, cc := range c.reg.GetAll() {
		fmt.Fprintf(c.out, "  /%-8s %s\n", cc.Name(), cc.Description())
	}
	return nil
}
