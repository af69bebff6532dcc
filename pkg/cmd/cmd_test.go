package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCmd struct {
	name    string
	desc    string
	aliases []string
	runs    int
	lastInv *Invocation
	err     error
}

func (f *fakeCmd) Name() string        { return f.name }
func (f *fakeCmd) Description() string { return f.desc }
func (f *fakeCmd) Aliases() []string   { return f.aliases }

func (f *fakeCmd) Run(ctx context.Context, inv *Invocation) error {
	f.runs++
	f.lastInv = inv
	return f.err
}

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry()
	ping := &fakeCmd{name: "ping", desc: "Answers pong."}
	reg.Register(ping)

	got := reg.Get("ping")
	require.NotNil(t, got)
	require.NoError(t, got.Run(context.Background(), &Invocation{Args: []string{"now"}}))
	assert.Equal(t, 1, ping.runs)
	assert.Equal(t, []string{"now"}, ping.lastInv.Args)

	assert.Nil(t, reg.Get("pong"))
}

func TestRegistryAliases(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeCmd{name: "quit", aliases: []string{"exit", "bye"}})

	for _, name := range []string{"quit", "exit", "bye"} {
		c := reg.Get(name)
		require.NotNil(t, c, name)
		assert.Equal(t, "quit", c.Name())
	}
}

func TestRegistryAliasesSurviveWrapping(t *testing.T) {
	reg := NewRegistry()
	inner := &fakeCmd{name: "quit", aliases: []string{"exit"}}
	wrapped := Wrap(inner, func(ctx context.Context, inv *Invocation) error {
		return inner.Run(ctx, inv)
	})
	reg.Register(wrapped)

	c := reg.Get("exit")
	require.NotNil(t, c)
	require.NoError(t, c.Run(context.Background(), &Invocation{}))
	assert.Equal(t, 1, inner.runs)
}

func TestRegistryGetAllSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeCmd{name: "stats"})
	reg.Register(&fakeCmd{name: "help"})
	reg.Register(&fakeCmd{name: "pause", aliases: []string{"hold"}})

	all := reg.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "help", all[0].Name())
	assert.Equal(t, "pause", all[1].Name())
	assert.Equal(t, "stats", all[2].Name())
}

func TestRegistryLaterRegistrationWins(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeCmd{name: "state", desc: "old"})
	reg.Register(&fakeCmd{name: "state", desc: "new"})

	require.Len(t, reg.GetAll(), 1)
	assert.Equal(t, "new", reg.Get("state").Description())
}

func TestApplyOrdersMiddleware(t *testing.T) {
	var trace []string
	tag := func(label string) Middleware {
		return func(c Command) Command {
			return Wrap(c, func(ctx context.Context, inv *Invocation) error {
				trace = append(trace, label)
				return c.Run(ctx, inv)
			})
		}
	}

	inner := &fakeCmd{name: "noop"}
	c := Apply(inner, tag("first"), tag("second"))
	require.NoError(t, c.Run(context.Background(), &Invocation{}))

	// The last middleware in the list ends up outermost.
	assert.Equal(t, []string{"second", "first"}, trace)
	assert.Equal(t, 1, inner.runs)
}

func TestWrapDelegatesIdentity(t *testing.T) {
	inner := &fakeCmd{name: "clear", desc: "Wipes the buffer."}

	t.Run("custom run", func(t *testing.T) {
		ran := false
		c := Wrap(inner, func(ctx context.Context, inv *Invocation) error {
			ran = true
			return nil
		})
		assert.Equal(t, "clear", c.Name())
		assert.Equal(t, "Wipes the buffer.", c.Description())
		require.NoError(t, c.Run(context.Background(), &Invocation{}))
		assert.True(t, ran)
		assert.Equal(t, 0, inner.runs)
	})

	t.Run("nil run delegates", func(t *testing.T) {
		inner.err = errors.New("boom")
		c := &Wrapped{Inner: inner}
		assert.ErrorContains(t, c.Run(context.Background(), &Invocation{}), "boom")
		assert.Equal(t, 1, inner.runs)
	})
}

func TestRootUnwraps(t *testing.T) {
	inner := &fakeCmd{name: "busy"}
	twice := Wrap(Wrap(inner, nil), nil)

	assert.Same(t, inner, Root(twice))
	assert.Same(t, inner, Root(inner))
}
