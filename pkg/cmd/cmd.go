// Package cmd is a transport-agnostic command core for the agent's
// control surfaces. A command has a name, a description and a Run; how
// lines get read and dispatched (console REPL, a future socket
// adapter) is the caller's business.
package cmd

import "context"

// Invocation carries parsed arguments plus an opaque payload set by
// whatever adapter dispatched the command.
type Invocation struct {
	Args []string
	Data any
}

// Command is the universal contract. Argument parsing and output
// formatting live inside each implementation.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// Aliased lets a command answer to alternate names, e.g. quit and exit.
type Aliased interface {
	Command
	Aliases() []string
}
