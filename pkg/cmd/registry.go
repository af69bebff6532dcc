package cmd

import "sort"

// Registry stores commands by canonical name and resolves aliases. It
// does not dispatch; adapters look commands up and invoke them with
// their own context.
type Registry struct {
	commands map[string]Command
	aliases  map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
		aliases:  make(map[string]string),
	}
}

// Register adds a command under its name and any aliases. Aliases are
// read from the root command, so wrapping middleware does not hide
// them. A later registration with the same name wins.
func (r *Registry) Register(c Command) {
	r.commands[c.Name()] = c
	if a, ok := Root(c).(Aliased); ok {
		for _, alias := range a.Aliases() {
			r.aliases[alias] = c.Name()
		}
	}
}

// Get resolves a name or alias to its command, or nil.
func (r *Registry) Get(name string) Command {
	if c, ok := r.commands[name]; ok {
		return c
	}
	if canonical, ok := r.aliases[name]; ok {
		return r.commands[canonical]
	}
	return nil
}

// GetAll returns every registered command sorted by name. Aliases do
// not produce duplicates.
func (r *Registry) GetAll() []Command {
	list := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}
