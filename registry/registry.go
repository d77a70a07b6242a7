// Package registry defines the command registry spec.md §6 names as an
// external collaborator: a mapping from command name to an executable
// object, consulted by the executor once alias expansion, function lookup,
// and builtin dispatch have all missed (spec.md §4.4 step 6).
package registry

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/limits"
	"github.com/sandboshell/sandboshell/vfs"
)

// ExecResult is the result of running one command, per spec.md §6.
type ExecResult struct {
	ExitCode int
}

// FetchFunc is the optional network-fetch primitive spec.md §6 names as a
// black box; nil when a host doesn't wire one in.
type FetchFunc func(ctx context.Context, url string) (string, error)

// SleepFunc is the optional mockable sleep primitive (spec.md §5's
// "sleep-based builtins" suspension point).
type SleepFunc func(ctx context.Context, seconds float64) error

// TraceFunc renders one xtrace line; see interp.Tracer for the real
// implementation.
type TraceFunc func(line string)

// ExecFunc re-enters the executor for a nested Script, the hook command
// substitution and `source`/`.`-style registry entries use to run a command
// list against the same interpreter state.
type ExecFunc func(ctx context.Context, script *ast.Script) (ExecResult, error)

// CommandContext is passed to every Command.Execute call, per spec.md §6.
type CommandContext struct {
	FS   vfs.FS
	Cwd  string
	Env  map[string]string // read-only view
	ExportedEnv []string   // "NAME=value" pairs, a child process's view

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Limits limits.Config
	Exec   ExecFunc
	Fetch  FetchFunc
	Sleep  SleepFunc
	Trace  TraceFunc

	// Keys lists every command name currently registered, for builtins like
	// `type -a`/`compgen` that need to enumerate the registry.
	Keys func() []string

	// FileDescriptors is the current fd table view (spec.md §3/§6's FD
	// encoding), read-only from the command's perspective.
	FileDescriptors map[int]string
}

// Command is one externally-provided executable, per spec.md §6.
type Command interface {
	Execute(ctx context.Context, args []string, cctx *CommandContext) (ExecResult, error)
}

// CommandFunc adapts a plain function to Command, for registry entries that
// don't need their own type.
type CommandFunc func(ctx context.Context, args []string, cctx *CommandContext) (ExecResult, error)

func (f CommandFunc) Execute(ctx context.Context, args []string, cctx *CommandContext) (ExecResult, error) {
	return f(ctx, args, cctx)
}

// Registry maps command names to Commands; the executor consults it after
// aliases, functions, and builtins have all missed.
type Registry struct {
	mu   sync.RWMutex
	cmds map[string]Command
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{cmds: map[string]Command{}}
}

// Register adds or replaces the command bound to name.
func (r *Registry) Register(name string, cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds[name] = cmd
}

// Lookup returns the command bound to name, if any.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.cmds[name]
	return cmd, ok
}

// Keys returns every registered command name, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cmds))
	for name := range r.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
