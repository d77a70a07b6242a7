// Package interp executes a parsed script against a virtual filesystem and
// an externally supplied command registry, per spec.md §4.4's execution
// model. It never shells out to a real OS: every effect (file I/O, process
// launch, network fetch, sleep) is mediated by the vfs.FS, registry.Registry,
// and registry.CommandContext hooks passed in at construction.
package interp

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/expand"
	"github.com/sandboshell/sandboshell/limits"
	"github.com/sandboshell/sandboshell/registry"
	"github.com/sandboshell/sandboshell/vfs"
)

// fd is one entry of the open file-descriptor table, per spec.md §3/§6's FD
// encoding. Reader, Writer or both are set (both for a `<>` redirection).
type fd struct {
	Reader io.Reader
	Writer io.Writer
	Path   string // source path, for CommandContext.FileDescriptors
}

// State is the running shell's mutable state, mirroring the teacher's
// Runner but replacing its os/exec-backed fields with the sandboxed
// FS/Registry collaborators spec.md §6 names.
type State struct {
	FS       vfs.FS
	Registry *registry.Registry
	Limits   limits.Config

	Exec  registry.ExecFunc
	Fetch registry.FetchFunc
	Sleep registry.SleepFunc

	Dir      string
	DirStack []string

	Vars     map[string]expand.Variable
	CmdVars  map[string]string // transient prefix assignments for the command in flight
	Funcs    map[string]*ast.FunctionDef
	Aliases  map[string]string

	Positional []string
	Name0      string

	Options map[string]bool // set -o style (errexit, nounset, pipefail, ...)
	Shopt   map[string]bool // shopt style (extglob, globstar, ...)

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	FDs map[int]fd

	Builtins map[string]Builtin

	// HostTrace is the optional CommandContext.Trace hook a host supplies
	// via Config.Trace, independent of the `set -o xtrace` Tracer below.
	HostTrace registry.TraceFunc

	Exit         int
	InFunc       int // nesting depth of function calls, for `return`'s validity check
	InSource     int
	LoopDepth    int
	SuppressErrexit int // non-zero while evaluating a condition context

	CallbackErr  string
	CallbackExit string

	Tracer *Tracer

	localStack [][]savedVar

	pidCounter int
	started    time.Time
	randState  uint64

	commandCount int
}

// NewState builds a fresh shell state seeded from cfg, per spec.md §6's
// `new Interpreter({fs, commands, limits, exec, fetch, sleep, trace},
// initialState)` constructor contract.
func NewState(cfg Config) *State {
	lim := cfg.Limits
	if lim.Options == nil && lim.Shopt == nil {
		lim = limits.Default()
	}
	s := &State{
		FS:       cfg.FS,
		Registry: cfg.Commands,
		Limits:   lim,
		Exec:      cfg.Exec,
		Fetch:     cfg.Fetch,
		Sleep:     cfg.Sleep,
		HostTrace: cfg.Trace,
		Dir:       cfg.Dir,
		Vars:     map[string]expand.Variable{},
		Funcs:    map[string]*ast.FunctionDef{},
		Aliases:  map[string]string{},
		Positional: append([]string(nil), cfg.Args...),
		Name0:    cfg.Name0,
		Options:  copyBoolMap(lim.Options),
		Shopt:    copyBoolMap(lim.Shopt),
		Stdin:    cfg.Stdin,
		Stdout:   cfg.Stdout,
		Stderr:   cfg.Stderr,
		FDs:      map[int]fd{},
		started:  time.Now(),
		randState: 0x2545F4914F6CDD1D,
	}
	if s.Dir == "" {
		s.Dir = "/"
	}
	if s.Stdin == nil {
		s.Stdin = io.MultiReader()
	}
	for name, val := range cfg.Env {
		s.Vars[name] = expand.Variable{Set: true, Exported: true, Kind: expand.String, Str: val}
	}
	s.Vars["IFS"] = expand.Variable{Set: true, Kind: expand.String, Str: " \t\n"}
	s.Vars["PWD"] = expand.Variable{Set: true, Exported: true, Kind: expand.String, Str: s.Dir}
	s.Builtins = defaultBuiltins()
	if s.Exec == nil {
		s.Exec = s.execScript
	}
	if s.Options["xtrace"] {
		s.Tracer = newTracer(s.Stderr)
	} else {
		s.Tracer = nil
	}
	return s
}

func copyBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// envAdapter implements expand.WriteEnviron over a State, the same
// separation the teacher draws between Runner and its expandEnv wrapper so
// package expand never needs to import package interp.
type envAdapter struct{ s *State }

func (e envAdapter) Get(name string) expand.Variable {
	return e.s.GetVar(name)
}

func (e envAdapter) Each(f func(name string, vr expand.Variable) bool) {
	for name, vr := range e.s.Vars {
		if !f(name, vr) {
			return
		}
	}
}

func (e envAdapter) Set(name string, vr expand.Variable) error {
	return e.s.SetVar(name, vr)
}

// expandConfig builds the expand.Config describing the current shell state,
// the per-call analogue of the teacher's fillExpandConfig.
func (s *State) expandConfig(ctx context.Context) *expand.Config {
	ifs := s.Vars["IFS"]
	home := s.Vars["HOME"].Str
	return &expand.Config{
		Env:              envAdapter{s},
		FS:               s.FS,
		CWD:              s.Dir,
		Home:             home,
		IFS:              ifs.Str,
		NoUnset:          s.Options["nounset"],
		NoGlob:           s.Options["noglob"],
		GlobStar:         s.Shopt["globstar"],
		ExtGlob:          s.Shopt["extglob"],
		NullGlob:         s.Shopt["nullglob"],
		FailGlob:         s.Shopt["failglob"],
		DotGlob:          s.Shopt["dotglob"],
		Limits:           s.Limits,
		ExecCommandSubst: s.runCommandSubst,
		Positional:       s.Positional,
		Name0:            s.Name0,
		LastExitCode:     s.Exit,
	}
}

// runCommandSubst re-enters the executor for a `$(...)` body, capturing its
// stdout, per spec.md §4.3.
func (s *State) runCommandSubst(ctx context.Context, body *ast.Script) (string, int, error) {
	sub := s.sub()
	var buf bytes.Buffer
	sub.Stdout = &buf
	err := sub.run(ctx, body)
	code := sub.Exit
	if ee, ok := err.(*ExitError); ok {
		code = ee.Code
		err = nil
	}
	return buf.String(), code, err
}

// sub returns a copy of s sharing the same mutable maps (vars, funcs,
// filesystem) but with its own exit status and fd/stdout overlay, the shape
// a command substitution or subshell needs.
func (s *State) sub() *State {
	cp := *s
	cp.FDs = map[int]fd{}
	for k, v := range s.FDs {
		cp.FDs[k] = v
	}
	return &cp
}

func (s *State) nextPID() int {
	s.pidCounter++
	return s.pidCounter
}

func (s *State) elapsed() float64 {
	return time.Since(s.started).Seconds()
}

func (s *State) randomInt() int64 {
	// xorshift64*, deterministic per-State so $RANDOM is reproducible across
	// runs of the same script, matching the sandboxed determinism spec.md §6
	// asks of every host-supplied primitive.
	x := s.randState
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	s.randState = x
	return int64((x >> 48) & 0x7fff)
}

func (s *State) exportedEnv() []string {
	var out []string
	for name, vr := range s.Vars {
		if !vr.Exported {
			continue
		}
		out = append(out, name+"="+vr.String())
	}
	for name, v := range s.CmdVars {
		out = append(out, name+"="+v)
	}
	return out
}

func (s *State) plainEnv() map[string]string {
	out := map[string]string{}
	for name, vr := range s.Vars {
		out[name] = vr.String()
	}
	for name, v := range s.CmdVars {
		out[name] = v
	}
	return out
}

// commandContext builds the registry.CommandContext for one command
// invocation.
func (s *State) commandContext() *registry.CommandContext {
	fdPaths := map[int]string{}
	for n, f := range s.FDs {
		fdPaths[n] = f.Path
	}
	return &registry.CommandContext{
		FS:              s.FS,
		Cwd:             s.Dir,
		Env:             s.plainEnv(),
		ExportedEnv:     s.exportedEnv(),
		Stdin:           s.fdReader(0),
		Stdout:          s.fdWriter(1),
		Stderr:          s.fdWriter(2),
		Limits:          s.Limits,
		Exec:            s.Exec,
		Fetch:           s.Fetch,
		Sleep:           s.Sleep,
		Trace:           s.traceFunc(),
		Keys:            s.Registry.Keys,
		FileDescriptors: fdPaths,
	}
}

func (s *State) fdReader(n int) io.Reader {
	if f, ok := s.FDs[n]; ok && f.Reader != nil {
		return f.Reader
	}
	if n == 0 {
		return s.Stdin
	}
	return io.MultiReader()
}

func (s *State) fdWriter(n int) io.Writer {
	if f, ok := s.FDs[n]; ok && f.Writer != nil {
		return f.Writer
	}
	switch n {
	case 1:
		return s.Stdout
	case 2:
		return s.Stderr
	default:
		return io.Discard
	}
}

// traceFunc builds the CommandContext.Trace hook seen by registry commands,
// combining the host-supplied Config.Trace (if any) with the internal
// xtrace Tracer (if `set -o xtrace` is active).
func (s *State) traceFunc() registry.TraceFunc {
	if s.HostTrace == nil && s.Tracer == nil {
		return nil
	}
	return func(line string) {
		if s.HostTrace != nil {
			s.HostTrace(line)
		}
		s.Tracer.raw(line)
	}
}

// countCommand enforces limits.Config.MaxCommandCount, per spec.md §5's
// execution limits; runStmt calls it once per statement executed.
func (s *State) countCommand() error {
	s.commandCount++
	if s.Limits.MaxCommandCount > 0 && s.commandCount > s.Limits.MaxCommandCount {
		return &ExecutionLimitError{Limit: "max_command_count"}
	}
	return nil
}

