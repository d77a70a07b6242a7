package interp

import (
	"bytes"
	"context"
	"io"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/expand"
	"github.com/sandboshell/sandboshell/limits"
	"github.com/sandboshell/sandboshell/registry"
	"github.com/sandboshell/sandboshell/vfs"
)

// Config configures a new Interpreter, mirroring spec.md §6's
// `new Interpreter({ fs, commands, limits, exec, fetch?, sleep?, trace? },
// initialState)` constructor.
type Config struct {
	FS       vfs.FS
	Commands *registry.Registry
	Limits   limits.Config

	// Exec overrides the registry.ExecFunc passed to every CommandContext.
	// Left nil, the Interpreter wires its own (State.execScript), so
	// registry commands can always re-enter the executor for a nested
	// script without the host needing to implement this itself.
	Exec  registry.ExecFunc
	Fetch registry.FetchFunc
	Sleep registry.SleepFunc
	Trace registry.TraceFunc

	// Stdin/Stdout/Stderr default to an empty reader and internal buffers
	// when left nil; ExecuteScript's ExecResult always reports the bytes
	// written during that call, even when the host never supplies its own
	// writers.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Env   map[string]string
	Dir   string
	Name0 string
	Args  []string
}

// ExecResult is the top-level result of executeScript, per spec.md §6:
// `{ stdout, stderr, exitCode, env? }`.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Env      map[string]string
}

// Interpreter is the host-facing entry point: construct one with
// NewInterpreter, then call ExecuteScript (or Run, for raw source text) as
// many times as needed against the same persistent State.
type Interpreter struct {
	State *State

	stdoutBuf *bytes.Buffer
	stderrBuf *bytes.Buffer
}

// NewInterpreter builds an Interpreter from cfg, seeding its State the way
// spec.md §6 describes and falling back to capturing buffers for stdout and
// stderr when the host doesn't supply its own writers.
func NewInterpreter(cfg Config) *Interpreter {
	it := &Interpreter{}
	if cfg.Stdout == nil {
		it.stdoutBuf = &bytes.Buffer{}
		cfg.Stdout = it.stdoutBuf
	}
	if cfg.Stderr == nil {
		it.stderrBuf = &bytes.Buffer{}
		cfg.Stderr = it.stderrBuf
	}
	it.State = NewState(cfg)
	return it
}

// Run parses src and executes it, the `parse` then `executeScript`
// round trip spec.md §6's "Script text entry" section describes.
func (it *Interpreter) Run(ctx context.Context, src string) (ExecResult, error) {
	script, err := parseScriptSrc(src)
	if err != nil {
		return ExecResult{ExitCode: 2}, err
	}
	return it.ExecuteScript(ctx, script)
}

// ExecuteScript runs a parsed Script against the Interpreter's persistent
// State and returns an ExecResult carrying this call's stdout/stderr output
// plus a snapshot of every shell variable, exported or not, per spec.md §6.
func (it *Interpreter) ExecuteScript(ctx context.Context, script *ast.Script) (ExecResult, error) {
	if it.stdoutBuf != nil {
		it.stdoutBuf.Reset()
	}
	if it.stderrBuf != nil {
		it.stderrBuf.Reset()
	}

	err := it.State.run(ctx, script)
	code := it.State.Exit
	switch e := err.(type) {
	case *ExitError:
		code = e.Code
		err = nil
	case *ErrexitError:
		code = e.Code
		err = nil
	case *ReturnError:
		code = e.Code
		err = nil
	case *expand.UnsetParameterError:
		io.WriteString(it.State.Stderr, e.Message+"\n")
		code = 1
		err = nil
	case *BreakError, *ContinueError:
		// break/continue outside any enclosing loop is a no-op at the
		// script's top level, matching bash's own lenient behavior.
		err = nil
	}

	res := ExecResult{ExitCode: code, Env: it.State.plainEnv()}
	if it.stdoutBuf != nil {
		res.Stdout = it.stdoutBuf.String()
	}
	if it.stderrBuf != nil {
		res.Stderr = it.stderrBuf.String()
	}
	return res, err
}
