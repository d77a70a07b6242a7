package expand

import (
	"context"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/limits"
	"github.com/sandboshell/sandboshell/vfs"
)

// ExecCommandSubstFunc re-enters the executor for a CommandSubstitution's
// body, returning its captured stdout and exit code. The stdout need not be
// trimmed: commandSubst in expand.go strips the trailing newlines per
// spec.md §4.3.
type ExecCommandSubstFunc func(ctx context.Context, body *ast.Script) (stdout string, exitCode int, err error)

// Config carries everything the expansion engine needs from the executor,
// so expand never imports interp: interp.State implements WriteEnviron and
// passes itself in as Env, the same separation the teacher draws between
// package expand and package interp.
type Config struct {
	Env WriteEnviron
	FS  vfs.FS

	CWD  string
	Home string // $HOME, consulted by tilde expansion

	IFS string

	NoUnset  bool // set -u
	NoGlob   bool // set -f
	GlobStar bool // shopt globstar
	ExtGlob  bool // shopt extglob
	NullGlob bool // shopt nullglob
	FailGlob bool // shopt failglob
	DotGlob  bool // shopt dotglob

	Limits limits.Config

	ExecCommandSubst ExecCommandSubstFunc

	// Positional and Name0 back $@, $*, $#, $0 for parameter expansion;
	// these aren't ordinary Environ entries since they aren't assignable by
	// name the way a Variable is.
	Positional []string
	Name0      string

	LastExitCode int
}

// UnsetParameterError is raised by `${x:?msg}`/`${x?msg}`, per spec.md
// §4.3's ErrorIfUnset operator; interp's ExecuteScript ends the script with
// exit status 1 and writes Message to stderr.
type UnsetParameterError struct {
	Param   string
	Message string
}

func (e *UnsetParameterError) Error() string { return e.Message }

// NounsetError is raised when NoUnset is set and an unset parameter is
// expanded without a `:-`/`:=`-style guard, per spec.md §7.
type NounsetError struct {
	Param string
}

func (e *NounsetError) Error() string {
	return "bash: " + e.Param + ": unbound variable"
}

// GlobError is raised by a non-matching pattern under failglob.
type GlobError struct {
	Pattern string
}

func (e *GlobError) Error() string {
	return "bash: no match: " + e.Pattern
}
