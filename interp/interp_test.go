package interp

import (
	"context"
	"io"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/sandboshell/sandboshell/registry"
	"github.com/sandboshell/sandboshell/vfs"
)

func newTestInterp(t *testing.T) *Interpreter {
	t.Helper()
	return NewInterpreter(Config{
		FS:       vfs.NewMemFS(),
		Commands: registry.New(),
		Dir:      "/",
		Env:      map[string]string{"HOME": "/root"},
	})
}

func run(t *testing.T, src string) ExecResult {
	t.Helper()
	it := newTestInterp(t)
	res, err := it.Run(context.Background(), src)
	qt.Assert(t, err, qt.IsNil)
	return res
}

// S1: IFS word splitting of "$@".
func TestScenarioPositionalSplitting(t *testing.T) {
	c := qt.New(t)
	res := run(t, `set -- a 'b c' d; for x in "$@"; do echo "[$x]"; done`)
	c.Assert(res.Stdout, qt.Equals, "[a]\n[b c]\n[d]\n")
	c.Assert(res.ExitCode, qt.Equals, 0)
}

// S2: parameter expansion with pattern removal/substitution.
func TestScenarioParamPattern(t *testing.T) {
	c := qt.New(t)
	res := run(t, `v=/path/to/file.tar.gz; echo "${v##*/}"; echo "${v%.*}"; echo "${v//\//_}"`)
	c.Assert(res.Stdout, qt.Equals, "file.tar.gz\n/path/to/file.tar\n_path_to_file.tar.gz\n")
}

// S3: brace range with zero padding and a step.
func TestScenarioBraceRange(t *testing.T) {
	c := qt.New(t)
	res := run(t, `for i in {01..05..2}; do printf '%s ' "$i"; done; echo`)
	c.Assert(res.Stdout, qt.Equals, "01 03 05 \n")
}

// S4: pipefail takes the rightmost non-zero exit status.
func TestScenarioPipefail(t *testing.T) {
	c := qt.New(t)
	res := run(t, `set -o pipefail; ( exit 3 ) | ( exit 0 ) | ( exit 5 ) | ( exit 0 ); echo $?`)
	c.Assert(res.Stdout, qt.Equals, "5\n")
}

// S5: errexit exempts the condition of an if-statement.
func TestScenarioErrexitCondition(t *testing.T) {
	c := qt.New(t)
	res := run(t, `set -e; f() { return 7; }; if f; then echo yes; else echo "no=$?"; fi; echo after=$?`)
	c.Assert(res.Stdout, qt.Equals, "no=7\nafter=0\n")
	c.Assert(res.ExitCode, qt.Equals, 0)
}

// S6: command substitution captures stdout only and trims trailing newlines.
func TestScenarioCommandSubstTrim(t *testing.T) {
	c := qt.New(t)
	res := run(t, `a=$(printf 'x\ny\n\n'); printf '[%s]\n' "$a"`)
	c.Assert(res.Stdout, qt.Equals, "[x\ny]\n")
}

// Universal property 2: $? mirrors the emitted exit code after any statement.
func TestExitStatusMirrorsQuestionMark(t *testing.T) {
	c := qt.New(t)
	res := run(t, `false; echo "$?"`)
	c.Assert(res.Stdout, qt.Equals, "1\n")
}

// Universal property 3: single-quoted content is never expanded.
func TestSingleQuotedIsLiteral(t *testing.T) {
	c := qt.New(t)
	res := run(t, `echo '$x `+"`"+`cmd`+"`"+` *glob*'`)
	c.Assert(res.Stdout, qt.Equals, "$x `cmd` *glob*\n")
}

// Universal property 9: `exit` inside a subshell ends only the subshell: the
// parent sees its status in $? and carries on to exit 0.
func TestSubshellExitIsolated(t *testing.T) {
	c := qt.New(t)
	res := run(t, `( exit 42 ); echo "after=$?"`)
	c.Assert(res.Stdout, qt.Equals, "after=42\n")
	c.Assert(res.ExitCode, qt.Equals, 0)
}

// Universal property 10: errexit doesn't fire inside a && short-circuit.
func TestErrexitShortCircuitExemption(t *testing.T) {
	c := qt.New(t)
	res := run(t, `set -e; false && true; echo ok`)
	c.Assert(res.Stdout, qt.Equals, "ok\n")
	c.Assert(res.ExitCode, qt.Equals, 0)
}

// Universal property 11: a scalar assignment only overwrites index 0 of an
// existing array, rather than discarding the rest of it.
func TestArrayScalarBindingCoexistence(t *testing.T) {
	c := qt.New(t)
	res := run(t, `a=(1 2 3); a=9; echo "${a[0]}" "${a[1]}" "${a[2]}"`)
	c.Assert(res.Stdout, qt.Equals, "9 2 3\n")
}

// Universal property 12: local variables unwind on return, even from nested
// depth, restoring (or unsetting) the outer binding.
func TestLocalRestoredOnReturn(t *testing.T) {
	c := qt.New(t)
	res := run(t, `x=outer; f() { local x=inner; g; echo "in f: x=$x"; }; g() { local x=g; return 3; }; f; echo "top: x=$x"`)
	c.Assert(res.Stdout, qt.Equals, "in f: x=inner\ntop: x=outer\n")
}

func TestFunctionReturnCode(t *testing.T) {
	c := qt.New(t)
	res := run(t, `f() { return 5; }; f; echo "$?"`)
	c.Assert(res.Stdout, qt.Equals, "5\n")
}

func TestBuiltinExportAndRegistryDispatch(t *testing.T) {
	c := qt.New(t)
	it := newTestInterp(t)
	it.State.Registry.Register("greet", registry.CommandFunc(func(ctx context.Context, args []string, cctx *registry.CommandContext) (registry.ExecResult, error) {
		cctx.Stdout.Write([]byte("hello " + args[0] + "\n"))
		return registry.ExecResult{ExitCode: 0}, nil
	}))
	res, err := it.Run(context.Background(), `greet world`)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Stdout, qt.Equals, "hello world\n")
}

func TestBreakContinueLoopDepth(t *testing.T) {
	c := qt.New(t)
	res := run(t, `for i in 1 2 3 4 5; do if [ "$i" = 3 ]; then continue; fi; if [ "$i" = 5 ]; then break; fi; echo "$i"; done`)
	c.Assert(res.Stdout, qt.Equals, "1\n2\n4\n")
}

func TestCaseFallthrough(t *testing.T) {
	c := qt.New(t)
	res := run(t, `case a in a) echo one;& b) echo two;; esac`)
	c.Assert(res.Stdout, qt.Equals, "one\ntwo\n")
}

func TestHeredocExpansion(t *testing.T) {
	c := qt.New(t)
	it := newTestInterp(t)
	it.State.Registry.Register("cat", registry.CommandFunc(func(ctx context.Context, args []string, cctx *registry.CommandContext) (registry.ExecResult, error) {
		io.Copy(cctx.Stdout, cctx.Stdin)
		return registry.ExecResult{ExitCode: 0}, nil
	}))
	res, err := it.Run(context.Background(), "x=world; cat <<EOF\nhello $x\nEOF\n")
	c.Assert(err, qt.IsNil)
	c.Assert(res.Stdout, qt.Equals, "hello world\n")
}
