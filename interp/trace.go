package interp

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Tracer renders `set -o xtrace` output, one line per simple command,
// following the teacher's nil-receiver-safe pattern (interp/trace.go): a
// nil *Tracer is always a legal no-op, so call sites never have to branch
// on whether xtrace is enabled.
type Tracer struct {
	buf     strings.Builder
	out     io.Writer
	first   bool
	prefix  *color.Color
}

func newTracer(out io.Writer) *Tracer {
	return &Tracer{out: out, first: true, prefix: color.New(color.FgYellow)}
}

func (t *Tracer) raw(line string) {
	if t == nil {
		return
	}
	t.flush()
	fmt.Fprintln(t.out, line)
}

// call traces a simple command invocation: builtins/functions get their
// arguments shown space-joined, matching the teacher's "set" suppression
// doesn't apply here since there is no `set` builtin-specific carve-out in
// the sandboxed dispatch table.
func (t *Tracer) call(name string, args []string) {
	if t == nil {
		return
	}
	t.string("+ ")
	t.string(name)
	for _, a := range args {
		t.string(" ")
		t.string(a)
	}
	t.newLineFlush()
}

// assign traces a `name=value` assignment line.
func (t *Tracer) assign(name, value string) {
	if t == nil {
		return
	}
	t.stringf("+ %s=%s", name, value)
	t.newLineFlush()
}

func (t *Tracer) string(s string) {
	if t == nil {
		return
	}
	t.buf.WriteString(s)
}

func (t *Tracer) stringf(format string, args ...any) {
	if t == nil {
		return
	}
	t.buf.WriteString(fmt.Sprintf(format, args...))
}

func (t *Tracer) flush() {
	if t == nil || t.buf.Len() == 0 {
		return
	}
	line := t.buf.String()
	t.buf.Reset()
	if strings.HasPrefix(line, "+ ") {
		t.prefix.Fprint(t.out, "+ ")
		fmt.Fprint(t.out, line[2:])
		return
	}
	fmt.Fprint(t.out, line)
}

func (t *Tracer) newLineFlush() {
	if t == nil {
		return
	}
	t.flush()
	fmt.Fprintln(t.out)
	t.first = true
}
