package interp

import (
	"context"
	"strconv"
	"strings"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/expand"
	"github.com/sandboshell/sandboshell/parser"
	"github.com/sandboshell/sandboshell/token"
	"github.com/sandboshell/sandboshell/vfs"
)

// applyRedirects opens each redirection against s.FS, installing the
// resulting descriptors into s.FDs, and returns a function that restores
// the previous table, mirroring the teacher's redir save/restore stack
// (interp.go's redir method) so a command's redirections never leak past
// its own Stmt.
func (s *State) applyRedirects(ctx context.Context, redirs []*ast.Redirect) (func(), error) {
	saved := map[int]*fd{}
	mark := func(n int) {
		if _, ok := saved[n]; ok {
			return
		}
		if cur, ok := s.FDs[n]; ok {
			c := cur
			saved[n] = &c
		} else {
			saved[n] = nil
		}
	}

	for _, r := range redirs {
		if err := s.openRedirect(ctx, r, mark); err != nil {
			s.restoreFDs(saved)
			return nil, err
		}
	}

	return func() { s.restoreFDs(saved) }, nil
}

func (s *State) restoreFDs(saved map[int]*fd) {
	for n, prev := range saved {
		if prev == nil {
			delete(s.FDs, n)
		} else {
			s.FDs[n] = *prev
		}
	}
}

func defaultFD(op token.Kind) int {
	switch op {
	case token.LSS, token.SHL, token.DHEREDOC, token.WHEREDOC, token.RDRINOUT, token.DPLIN:
		return 0
	default:
		return 1
	}
}

func (s *State) openRedirect(ctx context.Context, r *ast.Redirect, mark func(int)) error {
	n := r.FD
	if n < 0 {
		n = defaultFD(r.Op)
	}
	if r.FDVar != "" {
		n = s.allocFD()
		if err := s.SetVar(r.FDVar, expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(n)}); err != nil {
			return err
		}
	}

	cfg := s.expandConfig(ctx)

	switch r.Op {
	case token.SHL, token.DHEREDOC:
		mark(n)
		body := r.Heredoc.Body
		if !r.Heredoc.Quoted {
			expanded, err := expandHeredocBody(ctx, cfg, body)
			if err != nil {
				return err
			}
			body = expanded
		}
		s.FDs[n] = fd{Reader: strings.NewReader(body), Path: "<<" + r.Heredoc.Delim}
		return nil

	case token.WHEREDOC:
		mark(n)
		text, err := expand.Literal(ctx, cfg, r.Target)
		if err != nil {
			return err
		}
		s.FDs[n] = fd{Reader: strings.NewReader(text + "\n"), Path: "<<<"}
		return nil

	case token.DPLIN, token.DPLOUT:
		mark(n)
		target, err := expand.Literal(ctx, cfg, r.Target)
		if err != nil {
			return err
		}
		if target == "-" {
			delete(s.FDs, n)
			return nil
		}
		src, err := strconv.Atoi(target)
		if err != nil {
			return &BadSubstitutionError{Message: target + ": ambiguous redirect"}
		}
		if cur, ok := s.FDs[src]; ok {
			s.FDs[n] = cur
		} else if src == 0 {
			s.FDs[n] = fd{Reader: s.Stdin, Path: "/dev/stdin"}
		} else if src == 1 {
			s.FDs[n] = fd{Writer: s.Stdout, Path: "/dev/stdout"}
		} else if src == 2 {
			s.FDs[n] = fd{Writer: s.Stderr, Path: "/dev/stderr"}
		}
		return nil
	}

	path, err := expand.Literal(ctx, cfg, r.Target)
	if err != nil {
		return err
	}
	full := s.FS.ResolvePath(s.Dir, path)

	switch r.Op {
	case token.LSS:
		mark(n)
		content, err := s.FS.ReadFile(full)
		if err != nil {
			return err
		}
		s.FDs[n] = fd{Reader: strings.NewReader(content), Path: full}
		return nil

	case token.GTR, token.CLBOUT:
		mark(n)
		if err := s.FS.WriteFile(full, "", false); err != nil {
			return err
		}
		s.FDs[n] = fd{Writer: &fileWriter{fs: s.FS, path: full, append: true}, Path: full}
		return nil

	case token.SHR:
		mark(n)
		s.FDs[n] = fd{Writer: &fileWriter{fs: s.FS, path: full, append: true}, Path: full}
		return nil

	case token.RDRINOUT:
		mark(n)
		content, _ := s.FS.ReadFile(full)
		s.FDs[n] = fd{Reader: strings.NewReader(content), Writer: &fileWriter{fs: s.FS, path: full, append: true}, Path: full}
		return nil

	case token.RDRALL, token.APPALL:
		mark(1)
		mark(2)
		if r.Op == token.RDRALL {
			if err := s.FS.WriteFile(full, "", false); err != nil {
				return err
			}
		}
		w := &fileWriter{fs: s.FS, path: full, append: true}
		s.FDs[1] = fd{Writer: w, Path: full}
		s.FDs[2] = fd{Writer: w, Path: full}
		return nil
	}

	return &BadSubstitutionError{Message: "unsupported redirection"}
}

func (s *State) allocFD() int {
	n := 10
	for {
		if _, ok := s.FDs[n]; !ok {
			return n
		}
		n++
	}
}

// expandHeredocBody expands parameter/command/arithmetic substitutions
// (but not word-splitting or globbing) inside an unquoted here-document
// body, per spec.md §4.3's heredoc expansion rule.
func expandHeredocBody(ctx context.Context, cfg *expand.Config, body string) (string, error) {
	w, err := parser.ParseWordContent(body)
	if err != nil {
		return body, nil
	}
	return expand.Literal(ctx, cfg, w)
}

// fileWriter passes each Write call straight to the vfs.FS's WriteFile,
// with no buffering; the vfs.FS contract has no streaming handle. Each call
// uses the append flag the writer was opened with.
type fileWriter struct {
	fs     vfs.FS
	path   string
	append bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	if err := w.fs.WriteFile(w.path, string(p), w.append); err != nil {
		return 0, err
	}
	return len(p), nil
}
