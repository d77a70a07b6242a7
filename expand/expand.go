package expand

import (
	"context"
	"strconv"
	"strings"

	"github.com/sandboshell/sandboshell/ast"
)

// Literal expands a word the way a double-quoted context does: tilde,
// parameter/arithmetic/command-substitution, all concatenated into a single
// string with no word-splitting and no pathname expansion. It's used for
// assignment right-hand sides, here-document bodies, case patterns' source
// text before pattern translation, and the inside of "..." quoting.
func Literal(ctx context.Context, cfg *Config, w *ast.WordNode) (string, error) {
	if w == nil {
		return "", nil
	}
	var sb strings.Builder
	for i, part := range w.Parts {
		s, err := expandValuePart(ctx, cfg, part)
		if err != nil {
			return "", err
		}
		if i == 0 {
			if t, ok := part.(*ast.TildeExpansion); ok {
				sb.WriteString(tildeValue(cfg, t))
				continue
			}
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

// expandValuePart reduces one WordPart to its expanded text, joining array
// results with the first IFS character the way unquoted `$*` and quoted
// array-less contexts do. Quote-sensitive splitting and globbing are handled
// one level up, by fieldsOfWord.
func expandValuePart(ctx context.Context, cfg *Config, part ast.WordPart) (string, error) {
	switch p := part.(type) {
	case *ast.Literal:
		return p.Value, nil
	case *ast.Escaped:
		return string(p.Char), nil
	case *ast.SingleQuoted:
		return p.Value, nil
	case *ast.DoubleQuoted:
		var sb strings.Builder
		for _, inner := range p.Parts {
			s, err := expandValuePart(ctx, cfg, inner)
			if err != nil {
				return "", err
			}
			sb.WriteString(s)
		}
		return sb.String(), nil
	case *ast.TildeExpansion:
		return tildeValue(cfg, p), nil
	case *ast.ParameterExpansion:
		res, err := Param(ctx, cfg, p)
		if err != nil {
			return "", err
		}
		return asSingle(cfg, res), nil
	case *ast.ArithmeticExpansion:
		v, err := Arith(ctx, cfg, p.X)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(v, 10), nil
	case *ast.CommandSubstitution:
		return commandSubst(ctx, cfg, p)
	case *ast.ProcessSubstitution:
		// Process substitution has no meaning outside a real process tree;
		// spec.md §1 scopes sandboxed execution only, so it degrades to the
		// empty string rather than a /dev/fd path.
		return "", nil
	case *ast.Glob:
		return p.Pattern, nil
	case *ast.BraceExpansion:
		// Reached only when Braces() wasn't run first (e.g. a nested brace
		// inside an already-selected branch); render literally.
		var sb strings.Builder
		for _, item := range p.Items {
			s, err := Literal(ctx, cfg, item.Word)
			if err != nil {
				return "", err
			}
			sb.WriteString(s)
		}
		return sb.String(), nil
	default:
		return "", nil
	}
}

func commandSubst(ctx context.Context, cfg *Config, cs *ast.CommandSubstitution) (string, error) {
	if cfg.ExecCommandSubst == nil {
		return "", nil
	}
	out, _, err := cfg.ExecCommandSubst(ctx, cs.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

func tildeValue(cfg *Config, t *ast.TildeExpansion) string {
	if !t.HasUser {
		if cfg.Home != "" {
			return cfg.Home
		}
		return "~"
	}
	// The sandbox has no user database, so `~name` only resolves for the one
	// account a sandboxed run always has: root. Any other name stays literal,
	// matching bash's own behavior for an unknown user (spec.md §9).
	if t.User == "root" {
		return "/root"
	}
	return "~" + t.User
}

// frag is one piece of a word mid-expansion: either literal text (quoted, so
// never split or globbed), a field-splittable expansion result, or the
// elements of an unquoted/quoted array reference ($@, ${a[@]]) which fan out
// into separate fields on their own.
type frag struct {
	text    string
	quoted  bool
	pattern string // raw glob text parallel to text, when this frag can glob
	isGlob  bool
	multi   []string
	atForm  bool
}

// Fields expands a list of words into final argv-style fields: brace
// expansion, then per-word tilde/parameter/arithmetic/command-substitution
// with word-splitting and pathname expansion, per spec.md §4.3's six phases.
func Fields(ctx context.Context, cfg *Config, words []*ast.WordNode) ([]string, error) {
	var out []string
	for _, w := range words {
		for _, bw := range Braces(w) {
			fs, err := fieldsOfWord(ctx, cfg, bw)
			if err != nil {
				return nil, err
			}
			out = append(out, fs...)
		}
	}
	return out, nil
}

func fieldsOfWord(ctx context.Context, cfg *Config, w *ast.WordNode) ([]string, error) {
	frags, err := wordFrags(ctx, cfg, w.Parts, false)
	if err != nil {
		return nil, err
	}
	fields, patterns, hadQuoted := splitFrags(cfg, frags)
	var out []string
	for i, f := range fields {
		matches, didGlob, err := expandGlobField(cfg, patterns[i])
		if err != nil {
			return nil, err
		}
		if didGlob {
			out = append(out, matches...)
		} else {
			out = append(out, f)
		}
	}
	if len(out) == 0 && hadQuoted {
		out = []string{""}
	}
	return out, nil
}

// wordFrags expands each part of a word into frags, honoring quoted's
// ambient quoting (true inside a DoubleQuoted or SingleQuoted part).
func wordFrags(ctx context.Context, cfg *Config, parts []ast.WordPart, quoted bool) ([]frag, error) {
	var out []frag
	for i, part := range parts {
		switch p := part.(type) {
		case *ast.Literal:
			out = append(out, frag{text: p.Value, quoted: quoted, pattern: p.Value})
		case *ast.Escaped:
			out = append(out, frag{text: string(p.Char), quoted: true, pattern: quoteMetaLiteral(string(p.Char))})
		case *ast.SingleQuoted:
			out = append(out, frag{text: p.Value, quoted: true, pattern: quoteMetaLiteral(p.Value)})
		case *ast.DoubleQuoted:
			inner, err := wordFrags(ctx, cfg, p.Parts, true)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		case *ast.TildeExpansion:
			v := tildeValue(cfg, p)
			out = append(out, frag{text: v, quoted: i == 0, pattern: quoteMetaLiteral(v)})
		case *ast.Glob:
			out = append(out, frag{text: p.Pattern, quoted: quoted, pattern: p.Pattern, isGlob: !quoted})
		case *ast.BraceExpansion:
			s, err := expandValuePart(ctx, cfg, p)
			if err != nil {
				return nil, err
			}
			out = append(out, frag{text: s, quoted: quoted, pattern: quoteMetaLiteral(s)})
		case *ast.ParameterExpansion:
			res, err := Param(ctx, cfg, p)
			if err != nil {
				return nil, err
			}
			if res.array {
				out = append(out, frag{multi: append([]string(nil), res.elems...), quoted: quoted, atForm: res.at})
				continue
			}
			out = append(out, frag{text: res.str, quoted: quoted, pattern: quoteMetaLiteral(res.str)})
		case *ast.ArithmeticExpansion:
			v, err := Arith(ctx, cfg, p.X)
			if err != nil {
				return nil, err
			}
			s := strconv.FormatInt(v, 10)
			out = append(out, frag{text: s, quoted: quoted, pattern: s})
		case *ast.CommandSubstitution:
			s, err := commandSubst(ctx, cfg, p)
			if err != nil {
				return nil, err
			}
			out = append(out, frag{text: s, quoted: quoted, pattern: quoteMetaLiteral(s)})
		case *ast.ProcessSubstitution:
			out = append(out, frag{text: "", quoted: quoted})
		default:
			out = append(out, frag{text: "", quoted: quoted})
		}
	}
	return out, nil
}

func quoteMetaLiteral(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// splitFrags joins a frag sequence into final fields, applying IFS splitting
// to unquoted text and fanning array frags ($@-style) out into their own
// fields while letting surrounding literal text attach to the first/last
// element, per spec.md §4.3's word-splitting phase.
func splitFrags(cfg *Config, frags []frag) (fields []string, patterns []string, hadQuoted bool) {
	var cur, curPat strings.Builder
	started := false // cur holds content belonging to the field in progress

	push := func() {
		fields = append(fields, cur.String())
		patterns = append(patterns, curPat.String())
		cur.Reset()
		curPat.Reset()
		started = false
	}

	for _, f := range frags {
		if f.quoted {
			hadQuoted = true
		}
		if len(f.multi) > 0 {
			cur.WriteString(f.multi[0])
			curPat.WriteString(quoteMetaLiteral(f.multi[0]))
			started = true
			for i := 1; i < len(f.multi); i++ {
				push()
				if i == len(f.multi)-1 {
					cur.WriteString(f.multi[i])
					curPat.WriteString(quoteMetaLiteral(f.multi[i]))
					started = true
				} else {
					fields = append(fields, f.multi[i])
					patterns = append(patterns, quoteMetaLiteral(f.multi[i]))
				}
			}
			continue
		}
		if f.quoted {
			cur.WriteString(f.text)
			curPat.WriteString(f.pattern)
			started = true
			continue
		}
		if f.isGlob {
			cur.WriteString(f.text)
			curPat.WriteString(f.pattern)
			started = true
			continue
		}
		pieces, seps := splitIFS(f.text, cfg.IFS)
		if len(pieces) == 0 {
			continue
		}
		cur.WriteString(pieces[0])
		curPat.WriteString(quoteMetaLiteral(pieces[0]))
		started = true
		for i := 1; i < len(pieces); i++ {
			if seps[i-1] {
				push()
			}
			cur.WriteString(pieces[i])
			curPat.WriteString(quoteMetaLiteral(pieces[i]))
			started = true
		}
	}
	if started || len(fields) == 0 {
		push()
	}
	return fields, patterns, hadQuoted
}

// splitIFS splits s on runs of IFS characters, returning the pieces and, for
// each boundary between consecutive pieces, whether it was an actual IFS
// separator (true) as opposed to the synthetic boundary before piece 0.
func splitIFS(s, ifs string) ([]string, []bool) {
	if s == "" {
		return []string{""}, nil
	}
	if ifs == "" {
		return []string{s}, nil
	}
	isIFS := func(r rune) bool { return strings.ContainsRune(ifs, r) }
	var pieces []string
	var seps []bool
	start := 0
	i := 0
	runes := []rune(s)
	for i < len(runes) {
		if isIFS(runes[i]) {
			pieces = append(pieces, string(runes[start:i]))
			seps = append(seps, true)
			for i < len(runes) && isIFS(runes[i]) {
				i++
			}
			start = i
			continue
		}
		i++
	}
	pieces = append(pieces, string(runes[start:]))
	return pieces, seps
}
