package expand

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/pattern"
)

// paramResult is the outcome of evaluating one ParameterExpansion: either a
// single scalar string, or (for a `[@]`/`[*]` subscript or a bare `$@`/`$*`)
// a list of array elements that the caller decides how to join/split.
type paramResult struct {
	str   string
	elems []string
	array bool
	at    bool // true for the "@" form specifically, vs "*"
}

// Param evaluates one ParameterExpansion against cfg's environment, per
// spec.md §4.3's operator table.
func Param(ctx context.Context, cfg *Config, pe *ast.ParameterExpansion) (paramResult, error) {
	name := pe.Parameter

	if special, ok, err := specialParam(ctx, cfg, name); ok {
		if err != nil {
			return paramResult{}, err
		}
		return applyParamOp(ctx, cfg, pe, name, special, true)
	}

	vr := cfg.Env.Get(name)
	_, vr = Resolve(cfg.Env, vr)

	res := paramResult{}
	set := vr.IsSet()

	if pe.Index != nil {
		lit, isAt := indexLiteral(pe.Index)
		switch {
		case isAt:
			switch vr.Kind {
			case Indexed:
				res.elems = sortedIndexed(vr.List)
			case Associative:
				res.elems = sortedAssocValues(vr.Map)
			default:
				if vr.Str != "" {
					res.elems = []string{vr.Str}
				}
			}
			res.array = true
			res.at = lit == "@"
		default:
			res.str = indexedElem(ctx, cfg, vr, pe.Index)
		}
	} else {
		switch vr.Kind {
		case Indexed:
			res.str = vr.List[0]
		case Associative:
			res.str = ""
		default:
			res.str = vr.Str
		}
	}

	if pe.Op == ParamOpNone() && !set && cfg.NoUnset && !pe.Excl {
		return paramResult{}, &NounsetError{Param: name}
	}

	return applyParamOp(ctx, cfg, pe, name, res, set)
}

// ParamOpNone exposes ast.ParamNone for callers outside this file without
// importing the ast constant directly at every call site.
func ParamOpNone() ast.ParamOp { return ast.ParamNone }

func indexLiteral(w *ast.WordNode) (string, bool) {
	lit, ok := w.Lit()
	if ok && (lit == "@" || lit == "*") {
		return lit, true
	}
	return "", false
}

func indexedElem(ctx context.Context, cfg *Config, vr Variable, idxWord *ast.WordNode) string {
	if vr.Kind == Associative {
		key, err := Literal(ctx, cfg, idxWord)
		if err != nil {
			return ""
		}
		return vr.Map[key]
	}
	idx, err := indexArith(ctx, cfg, idxWord)
	if err != nil {
		return ""
	}
	switch vr.Kind {
	case Indexed:
		return vr.List[int(idx)]
	default:
		if idx == 0 {
			return vr.Str
		}
		return ""
	}
}

// indexArith expands an indexed-array subscript word and reads the result
// as an integer: a variable name yields that variable's arithmetic value,
// anything else is parsed as an integer literal. Compound expressions such
// as `i+1` are not evaluated and read as 0. Associative keys are looked up
// by their expanded text in indexedElem instead.
func indexArith(ctx context.Context, cfg *Config, w *ast.WordNode) (int64, error) {
	s, err := Literal(ctx, cfg, w)
	if err != nil {
		return 0, err
	}
	if s = strings.TrimSpace(s); isValidName(s) {
		return arithVarValue(cfg, s), nil
	}
	return parseArithLiteral(s), nil
}

func sortedIndexed(m map[int]string) []string {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func sortedAssocValues(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// specialParam handles $@ $* $# $0..$N $? $$ $! $_ directly, since they
// aren't ordinary Environ entries (spec.md §6).
func specialParam(ctx context.Context, cfg *Config, name string) (paramResult, bool, error) {
	switch {
	case name == "@":
		return paramResult{elems: append([]string(nil), cfg.Positional...), array: true, at: true}, true, nil
	case name == "*":
		return paramResult{elems: append([]string(nil), cfg.Positional...), array: true, at: false}, true, nil
	case name == "#":
		return paramResult{str: strconv.Itoa(len(cfg.Positional))}, true, nil
	case name == "0":
		return paramResult{str: cfg.Name0}, true, nil
	case name == "?":
		return paramResult{str: strconv.Itoa(cfg.LastExitCode)}, true, nil
	case isAllDigits(name):
		n, _ := strconv.Atoi(name)
		if n >= 1 && n <= len(cfg.Positional) {
			return paramResult{str: cfg.Positional[n-1]}, true, nil
		}
		return paramResult{str: ""}, true, nil
	}
	return paramResult{}, false, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func applyParamOp(ctx context.Context, cfg *Config, pe *ast.ParameterExpansion, name string, res paramResult, set bool) (paramResult, error) {
	switch pe.Op {
	case ast.ParamNone:
		return res, nil

	case ast.ParamLength:
		if res.array {
			return paramResult{str: strconv.Itoa(len(res.elems))}, nil
		}
		return paramResult{str: strconv.Itoa(utf8.RuneCountInString(res.str))}, nil

	case ast.ParamDefaultValue:
		trigger := !set || (pe.ColonForm && res.str == "" && !res.array)
		if trigger {
			w, err := Literal(ctx, cfg, pe.Word)
			if err != nil {
				return paramResult{}, err
			}
			return paramResult{str: w}, nil
		}
		return res, nil

	case ast.ParamAssignDefault:
		trigger := !set || (pe.ColonForm && res.str == "" && !res.array)
		if trigger {
			w, err := Literal(ctx, cfg, pe.Word)
			if err != nil {
				return paramResult{}, err
			}
			if err := cfg.Env.Set(name, Variable{Set: true, Kind: String, Str: w}); err != nil {
				return paramResult{}, err
			}
			return paramResult{str: w}, nil
		}
		return res, nil

	case ast.ParamErrorIfUnset:
		trigger := !set || (pe.ColonForm && res.str == "" && !res.array)
		if trigger {
			msg := name + ": parameter null or not set"
			if pe.Word != nil {
				w, err := Literal(ctx, cfg, pe.Word)
				if err != nil {
					return paramResult{}, err
				}
				if w != "" {
					msg = w
				}
			}
			return paramResult{}, &UnsetParameterError{Param: name, Message: "bash: " + name + ": " + msg}
		}
		return res, nil

	case ast.ParamUseAlternative:
		trigger := set && !(pe.ColonForm && res.str == "" && !res.array)
		if trigger {
			w, err := Literal(ctx, cfg, pe.Word)
			if err != nil {
				return paramResult{}, err
			}
			return paramResult{str: w}, nil
		}
		return paramResult{str: ""}, nil

	case ast.ParamSubstring:
		return substring(ctx, cfg, pe, res)

	case ast.ParamPatternRemoval:
		return patternRemoval(ctx, cfg, pe, res)

	case ast.ParamPatternReplacement:
		return patternReplacement(ctx, cfg, pe, res)

	case ast.ParamCaseModification:
		return caseModification(ctx, cfg, pe, res)

	case ast.ParamTransform:
		return transform(cfg, pe, res)

	case ast.ParamIndirection:
		return indirection(ctx, cfg, pe, res)

	case ast.ParamArrayKeys:
		vr := cfg.Env.Get(name)
		switch vr.Kind {
		case Indexed:
			keys := make([]int, 0, len(vr.List))
			for k := range vr.List {
				keys = append(keys, k)
			}
			sort.Ints(keys)
			strs := make([]string, len(keys))
			for i, k := range keys {
				strs[i] = strconv.Itoa(k)
			}
			return paramResult{elems: strs, array: true}, nil
		case Associative:
			keys := make([]string, 0, len(vr.Map))
			for k := range vr.Map {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return paramResult{elems: keys, array: true}, nil
		default:
			return paramResult{elems: nil, array: true}, nil
		}

	case ast.ParamVarNamePrefix:
		names := namesByPrefix(cfg.Env, name)
		sort.Strings(names)
		return paramResult{elems: names, array: true}, nil

	default:
		return res, nil
	}
}

func asSingle(cfg *Config, res paramResult) string {
	if !res.array {
		return res.str
	}
	sep := " "
	if res.at {
		sep = " "
	} else if len(cfg.IFS) > 0 {
		sep = cfg.IFS[:1]
	}
	return strings.Join(res.elems, sep)
}

func substring(ctx context.Context, cfg *Config, pe *ast.ParameterExpansion, res paramResult) (paramResult, error) {
	clampOffset := func(p int64, n int) int {
		i := int(p)
		if i < 0 {
			i += n
			if i < 0 {
				i = 0
			}
		} else if i > n {
			i = n
		}
		return i
	}
	if res.array {
		n := len(res.elems)
		start, end := 0, n
		if pe.Offset != nil {
			o, err := Arith(ctx, cfg, pe.Offset)
			if err != nil {
				return paramResult{}, err
			}
			start = clampOffset(o, n)
		}
		end = n
		if pe.Length != nil {
			l, err := Arith(ctx, cfg, pe.Length)
			if err != nil {
				return paramResult{}, err
			}
			if l < 0 {
				end = clampOffset(int64(n)+l, n)
			} else {
				end = start + int(l)
				if end > n {
					end = n
				}
			}
		}
		if start > end {
			start = end
		}
		return paramResult{elems: append([]string(nil), res.elems[start:end]...), array: true, at: res.at}, nil
	}
	str := res.str
	n := len(str)
	start, end := 0, n
	if pe.Offset != nil {
		o, err := Arith(ctx, cfg, pe.Offset)
		if err != nil {
			return paramResult{}, err
		}
		start = clampOffset(o, n)
	}
	end = n
	if pe.Length != nil {
		l, err := Arith(ctx, cfg, pe.Length)
		if err != nil {
			return paramResult{}, err
		}
		if l < 0 {
			end = clampOffset(int64(n)+l, n)
		} else {
			end = start + int(l)
			if end > n {
				end = n
			}
		}
	}
	if start > end {
		start = end
	}
	return paramResult{str: str[start:end]}, nil
}

func patternRemoval(ctx context.Context, cfg *Config, pe *ast.ParameterExpansion, res paramResult) (paramResult, error) {
	pat, err := ExpandPattern(ctx, cfg, pe.Pattern)
	if err != nil {
		return paramResult{}, err
	}
	apply := func(s string) string { return removePattern(s, pat, pe.Side == ast.RemoveSuffix, pe.Greedy) }
	if res.array {
		out := make([]string, len(res.elems))
		for i, e := range res.elems {
			out[i] = apply(e)
		}
		return paramResult{elems: out, array: true, at: res.at}, nil
	}
	return paramResult{str: apply(res.str)}, nil
}

// splitFlags separates a pattern.Regexp result's leading inline-flags group
// ("(?s)" or "(?sU)") from the translated pattern body that follows it.
func splitFlags(expr string) (flags, body string) {
	idx := strings.Index(expr, ")")
	if idx < 0 {
		return "", expr
	}
	return expr[:idx+1], expr[idx+1:]
}

func removePattern(str, pat string, fromEnd, greedy bool) string {
	var mode pattern.Mode
	if !greedy {
		mode = pattern.Shortest
	}
	expr, err := pattern.Regexp(pat, mode)
	if err != nil {
		return str
	}
	flags, body := splitFlags(expr)
	switch {
	case fromEnd:
		expr = flags + "^(" + body + ")$"
	default:
		expr = flags + "^(" + body + ")"
	}
	rx, err := regexp.Compile(expr)
	if err != nil {
		return str
	}
	if fromEnd {
		// The longest suffix starts at the leftmost position whose remainder
		// matches; the shortest starts at the rightmost one.
		for j := 0; j <= len(str); j++ {
			i := j
			if !greedy {
				i = len(str) - j
			}
			if rx.MatchString(str[i:]) {
				return str[:i]
			}
		}
		return str
	}
	if loc := rx.FindStringSubmatchIndex(str); loc != nil {
		return str[:loc[2]] + str[loc[3]:]
	}
	return str
}

func patternReplacement(ctx context.Context, cfg *Config, pe *ast.ParameterExpansion, res paramResult) (paramResult, error) {
	pat, err := ExpandPattern(ctx, cfg, pe.Pattern)
	if err != nil {
		return paramResult{}, err
	}
	var repl string
	if pe.Replace != nil {
		repl, err = Literal(ctx, cfg, pe.Replace)
		if err != nil {
			return paramResult{}, err
		}
	}
	if pat == "" {
		return res, nil // empty pattern is a no-op, per spec.md §4.3.
	}
	n := 1
	if pe.ReplAll {
		n = -1
	}
	apply := func(s string) string { return replaceN(s, pat, repl, pe.Anchor, n) }
	if res.array {
		out := make([]string, len(res.elems))
		for i, e := range res.elems {
			out[i] = apply(e)
		}
		return paramResult{elems: out, array: true, at: res.at}, nil
	}
	return paramResult{str: apply(res.str)}, nil
}

func replaceN(str, pat, repl string, anchor ast.ReplAnchor, n int) string {
	expr, err := pattern.Regexp(pat, pattern.Shortest)
	if err != nil {
		return str
	}
	flags, body := splitFlags(expr)
	switch anchor {
	case ast.AnchorStart:
		expr = flags + "^(?:" + body + ")"
	case ast.AnchorEnd:
		expr = flags + "(?:" + body + ")$"
	default:
		expr = flags + body
	}
	rx, err := regexp.Compile(expr)
	if err != nil {
		return str
	}
	var sb strings.Builder
	last := 0
	count := 0
	for last <= len(str) {
		loc := rx.FindStringIndex(str[last:])
		if loc == nil {
			break
		}
		start, end := last+loc[0], last+loc[1]
		if start == end {
			// skip zero-length matches at end-of-string, per spec.md §9.
			if start >= len(str) {
				break
			}
			sb.WriteString(str[last : start+1])
			last = start + 1
			continue
		}
		sb.WriteString(str[last:start])
		sb.WriteString(repl)
		last = end
		count++
		if n >= 0 && count >= n {
			break
		}
	}
	sb.WriteString(str[last:])
	return sb.String()
}

func caseModification(ctx context.Context, cfg *Config, pe *ast.ParameterExpansion, res paramResult) (paramResult, error) {
	var pat string
	var err error
	if pe.Pattern != nil {
		pat, err = ExpandPattern(ctx, cfg, pe.Pattern)
		if err != nil {
			return paramResult{}, err
		}
	} else {
		pat = "?"
	}
	expr, err := pattern.Regexp(pat, 0)
	if err != nil {
		return res, nil
	}
	rx, err := regexp.Compile(expr)
	if err != nil {
		return res, nil
	}
	upper := pe.Case == ast.CaseUpperFirst || pe.Case == ast.CaseUpperAll
	toggle := pe.Case == ast.CaseToggleFirst || pe.Case == ast.CaseToggleAll
	all := pe.Case == ast.CaseUpperAll || pe.Case == ast.CaseLowerAll || pe.Case == ast.CaseToggleAll
	apply := func(s string) string {
		rs := []rune(s)
		for i, r := range rs {
			if !rx.MatchString(string(r)) {
				continue
			}
			switch {
			case toggle:
				if unicode.IsUpper(r) {
					rs[i] = unicode.ToLower(r)
				} else {
					rs[i] = unicode.ToUpper(r)
				}
			case upper:
				rs[i] = unicode.ToUpper(r)
			default:
				rs[i] = unicode.ToLower(r)
			}
			if !all {
				break
			}
		}
		return string(rs)
	}
	if res.array {
		out := make([]string, len(res.elems))
		for i, e := range res.elems {
			out[i] = apply(e)
		}
		return paramResult{elems: out, array: true, at: res.at}, nil
	}
	return paramResult{str: apply(res.str)}, nil
}

func transform(cfg *Config, pe *ast.ParameterExpansion, res paramResult) (paramResult, error) {
	str := asSingle(cfg, res)
	switch pe.Transform {
	case 'Q':
		return paramResult{str: strconv.Quote(str)}, nil
	case 'E':
		tail := str
		var sb strings.Builder
		for tail != "" {
			r, _, rest, err := strconv.UnquoteChar(tail, 0)
			if err != nil {
				sb.WriteString(tail)
				break
			}
			sb.WriteRune(r)
			tail = rest
		}
		return paramResult{str: sb.String()}, nil
	case 'P', 'A', 'a', 'K':
		// Prompt expansion, declare-syntax, attribute flags, and key-value
		// dump are host/builtin concerns (declare's own formatting); expose
		// the raw value so the `declare`/`printf` builtin contract can
		// finish the job.
		return paramResult{str: str}, nil
	default:
		return paramResult{str: str}, nil
	}
}

func indirection(ctx context.Context, cfg *Config, pe *ast.ParameterExpansion, res paramResult) (paramResult, error) {
	target := asSingle(cfg, res)
	vr := cfg.Env.Get(target)
	if vr.Kind == NameRef {
		return paramResult{str: vr.Str}, nil
	}
	if pe.InnerOp != nil {
		inner := *pe.InnerOp
		inner.Parameter = target
		return Param(ctx, cfg, &inner)
	}
	switch vr.Kind {
	case Indexed:
		return paramResult{str: vr.List[0]}, nil
	case Associative:
		return paramResult{str: ""}, nil
	default:
		return paramResult{str: vr.Str}, nil
	}
}

// ExpandPattern expands a pattern-position word (a `${x#pat}`-style operand,
// or a case/[[ ]] pattern) into raw glob text, per spec.md §4.3's "Pattern
// parts in these operators are built compositionally": quoted segments are
// escaped for literal matching, Glob/unquoted-Literal segments pass through
// raw so pattern.Regexp can translate metacharacters.
func ExpandPattern(ctx context.Context, cfg *Config, w *ast.WordNode) (string, error) {
	var sb strings.Builder
	for _, part := range w.Parts {
		if err := expandPatternPart(ctx, cfg, part, &sb); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func expandPatternPart(ctx context.Context, cfg *Config, part ast.WordPart, sb *strings.Builder) error {
	switch p := part.(type) {
	case *ast.Literal:
		sb.WriteString(p.Value)
	case *ast.Glob:
		sb.WriteString(p.Pattern)
	case *ast.Escaped:
		sb.WriteString(pattern.QuoteMeta(string(p.Char)))
	case *ast.SingleQuoted:
		sb.WriteString(pattern.QuoteMeta(p.Value))
	case *ast.DoubleQuoted:
		for _, inner := range p.Parts {
			if lit, ok := inner.(*ast.Literal); ok {
				sb.WriteString(pattern.QuoteMeta(lit.Value))
				continue
			}
			s, err := expandValuePart(ctx, cfg, inner)
			if err != nil {
				return err
			}
			sb.WriteString(pattern.QuoteMeta(s))
		}
	default:
		s, err := expandValuePart(ctx, cfg, part)
		if err != nil {
			return err
		}
		sb.WriteString(s)
	}
	return nil
}
