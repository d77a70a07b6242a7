package parser

import (
	"fmt"
	"strings"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/token"
)

// wscan decomposes one raw word (the text the lexer captured as a single
// LIT/LITWORD/ASSIGNWORD token) into its WordPart tree. It mirrors the
// lexer's quote/expansion state machine but builds nodes instead of just
// skipping past them, per the lexer/parser split documented in
// lexer/lexer.go's package comment.
type wscan struct {
	s    string
	i    int
	base token.Pos
	p    *Parser // for re-entering the statement grammar on nested substitutions
}

func (p *Parser) buildWord(raw string, base token.Pos) (*ast.WordNode, error) {
	w := &wscan{s: raw, base: base, p: p}
	parts, err := w.parts(wordStop{})
	if err != nil {
		return nil, err
	}
	return &ast.WordNode{Parts: parts}, nil
}

// ParseWordContent decomposes raw text into a WordNode the way an unquoted
// here-document body or a dynamic pattern string is expanded: $name,
// ${...}, $(...), and $((...)) are recognized, with no word-splitting
// applied by the parser itself (that's expand.Fields' job). Used by
// interp/redirect.go to expand heredoc bodies.
func ParseWordContent(raw string) (*ast.WordNode, error) {
	p := New(nil)
	return p.buildWord(raw, 0)
}

// wordStop configures where part-scanning must stop: used when recursing
// into a double-quoted or braced region that has its own terminator.
type wordStop struct {
	dquote bool // stop before an unescaped closing "
	brace  bool // stop before the matching closing } at depth 0
}

func (w *wscan) pos() token.Pos { return w.base + token.Pos(w.i) }

func (w *wscan) peek() byte {
	if w.i >= len(w.s) {
		return 0
	}
	return w.s[w.i]
}

func (w *wscan) peekAt(off int) byte {
	j := w.i + off
	if j < 0 || j >= len(w.s) {
		return 0
	}
	return w.s[j]
}

func (w *wscan) parts(stop wordStop) ([]ast.WordPart, error) {
	var out []ast.WordPart
	var lit strings.Builder
	litStart := w.pos()
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, &ast.Literal{Value: lit.String(), Position: litStart})
			lit.Reset()
		}
	}

	depth := 0
	for w.i < len(w.s) {
		c := w.s[w.i]
		if stop.dquote && c == '"' {
			break
		}
		if stop.brace && c == '}' && depth == 0 {
			break
		}
		switch c {
		case '}':
			if depth > 0 {
				depth--
			}
			lit.WriteByte(c)
			w.i++
		case '{':
			if brace, ok := w.tryBraceExpansion(); ok {
				flush()
				out = append(out, brace)
				litStart = w.pos()
				continue
			}
			depth++
			lit.WriteByte(c)
			w.i++
		case '\\':
			if !stop.dquote && w.i+1 < len(w.s) {
				flush()
				epos := w.pos()
				w.i++
				ch := w.s[w.i]
				w.i++
				out = append(out, &ast.Escaped{Char: ch, Position: epos})
				litStart = w.pos()
				continue
			}
			// inside a double-quoted span, only \\ \" \$ \` and \newline are
			// special; anything else keeps the backslash literally.
			if stop.dquote {
				nx := w.peekAt(1)
				switch nx {
				case '\\', '"', '$', '`', '\n':
					flush()
					epos := w.pos()
					w.i++
					w.i++
					out = append(out, &ast.Escaped{Char: nx, Position: epos})
					litStart = w.pos()
					continue
				}
			}
			lit.WriteByte(c)
			w.i++
		case '\'':
			if stop.dquote {
				lit.WriteByte(c)
				w.i++
				continue
			}
			flush()
			sq, err := w.readSingleQuoted()
			if err != nil {
				return nil, err
			}
			out = append(out, sq)
			litStart = w.pos()
		case '"':
			flush()
			dq, err := w.readDoubleQuoted()
			if err != nil {
				return nil, err
			}
			out = append(out, dq)
			litStart = w.pos()
		case '`':
			flush()
			cs, err := w.readBacktick()
			if err != nil {
				return nil, err
			}
			out = append(out, cs)
			litStart = w.pos()
		case '$':
			flush()
			part, err := w.readDollar()
			if err != nil {
				return nil, err
			}
			if part != nil {
				out = append(out, part)
			}
			litStart = w.pos()
		case '~':
			if w.i == 0 && !stop.dquote {
				flush()
				out = append(out, w.readTilde())
				litStart = w.pos()
				continue
			}
			lit.WriteByte(c)
			w.i++
		case '*', '?':
			if stop.dquote {
				lit.WriteByte(c)
				w.i++
				continue
			}
			flush()
			gpos := w.pos()
			w.i++
			out = append(out, &ast.Glob{Pattern: string(c), Position: gpos})
			litStart = w.pos()
		case '[':
			if stop.dquote {
				lit.WriteByte(c)
				w.i++
				continue
			}
			if g, ok := w.tryBracketGlob(); ok {
				flush()
				out = append(out, g)
				litStart = w.pos()
				continue
			}
			lit.WriteByte(c)
			w.i++
		case '@', '+', '!':
			if !stop.dquote && w.peekAt(1) == '(' {
				flush()
				gpos := w.pos()
				text, err := w.readExtglobGroup()
				if err != nil {
					return nil, err
				}
				out = append(out, &ast.Glob{Pattern: text, Position: gpos})
				litStart = w.pos()
				continue
			}
			lit.WriteByte(c)
			w.i++
		default:
			lit.WriteByte(c)
			w.i++
		}
	}
	flush()
	return out, nil
}

func (w *wscan) readSingleQuoted() (*ast.SingleQuoted, error) {
	left := w.pos()
	w.i++ // '
	start := w.i
	for w.i < len(w.s) && w.s[w.i] != '\'' {
		w.i++
	}
	if w.i >= len(w.s) {
		return nil, fmt.Errorf("unterminated single quote")
	}
	val := w.s[start:w.i]
	right := w.pos()
	w.i++ // '
	return &ast.SingleQuoted{Value: val, Position: left, LeftQuote: left, RightQuote: right}, nil
}

func (w *wscan) readDoubleQuoted() (*ast.DoubleQuoted, error) {
	left := w.pos()
	w.i++ // "
	parts, err := w.parts(wordStop{dquote: true})
	if err != nil {
		return nil, err
	}
	if w.i >= len(w.s) {
		return nil, fmt.Errorf("unterminated double quote")
	}
	right := w.pos()
	w.i++ // "
	return &ast.DoubleQuoted{Parts: parts, LeftQuote: left, RightQuote: right}, nil
}

func (w *wscan) readBacktick() (*ast.CommandSubstitution, error) {
	left := w.pos()
	w.i++ // `
	start := w.i
	for w.i < len(w.s) && w.s[w.i] != '`' {
		if w.s[w.i] == '\\' && w.i+1 < len(w.s) {
			w.i++
		}
		w.i++
	}
	if w.i >= len(w.s) {
		return nil, fmt.Errorf("unterminated backquote substitution")
	}
	body := w.s[start:w.i]
	right := w.pos()
	w.i++ // `
	script, err := w.p.parseNested(body, w.base+token.Pos(start))
	if err != nil {
		return nil, err
	}
	return &ast.CommandSubstitution{Body: script, Backquoted: true, LeftQuote: left, RightQuote: right}, nil
}

// readDollar consumes one `$...` form and returns the WordPart it denotes
// (nil only if `$` is a trailing, meaning-less byte at end of input).
func (w *wscan) readDollar() (ast.WordPart, error) {
	left := w.pos()
	w.i++ // $
	if w.i >= len(w.s) {
		return &ast.Literal{Value: "$", Position: left}, nil
	}
	switch w.s[w.i] {
	case '\'':
		return w.readAnsiCQuote(left)
	case '"':
		w.i++
		parts, err := w.parts(wordStop{dquote: true})
		if err != nil {
			return nil, err
		}
		if w.i >= len(w.s) {
			return nil, fmt.Errorf("unterminated $\" quote")
		}
		right := w.pos()
		w.i++
		return &ast.DoubleQuoted{Parts: parts, LeftQuote: left, RightQuote: right}, nil
	case '{':
		return w.readParamExpansion(left)
	case '(':
		if w.peekAt(1) == '(' {
			return w.readArithExpansion(left)
		}
		return w.readCommandSubst(left)
	case '[':
		return w.readLegacyArith(left)
	default:
		return w.readBareParam(left)
	}
}

func (w *wscan) readAnsiCQuote(left token.Pos) (ast.WordPart, error) {
	w.i++ // '
	start := w.i
	var sb strings.Builder
	for w.i < len(w.s) && w.s[w.i] != '\'' {
		if w.s[w.i] == '\\' && w.i+1 < len(w.s) {
			w.i++
			sb.WriteByte(decodeAnsiEscape(w.s, &w.i))
			continue
		}
		sb.WriteByte(w.s[w.i])
		w.i++
	}
	_ = start
	if w.i >= len(w.s) {
		return nil, fmt.Errorf("unterminated $' quote")
	}
	right := w.pos()
	w.i++ // '
	return &ast.SingleQuoted{Value: sb.String(), Position: left, LeftQuote: left, RightQuote: right}, nil
}

// decodeAnsiEscape consumes the escape sequence starting at s[*i] (just past
// the backslash) and returns the literal byte it denotes. Only the
// single-letter escapes below are decoded; \xNN, \uNNNN and octal escapes
// are not: the character after the backslash is returned as is and the
// digits that follow stay as literal text.
func decodeAnsiEscape(s string, i *int) byte {
	c := s[*i]
	*i++
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case 'a':
		return '\a'
	case 'b':
		return '\b'
	case 'e', 'E':
		return 0x1b
	case 'f':
		return '\f'
	case 'v':
		return '\v'
	case '\\', '\'', '"':
		return c
	default:
		return c
	}
}

func (w *wscan) readCommandSubst(left token.Pos) (ast.WordPart, error) {
	w.i++ // (
	start := w.i
	depth := 1
	for w.i < len(w.s) && depth > 0 {
		switch w.s[w.i] {
		case '(':
			depth++
			w.i++
		case ')':
			depth--
			w.i++
		case '\\':
			w.i++
			if w.i < len(w.s) {
				w.i++
			}
		case '\'':
			w.i++
			for w.i < len(w.s) && w.s[w.i] != '\'' {
				w.i++
			}
			if w.i < len(w.s) {
				w.i++
			}
		case '"':
			w.i++
			for w.i < len(w.s) && w.s[w.i] != '"' {
				if w.s[w.i] == '\\' {
					w.i++
				}
				w.i++
			}
			if w.i < len(w.s) {
				w.i++
			}
		default:
			w.i++
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unterminated command substitution")
	}
	body := w.s[start : w.i-1]
	right := w.pos() - 1
	script, err := w.p.parseNested(body, w.base+token.Pos(start))
	if err != nil {
		return nil, err
	}
	return &ast.CommandSubstitution{Body: script, LeftQuote: left, RightQuote: right}, nil
}

func (w *wscan) readArithExpansion(left token.Pos) (ast.WordPart, error) {
	w.i += 2 // ((
	start := w.i
	depth := 0
	for w.i < len(w.s) {
		c := w.s[w.i]
		if c == '(' {
			depth++
			w.i++
			continue
		}
		if c == ')' {
			if depth == 0 {
				if w.peekAt(1) == ')' {
					break
				}
				w.i++
				continue
			}
			depth--
			w.i++
			continue
		}
		w.i++
	}
	if w.i >= len(w.s) {
		return nil, fmt.Errorf("unterminated arithmetic expansion")
	}
	body := w.s[start:w.i]
	right := w.pos() + 1
	w.i += 2 // ))
	x, err := parseArith(w.p, body, w.base+token.Pos(start))
	if err != nil {
		return nil, err
	}
	return &ast.ArithmeticExpansion{X: x, LeftQuote: left, RightQuote: right}, nil
}

func (w *wscan) readLegacyArith(left token.Pos) (ast.WordPart, error) {
	w.i++ // [
	start := w.i
	depth := 0
	for w.i < len(w.s) {
		if w.s[w.i] == '[' {
			depth++
		} else if w.s[w.i] == ']' {
			if depth == 0 {
				break
			}
			depth--
		}
		w.i++
	}
	if w.i >= len(w.s) {
		return nil, fmt.Errorf("unterminated $[ legacy arithmetic")
	}
	body := w.s[start:w.i]
	right := w.pos()
	w.i++ // ]
	x, err := parseArith(w.p, body, w.base+token.Pos(start))
	if err != nil {
		return nil, err
	}
	return &ast.ArithmeticExpansion{X: x, LeftQuote: left, RightQuote: right}, nil
}

func (w *wscan) readBareParam(left token.Pos) (ast.WordPart, error) {
	b := w.peek()
	start := w.i
	if isNameByte(b, true) {
		for w.i < len(w.s) && isNameByte(w.s[w.i], false) {
			w.i++
		}
		name := w.s[start:w.i]
		return &ast.ParameterExpansion{Parameter: name, Position: left, LeftQuote: left}, nil
	}
	if isSpecialParamByte(b) {
		w.i++
		return &ast.ParameterExpansion{Parameter: string(b), Position: left, LeftQuote: left}, nil
	}
	return &ast.Literal{Value: "$", Position: left}, nil
}

func isNameByte(b byte, first bool) bool {
	if b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') {
		return true
	}
	if !first && b >= '0' && b <= '9' {
		return true
	}
	return false
}

func isSpecialParamByte(b byte) bool {
	switch b {
	case '@', '*', '#', '?', '!', '$', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return false
}

func (w *wscan) readParamExpansion(left token.Pos) (ast.WordPart, error) {
	w.i++ // {
	start := w.i
	depth := 1
	for w.i < len(w.s) && depth > 0 {
		switch w.s[w.i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				goto done
			}
		case '\\':
			w.i++
		case '\'':
			w.i++
			for w.i < len(w.s) && w.s[w.i] != '\'' {
				w.i++
			}
		case '"':
			w.i++
			for w.i < len(w.s) && w.s[w.i] != '"' {
				if w.s[w.i] == '\\' {
					w.i++
				}
				w.i++
			}
		}
		w.i++
	}
done:
	if depth != 0 {
		return nil, fmt.Errorf("unterminated parameter expansion")
	}
	content := w.s[start:w.i]
	right := w.pos()
	w.i++ // }
	pe, err := w.p.parseParamBody(content, w.base+token.Pos(start))
	if err != nil {
		return nil, err
	}
	pe.Position = left
	pe.LeftQuote = left
	pe.RightBrace = right
	return pe, nil
}

// tryBraceExpansion recognizes `{a,b,c}` or `{n..m[..s]}` starting at the
// current `{`. It returns ok=false (leaving the scanner untouched) when the
// text doesn't have the shape of a brace expansion, so the `{` is treated
// as an ordinary literal character instead.
func (w *wscan) tryBraceExpansion() (*ast.BraceExpansion, bool) {
	left := w.pos()
	save := w.i
	w.i++ // {
	start := w.i
	depth := 1
	for w.i < len(w.s) && depth > 0 {
		switch w.s[w.i] {
		case '{':
			depth++
		case '}':
			depth--
		case '\\':
			w.i++
		}
		w.i++
	}
	if depth != 0 {
		w.i = save
		return nil, false
	}
	inner := w.s[start : w.i-1]
	right := w.pos() - 1
	items, ok := splitBraceItems(inner)
	if !ok {
		w.i = save
		return nil, false
	}
	be := &ast.BraceExpansion{LeftBrace: left, RightBrace: right}
	for _, it := range items {
		if from, to, step, ok := parseBraceRange(it); ok {
			be.Items = append(be.Items, &ast.BraceItem{IsRange: true, RangeFrom: from, RangeTo: to, RangeStep: step})
			continue
		}
		sub := &wscan{s: it, base: w.base + token.Pos(start), p: w.p}
		parts, err := sub.parts(wordStop{})
		if err != nil {
			w.i = save
			return nil, false
		}
		be.Items = append(be.Items, &ast.BraceItem{Word: &ast.WordNode{Parts: parts}})
	}
	return be, true
}

// splitBraceItems splits on top-level commas and requires at least two
// items, OR a single ".."-range item, to count as a real brace expansion
// (bash never expands a comma-less, non-range `{word}`).
func splitBraceItems(s string) ([]string, bool) {
	if from, to, step, ok := parseBraceRange(s); ok {
		_ = from
		_ = to
		_ = step
		return []string{s}, true
	}
	var items []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case '\\':
			i++
		case ',':
			if depth == 0 {
				items = append(items, s[start:i])
				start = i + 1
			}
		}
	}
	items = append(items, s[start:])
	if len(items) < 2 {
		return nil, false
	}
	return items, true
}

func parseBraceRange(s string) (from, to, step string, ok bool) {
	parts := strings.Split(s, "..")
	if len(parts) != 2 && len(parts) != 3 {
		return "", "", "", false
	}
	from, to = parts[0], parts[1]
	if from == "" || to == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		step = parts[2]
		if step == "" {
			return "", "", "", false
		}
	}
	isNumOrChar := func(v string) bool {
		if len(v) == 1 {
			return true
		}
		neg := strings.TrimPrefix(v, "-")
		if neg == "" {
			return false
		}
		for _, c := range neg {
			if c < '0' || c > '9' {
				return false
			}
		}
		return true
	}
	if !isNumOrChar(from) || !isNumOrChar(to) {
		return "", "", "", false
	}
	return from, to, step, true
}

func (w *wscan) tryBracketGlob() (*ast.Glob, bool) {
	left := w.pos()
	save := w.i
	i := w.i + 1
	if i < len(w.s) && (w.s[i] == '!' || w.s[i] == '^') {
		i++
	}
	if i < len(w.s) && w.s[i] == ']' {
		i++
	}
	for i < len(w.s) && w.s[i] != ']' {
		if w.s[i] == '[' && i+1 < len(w.s) && (w.s[i+1] == ':' || w.s[i+1] == '.' || w.s[i+1] == '=') {
			j := strings.IndexByte(w.s[i+2:], ']')
			if j < 0 {
				break
			}
			i += 2 + j + 1
			continue
		}
		i++
	}
	if i >= len(w.s) || w.s[i] != ']' {
		return nil, false
	}
	pattern := w.s[save : i+1]
	w.i = i + 1
	return &ast.Glob{Pattern: pattern, Position: left}, true
}

func (w *wscan) readExtglobGroup() (string, error) {
	start := w.i
	w.i++ // the @/+/!/?/*
	w.i++ // (
	depth := 1
	for w.i < len(w.s) && depth > 0 {
		switch w.s[w.i] {
		case '(':
			depth++
		case ')':
			depth--
		case '\\':
			w.i++
		}
		w.i++
	}
	if depth != 0 {
		return "", fmt.Errorf("unterminated extglob group")
	}
	return w.s[start:w.i], nil
}

func (w *wscan) readTilde() ast.WordPart {
	left := w.pos()
	w.i++ // ~
	start := w.i
	for w.i < len(w.s) && isNameByte(w.s[w.i], false) && w.s[w.i] != '/' {
		w.i++
	}
	user := w.s[start:w.i]
	return &ast.TildeExpansion{User: user, HasUser: user != "", Position: left}
}
