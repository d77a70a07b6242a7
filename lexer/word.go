package lexer

import "github.com/sandboshell/sandboshell/token"

// lexWord scans one WORD/ASSIGNWORD token: a maximal run of characters that
// belong together once quoting and expansion nesting are accounted for. The
// token's Value is the untouched source slice; the parser's word-part
// builder re-walks this same text with equivalent quote-awareness to split
// it into structured WordParts (spec.md §3 WordPart union).
func (l *Lexer) lexWord(start token.Pos, line, col int, spaced bool) (Token, error) {
	startPos := l.pos
	sawQuote := false
loop:
	for l.pos < len(l.src) {
		b := l.src[l.pos]
		switch b {
		case ' ', '\t', '\r', '\n', ';', '&', '>', '<', '|':
			break loop
		case ')':
			break loop
		case '(':
			if l.pos > startPos && isExtglobPrefix(l.src[l.pos-1]) {
				l.advance()
				if err := l.scanBalancedParens(); err != nil {
					return Token{}, err
				}
				continue
			}
			break loop
		case '\\':
			l.advance()
			if l.pos < len(l.src) {
				l.advance()
			}
		case '\'':
			sawQuote = true
			l.advance()
			for l.pos < len(l.src) && l.src[l.pos] != '\'' {
				l.advance()
			}
			if l.pos >= len(l.src) {
				return Token{}, &Error{Msg: "unterminated single quote", Line: line, Column: col}
			}
			l.advance()
		case '"':
			sawQuote = true
			if err := l.scanDquote(); err != nil {
				return Token{}, err
			}
		case '`':
			sawQuote = true
			if err := l.scanBacktick(); err != nil {
				return Token{}, err
			}
		case '$':
			if err := l.scanDollar(); err != nil {
				return Token{}, err
			}
		default:
			l.advance()
		}
	}
	value := string(l.src[startPos:l.pos])
	k := token.LITWORD
	if isAssignment(value) {
		k = token.ASSIGNWORD
	}
	single := sawQuote && len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\''
	tok := l.mkAt(k, value, start, line, col, spaced)
	tok.Quoted = sawQuote
	tok.SingleQuoted = single
	l.lastKind, l.atStart = tok.Kind, false
	return tok, nil
}

func isExtglobPrefix(b byte) bool {
	switch b {
	case '@', '*', '+', '?', '!':
		return true
	}
	return false
}

// isAssignment reports whether the unquoted prefix of value matches
// `name([subscript])?(+)?=`, per spec.md §4.1 "Assignment detection". It
// only inspects the literal bytes, so a quoted `"x"=1` is correctly not an
// assignment.
func isAssignment(value string) bool {
	i := 0
	if i >= len(value) || !isNameByte(value[i], true) {
		return false
	}
	i++
	for i < len(value) && isNameByte(value[i], false) {
		i++
	}
	if i == 0 {
		return false
	}
	if i < len(value) && value[i] == '[' {
		depth := 1
		i++
		for i < len(value) && depth > 0 {
			switch value[i] {
			case '[':
				depth++
			case ']':
				depth--
			}
			i++
		}
		if depth != 0 {
			return false
		}
	}
	if i < len(value) && value[i] == '+' {
		i++
	}
	return i < len(value) && value[i] == '='
}

func (l *Lexer) scanDquote() error {
	l.advance() // opening "
	if err := l.scanDquoteBody(); err != nil {
		return err
	}
	return nil
}

func (l *Lexer) scanDquoteBody() error {
	for {
		if l.pos >= len(l.src) {
			return &Error{Msg: "unterminated double quote", Line: l.line, Column: l.column}
		}
		switch l.src[l.pos] {
		case '"':
			l.advance()
			return nil
		case '\\':
			l.advance()
			if l.pos < len(l.src) {
				l.advance()
			}
		case '$':
			if err := l.scanDollar(); err != nil {
				return err
			}
		case '`':
			if err := l.scanBacktick(); err != nil {
				return err
			}
		default:
			l.advance()
		}
	}
}

func (l *Lexer) scanBacktick() error {
	l.advance() // opening `
	for {
		if l.pos >= len(l.src) {
			return &Error{Msg: "unterminated backquote substitution", Line: l.line, Column: l.column}
		}
		switch l.src[l.pos] {
		case '`':
			l.advance()
			return nil
		case '\\':
			l.advance()
			if l.pos < len(l.src) {
				l.advance()
			}
		default:
			l.advance()
		}
	}
}

// scanBalancedParens assumes the opening '(' has already been consumed and
// stops just past the matching close, honoring nested quotes and further
// substitutions so that e.g. `$(echo "a)b")` closes in the right place.
func (l *Lexer) scanBalancedParens() error {
	depth := 1
	for {
		if l.pos >= len(l.src) {
			return &Error{Msg: "unterminated substitution: missing )", Line: l.line, Column: l.column}
		}
		switch l.src[l.pos] {
		case '(':
			depth++
			l.advance()
		case ')':
			depth--
			l.advance()
			if depth == 0 {
				return nil
			}
		case '\\':
			l.advance()
			if l.pos < len(l.src) {
				l.advance()
			}
		case '\'':
			l.advance()
			for l.pos < len(l.src) && l.src[l.pos] != '\'' {
				l.advance()
			}
			if l.pos >= len(l.src) {
				return &Error{Msg: "unterminated single quote", Line: l.line, Column: l.column}
			}
			l.advance()
		case '"':
			if err := l.scanDquote(); err != nil {
				return err
			}
		case '`':
			if err := l.scanBacktick(); err != nil {
				return err
			}
		default:
			l.advance()
		}
	}
}

// scanArithDollar assumes "$((" has already been consumed and stops just
// past the matching "))".
func (l *Lexer) scanArithDollar() error {
	depth := 0
	for {
		if l.pos >= len(l.src) {
			return &Error{Msg: "unterminated arithmetic expansion: missing ))", Line: l.line, Column: l.column}
		}
		switch l.src[l.pos] {
		case '(':
			depth++
			l.advance()
		case ')':
			if depth == 0 {
				if l.peekByte(1) == ')' {
					l.advance()
					l.advance()
					return nil
				}
				l.advance()
				continue
			}
			depth--
			l.advance()
		case '\'':
			l.advance()
			for l.pos < len(l.src) && l.src[l.pos] != '\'' {
				l.advance()
			}
			if l.pos < len(l.src) {
				l.advance()
			}
		case '"':
			if err := l.scanDquote(); err != nil {
				return err
			}
		case '$':
			if err := l.scanDollar(); err != nil {
				return err
			}
		default:
			l.advance()
		}
	}
}

// scanBrace assumes "${" has already been consumed and stops just past the
// matching "}", per spec.md §4.1 "Inside ${…} single and double quotes must
// be balanced".
func (l *Lexer) scanBrace() error {
	depth := 1
	for {
		if l.pos >= len(l.src) {
			return &Error{Msg: "unterminated parameter expansion: missing }", Line: l.line, Column: l.column}
		}
		switch l.src[l.pos] {
		case '{':
			depth++
			l.advance()
		case '}':
			depth--
			l.advance()
			if depth == 0 {
				return nil
			}
		case '\\':
			l.advance()
			if l.pos < len(l.src) {
				l.advance()
			}
		case '\'':
			l.advance()
			for l.pos < len(l.src) && l.src[l.pos] != '\'' {
				l.advance()
			}
			if l.pos < len(l.src) {
				l.advance()
			}
		case '"':
			if err := l.scanDquote(); err != nil {
				return err
			}
		case '`':
			if err := l.scanBacktick(); err != nil {
				return err
			}
		case '$':
			if l.peekByte(1) == '{' {
				l.advance()
				l.advance()
				depth++
			} else if err := l.scanDollar(); err != nil {
				return err
			}
		default:
			l.advance()
		}
	}
}

// scanDollar consumes one `$...` form starting at the '$' byte: a bare
// parameter, `${...}`, `$(...)`, `$((...))`, `$[...]`, `$'...'`, or `$"..."`.
func (l *Lexer) scanDollar() error {
	l.advance() // '$'
	switch l.peekByte(0) {
	case '\'':
		l.advance()
		for l.pos < len(l.src) {
			if l.src[l.pos] == '\\' {
				l.advance()
				if l.pos < len(l.src) {
					l.advance()
				}
				continue
			}
			if l.src[l.pos] == '\'' {
				l.advance()
				break
			}
			l.advance()
		}
		return nil
	case '"':
		l.advance()
		return l.scanDquoteBody()
	case '{':
		l.advance()
		return l.scanBrace()
	case '(':
		l.advance()
		if l.peekByte(0) == '(' {
			l.advance()
			return l.scanArithDollar()
		}
		return l.scanBalancedParens()
	case '[':
		l.advance()
		depth := 0
		for l.pos < len(l.src) {
			b := l.src[l.pos]
			if b == '[' {
				depth++
			} else if b == ']' {
				if depth == 0 {
					l.advance()
					return nil
				}
				depth--
			}
			l.advance()
		}
		return nil
	default:
		b := l.peekByte(0)
		if isNameByte(b, true) {
			for l.pos < len(l.src) && isNameByte(l.src[l.pos], false) {
				l.advance()
			}
		} else if isSpecialParam(b) {
			l.advance()
		}
		return nil
	}
}

func isSpecialParam(b byte) bool {
	switch b {
	case '@', '*', '#', '?', '!', '$', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return false
}
