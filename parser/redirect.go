package parser

import (
	"strconv"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/lexer"
	"github.com/sandboshell/sandboshell/token"
)

// isRedirectStart reports whether tok begins a redirection, including an
// optional FD-number or FD-variable prefix with no intervening space.
func isRedirectStart(tok lexer.Token) bool {
	switch tok.Kind {
	case token.LSS, token.GTR, token.SHL, token.DHEREDOC, token.WHEREDOC,
		token.SHR, token.RDRALL, token.APPALL, token.RDRINOUT,
		token.DPLIN, token.DPLOUT, token.CLBOUT:
		return true
	case token.NAME:
		// an FD-variable token ({fd}) is only ever emitted immediately
		// before a redirection operator, so seeing one here always means a
		// redirection follows.
		return true
	}
	if (tok.Kind == token.LITWORD || tok.Kind == token.LIT) && isAllDigits(tok.Value) {
		return true
	}
	return false
}

// stripHeredocQuotes removes quoting from a heredoc delimiter word's raw
// text, mirroring the lexer's own pre-scan (lexer.stripHeredocQuotes) used
// to decide whether the body is subject to expansion.
func stripHeredocQuotes(raw string) string {
	var out []byte
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\'', '"':
		case '\\':
			if i+1 < len(raw) {
				i++
				out = append(out, raw[i])
				continue
			}
		default:
			out = append(out, raw[i])
		}
	}
	return string(out)
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

// parseRedirect consumes one redirection, including any FD prefix.
func (p *Parser) parseRedirect() (*ast.Redirect, error) {
	pos := p.tok.Start
	r := &ast.Redirect{FD: -1, Position: pos}

	if p.tok.Kind == token.NAME {
		r.FDVar = p.tok.Value
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else if (p.tok.Kind == token.LITWORD || p.tok.Kind == token.LIT) && isAllDigits(p.tok.Value) {
		n, err := strconv.Atoi(p.tok.Value)
		if err != nil {
			return nil, &Error{Msg: "bad file descriptor", Pos: p.tok.Start}
		}
		r.FD = n
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	r.Op = p.tok.Kind
	isHeredoc := r.Op == token.SHL || r.Op == token.DHEREDOC
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.tok.Kind != token.LITWORD && p.tok.Kind != token.LIT && p.tok.Kind != token.NAME {
		return nil, &Error{Msg: "expected a word after redirection operator", Pos: p.tok.Start}
	}
	target, err := p.buildWord(p.tok.Value, p.tok.Start)
	if err != nil {
		return nil, err
	}

	if isHeredoc {
		delim := stripHeredocQuotes(p.tok.Value)
		r.Heredoc = &ast.Heredoc{Delim: delim, Quoted: p.tok.Quoted, StripTabs: r.Op == token.DHEREDOC}
		p.pendingHeredocs = append(p.pendingHeredocs, r)
	} else {
		r.Target = target
	}

	if err := p.advance(); err != nil {
		return nil, err
	}
	return r, nil
}

// parseProcessSubst consumes `<(...)`/`>(...)` as a word in argument
// position: the lexer emits CMDIN/CMDOUT as a standalone operator token and
// leaves the body to be tokenized normally, so the body is parsed as nested
// statements on the same token stream up to the matching ')'.
func (p *Parser) parseProcessSubst() (*ast.WordNode, error) {
	in := p.tok.Kind == token.CMDIN
	pos := p.tok.Start
	if err := p.advance(); err != nil {
		return nil, err
	}
	stmts, err := p.parseStmtList()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != token.RPAREN {
		return nil, &Error{Msg: "expected ) to close process substitution", Pos: p.tok.Start}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	body := &ast.Script{Stmts: stmts}
	ps := &ast.ProcessSubstitution{In: in, Body: body, LeftQuote: pos, RightQuote: p.tok.Start}
	return &ast.WordNode{Parts: []ast.WordPart{ps}}, nil
}
