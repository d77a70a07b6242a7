// Package parser builds the AST of spec.md §4.2 from the lexer's token
// stream: a recursive-descent parser for shell statement/command grammar,
// delegating word-internal structure to the word-part builder (word.go),
// arithmetic expressions to arith.go, and `[[ ]]` expressions to cond.go.
package parser

import (
	"fmt"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/lexer"
	"github.com/sandboshell/sandboshell/token"
)

// Error is a parse failure, carrying the offending token's position.
type Error struct {
	Msg string
	Pos token.Pos
}

func (e *Error) Error() string { return fmt.Sprintf("pos %d: %s", e.Pos, e.Msg) }

// Parser consumes a lexer.Lexer's token stream and builds an *ast.Script.
type Parser struct {
	lex    *lexer.Lexer
	tok    lexer.Token
	lookhd []lexer.Token
	depth  int

	// pendingHeredocs holds heredoc redirects in declaration order, waiting
	// for their bodies: the lexer only materializes a heredoc's body once
	// the NEWL ending its statement has been consumed.
	pendingHeredocs []*ast.Redirect
}

// New creates a Parser over src.
func New(src []byte) *Parser {
	p := &Parser{lex: lexer.New(src)}
	p.advance()
	return p
}

// Parse tokenizes and parses src into a Script.
func Parse(src []byte) (*ast.Script, error) {
	p := New(src)
	return p.parseScript()
}

func (p *Parser) advance() error {
	if len(p.lookhd) > 0 {
		p.tok = p.lookhd[0]
		p.lookhd = p.lookhd[1:]
	} else {
		t, err := p.lex.Next()
		if err != nil {
			return err
		}
		p.tok = t
	}
	p.drainHeredocs()
	return nil
}

// drainHeredocs fills in the body of any pending heredoc redirect whose text
// the lexer has now consumed (it does so right after the NEWL ending the
// heredoc's statement passes through Next()).
func (p *Parser) drainHeredocs() {
	for len(p.pendingHeredocs) > 0 {
		body, ok := p.lex.NextHeredoc()
		if !ok {
			return
		}
		r := p.pendingHeredocs[0]
		p.pendingHeredocs = p.pendingHeredocs[1:]
		r.Heredoc.Body = body.Body
	}
}

// peek returns the token n positions ahead (peek(0) is the token after the
// current one), filling the lookahead buffer as needed.
func (p *Parser) peek(n int) (lexer.Token, error) {
	for len(p.lookhd) <= n {
		t, err := p.lex.Next()
		if err != nil {
			return lexer.Token{}, err
		}
		p.lookhd = append(p.lookhd, t)
		if t.Kind == token.EOF {
			break
		}
	}
	if n >= len(p.lookhd) {
		return p.lookhd[len(p.lookhd)-1], nil
	}
	return p.lookhd[n], nil
}

func (p *Parser) isReserved(word string) (token.Kind, bool) {
	return token.Reserved(word)
}

// parseNested parses a standalone command-substitution/process-substitution
// body, re-entering the statement grammar on src with its own lexer.
func (p *Parser) parseNested(src string, base token.Pos) (*ast.Script, error) {
	sub := New([]byte(src))
	sub.depth = p.depth + 1
	if sub.depth > 200 {
		return nil, fmt.Errorf("substitution nesting too deep")
	}
	return sub.parseScript()
}

func (p *Parser) skipNewlines() error {
	for p.tok.Kind == token.NEWL {
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseScript() (*ast.Script, error) {
	script := &ast.Script{}
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	for p.tok.Kind != token.EOF {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			script.Stmts = append(script.Stmts, stmt)
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
	}
	return script, nil
}

// parseStmtList parses statements until a LITWORD matching one of enders is
// seen in command position (not consumed), or EOF/an unexpected token.
func (p *Parser) parseStmtList(enders ...string) ([]*ast.Stmt, error) {
	var stmts []*ast.Stmt
	for {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.atEnder(enders...) || p.tok.Kind == token.EOF || p.tok.Kind == token.RPAREN {
			return stmts, nil
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		if stmt == nil {
			// no pipeline can start here (e.g. `;;` ending a case body)
			return stmts, nil
		}
		stmts = append(stmts, stmt)
	}
}

func (p *Parser) atEnder(enders ...string) bool {
	if p.tok.Kind != token.LITWORD {
		return false
	}
	for _, e := range enders {
		if p.tok.Value == e {
			return true
		}
	}
	return false
}

func (p *Parser) expectWord(word string) error {
	if p.tok.Kind != token.LITWORD || p.tok.Value != word {
		return &Error{Msg: fmt.Sprintf("expected %q, found %q", word, p.tok.Value), Pos: p.tok.Start}
	}
	return p.advance()
}

// parseStmt parses exactly one Pipeline and the single connective or
// terminator that follows it. Script.Stmts is a flat list where each Stmt
// names the connective joining it to the *next* Stmt in that list, so `a &&
// b; c` parses as three consecutive Stmts (LAND, SEMI-terminated, none) -
// the caller's loop (parseScript/parseStmtList) keeps calling parseStmt
// until it sees an ender or EOF, regardless of which connective was seen.
func (p *Parser) parseStmt() (*ast.Stmt, error) {
	pos := p.tok.Start
	pipe, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	if pipe == nil {
		return nil, nil
	}
	stmt := &ast.Stmt{Pipeline: pipe, Position: pos}

	switch p.tok.Kind {
	case token.LAND, token.LOR:
		stmt.Connective = p.tok.Kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
	case token.SEMI:
		if err := p.advance(); err != nil {
			return nil, err
		}
	case token.AND:
		stmt.Background = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	case token.NEWL, token.EOF:
	case token.DSEMI, token.SEMIFALL, token.DSEMIFALL, token.RPAREN:
	default:
		if !p.atEnder("then", "do", "done", "fi", "elif", "else", "esac") {
			return nil, &Error{Msg: fmt.Sprintf("unexpected token %q after command", p.tok.Value), Pos: p.tok.Start}
		}
	}
	return stmt, nil
}
