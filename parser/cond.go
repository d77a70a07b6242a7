package parser

import (
	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/token"
)

// parseCondCommandNode parses a standalone `[[ expr ]]` command.
func (p *Parser) parseCondCommandNode() (*ast.CommandNode, error) {
	pos := p.tok.Start
	if err := p.advance(); err != nil { // consume [[
		return nil, err
	}
	x, err := p.parseCondOr()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != token.DRBRACK {
		return nil, &Error{Msg: "expected ]]", Pos: p.tok.Start}
	}
	end := p.tok.Start
	if err := p.advance(); err != nil {
		return nil, err
	}
	cc := &ast.ConditionalCommand{X: x, Position: pos, EndPos: end}
	return &ast.CommandNode{Command: cc}, nil
}

func (p *Parser) parseCondOr() (ast.CondExpr, error) {
	x, err := p.parseCondAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == token.LOR {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		y, err := p.parseCondAnd()
		if err != nil {
			return nil, err
		}
		x = &ast.CondOr{X: x, Y: y}
	}
	return x, nil
}

func (p *Parser) parseCondAnd() (ast.CondExpr, error) {
	x, err := p.parseCondNot()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == token.LAND {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		y, err := p.parseCondNot()
		if err != nil {
			return nil, err
		}
		x = &ast.CondAnd{X: x, Y: y}
	}
	return x, nil
}

func (p *Parser) parseCondNot() (ast.CondExpr, error) {
	if p.tok.Kind == token.LITWORD && p.tok.Value == "!" {
		pos := p.tok.Start
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseCondNot()
		if err != nil {
			return nil, err
		}
		return &ast.CondNot{X: x, Position: pos}, nil
	}
	return p.parseCondPrimary()
}

func (p *Parser) parseCondPrimary() (ast.CondExpr, error) {
	if p.tok.Kind == token.LPAREN {
		lp := p.tok.Start
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseCondOr()
		if err != nil {
			return nil, err
		}
		if p.tok.Kind != token.RPAREN {
			return nil, &Error{Msg: "expected ) in [[ ]] expression", Pos: p.tok.Start}
		}
		rp := p.tok.Start
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.CondGroup{X: x, LParen: lp, RParen: rp}, nil
	}

	if p.isCondWordToken() && p.tok.Value != "!" {
		if op := token.UnaryTestOp(p.tok.Value); op != token.ILLEGAL {
			opPos := p.tok.Start
			if err := p.advance(); err != nil {
				return nil, err
			}
			if !p.isCondWordToken() {
				return nil, &Error{Msg: "expected a word after test operator", Pos: p.tok.Start}
			}
			operand, err := p.buildWord(p.tok.Value, p.tok.Start)
			if err != nil {
				return nil, err
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &ast.CondUnary{Op: op, X: operand, Position: opPos}, nil
		}
	}

	if !p.isCondWordToken() {
		return nil, &Error{Msg: "expected a word in [[ ]] expression", Pos: p.tok.Start}
	}
	left, err := p.buildWord(p.tok.Value, p.tok.Start)
	if err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if op, ok := p.condBinaryOp(); ok {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if !p.isCondWordToken() {
			return nil, &Error{Msg: "expected a word after test operator", Pos: p.tok.Start}
		}
		right, err := p.buildWord(p.tok.Value, p.tok.Start)
		if err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.CondBinary{Op: op, X: left, Y: right, Regex: op == token.TREMATCH}, nil
	}

	return &ast.CondWord{X: left}, nil
}

func (p *Parser) isCondWordToken() bool {
	switch p.tok.Kind {
	case token.LITWORD, token.LIT, token.ASSIGNWORD, token.NAME:
		return true
	}
	return false
}

// condBinaryOp reports whether the current token is a [[ ]] binary test
// operator, checking bare LSS/GTR (lexer-level string comparisons in this
// context) alongside the LITWORD spellings like "-eq" and "=~".
func (p *Parser) condBinaryOp() (token.Kind, bool) {
	switch p.tok.Kind {
	case token.LSS:
		return token.LSS, true
	case token.GTR:
		return token.GTR, true
	}
	if p.tok.Kind == token.LITWORD {
		if op := token.BinaryTestOp(p.tok.Value); op != token.ILLEGAL {
			return op, true
		}
	}
	return token.ILLEGAL, false
}
