package parser

import (
	"strings"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/lexer"
	"github.com/sandboshell/sandboshell/token"
)

// parseCommandNode dispatches to a compound-command parser when the current
// token opens one, a function-definition when a bare name is immediately
// followed by "()", or falls back to a simple command.
func (p *Parser) parseCommandNode() (*ast.CommandNode, error) {
	node, err := p.dispatchCommandNode()
	if err != nil {
		return nil, err
	}
	// Compound commands (if/for/{ }/( )/etc.) don't consume their own
	// trailing redirections the way parseSimpleCommandNode does inline, so
	// collect any here: `{ cmd; } >log`, `(cmd) 2>&1`.
	for isRedirectStart(p.tok) {
		r, err := p.parseRedirect()
		if err != nil {
			return nil, err
		}
		node.Redirections = append(node.Redirections, r)
	}
	return node, nil
}

func (p *Parser) dispatchCommandNode() (*ast.CommandNode, error) {
	switch p.tok.Kind {
	case token.DLBRACK:
		return p.parseCondCommandNode()
	case token.DLPAREN:
		return p.parseArithCommandNode()
	case token.LPAREN:
		return p.parseSubshellNode()
	}

	if p.tok.Kind == token.LITWORD {
		if kind, ok := p.isReserved(p.tok.Value); ok {
			switch kind {
			case token.IF:
				return p.parseIfNode()
			case token.FOR:
				return p.parseForNode(false)
			case token.SELECT:
				return p.parseForNode(true)
			case token.WHILE:
				return p.parseWhileNode()
			case token.UNTIL:
				return p.parseUntilNode()
			case token.CASE:
				return p.parseCaseNode()
			case token.FUNCTION:
				return p.parseFunctionDefNode(true)
			case token.COPROC:
				return p.parseCoprocNode()
			case token.LBRACE:
				return p.parseGroupNode()
			}
		}
		if isPlainName(p.tok.Value) {
			next, err := p.peek(0)
			if err != nil {
				return nil, err
			}
			if next.Kind == token.LPAREN && !next.Spaced {
				after, err := p.peek(1)
				if err != nil {
					return nil, err
				}
				if after.Kind == token.RPAREN {
					return p.parseFunctionDefNode(false)
				}
			}
		}
	}

	return p.parseSimpleCommandNode()
}

func isPlainName(s string) bool {
	if s == "" || !isNameByte(s[0], true) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isNameByte(s[i], false) {
			return false
		}
	}
	return true
}

// parseSimpleCommandNode parses `assignments... name args... redirections...`
// interleaved in any order, per real shell grammar (redirections may appear
// before, between, or after words).
func (p *Parser) parseSimpleCommandNode() (*ast.CommandNode, error) {
	pos := p.tok.Start
	sc := &ast.SimpleCommand{Position: pos}
	sawName := false

	for {
		switch {
		case p.tok.Kind == token.CMDIN || p.tok.Kind == token.CMDOUT:
			w, err := p.parseProcessSubst()
			if err != nil {
				return nil, err
			}
			if !sawName {
				sc.Name = w
				sawName = true
			} else {
				sc.Args = append(sc.Args, w)
			}
			continue
		case isRedirectStart(p.tok):
			r, err := p.parseRedirect()
			if err != nil {
				return nil, err
			}
			sc.Redirections = append(sc.Redirections, r)
			continue
		case p.tok.Kind == token.ASSIGNWORD && !sawName:
			a, err := p.parseAssignmentWord(p.tok)
			if err != nil {
				return nil, err
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			if a.Value == nil && len(a.Array) == 0 && p.tok.Kind == token.LPAREN {
				arr, err := p.parseArrayLiteral()
				if err != nil {
					return nil, err
				}
				a.Array = arr
			}
			sc.Assignments = append(sc.Assignments, a)
			continue
		case p.tok.Kind == token.LITWORD || p.tok.Kind == token.LIT || p.tok.Kind == token.NAME || (p.tok.Kind == token.ASSIGNWORD && sawName):
			w, err := p.buildWord(p.tok.Value, p.tok.Start)
			if err != nil {
				return nil, err
			}
			if !sawName {
				sc.Name = w
				sawName = true
			} else {
				sc.Args = append(sc.Args, w)
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	if sc.Name == nil && len(sc.Assignments) == 0 && len(sc.Redirections) == 0 {
		return nil, &Error{Msg: "expected a command", Pos: pos}
	}
	return &ast.CommandNode{Command: sc}, nil
}

func (p *Parser) parseAssignmentWord(tok lexer.Token) (*ast.Assignment, error) {
	s := tok.Value
	i := 0
	for i < len(s) && isNameByte(s[i], i == 0) {
		i++
	}
	a := &ast.Assignment{Name: s[:i], Position: tok.Start}
	if i < len(s) && s[i] == '[' {
		depth := 1
		start := i + 1
		j := start
		for j < len(s) && depth > 0 {
			switch s[j] {
			case '[':
				depth++
			case ']':
				depth--
			}
			j++
		}
		idxSrc := s[start : j-1]
		idxWord, err := p.buildWord(idxSrc, tok.Start+token.Pos(start))
		if err != nil {
			return nil, err
		}
		a.Index = idxWord
		i = j
	}
	if i < len(s) && s[i] == '+' {
		a.Append = true
		i++
	}
	if i < len(s) && s[i] == '=' {
		i++
	}
	valueRaw := s[i:]
	if valueRaw != "" {
		w, err := p.buildWord(valueRaw, tok.Start+token.Pos(i))
		if err != nil {
			return nil, err
		}
		a.Value = w
	}
	return a, nil
}

func (p *Parser) parseArrayLiteral() ([]*ast.ArrayElem, error) {
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	var elems []*ast.ArrayElem
	for {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.tok.Kind == token.RPAREN {
			if err := p.advance(); err != nil {
				return nil, err
			}
			return elems, nil
		}
		if p.tok.Kind == token.EOF {
			return nil, &Error{Msg: "unterminated array literal", Pos: p.tok.Start}
		}
		elem, err := p.parseArrayElem()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
}

func (p *Parser) parseArrayElem() (*ast.ArrayElem, error) {
	tok := p.tok
	if (tok.Kind == token.LITWORD || tok.Kind == token.LIT) && strings.HasPrefix(tok.Value, "[") {
		if idx, val, valPos, ok := splitIndexedElem(tok.Value); ok {
			if err := p.advance(); err != nil {
				return nil, err
			}
			idxWord, err := p.buildWord(idx, tok.Start+1)
			if err != nil {
				return nil, err
			}
			var valWord *ast.WordNode
			if val != "" {
				valWord, err = p.buildWord(val, tok.Start+token.Pos(valPos))
				if err != nil {
					return nil, err
				}
			}
			return &ast.ArrayElem{Index: idxWord, Value: valWord}, nil
		}
	}
	w, err := p.buildWord(tok.Value, tok.Start)
	if err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &ast.ArrayElem{Value: w}, nil
}

func splitIndexedElem(s string) (idx, val string, valPos int, ok bool) {
	if len(s) == 0 || s[0] != '[' {
		return "", "", 0, false
	}
	depth := 1
	i := 1
	for i < len(s) && depth > 0 {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		}
		i++
	}
	if depth != 0 || i >= len(s) || s[i] != '=' {
		return "", "", 0, false
	}
	return s[1 : i-1], s[i+1:], i + 1, true
}
