package parser

import (
	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/token"
)

func (p *Parser) parseIfNode() (*ast.CommandNode, error) {
	pos := p.tok.Start
	root, err := p.parseIfClause(pos)
	if err != nil {
		return nil, err
	}
	return &ast.CommandNode{Command: root}, nil
}

// parseIfClause parses one `if/elif COND; then BODY` clause and its
// following elif/else chain, consuming the final "fi".
func (p *Parser) parseIfClause(pos token.Pos) (*ast.If, error) {
	if err := p.advance(); err != nil { // consume if/elif
		return nil, err
	}
	cond, err := p.parseStmtList("then")
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("then"); err != nil {
		return nil, err
	}
	then, err := p.parseStmtList("elif", "else", "fi")
	if err != nil {
		return nil, err
	}
	n := &ast.If{Cond: cond, Then: then, Position: pos}

	switch {
	case p.atEnder("elif"):
		elifPos := p.tok.Start
		elif, err := p.parseIfClause(elifPos)
		if err != nil {
			return nil, err
		}
		n.Else = elif
		n.EndPos = elif.EndPos
		return n, nil
	case p.atEnder("else"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		elseBody, err := p.parseStmtList("fi")
		if err != nil {
			return nil, err
		}
		end := p.tok.Start
		if err := p.expectWord("fi"); err != nil {
			return nil, err
		}
		n.Else = &ast.If{Then: elseBody, Position: elseBody0Pos(elseBody, end)}
		n.Else.EndPos = end
		n.EndPos = end
		return n, nil
	default:
		end := p.tok.Start
		if err := p.expectWord("fi"); err != nil {
			return nil, err
		}
		n.EndPos = end
		return n, nil
	}
}

func elseBody0Pos(stmts []*ast.Stmt, fallback token.Pos) token.Pos {
	if len(stmts) > 0 {
		return stmts[0].Position
	}
	return fallback
}

func (p *Parser) parseForNode(isSelect bool) (*ast.CommandNode, error) {
	pos := p.tok.Start
	if err := p.advance(); err != nil { // consume for/select
		return nil, err
	}
	if !isSelect && p.tok.Kind == token.DLPAREN {
		return p.parseCStyleFor(pos)
	}
	if p.tok.Kind != token.LITWORD && p.tok.Kind != token.NAME {
		return nil, &Error{Msg: "expected a name after for/select", Pos: p.tok.Start}
	}

	name := p.tok.Value
	if err := p.advance(); err != nil {
		return nil, err
	}
	n := &ast.For{Name: name, Select: isSelect, Position: pos}

	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	if p.tok.Kind == token.LITWORD && p.tok.Value == "in" {
		n.HasIn = true
		if err := p.advance(); err != nil {
			return nil, err
		}
		for p.tok.Kind == token.LITWORD || p.tok.Kind == token.LIT || p.tok.Kind == token.ASSIGNWORD {
			w, err := p.buildWord(p.tok.Value, p.tok.Start)
			if err != nil {
				return nil, err
			}
			n.Words = append(n.Words, w)
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if p.tok.Kind == token.SEMI || p.tok.Kind == token.NEWL {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	if err := p.expectWord("do"); err != nil {
		return nil, err
	}
	body, err := p.parseStmtList("done")
	if err != nil {
		return nil, err
	}
	n.Body = body
	n.EndPos = p.tok.Start
	if err := p.expectWord("done"); err != nil {
		return nil, err
	}
	return &ast.CommandNode{Command: n}, nil
}

func (p *Parser) parseCStyleFor(pos token.Pos) (*ast.CommandNode, error) {
	if err := p.advance(); err != nil { // consume ((
		return nil, err
	}
	n := &ast.CStyleFor{Position: pos}

	initSrc, err := p.readArithClauseSrc()
	if err != nil {
		return nil, err
	}
	if initSrc != "" {
		n.Init, err = parseArith(p, initSrc, p.tok.Start)
		if err != nil {
			return nil, err
		}
	}
	condSrc, err := p.readArithClauseSrc()
	if err != nil {
		return nil, err
	}
	if condSrc != "" {
		n.Cond, err = parseArith(p, condSrc, p.tok.Start)
		if err != nil {
			return nil, err
		}
	}
	updSrc, err := p.readArithClauseEnd()
	if err != nil {
		return nil, err
	}
	if updSrc != "" {
		n.Update, err = parseArith(p, updSrc, p.tok.Start)
		if err != nil {
			return nil, err
		}
	}

	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	if p.tok.Kind == token.SEMI || p.tok.Kind == token.NEWL {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	if err := p.expectWord("do"); err != nil {
		return nil, err
	}
	body, err := p.parseStmtList("done")
	if err != nil {
		return nil, err
	}
	n.Body = body
	n.EndPos = p.tok.Start
	if err := p.expectWord("done"); err != nil {
		return nil, err
	}
	return &ast.CommandNode{Command: n}, nil
}

// readArithClauseSrc reconstructs the raw text of one `;`-delimited clause
// of a C-style for header by re-rendering tokens, since the clause may
// itself contain arbitrary arithmetic tokens already split by the main
// lexer. It stops at the next top-level SEMI and consumes it.
func (p *Parser) readArithClauseSrc() (string, error) {
	var b []byte
	for p.tok.Kind != token.SEMI && p.tok.Kind != token.EOF {
		if len(b) > 0 {
			b = append(b, ' ')
		}
		b = append(b, p.tok.Value...)
		if err := p.advance(); err != nil {
			return "", err
		}
	}
	if p.tok.Kind == token.SEMI {
		if err := p.advance(); err != nil {
			return "", err
		}
	}
	return string(b), nil
}

// readArithClauseEnd reads the final clause up to the "))" terminator and
// consumes it, whether the lexer produced it as one DRPAREN token or as two
// separate RPAREN tokens (the latter happens when whitespace or a nested
// substitution intervenes).
func (p *Parser) readArithClauseEnd() (string, error) {
	var b []byte
	for p.tok.Kind != token.RPAREN && p.tok.Kind != token.DRPAREN && p.tok.Kind != token.EOF {
		if len(b) > 0 {
			b = append(b, ' ')
		}
		b = append(b, p.tok.Value...)
		if err := p.advance(); err != nil {
			return "", err
		}
	}
	if p.tok.Kind == token.DRPAREN {
		if err := p.advance(); err != nil {
			return "", err
		}
		return string(b), nil
	}
	if p.tok.Kind == token.RPAREN {
		if err := p.advance(); err != nil {
			return "", err
		}
		if p.tok.Kind == token.RPAREN {
			if err := p.advance(); err != nil {
				return "", err
			}
		}
	}
	return string(b), nil
}

func (p *Parser) parseWhileNode() (*ast.CommandNode, error) {
	pos := p.tok.Start
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.parseStmtList("do")
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("do"); err != nil {
		return nil, err
	}
	body, err := p.parseStmtList("done")
	if err != nil {
		return nil, err
	}
	end := p.tok.Start
	if err := p.expectWord("done"); err != nil {
		return nil, err
	}
	n := &ast.While{Cond: cond, Body: body, Position: pos, EndPos: end}
	return &ast.CommandNode{Command: n}, nil
}

func (p *Parser) parseUntilNode() (*ast.CommandNode, error) {
	pos := p.tok.Start
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.parseStmtList("do")
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("do"); err != nil {
		return nil, err
	}
	body, err := p.parseStmtList("done")
	if err != nil {
		return nil, err
	}
	end := p.tok.Start
	if err := p.expectWord("done"); err != nil {
		return nil, err
	}
	n := &ast.Until{Cond: cond, Body: body, Position: pos, EndPos: end}
	return &ast.CommandNode{Command: n}, nil
}

func (p *Parser) parseCaseNode() (*ast.CommandNode, error) {
	pos := p.tok.Start
	if err := p.advance(); err != nil { // consume case
		return nil, err
	}
	if !p.isCondWordToken() {
		return nil, &Error{Msg: "expected a word after case", Pos: p.tok.Start}
	}
	word, err := p.buildWord(p.tok.Value, p.tok.Start)
	if err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	if err := p.expectWord("in"); err != nil {
		return nil, err
	}
	n := &ast.Case{Word: word, Position: pos}

	for {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.atEnder("esac") {
			break
		}
		clause, err := p.parseCaseClause()
		if err != nil {
			return nil, err
		}
		n.Clauses = append(n.Clauses, clause)
		if p.tok.Kind == token.EOF {
			return nil, &Error{Msg: "expected esac", Pos: p.tok.Start}
		}
	}
	n.EndPos = p.tok.Start
	if err := p.expectWord("esac"); err != nil {
		return nil, err
	}
	return &ast.CommandNode{Command: n}, nil
}

func (p *Parser) parseCaseClause() (*ast.CaseClause, error) {
	if p.tok.Kind == token.LPAREN {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	cl := &ast.CaseClause{}
	for {
		if !p.isCondWordToken() {
			return nil, &Error{Msg: "expected a case pattern", Pos: p.tok.Start}
		}
		w, err := p.buildWord(p.tok.Value, p.tok.Start)
		if err != nil {
			return nil, err
		}
		cl.Patterns = append(cl.Patterns, w)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.Kind == token.OR {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.tok.Kind != token.RPAREN {
		return nil, &Error{Msg: "expected ) after case pattern", Pos: p.tok.Start}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	body, err := p.parseStmtList("esac")
	if err != nil {
		return nil, err
	}
	cl.Body = body
	switch p.tok.Kind {
	case token.DSEMI, token.SEMIFALL, token.DSEMIFALL:
		cl.Term = p.tok.Kind
		if err := p.advance(); err != nil {
			return nil, err
		}
	default:
		cl.Term = token.DSEMI
	}
	return cl, nil
}

func (p *Parser) parseSubshellNode() (*ast.CommandNode, error) {
	pos := p.tok.Start
	if err := p.advance(); err != nil { // consume (
		return nil, err
	}
	body, err := p.parseStmtList()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != token.RPAREN {
		return nil, &Error{Msg: "expected ) to close subshell", Pos: p.tok.Start}
	}
	end := p.tok.Start
	if err := p.advance(); err != nil {
		return nil, err
	}
	n := &ast.Subshell{Body: body, Position: pos, EndPos: end}
	return &ast.CommandNode{Command: n}, nil
}

func (p *Parser) parseGroupNode() (*ast.CommandNode, error) {
	pos := p.tok.Start
	if err := p.advance(); err != nil { // consume {
		return nil, err
	}
	body, err := p.parseStmtList("}")
	if err != nil {
		return nil, err
	}
	if !p.atEnder("}") {
		return nil, &Error{Msg: "expected } to close group", Pos: p.tok.Start}
	}
	end := p.tok.Start
	if err := p.advance(); err != nil {
		return nil, err
	}
	n := &ast.Group{Body: body, Position: pos, EndPos: end}
	return &ast.CommandNode{Command: n}, nil
}

// parseFunctionDefNode parses both `function name [()] BODY` (withKeyword)
// and the `name() BODY` shorthand.
func (p *Parser) parseFunctionDefNode(withKeyword bool) (*ast.CommandNode, error) {
	pos := p.tok.Start
	if withKeyword {
		if err := p.advance(); err != nil { // consume "function"
			return nil, err
		}
	}
	if p.tok.Kind != token.LITWORD && p.tok.Kind != token.NAME {
		return nil, &Error{Msg: "expected a function name", Pos: p.tok.Start}
	}
	name := p.tok.Value
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.Kind == token.LPAREN {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.Kind != token.RPAREN {
			return nil, &Error{Msg: "expected ) in function definition", Pos: p.tok.Start}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	bodyNode, err := p.parseCommandNode()
	if err != nil {
		return nil, err
	}
	n := &ast.FunctionDef{Name: name, Body: bodyNode.Command, Position: pos}
	return &ast.CommandNode{Command: n}, nil
}

func (p *Parser) parseArithCommandNode() (*ast.CommandNode, error) {
	pos := p.tok.Start
	if err := p.advance(); err != nil { // consume ((
		return nil, err
	}
	src, err := p.readArithClauseEnd()
	if err != nil {
		return nil, err
	}
	x, err := parseArith(p, src, pos)
	if err != nil {
		return nil, err
	}
	end := p.tok.Start
	n := &ast.ArithmeticCommand{X: x, Position: pos, EndPos: end}
	return &ast.CommandNode{Command: n}, nil
}

func (p *Parser) parseCoprocNode() (*ast.CommandNode, error) {
	pos := p.tok.Start
	if err := p.advance(); err != nil { // consume coproc
		return nil, err
	}
	name := ""
	if p.tok.Kind == token.LITWORD && isPlainName(p.tok.Value) {
		next, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		if next.Kind != token.LPAREN {
			name = p.tok.Value
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	bodyNode, err := p.parseCommandNode()
	if err != nil {
		return nil, err
	}
	n := &ast.Coproc{Name: name, Body: bodyNode.Command, Position: pos}
	return &ast.CommandNode{Command: n}, nil
}
