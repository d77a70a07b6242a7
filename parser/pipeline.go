package parser

import (
	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/token"
)

// parsePipeline parses `[time [-p]] [!] command (| command)*`. It returns
// nil (no error) at a point where no pipeline can start, e.g. immediately at
// an ender like "done" or at EOF, so callers can treat that as "no more
// statements here".
func (p *Parser) parsePipeline() (*ast.Pipeline, error) {
	pos := p.tok.Start
	pl := &ast.Pipeline{Position: pos}

	if p.tok.Kind == token.LITWORD && p.tok.Value == "time" {
		pl.Timed = true
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.Kind == token.LITWORD && p.tok.Value == "-p" {
			pl.TimePosix = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if p.tok.Kind == token.LITWORD && p.tok.Value == "!" {
		pl.Negated = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	if !p.startsCommand() {
		if pl.Timed || pl.Negated {
			return nil, &Error{Msg: "expected a command", Pos: p.tok.Start}
		}
		return nil, nil
	}

	cmd, err := p.parseCommandNode()
	if err != nil {
		return nil, err
	}
	pl.Commands = append(pl.Commands, cmd)

	for p.tok.Kind == token.OR || p.tok.Kind == token.PIPEALL {
		stderr := p.tok.Kind == token.PIPEALL
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		next, err := p.parseCommandNode()
		if err != nil {
			return nil, err
		}
		pl.Commands = append(pl.Commands, next)
		pl.PipeStderr = append(pl.PipeStderr, stderr)
	}
	return pl, nil
}

// startsCommand reports whether the current token can begin a command,
// without consuming it.
func (p *Parser) startsCommand() bool {
	switch p.tok.Kind {
	case token.LITWORD, token.ASSIGNWORD, token.LPAREN, token.DLPAREN, token.DLBRACK, token.NAME:
		return true
	case token.LIT, token.CMDIN, token.CMDOUT:
		return true
	}
	return false
}
