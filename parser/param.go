package parser

import (
	"fmt"
	"strings"

	"github.com/sandboshell/sandboshell/ast"
	"github.com/sandboshell/sandboshell/token"
)

// parseParamBody parses the content between `${` and `}` into a
// ParameterExpansion, implementing the operator table of spec.md §4.1:
// ${x}, ${x:-w}, ${x:=w}, ${x:?w}, ${x:+w}, ${#x}, ${x:o:l}, ${x#p}/${x##p},
// ${x%p}/${x%%p}, ${x/p/r}/${x//p/r}, ${x^}/${x^^}/${x,}/${x,,},
// ${x@Q|E|P|A|a|K}, ${!x}, ${!x[@]}/${!x[*]}, ${!prefix*}/${!prefix@}.
func (p *Parser) parseParamBody(content string, base token.Pos) (*ast.ParameterExpansion, error) {
	pe := &ast.ParameterExpansion{}
	i := 0

	if strings.HasPrefix(content, "#") && !strings.HasPrefix(content, "#}") && isLengthForm(content) {
		pe.Op = ast.ParamLength
		pe.Parameter = content[1:]
		return pe, nil
	}

	if i < len(content) && content[i] == '!' && len(content) > 1 && !isOperatorStart(content[1]) {
		pe.Excl = true
		i++
	}

	nameStart := i
	if i < len(content) && isSpecialParamByte(content[i]) && !isNameByte(content[i], true) {
		i++
	} else {
		for i < len(content) && isNameByte(content[i], i == nameStart) {
			i++
		}
	}
	pe.Parameter = content[nameStart:i]

	if pe.Excl {
		rest := content[i:]
		if rest == "*" || rest == "@" {
			pe.Op = ast.ParamVarNamePrefix
			pe.Transform = rest[0]
			return pe, nil
		}
		if rest == "[@]" || rest == "[*]" {
			pe.Op = ast.ParamArrayKeys
			pe.Transform = rest[1]
			return pe, nil
		}
		if rest == "" {
			pe.Op = ast.ParamIndirection
			return pe, nil
		}
	}

	if i < len(content) && content[i] == '[' {
		depth := 1
		start := i + 1
		j := start
		for j < len(content) && depth > 0 {
			switch content[j] {
			case '[':
				depth++
			case ']':
				depth--
			}
			j++
		}
		idxSrc := content[start : j-1]
		idxWord, err := p.buildWord(idxSrc, base+token.Pos(start))
		if err != nil {
			return nil, err
		}
		pe.Index = idxWord
		i = j
	}

	if i >= len(content) {
		return pe, nil
	}

	rest := content[i:]
	switch {
	case strings.HasPrefix(rest, ":-"):
		pe.Op, pe.ColonForm = ast.ParamDefaultValue, true
		return p.finishWordOperand(pe, rest[2:], base+token.Pos(i+2))
	case strings.HasPrefix(rest, ":="):
		pe.Op, pe.ColonForm = ast.ParamAssignDefault, true
		return p.finishWordOperand(pe, rest[2:], base+token.Pos(i+2))
	case strings.HasPrefix(rest, ":+"):
		pe.Op, pe.ColonForm = ast.ParamUseAlternative, true
		return p.finishWordOperand(pe, rest[2:], base+token.Pos(i+2))
	case strings.HasPrefix(rest, ":?"):
		pe.Op, pe.ColonForm = ast.ParamErrorIfUnset, true
		return p.finishWordOperand(pe, rest[2:], base+token.Pos(i+2))
	case strings.HasPrefix(rest, "-"):
		pe.Op = ast.ParamDefaultValue
		return p.finishWordOperand(pe, rest[1:], base+token.Pos(i+1))
	case strings.HasPrefix(rest, "="):
		pe.Op = ast.ParamAssignDefault
		return p.finishWordOperand(pe, rest[1:], base+token.Pos(i+1))
	case strings.HasPrefix(rest, "+"):
		pe.Op = ast.ParamUseAlternative
		return p.finishWordOperand(pe, rest[1:], base+token.Pos(i+1))
	case strings.HasPrefix(rest, "?"):
		pe.Op = ast.ParamErrorIfUnset
		return p.finishWordOperand(pe, rest[1:], base+token.Pos(i+1))
	case strings.HasPrefix(rest, ":"):
		pe.Op = ast.ParamSubstring
		return p.parseSubstring(pe, rest[1:], base+token.Pos(i+1))
	case strings.HasPrefix(rest, "##"):
		pe.Op, pe.Side, pe.Greedy = ast.ParamPatternRemoval, ast.RemovePrefix, true
		return p.finishPatternOperand(pe, rest[2:], base+token.Pos(i+2))
	case strings.HasPrefix(rest, "#"):
		pe.Op, pe.Side = ast.ParamPatternRemoval, ast.RemovePrefix
		return p.finishPatternOperand(pe, rest[1:], base+token.Pos(i+1))
	case strings.HasPrefix(rest, "%%"):
		pe.Op, pe.Side, pe.Greedy = ast.ParamPatternRemoval, ast.RemoveSuffix, true
		return p.finishPatternOperand(pe, rest[2:], base+token.Pos(i+2))
	case strings.HasPrefix(rest, "%"):
		pe.Op, pe.Side = ast.ParamPatternRemoval, ast.RemoveSuffix
		return p.finishPatternOperand(pe, rest[1:], base+token.Pos(i+1))
	case strings.HasPrefix(rest, "//"):
		pe.Op, pe.ReplAll = ast.ParamPatternReplacement, true
		return p.parseReplacement(pe, rest[2:], base+token.Pos(i+2))
	case strings.HasPrefix(rest, "/"):
		pe.Op = ast.ParamPatternReplacement
		return p.parseReplacement(pe, rest[1:], base+token.Pos(i+1))
	case strings.HasPrefix(rest, "^^"):
		pe.Op, pe.Case = ast.ParamCaseModification, ast.CaseUpperAll
		return pe, nil
	case strings.HasPrefix(rest, "^"):
		pe.Op, pe.Case = ast.ParamCaseModification, ast.CaseUpperFirst
		return pe, nil
	case strings.HasPrefix(rest, ",,"):
		pe.Op, pe.Case = ast.ParamCaseModification, ast.CaseLowerAll
		return pe, nil
	case strings.HasPrefix(rest, ","):
		pe.Op, pe.Case = ast.ParamCaseModification, ast.CaseLowerFirst
		return pe, nil
	case strings.HasPrefix(rest, "@"):
		if len(rest) < 2 {
			return nil, fmt.Errorf("bad substitution: missing @ operator letter")
		}
		pe.Op = ast.ParamTransform
		pe.Transform = rest[1]
		return pe, nil
	default:
		return nil, fmt.Errorf("bad substitution: %q", content)
	}
}

func isLengthForm(content string) bool {
	if len(content) < 2 {
		return false
	}
	c := content[1]
	return isNameByte(c, true) || isSpecialParamByte(c) || c == '!'
}

func isOperatorStart(c byte) bool {
	switch c {
	case '-', '=', '+', '?', ':', '#', '%', '/', '^', ',', '@':
		return true
	}
	return false
}

func (p *Parser) finishWordOperand(pe *ast.ParameterExpansion, raw string, base token.Pos) (*ast.ParameterExpansion, error) {
	w, err := p.buildWord(raw, base)
	if err != nil {
		return nil, err
	}
	pe.Word = w
	return pe, nil
}

func (p *Parser) finishPatternOperand(pe *ast.ParameterExpansion, raw string, base token.Pos) (*ast.ParameterExpansion, error) {
	w, err := p.buildWord(raw, base)
	if err != nil {
		return nil, err
	}
	pe.Pattern = w
	return pe, nil
}

func (p *Parser) parseSubstring(pe *ast.ParameterExpansion, raw string, base token.Pos) (*ast.ParameterExpansion, error) {
	offSrc, lenSrc, hasLen := splitTopColon(raw)
	off, err := parseArith(p, offSrc, base)
	if err != nil {
		return nil, err
	}
	pe.Offset = off
	if hasLen {
		ln, err := parseArith(p, lenSrc, base+token.Pos(len(offSrc)+1))
		if err != nil {
			return nil, err
		}
		pe.Length = ln
	}
	return pe, nil
}

func splitTopColon(s string) (before, after string, hasAfter bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ':':
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return s, "", false
}

func (p *Parser) parseReplacement(pe *ast.ParameterExpansion, raw string, base token.Pos) (*ast.ParameterExpansion, error) {
	patSrc, replSrc, hasRepl := splitTopSlash(raw)
	anchor := ast.AnchorNone
	if strings.HasPrefix(patSrc, "#") {
		anchor = ast.AnchorStart
		patSrc = patSrc[1:]
	} else if strings.HasPrefix(patSrc, "%") {
		anchor = ast.AnchorEnd
		patSrc = patSrc[1:]
	}
	pat, err := p.buildWord(patSrc, base)
	if err != nil {
		return nil, err
	}
	pe.Pattern = pat
	pe.Anchor = anchor
	if hasRepl {
		repl, err := p.buildWord(replSrc, base+token.Pos(len(patSrc)+1))
		if err != nil {
			return nil, err
		}
		pe.Replace = repl
	}
	return pe, nil
}

func splitTopSlash(s string) (before, after string, hasAfter bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case '\\':
			i++ // an escaped `/` belongs to the pattern
		case '/':
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return s, "", false
}
