package lexer

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/sandboshell/sandboshell/token"
)

func collect(t *testing.T, src string) []Token {
	t.Helper()
	l := New([]byte(src))
	var toks []Token
	for {
		tok, err := l.Next()
		qt.Assert(t, err, qt.IsNil)
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

func kinds(toks []Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, tok := range toks {
		out[i] = tok.Kind
	}
	return out
}

func TestSimpleCommand(t *testing.T) {
	c := qt.New(t)
	toks := collect(t, "echo hello world\n")
	c.Assert(kinds(toks), qt.DeepEquals, []token.Kind{
		token.LITWORD, token.LITWORD, token.LITWORD, token.NEWL, token.EOF,
	})
	c.Check(toks[0].Value, qt.Equals, "echo")
	c.Check(toks[0].Spaced, qt.IsTrue) // start-of-input counts as spaced
	c.Check(toks[1].Spaced, qt.IsTrue)
}

func TestAssignmentDetection(t *testing.T) {
	c := qt.New(t)
	toks := collect(t, `x=1 y+=2 "z"=3 a[0]=v`)
	c.Assert(toks[0].Kind, qt.Equals, token.ASSIGNWORD)
	c.Assert(toks[1].Kind, qt.Equals, token.ASSIGNWORD)
	c.Assert(toks[2].Kind, qt.Equals, token.LITWORD) // quoted prefix is never an assignment
	c.Assert(toks[3].Kind, qt.Equals, token.ASSIGNWORD)
}

func TestQuotingPreservesWordBoundaries(t *testing.T) {
	c := qt.New(t)
	toks := collect(t, `echo "a b" 'c;d' $'e\nf'`)
	c.Assert(kinds(toks)[:4], qt.DeepEquals, []token.Kind{
		token.LITWORD, token.LITWORD, token.LITWORD, token.LITWORD,
	})
	c.Check(toks[1].Value, qt.Equals, `"a b"`)
	c.Check(toks[2].Value, qt.Equals, `'c;d'`)
	c.Check(toks[2].SingleQuoted, qt.IsTrue)
	c.Check(toks[3].Value, qt.Equals, `$'e\nf'`)
}

func TestNestedCommandSubstitution(t *testing.T) {
	c := qt.New(t)
	toks := collect(t, `echo "$(cat $(ls))"`)
	c.Check(toks[1].Value, qt.Equals, `"$(cat $(ls))"`)
}

func TestParameterExpansionBraceBalance(t *testing.T) {
	c := qt.New(t)
	toks := collect(t, `echo ${x:-${y}}`)
	c.Check(toks[1].Value, qt.Equals, `${x:-${y}}`)
}

func TestArithmeticCommandVsSubshell(t *testing.T) {
	c := qt.New(t)
	toks := collect(t, "((x+=1))")
	c.Assert(toks[0].Kind, qt.Equals, token.DLPAREN)
	c.Assert(toks[len(toks)-2].Kind, qt.Equals, token.DRPAREN)
}

func TestOperatorsAndRedirection(t *testing.T) {
	c := qt.New(t)
	toks := collect(t, "a && b || c | d |& e &> f 2>&1 <<<here")
	var found []token.Kind
	for _, tk := range toks {
		found = append(found, tk.Kind)
	}
	c.Check(found, qt.Contains, token.LAND)
	c.Check(found, qt.Contains, token.LOR)
	c.Check(found, qt.Contains, token.OR)
	c.Check(found, qt.Contains, token.PIPEALL)
	c.Check(found, qt.Contains, token.RDRALL)
	c.Check(found, qt.Contains, token.WHEREDOC)
}

func TestHeredocBodyCollection(t *testing.T) {
	c := qt.New(t)
	l := New([]byte("cat <<EOF\nhello\nworld\nEOF\necho done\n"))
	var toks []Token
	for {
		tok, err := l.Next()
		c.Assert(err, qt.IsNil)
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	body, ok := l.NextHeredoc()
	c.Assert(ok, qt.IsTrue)
	c.Check(body.Body, qt.Equals, "hello\nworld\n")
	c.Check(body.Quoted, qt.IsFalse)

	_, ok = l.NextHeredoc()
	c.Check(ok, qt.IsFalse)

	lastWords := kinds(toks)
	c.Check(lastWords[len(lastWords)-3], qt.Equals, token.LITWORD) // "done", after the heredoc body is skipped
}

func TestFDVariableRedirect(t *testing.T) {
	c := qt.New(t)
	toks := collect(t, "exec {fd}>out.txt")
	c.Assert(toks[1].Kind, qt.Equals, token.NAME)
	c.Check(toks[1].Value, qt.Equals, "fd")
	c.Assert(toks[2].Kind, qt.Equals, token.GTR)
}

func TestExtglobGroupStaysOneWord(t *testing.T) {
	c := qt.New(t)
	toks := collect(t, "ls !(*.go|*.md)")
	c.Assert(toks[1].Kind, qt.Equals, token.LITWORD)
	c.Check(toks[1].Value, qt.Equals, "!(*.go|*.md)")
}

func TestCommentOnlyAtWordStart(t *testing.T) {
	c := qt.New(t)
	toks := collect(t, "echo foo#bar # a real comment\n")
	c.Assert(toks[1].Value, qt.Equals, "foo#bar")
	c.Assert(toks[2].Kind, qt.Equals, token.NEWL)
}
