package pattern

import (
	"regexp"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestRegexpBasic(t *testing.T) {
	c := qt.New(t)
	cases := []struct {
		pat, s string
		want   bool
	}{
		{"foo*bar", "foobazbar", true},
		{"foo*bar", "foobaz", false},
		{"fo?", "foo", true},
		{"fo?", "fooo", false},
		{"[abc]x", "bx", true},
		{"[^abc]x", "dx", true},
		{"[[:digit:]]", "5", true},
		{"[[:digit:]]", "a", false},
	}
	for _, tc := range cases {
		src, err := Regexp(tc.pat, EntireString)
		c.Assert(err, qt.IsNil)
		re, err := regexp.Compile(src)
		c.Assert(err, qt.IsNil)
		c.Check(re.MatchString(tc.s), qt.Equals, tc.want, qt.Commentf("pattern %q vs %q", tc.pat, tc.s))
	}
}

func TestRegexpExtGlob(t *testing.T) {
	c := qt.New(t)
	src, err := Regexp("@(foo|bar)", EntireString|ExtGlob)
	c.Assert(err, qt.IsNil)
	re := regexp.MustCompile(src)
	c.Check(re.MatchString("foo"), qt.IsTrue)
	c.Check(re.MatchString("bar"), qt.IsTrue)
	c.Check(re.MatchString("baz"), qt.IsFalse)

	src, err = Regexp("+(ab)", EntireString|ExtGlob)
	c.Assert(err, qt.IsNil)
	re = regexp.MustCompile(src)
	c.Check(re.MatchString("ababab"), qt.IsTrue)
	c.Check(re.MatchString(""), qt.IsFalse)
}

func TestGlobStar(t *testing.T) {
	c := qt.New(t)
	src, err := Regexp("a/**/b", EntireString|Filenames)
	c.Assert(err, qt.IsNil)
	re := regexp.MustCompile(src)
	c.Check(re.MatchString("a/b"), qt.IsTrue)
	c.Check(re.MatchString("a/x/y/b"), qt.IsTrue)

	src, err = Regexp("a/*/b", EntireString|Filenames)
	c.Assert(err, qt.IsNil)
	re = regexp.MustCompile(src)
	c.Check(re.MatchString("a/x/y/b"), qt.IsFalse)
}

func TestHasMetaQuoteMeta(t *testing.T) {
	c := qt.New(t)
	c.Check(HasMeta(`foo\*bar`, 0), qt.IsFalse)
	c.Check(HasMeta(`foo*bar`, 0), qt.IsTrue)
	c.Check(QuoteMeta(`foo*bar?`), qt.Equals, `foo\*bar\?`)
}
