package expand

import (
	"strconv"
	"strings"

	"github.com/sandboshell/sandboshell/ast"
)

// Braces performs bash brace expansion on a word, per spec.md §4.3. Unlike
// the teacher, which collects raw `{`/`,`/`..`/`}` literals into a
// syntax.BraceExp node in a dedicated post-parse pass (syntax.SplitBraces),
// this interpreter's parser already recognizes `{a,b}` and `{n..m[..s]}`
// shapes inline while building the word's part tree (parser/word.go's
// tryBraceExpansion), producing *ast.BraceExpansion parts directly. Braces
// here only needs to walk those parts and expand them into a word list.
//
// It never errors: a BraceExpansion node only ever exists because the parser
// already validated its shape, so malformed brace text was never turned into
// one in the first place.
func Braces(word *ast.WordNode) []*ast.WordNode {
	idx, be := findBrace(word.Parts)
	if be == nil {
		return []*ast.WordNode{word}
	}
	prefix := word.Parts[:idx]
	suffix := word.Parts[idx+1:]

	var values [][]ast.WordPart
	if len(be.Items) == 1 && be.Items[0].IsRange {
		values = expandRange(be.Items[0])
	} else {
		for _, item := range be.Items {
			for _, w := range Braces(item.Word) {
				values = append(values, w.Parts)
			}
		}
	}

	var out []*ast.WordNode
	for _, v := range values {
		parts := make([]ast.WordPart, 0, len(prefix)+len(v)+len(suffix))
		parts = append(parts, prefix...)
		parts = append(parts, v...)
		parts = append(parts, suffix...)
		out = append(out, Braces(&ast.WordNode{Parts: parts})...)
	}
	return out
}

func findBrace(parts []ast.WordPart) (int, *ast.BraceExpansion) {
	for i, p := range parts {
		if be, ok := p.(*ast.BraceExpansion); ok {
			return i, be
		}
	}
	return -1, nil
}

// expandRange materializes a `{n..m[..s]}` item into its literal sequence,
// handling both numeric (with zero-padding preserved) and single-character
// ranges, per spec.md §4.3's range rules.
func expandRange(item *ast.BraceItem) [][]ast.WordPart {
	from, to := item.RangeFrom, item.RangeTo

	if len(from) == 1 && len(to) == 1 && !isDigitByte(from[0]) && !isDigitByte(to[0]) {
		return expandCharRange(from[0], to[0], item.RangeStep)
	}

	fromN, err1 := strconv.Atoi(from)
	toN, err2 := strconv.Atoi(to)
	if err1 != nil || err2 != nil {
		return [][]ast.WordPart{{&ast.Literal{Value: from}}}
	}
	step := 1
	if item.RangeStep != "" {
		if s, err := strconv.Atoi(item.RangeStep); err == nil && s != 0 {
			step = s
			if step < 0 {
				step = -step
			}
		}
	}
	width := 0
	if strings.HasPrefix(strings.TrimPrefix(from, "-"), "0") && len(strings.TrimPrefix(from, "-")) > 1 {
		width = len(strings.TrimPrefix(from, "-"))
	}
	if strings.HasPrefix(strings.TrimPrefix(to, "-"), "0") && len(strings.TrimPrefix(to, "-")) > 1 {
		if w := len(strings.TrimPrefix(to, "-")); w > width {
			width = w
		}
	}

	var out [][]ast.WordPart
	if fromN <= toN {
		for n := fromN; n <= toN; n += step {
			out = append(out, []ast.WordPart{&ast.Literal{Value: formatRangeNum(n, width)}})
		}
	} else {
		for n := fromN; n >= toN; n -= step {
			out = append(out, []ast.WordPart{&ast.Literal{Value: formatRangeNum(n, width)}})
		}
	}
	return out
}

func formatRangeNum(n, width int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	for len(digits) < width {
		digits = "0" + digits
	}
	if neg {
		return "-" + digits
	}
	return digits
}

func expandCharRange(from, to byte, stepStr string) [][]ast.WordPart {
	step := 1
	if stepStr != "" {
		if s, err := strconv.Atoi(stepStr); err == nil && s != 0 {
			step = s
			if step < 0 {
				step = -step
			}
		}
	}
	var out [][]ast.WordPart
	if from <= to {
		for c := int(from); c <= int(to); c += step {
			out = append(out, []ast.WordPart{&ast.Literal{Value: string(rune(c))}})
		}
	} else {
		for c := int(from); c >= int(to); c -= step {
			out = append(out, []ast.WordPart{&ast.Literal{Value: string(rune(c))}})
		}
	}
	return out
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }
