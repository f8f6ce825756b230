package layout

import (
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/font"
)

// Font names one of the two standard Type 1 faces used on the page.
type Font string

const (
	FontRegular Font = "Helvetica"
	FontBold    Font = "Helvetica-Bold"
)

// glyphUnits is the advance width of r in 1/1000 em, read from the same
// core font metrics pdfcpu renders with. Runes without a WinAnsi code are
// measured as Replacement.
func glyphUnits(r rune, f Font) int {
	code, ok := winAnsiCode(r)
	if !ok {
		code = Replacement
	}
	return font.CharWidth(string(f), rune(code))
}

func glyphWidth(r rune, f Font, size float64) float64 {
	return float64(glyphUnits(r, f)) * size / 1000
}

// TextWidth measures s in points.
func TextWidth(s string, f Font, size float64) float64 {
	units := 0
	for _, r := range s {
		units += glyphUnits(r, f)
	}
	return float64(units) * size / 1000
}

// Wrap breaks one paragraph into lines no wider than width. Words wider
// than a full line are split at the last rune that fits. An empty
// paragraph yields no lines.
func Wrap(text string, f Font, size, width float64) []string {
	var (
		lines []string
		cur   string
	)
	space := TextWidth(" ", f, size)
	curWidth := 0.0

	for _, word := range strings.Fields(text) {
		w := TextWidth(word, f, size)
		if cur != "" && curWidth+space+w <= width {
			cur += " " + word
			curWidth += space + w
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
			cur, curWidth = "", 0
		}
		for w > width {
			head, tail := splitAt(word, f, size, width)
			lines = append(lines, head)
			word = tail
			w = TextWidth(word, f, size)
		}
		cur, curWidth = word, w
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// splitAt returns the longest prefix of word that fits width, always at
// least one rune so that wrapping makes progress.
func splitAt(word string, f Font, size, width float64) (string, string) {
	used := 0.0
	for i, r := range word {
		gw := glyphWidth(r, f, size)
		if used+gw > width && i > 0 {
			return word[:i], word[i:]
		}
		used += gw
	}
	_, n := utf8.DecodeRuneInString(word)
	return word[:n], word[n:]
}
