package layout

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// Replacement is printed in place of runes the standard fonts cannot show.
const Replacement = '?'

// asciiFallbacks spells out symbols common in clinical text that have no
// WinAnsi code.
var asciiFallbacks = map[rune]string{
	'\t':     " ",
	'≥':      ">=",
	'≤':      "<=",
	'≠':      "!=",
	'≈':      "~",
	'∼':      "~",
	'→':      "->",
	'←':      "<-",
	'↔':      "<->",
	'⇒':      "=>",
	'↑':      "up ",
	'↓':      "down ",
	'−':      "-",
	'‐':      "-",
	'‑':      "-",
	'′':      "'",
	'″':      "\"",
	'⁄':      "/",
	'∆':      "delta ",
	'Δ':      "delta ",
	'α':      "alpha",
	'β':      "beta",
	'γ':      "gamma",
	'μ':      "µ",
	'✓':      "[x]",
	'✔':      "[x]",
	'✗':      "[ ]",
	'☐':      "[ ]",
	'☑':      "[x]",
	'⅓':      "1/3",
	'⅔':      "2/3",
	'℃':      "°C",
	'№':      "No.",
	'\u2009': " ",
	'\u202F': " ",
	'\u200B': "",
	'\uFEFF': "",
}

// winAnsiCode returns the WinAnsi byte for r. Control characters have no
// glyph and report false.
func winAnsiCode(r rune) (byte, bool) {
	if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
		return 0, false
	}
	return charmap.Windows1252.EncodeRune(r)
}

// Encodable rewrites s so that every rune has a WinAnsi glyph. Known
// symbols get an ASCII spelling; anything else becomes Replacement and is
// returned in missing, once per occurrence.
func Encodable(s string) (out string, missing []rune) {
	s = norm.NFC.String(s)
	clean := true
	for _, r := range s {
		if _, ok := winAnsiCode(r); !ok {
			clean = false
			break
		}
	}
	if clean {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if _, ok := winAnsiCode(r); ok {
			b.WriteRune(r)
			continue
		}
		if alt, ok := asciiFallbacks[r]; ok {
			b.WriteString(alt)
			continue
		}
		b.WriteRune(Replacement)
		missing = append(missing, r)
	}
	return b.String(), missing
}
