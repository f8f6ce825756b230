// Package escape holds the per-format special character rules used by the
// exporters. Every function is pure and safe for concurrent use.
package escape

import (
	"encoding/base64"
	"strconv"
	"strings"
	"unicode/utf8"
)

// XML escapes the five predefined XML entities. It is used for both text
// nodes and attribute values. Runes that XML 1.0 does not allow at all,
// such as form feeds and other C0 controls, and invalid UTF-8 become
// U+FFFD so the output always parses.
func XML(s string) string {
	if !strings.ContainsAny(s, `&<>"'`) && xmlClean(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			if !isXMLChar(r) {
				r = utf8.RuneError
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func xmlClean(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if !isXMLChar(r) {
			return false
		}
	}
	return true
}

// isXMLChar reports whether r matches the XML 1.0 Char production.
func isXMLChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= utf8.MaxRune:
		return true
	}
	return false
}

// HL7 escapes a field value for an HL7 v2 message using the default
// encoding characters (^~\&):
//
//	\E\ = \  (escape character)
//	\F\ = |  (field separator)
//	\S\ = ^  (component separator)
//	\R\ = ~  (repetition separator)
//	\T\ = &  (subcomponent separator)
//
// Carriage returns and line feeds would terminate the segment, so they are
// folded into spaces.
func HL7(s string) string {
	// backslash first so the escapes below are not escaped again
	s = strings.ReplaceAll(s, `\`, `\E\`)
	s = strings.ReplaceAll(s, "|", `\F\`)
	s = strings.ReplaceAll(s, "^", `\S\`)
	s = strings.ReplaceAll(s, "~", `\R\`)
	s = strings.ReplaceAll(s, "&", `\T\`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

var hl7Unescaper = strings.NewReplacer(
	`\F\`, "|",
	`\S\`, "^",
	`\R\`, "~",
	`\T\`, "&",
	`\E\`, `\`,
)

// UnescapeHL7 reverses HL7 for the five separator escapes.
func UnescapeHL7(s string) string {
	return hl7Unescaper.Replace(s)
}

// RTF escapes text for inclusion in an RTF body. Line breaks become \par
// and characters outside 7-bit ASCII are written as \uN? escapes.
func RTF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var b strings.Builder
	b.Grow(len(s) + 16)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '{':
			b.WriteString(`\{`)
		case r == '}':
			b.WriteString(`\}`)
		case r == '\n' || r == '\r':
			b.WriteString(`\par `)
		case r == '\t':
			b.WriteString(`\tab `)
		case r > 0x7f:
			writeRTFUnicode(&b, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// writeRTFUnicode writes r as one or two signed 16-bit \u control words.
func writeRTFUnicode(b *strings.Builder, r rune) {
	if r > 0xffff {
		r -= 0x10000
		writeRTFUnit(b, 0xd800+(r>>10))
		writeRTFUnit(b, 0xdc00+(r&0x3ff))
		return
	}
	writeRTFUnit(b, r)
}

func writeRTFUnit(b *strings.Builder, u rune) {
	b.WriteString(`\u`)
	b.WriteString(strconv.Itoa(int(int16(uint16(u)))))
	b.WriteByte('?')
}

// RTFBold wraps already escaped text in the bold toggle pair.
func RTFBold(escaped string) string {
	return `\b ` + escaped + `\b0 `
}

// RTFDocument wraps an escaped RTF body in a minimal single-font preamble.
func RTFDocument(body string) string {
	var b strings.Builder
	b.Grow(len(body) + 96)
	b.WriteString(`{\rtf1\ansi\ansicpg1252\deff0{\fonttbl{\f0\fswiss Helvetica;}}`)
	b.WriteString("\n")
	b.WriteString(`\f0\fs22 `)
	b.WriteString(body)
	b.WriteString("}")
	return b.String()
}

// CSVField quotes a single field per RFC 4180, doubling embedded quotes.
// Every field is quoted regardless of content.
func CSVField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// CSVRow joins quoted fields with commas and terminates the record with CRLF.
func CSVRow(fields ...string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = CSVField(f)
	}
	return strings.Join(quoted, ",") + "\r\n"
}

// Base64 encodes s with the standard padded alphabet.
func Base64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
