package note

import (
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// FallbackSectionName names the single section produced when a note has no
// recognizable headings.
const FallbackSectionName = "NOTE"

// emphasisMarkers are the paired markers that may wrap a heading line.
var emphasisMarkers = []string{"**", "__"}

// ParseResult is the outcome of parsing a note.
type ParseResult struct {
	Sections []Section
	// Fallback is true when no heading was found and the whole note was
	// returned as a single section.
	Fallback bool
}

// Parser splits note text into labelled sections. It scans line by line:
// a heading line is an emphasis-wrapped run of upper-case words, and the
// body that follows runs until the next heading, a horizontal rule, or the
// end of input. A Parser holds no per-call state and is safe for concurrent use.
type Parser struct {
	logger zerolog.Logger
}

// NewParser creates a Parser that reports fallbacks to logger.
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse returns the sections of text in source order. It never fails; when
// no heading is present the result is a single NOTE section.
func (p *Parser) Parse(text string) []Section {
	return p.ParseReport(text).Sections
}

// ParseReport is Parse plus whether the single-section fallback was used.
func (p *Parser) ParseReport(text string) ParseResult {
	lines := splitLines(text)

	var (
		sections  []Section
		name      string
		body      []string
		inSection bool
	)
	flush := func() {
		if !inSection {
			return
		}
		sections = append(sections, Section{
			Name: name,
			Body: strings.TrimSpace(strings.Join(body, "\n")),
		})
		inSection = false
		body = nil
	}

	for _, line := range lines {
		if heading, ok := headingName(line); ok {
			flush()
			name = heading
			inSection = true
			continue
		}
		if isRule(line) {
			flush()
			continue
		}
		if inSection {
			body = append(body, line)
		}
	}
	flush()

	if len(sections) > 0 {
		return ParseResult{Sections: sections}
	}

	p.logger.Debug().
		Bool("parse_fallback", true).
		Int("lines", len(lines)).
		Msg("no section headings found, using single section")

	return ParseResult{
		Sections: []Section{{Name: FallbackSectionName, Body: fallbackBody(lines)}},
		Fallback: true,
	}
}

// fallbackBody joins every line before the first rule marker with emphasis
// markers removed.
func fallbackBody(lines []string) string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if isRule(line) {
			break
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(StripEmphasis(strings.Join(kept, "\n")))
}

// headingName reports whether line is a section heading and returns its
// name without markers or the trailing colon.
func headingName(line string) (string, bool) {
	s := strings.TrimSpace(line)
	for _, m := range emphasisMarkers {
		if len(s) <= 2*len(m) || !strings.HasPrefix(s, m) {
			continue
		}
		rest := strings.TrimSuffix(s[len(m):], ":")
		if !strings.HasSuffix(rest, m) {
			continue
		}
		inner := strings.TrimSpace(rest[:len(rest)-len(m)])
		inner = strings.TrimSpace(strings.TrimSuffix(inner, ":"))
		if isHeadingText(inner) {
			return inner, true
		}
	}
	return "", false
}

// isHeadingText accepts upper-case words with spaces, digits and a few
// joining punctuation marks. At least one letter is required.
func isHeadingText(s string) bool {
	hasLetter := false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasLetter = true
		case unicode.IsDigit(r), r == ' ', r == '/', r == '&', r == '-':
		default:
			return false
		}
	}
	return hasLetter
}

// isRule reports whether line is a markdown horizontal rule: three or more
// of the same '-', '*' or '_' character, optionally space separated.
func isRule(line string) bool {
	s := strings.ReplaceAll(strings.TrimSpace(line), " ", "")
	if len(s) < 3 {
		return false
	}
	c := s[0]
	if c != '-' && c != '*' && c != '_' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] != c {
			return false
		}
	}
	return true
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// StripEmphasis removes markdown bold markers from s.
func StripEmphasis(s string) string {
	for _, m := range emphasisMarkers {
		s = strings.ReplaceAll(s, m, "")
	}
	return s
}

// CountWords counts whitespace separated tokens that contain at least one
// letter or digit, so rule markers and stray bullets are not counted.
func CountWords(text string) int {
	n := 0
	for _, tok := range strings.Fields(StripEmphasis(text)) {
		for _, r := range tok {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				n++
				break
			}
		}
	}
	return n
}
