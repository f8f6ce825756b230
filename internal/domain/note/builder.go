package note

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyNote is returned when the supplied note has no text to parse.
var ErrEmptyNote = errors.New("note: note text is empty")

// Input is everything a caller supplies to build a Document.
type Input struct {
	Text string `json:"noteText" validate:"required_without=HTML"`
	// HTML is used when the upstream produced an HTML rendering of the
	// note instead of markdown-like text. Ignored when Text is set.
	HTML string `json:"noteHtml,omitempty"`
	// StripMarkup removes stray HTML tags from Text before parsing.
	StripMarkup bool `json:"stripMarkup,omitempty"`

	DiagnosticCodes []CodeEntry `json:"diagnosticCodes,omitempty" validate:"dive"`
	ProcedureCodes  []CodeEntry `json:"procedureCodes,omitempty" validate:"dive"`
	MiscCodes       []CodeEntry `json:"miscCodes,omitempty" validate:"dive"`

	Patient     *PatientInfo  `json:"patient,omitempty"`
	Provider    *ProviderInfo `json:"provider,omitempty"`
	EncounterID string        `json:"encounterId,omitempty"`
}

var validate = validator.New()

// Validate checks the structural requirements of the input. Confidence
// values are not range checked here; renderers clamp them.
func (in *Input) Validate() error {
	return validate.Struct(in)
}

// BuilderOption customises a Builder.
type BuilderOption func(*Builder)

// WithClock overrides the time source used for GeneratedAt.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// Builder turns caller input into an immutable Document.
type Builder struct {
	parser   *Parser
	now      func() time.Time
	markdown *converter.Converter
	policy   *bluemonday.Policy
}

// NewBuilder creates a Builder that parses with parser.
func NewBuilder(parser *Parser, opts ...BuilderOption) *Builder {
	b := &Builder{
		parser: parser,
		now:    time.Now,
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		policy: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates in, normalizes the note text, parses it and returns the
// canonical Document. Code lists and metadata are copied so later changes
// to in do not leak into the Document.
func (b *Builder) Build(in Input) (*Document, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("note: invalid input: %w", err)
	}

	text := in.Text
	if text == "" && in.HTML != "" {
		md, err := b.markdown.ConvertString(in.HTML)
		if err != nil {
			return nil, fmt.Errorf("note: convert html: %w", err)
		}
		text = md
	}
	if in.StripMarkup && strings.ContainsRune(text, '<') {
		text = html.UnescapeString(b.policy.Sanitize(text))
	}

	text = Normalize(text)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyNote
	}

	parsed := b.parser.ParseReport(text)

	doc := &Document{
		Text:            text,
		Sections:        parsed.Sections,
		DiagnosticCodes: copyCodes(in.DiagnosticCodes),
		ProcedureCodes:  copyCodes(in.ProcedureCodes),
		MiscCodes:       copyCodes(in.MiscCodes),
		GeneratedAt:     b.now().UTC(),
		WordCount:       CountWords(text),
		EncounterID:     in.EncounterID,
		Fallback:        parsed.Fallback,
	}
	if in.Patient != nil {
		p := *in.Patient
		doc.Patient = &p
	}
	if in.Provider != nil {
		p := *in.Provider
		doc.Provider = &p
	}
	return doc, nil
}

// Normalize converts line endings to \n and composes Unicode to NFC so
// that visually identical notes parse identically.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return norm.NFC.String(text)
}

func copyCodes(codes []CodeEntry) []CodeEntry {
	if len(codes) == 0 {
		return nil
	}
	out := make([]CodeEntry, len(codes))
	copy(out, codes)
	return out
}
