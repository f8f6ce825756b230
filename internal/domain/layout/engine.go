package layout

import (
	"fmt"
	"strings"
	"time"

	"github.com/ehr/notexport/internal/domain/note"
)

// Line kinds, used by renderers and tests to tell blocks apart.
const (
	KindTitle      = "title"
	KindLetterhead = "letterhead"
	KindPatient    = "patient"
	KindHeader     = "header"
	KindBody       = "body"
	KindCode       = "code"
	KindFooter     = "footer"
	KindPageNumber = "page-number"
)

// Line is one positioned run of text. Y is the baseline measured from the
// top edge of the page.
type Line struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Font Font    `json:"font"`
	Size float64 `json:"size"`
	Kind string  `json:"kind"`
}

type Page struct {
	Number int    `json:"number"`
	Lines  []Line `json:"lines"`
}

// Document is a finished, paginated note ready for rendering.
// Unsupported lists, as U+XXXX, the runes that were printed as
// Replacement because the standard fonts have no glyph for them.
type Document struct {
	Width       float64  `json:"width"`
	Height      float64  `json:"height"`
	Pages       []Page   `json:"pages"`
	Unsupported []string `json:"unsupported,omitempty"`
}

// Options are per-call inputs. Patient and Provider override the ones on
// the note. A zero Now means time.Now.
type Options struct {
	Patient  *note.PatientInfo
	Provider *note.ProviderInfo
	Now      time.Time
}

// Engine lays out notes on pages described by a Profile. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	profile Profile
}

// NewEngine validates p and returns an Engine using it.
func NewEngine(p Profile) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Engine{profile: p}, nil
}

// Profile returns the engine's page profile.
func (e *Engine) Profile() Profile { return e.profile }

// Layout flows doc onto as many pages as needed. A write that would cross
// the bottom margin continues at the top of a new page; nothing is
// truncated.
func (e *Engine) Layout(doc *note.Document, opts Options) (*Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("layout: document is required")
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	patient, provider := opts.Patient, opts.Provider
	if patient == nil {
		patient = doc.Patient
	}
	if provider == nil {
		provider = doc.Provider
	}

	f := newFlow(e.profile)
	f.letterhead()
	f.people(patient, provider, generated(doc, now))

	for _, s := range doc.Sections {
		f.gap(f.p.BodySize * 0.6)
		f.text(s.Name, FontBold, f.p.HeaderSize, 0, KindHeader)
		f.paragraphs(note.StripEmphasis(s.Body), FontRegular, f.p.BodySize, 0, KindBody)
	}

	for _, g := range doc.CodeGroups() {
		if len(g.Codes) == 0 {
			continue
		}
		f.gap(f.p.BodySize * 0.6)
		f.text(g.System.Label(), FontBold, f.p.HeaderSize, 0, KindHeader)
		for _, c := range g.Codes {
			f.text(CodeLine(c), FontRegular, f.p.BodySize, f.p.CodeIndent, KindCode)
		}
	}

	f.gap(f.p.BodySize)
	f.paragraphs(f.p.Disclaimer, FontRegular, f.p.SmallSize, 0, KindFooter)
	f.text("Generated: "+generated(doc, now).Format("January 2, 2006 3:04 PM MST"),
		FontRegular, f.p.SmallSize, 0, KindFooter)

	out := &Document{
		Width:       e.profile.PageWidth,
		Height:      e.profile.PageHeight,
		Pages:       f.pages,
		Unsupported: f.unsupported,
	}
	stampPageNumbers(out, e.profile)
	return out, nil
}

// CodeLine renders "CODE — description (NN% confidence)".
func CodeLine(c note.CodeEntry) string {
	line := c.Code
	if c.Description != "" {
		line += " — " + c.Description
	}
	return fmt.Sprintf("%s (%d%% confidence)", line, c.Percent())
}

func generated(doc *note.Document, now time.Time) time.Time {
	if !doc.GeneratedAt.IsZero() {
		return doc.GeneratedAt
	}
	return now
}

// stampPageNumbers adds the footer page number to every page, centred in
// the bottom margin.
func stampPageNumbers(doc *Document, p Profile) {
	total := len(doc.Pages)
	for i := range doc.Pages {
		text := fmt.Sprintf("Page %d of %d", i+1, total)
		if p.PageNumbers == PageNumbersLiteral {
			text = "Page 1"
		}
		w := TextWidth(text, FontRegular, p.SmallSize)
		doc.Pages[i].Lines = append(doc.Pages[i].Lines, Line{
			Text: text,
			X:    (p.PageWidth - w) / 2,
			Y:    p.PageHeight - p.MarginBottom/2 + p.SmallSize/2,
			Font: FontRegular,
			Size: p.SmallSize,
			Kind: KindPageNumber,
		})
	}
}

// flow is the cursor state of a single Layout call.
type flow struct {
	p           Profile
	pages       []Page
	y           float64 // top of the next line
	unsupported []string
	seen        map[rune]bool
}

func newFlow(p Profile) *flow {
	return &flow{p: p, pages: []Page{{Number: 1}}, y: p.MarginTop, seen: make(map[rune]bool)}
}

// encode makes s printable with the standard fonts before it is measured.
func (f *flow) encode(s string) string {
	out, missing := Encodable(s)
	for _, r := range missing {
		if !f.seen[r] {
			f.seen[r] = true
			f.unsupported = append(f.unsupported, fmt.Sprintf("%U", r))
		}
	}
	return out
}

func (f *flow) newPage() {
	f.pages = append(f.pages, Page{Number: len(f.pages) + 1})
	f.y = f.p.MarginTop
}

// reserve makes room for a line of height h, breaking the page first when
// the line would cross the bottom threshold. A line at the top of an empty
// page is always placed.
func (f *flow) reserve(h float64) {
	if f.y+h > f.p.bottom() && f.y > f.p.MarginTop {
		f.newPage()
	}
}

func (f *flow) place(text string, x float64, font Font, size float64, kind string) {
	cur := &f.pages[len(f.pages)-1]
	cur.Lines = append(cur.Lines, Line{
		Text: text,
		X:    x,
		Y:    f.y + size,
		Font: font,
		Size: size,
		Kind: kind,
	})
}

// text wraps s and writes every resulting line.
func (f *flow) text(s string, font Font, size, indent float64, kind string) {
	h := f.p.lineHeight(size)
	for _, line := range Wrap(f.encode(s), font, size, f.p.UsableWidth()-indent) {
		f.reserve(h)
		f.place(line, f.p.MarginLeft+indent, font, size, kind)
		f.y += h
	}
}

// paragraphs writes multi-line text, keeping blank lines as paragraph gaps.
func (f *flow) paragraphs(s string, font Font, size, indent float64, kind string) {
	for _, para := range strings.Split(s, "\n") {
		if strings.TrimSpace(para) == "" {
			f.gap(f.p.lineHeight(size) / 2)
			continue
		}
		f.text(para, font, size, indent, kind)
	}
}

// gap advances the cursor. A gap never starts a new page by itself; the
// next line does that if needed.
func (f *flow) gap(h float64) {
	if f.y == f.p.MarginTop {
		return
	}
	f.y += h
}

// centered writes a single centred line, wrapping when it is too wide.
func (f *flow) centered(s string, font Font, size float64, kind string) {
	h := f.p.lineHeight(size)
	for _, line := range Wrap(f.encode(s), font, size, f.p.UsableWidth()) {
		f.reserve(h)
		x := f.p.MarginLeft + (f.p.UsableWidth()-TextWidth(line, font, size))/2
		f.place(line, x, font, size, kind)
		f.y += h
	}
}

func (f *flow) letterhead() {
	lh := f.p.Letterhead
	if lh.Title != "" {
		f.centered(lh.Title, FontBold, f.p.TitleSize, KindTitle)
	}
	if lh.Subtitle != "" {
		f.centered(lh.Subtitle, FontRegular, f.p.BodySize, KindLetterhead)
	}
	for _, l := range lh.Lines {
		f.centered(l, FontRegular, f.p.SmallSize, KindLetterhead)
	}
	f.gap(f.p.BodySize)
}

// people writes the patient and provider block in two columns.
func (f *flow) people(patient *note.PatientInfo, provider *note.ProviderInfo, at time.Time) {
	var left, right []string
	if patient != nil {
		if patient.Name != "" {
			left = append(left, "Patient: "+patient.Name)
		}
		if id := patient.Identifier(); id != "" {
			left = append(left, "MRN: "+id)
		}
		if patient.DateOfBirth != "" {
			right = append(right, "DOB: "+patient.DateOfBirth)
		}
		var ag []string
		if patient.Age > 0 {
			ag = append(ag, fmt.Sprintf("Age: %d", patient.Age))
		}
		if patient.Gender != "" {
			ag = append(ag, "Gender: "+patient.Gender)
		}
		if len(ag) > 0 {
			right = append(right, strings.Join(ag, "   "))
		}
	}
	if provider != nil {
		if provider.Name != "" {
			left = append(left, "Provider: "+provider.Name)
		}
		if provider.NationalProviderID != "" {
			right = append(right, "NPI: "+provider.NationalProviderID)
		}
	}
	if len(left) == 0 && len(right) == 0 {
		return
	}
	right = append(right, "Date: "+at.Format("January 2, 2006"))
	f.columns(left, right, FontRegular, f.p.BodySize, KindPatient)
}

// columns writes two independent columns row by row.
func (f *flow) columns(left, right []string, font Font, size float64, kind string) {
	colWidth := f.p.UsableWidth() / 2
	wrapAll := func(items []string) []string {
		var out []string
		for _, it := range items {
			out = append(out, Wrap(f.encode(it), font, size, colWidth-6)...)
		}
		return out
	}
	l, r := wrapAll(left), wrapAll(right)
	h := f.p.lineHeight(size)
	for i := 0; i < max(len(l), len(r)); i++ {
		f.reserve(h)
		if i < len(l) {
			f.place(l[i], f.p.MarginLeft, font, size, kind)
		}
		if i < len(r) {
			f.place(r[i], f.p.MarginLeft+colWidth, font, size, kind)
		}
		f.y += h
	}
}
