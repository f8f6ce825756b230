package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/ehr/notexport/internal/domain/note"
)

const (
	headerRule       = "============================================================"
	displayTimestamp = "2006-01-02 15:04 MST"
)

// PlainTextExporter renders the line-oriented text accepted by Epic note
// import. No structural escaping is applied.
type PlainTextExporter struct{}

func (PlainTextExporter) Format() Format { return FormatEpic }

func (PlainTextExporter) Export(doc *note.Document, opts Options) (*Result, error) {
	now := opts.now()
	var b strings.Builder

	b.WriteString("CLINICAL NOTE\n")
	b.WriteString(opts.facility().OrganizationName + "\n")
	fmt.Fprintf(&b, "Generated: %s\n", generatedAt(doc, now).Format(displayTimestamp))
	for _, line := range patientLines(opts.patient(doc)) {
		b.WriteString(line + "\n")
	}
	for _, line := range providerLines(opts.provider(doc)) {
		b.WriteString(line + "\n")
	}
	b.WriteString(headerRule + "\n")

	for _, s := range doc.Sections {
		b.WriteString("\n" + s.Name + ":\n")
		if body := note.StripEmphasis(s.Body); body != "" {
			b.WriteString(body + "\n")
		}
	}

	for _, g := range doc.CodeGroups() {
		if len(g.Codes) == 0 {
			continue
		}
		b.WriteString("\n" + g.System.Label() + ":\n")
		for _, c := range g.Codes {
			b.WriteString(codeLine(c, " - ") + "\n")
		}
	}

	return newResult(FormatEpic, []byte(b.String()), now), nil
}

// generatedAt prefers the document's own timestamp.
func generatedAt(doc *note.Document, now time.Time) time.Time {
	if !doc.GeneratedAt.IsZero() {
		return doc.GeneratedAt
	}
	return now
}

// codeLine renders "CODE<sep>description (NN% confidence)".
func codeLine(c note.CodeEntry, sep string) string {
	line := c.Code
	if c.Description != "" {
		line += sep + c.Description
	}
	return fmt.Sprintf("%s (%d%% confidence)", line, c.Percent())
}

func patientLines(p *note.PatientInfo) []string {
	if p == nil {
		return nil
	}
	var lines []string
	if p.Name != "" {
		lines = append(lines, "Patient: "+p.Name)
	}
	if id := p.Identifier(); id != "" {
		lines = append(lines, "MRN: "+id)
	}
	if p.DateOfBirth != "" {
		lines = append(lines, "DOB: "+p.DateOfBirth)
	}
	var ag []string
	if p.Age > 0 {
		ag = append(ag, fmt.Sprintf("Age: %d", p.Age))
	}
	if p.Gender != "" {
		ag = append(ag, "Gender: "+p.Gender)
	}
	if len(ag) > 0 {
		lines = append(lines, strings.Join(ag, "  "))
	}
	return lines
}

func providerLines(p *note.ProviderInfo) []string {
	if p == nil {
		return nil
	}
	var lines []string
	if p.Name != "" {
		lines = append(lines, "Provider: "+p.Name)
	}
	if p.NationalProviderID != "" {
		lines = append(lines, "NPI: "+p.NationalProviderID)
	}
	return lines
}
