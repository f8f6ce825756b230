package export

import (
	"strings"

	"github.com/ehr/notexport/internal/domain/note"
	"github.com/ehr/notexport/internal/platform/escape"
)

// RTFExporter renders a single-font RTF document for Cerner PowerChart.
// Each section is a bold header paragraph followed by a body paragraph.
type RTFExporter struct{}

func (RTFExporter) Format() Format { return FormatCerner }

func (RTFExporter) Export(doc *note.Document, opts Options) (*Result, error) {
	now := opts.now()
	var b strings.Builder

	para := func(s string) {
		b.WriteString(s)
		b.WriteString(`\par` + "\n")
	}

	para(`\fs28 ` + escape.RTFBold("CLINICAL NOTE") + `\fs22 `)
	para(escape.RTF(opts.facility().OrganizationName))
	para(escape.RTF("Generated: " + generatedAt(doc, now).Format(displayTimestamp)))
	for _, line := range patientLines(opts.patient(doc)) {
		para(escape.RTF(line))
	}
	for _, line := range providerLines(opts.provider(doc)) {
		para(escape.RTF(line))
	}

	for _, s := range doc.Sections {
		para("")
		para(escape.RTFBold(escape.RTF(s.Name)))
		para(escape.RTF(note.StripEmphasis(s.Body)))
	}

	for _, g := range doc.CodeGroups() {
		if len(g.Codes) == 0 {
			continue
		}
		para("")
		para(escape.RTFBold(escape.RTF(g.System.Label())))
		for _, c := range g.Codes {
			para(escape.RTF(codeLine(c, " - ")))
		}
	}

	return newResult(FormatCerner, []byte(escape.RTFDocument(b.String())), now), nil
}
