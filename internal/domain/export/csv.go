package export

import (
	"strconv"
	"strings"
	"time"

	"github.com/ehr/notexport/internal/domain/note"
	"github.com/ehr/notexport/internal/platform/escape"
)

// CSVHeader is the fixed header row.
var CSVHeader = []string{
	"Timestamp", "Patient_MRN", "Patient_Name", "Provider_Name",
	"Section", "Content", "Code_Summary", "Word_Count",
}

// CSVExporter renders one row per section. Patient, provider and the
// diagnostic code summary repeat on every row.
type CSVExporter struct{}

func (CSVExporter) Format() Format { return FormatCSV }

func (CSVExporter) Export(doc *note.Document, opts Options) (*Result, error) {
	now := opts.now()
	ts := generatedAt(doc, now).UTC().Format(time.RFC3339)

	var mrn, patientName, providerName string
	if p := opts.patient(doc); p != nil {
		mrn, patientName = p.Identifier(), p.Name
	}
	if p := opts.provider(doc); p != nil {
		providerName = p.Name
	}
	summary := CodeSummary(doc.DiagnosticCodes)

	var b strings.Builder
	b.WriteString(escape.CSVRow(CSVHeader...))
	for _, s := range doc.Sections {
		b.WriteString(escape.CSVRow(
			ts, mrn, patientName, providerName,
			s.Name, s.Body, summary,
			strconv.Itoa(note.CountWords(s.Body)),
		))
	}
	return newResult(FormatCSV, []byte(b.String()), now), nil
}

// CodeSummary joins codes as "CODE:description" separated by "; ".
func CodeSummary(codes []note.CodeEntry) string {
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, c.Code+":"+c.Description)
	}
	return strings.Join(parts, "; ")
}
