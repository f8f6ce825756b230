package export

import (
	"strings"
)

// Format identifies one of the supported export targets.
type Format string

const (
	FormatEpic   Format = "epic"
	FormatCerner Format = "cerner"
	FormatFHIR   Format = "fhir"
	FormatHL7    Format = "hl7"
	FormatCSV    Format = "csv"
	FormatXML    Format = "xml"
)

type formatInfo struct {
	name      string
	prefix    string
	extension string
	mimeType  string
}

var formatTable = map[Format]formatInfo{
	FormatEpic:   {"Epic (Plain Text)", "clinical_note_epic", "txt", "text/plain"},
	FormatCerner: {"Cerner (RTF)", "clinical_note_cerner", "rtf", "application/rtf"},
	FormatFHIR:   {"FHIR DocumentReference", "fhir_document_reference", "json", "application/fhir+json"},
	FormatHL7:    {"HL7 v2", "hl7_message", "hl7", "application/hl7-v2+er7"},
	FormatCSV:    {"CSV", "clinical_note", "csv", "text/csv"},
	FormatXML:    {"XML", "clinical_note", "xml", "application/xml"},
}

// AllFormats lists every format in presentation order.
var AllFormats = []Format{FormatEpic, FormatCerner, FormatFHIR, FormatHL7, FormatCSV, FormatXML}

// Name returns the display name, e.g. "Cerner (RTF)".
func (f Format) Name() string { return formatTable[f].name }

// Extension returns the filename extension without the dot.
func (f Format) Extension() string { return formatTable[f].extension }

// MimeType returns the Content-Type sent with documents of this format,
// or "" when f is not a known format.
func (f Format) MimeType() string { return formatTable[f].mimeType }

func (f Format) prefix() string { return formatTable[f].prefix }

// Valid reports whether f is a known format key.
func (f Format) Valid() bool {
	_, ok := formatTable[f]
	return ok
}

// ParseFormat resolves a format key or display name, ignoring case and
// surrounding space. Unknown names yield *UnsupportedFormatError.
func ParseFormat(name string) (Format, error) {
	s := strings.TrimSpace(name)
	for _, f := range AllFormats {
		if strings.EqualFold(s, string(f)) || strings.EqualFold(s, f.Name()) {
			return f, nil
		}
	}
	return "", &UnsupportedFormatError{Name: name}
}

// UnsupportedFormatError is returned when a caller asks for a format that
// is not registered. It is never retried.
type UnsupportedFormatError struct {
	Name string
}

func (e *UnsupportedFormatError) Error() string {
	return "Unsupported format: " + e.Name
}

// FormatInfo is the listing form of a Format.
type FormatInfo struct {
	Key       Format `json:"key"`
	Name      string `json:"name"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
}
