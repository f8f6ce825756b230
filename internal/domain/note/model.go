package note

import (
	"math"
	"time"
)

// CodeSystem identifies which coding system a CodeEntry list belongs to.
type CodeSystem string

const (
	CodeSystemICD10 CodeSystem = "ICD-10"
	CodeSystemCPT   CodeSystem = "CPT"
	CodeSystemHCPCS CodeSystem = "HCPCS"
)

// Label returns the heading used when a code list is rendered for humans.
func (s CodeSystem) Label() string {
	switch s {
	case CodeSystemICD10:
		return "DIAGNOSTIC CODES (ICD-10)"
	case CodeSystemCPT:
		return "PROCEDURE CODES (CPT)"
	case CodeSystemHCPCS:
		return "ADMINISTRATIVE CODES (HCPCS)"
	default:
		return string(s)
	}
}

// URI returns the FHIR coding system URI.
func (s CodeSystem) URI() string {
	switch s {
	case CodeSystemICD10:
		return "http://hl7.org/fhir/sid/icd-10-cm"
	case CodeSystemCPT:
		return "http://www.ama-assn.org/go/cpt"
	case CodeSystemHCPCS:
		return "https://www.cms.gov/Medicare/Coding/HCPCSReleaseCodeSets"
	default:
		return ""
	}
}

// HL7Name returns the HL7 v2 table 0396 coding system mnemonic.
func (s CodeSystem) HL7Name() string {
	switch s {
	case CodeSystemICD10:
		return "I10"
	case CodeSystemCPT:
		return "C4"
	case CodeSystemHCPCS:
		return "HCPCS"
	default:
		return string(s)
	}
}

// CodeEntry is a single suggested code with the upstream model's confidence.
type CodeEntry struct {
	Code        string  `json:"code" validate:"required"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Category    string  `json:"category,omitempty"`
}

// Percent renders Confidence as a whole percentage. Values outside [0,1]
// are clamped first, NaN renders as 0.
func (c CodeEntry) Percent() int {
	return ConfidencePercent(c.Confidence)
}

// ConfidencePercent returns round(clamp(v, 0, 1) * 100).
func ConfidencePercent(v float64) int {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 1:
		return 100
	}
	return int(math.Round(v * 100))
}

// CodeGroup pairs a code list with its coding system.
type CodeGroup struct {
	System CodeSystem
	Codes  []CodeEntry
}

// Section is one labelled block of the note, in source order.
type Section struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// PatientInfo carries optional demographics supplied by the caller.
type PatientInfo struct {
	ID                  string `json:"id,omitempty"`
	Name                string `json:"name,omitempty"`
	DateOfBirth         string `json:"dateOfBirth,omitempty"`
	MedicalRecordNumber string `json:"medicalRecordNumber,omitempty"`
	Age                 int    `json:"age,omitempty"`
	Gender              string `json:"gender,omitempty"`
}

// Identifier returns the MRN when present, otherwise the patient id.
func (p *PatientInfo) Identifier() string {
	if p == nil {
		return ""
	}
	if p.MedicalRecordNumber != "" {
		return p.MedicalRecordNumber
	}
	return p.ID
}

// ProviderInfo carries optional clinician details.
type ProviderInfo struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name,omitempty"`
	NationalProviderID string `json:"nationalProviderId,omitempty"`
}

// Document is the canonical, format-agnostic form of a clinical note.
// A Document is built once per request and must not be modified after
// Build returns; every exporter and the layout engine read it concurrently.
type Document struct {
	Text            string        `json:"text"`
	Sections        []Section     `json:"sections"`
	DiagnosticCodes []CodeEntry   `json:"diagnosticCodes,omitempty"`
	ProcedureCodes  []CodeEntry   `json:"procedureCodes,omitempty"`
	MiscCodes       []CodeEntry   `json:"miscCodes,omitempty"`
	GeneratedAt     time.Time     `json:"generatedAt"`
	WordCount       int           `json:"wordCount"`
	Patient         *PatientInfo  `json:"patient,omitempty"`
	Provider        *ProviderInfo `json:"provider,omitempty"`
	EncounterID     string        `json:"encounterId,omitempty"`
	Fallback        bool          `json:"parseFallback,omitempty"`
}

// CodeGroups returns the three code lists in rendering order
// (diagnostic, procedure, administrative).
func (d *Document) CodeGroups() []CodeGroup {
	return []CodeGroup{
		{System: CodeSystemICD10, Codes: d.DiagnosticCodes},
		{System: CodeSystemCPT, Codes: d.ProcedureCodes},
		{System: CodeSystemHCPCS, Codes: d.MiscCodes},
	}
}

// HasCodes reports whether any of the three code lists is non-empty.
func (d *Document) HasCodes() bool {
	return len(d.DiagnosticCodes)+len(d.ProcedureCodes)+len(d.MiscCodes) > 0
}
