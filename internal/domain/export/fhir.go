package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/notexport/internal/domain/note"
	"github.com/ehr/notexport/internal/platform/escape"
	"github.com/ehr/notexport/internal/platform/fhir"
)

const noteContentType = "text/plain; charset=utf-8"

// FHIRExporter renders a FHIR R4 DocumentReference with the note text as a
// base64 attachment. Absent patient or provider references are omitted.
type FHIRExporter struct{}

func (FHIRExporter) Format() Format { return FormatFHIR }

func (FHIRExporter) Export(doc *note.Document, opts Options) (*Result, error) {
	now := opts.now()
	created := generatedAt(doc, now).UTC().Format(time.RFC3339)

	ref := fhir.NewDocumentReference(uuid.New().String())
	ref.Date = created
	ref.Description = "Clinical note"

	if p := opts.patient(doc); p != nil {
		ref.Subject = fhir.NewReference("Patient", firstNonEmpty(p.ID, p.MedicalRecordNumber), p.Name)
	}
	if p := opts.provider(doc); p != nil {
		if author := fhir.NewReference("Practitioner", firstNonEmpty(p.ID, p.NationalProviderID), p.Name); author != nil {
			ref.Author = []fhir.Reference{*author}
		}
	}

	ref.Content = []fhir.DocumentReferenceContent{{
		Attachment: fhir.Attachment{
			ContentType: noteContentType,
			Data:        escape.Base64(doc.Text),
			Size:        len(doc.Text),
			Title:       "Clinical Note",
			Creation:    created,
		},
	}}

	encounterID := doc.EncounterID
	if encounterID == "" {
		encounterID = uuid.New().String()
	}
	ref.Context = &fhir.DocumentReferenceContext{
		Encounter: fhir.NewReference("Encounter", encounterID, ""),
		Event:     codeEvents(doc),
	}

	data, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal DocumentReference: %w", err)
	}
	return newResult(FormatFHIR, data, now), nil
}

// codeEvents maps every suggested code to a CodeableConcept carrying the
// confidence percent as an integer extension.
func codeEvents(doc *note.Document) []fhir.CodeableConcept {
	var events []fhir.CodeableConcept
	for _, g := range doc.CodeGroups() {
		for _, c := range g.Codes {
			events = append(events, fhir.CodeableConcept{
				Coding: []fhir.Coding{{
					System:  g.System.URI(),
					Code:    c.Code,
					Display: c.Description,
				}},
				Extension: []fhir.Extension{{
					URL:          fhir.ConfidenceExtensionURL,
					ValueInteger: fhir.IntPtr(c.Percent()),
				}},
			})
		}
	}
	return events
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
