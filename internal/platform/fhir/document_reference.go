package fhir

const (
	LOINCSystem       = "http://loinc.org"
	ProgressNoteCode  = "11506-3"
	ProgressNoteLabel = "Progress note"

	// ConfidenceExtensionURL marks the confidence percent attached to a
	// suggested code in DocumentReference.context.event.
	ConfidenceExtensionURL = "http://notexport.local/fhir/StructureDefinition/code-confidence"
)

// DocumentReference is the subset of the FHIR DocumentReference resource
// produced for a clinical note. Optional elements are omitted rather than
// serialized as null.
type DocumentReference struct {
	ResourceType string                     `json:"resourceType"`
	ID           string                     `json:"id"`
	Status       string                     `json:"status"`
	DocStatus    string                     `json:"docStatus,omitempty"`
	Type         *CodeableConcept           `json:"type,omitempty"`
	Subject      *Reference                 `json:"subject,omitempty"`
	Date         string                     `json:"date,omitempty"`
	Author       []Reference                `json:"author,omitempty"`
	Custodian    *Reference                 `json:"custodian,omitempty"`
	Description  string                     `json:"description,omitempty"`
	Content      []DocumentReferenceContent `json:"content"`
	Context      *DocumentReferenceContext  `json:"context,omitempty"`
}

type DocumentReferenceContent struct {
	Attachment Attachment `json:"attachment"`
}

// DocumentReferenceContext links the note to its encounter and the clinical
// events (suggested codes) it documents.
type DocumentReferenceContext struct {
	Encounter *Reference        `json:"encounter,omitempty"`
	Event     []CodeableConcept `json:"event,omitempty"`
}

// NewDocumentReference returns a current/final progress note reference with
// the fixed LOINC type coding.
func NewDocumentReference(id string) *DocumentReference {
	return &DocumentReference{
		ResourceType: "DocumentReference",
		ID:           id,
		Status:       "current",
		DocStatus:    "final",
		Type: &CodeableConcept{
			Coding: []Coding{{
				System:  LOINCSystem,
				Code:    ProgressNoteCode,
				Display: ProgressNoteLabel,
			}},
			Text: ProgressNoteLabel,
		},
	}
}
