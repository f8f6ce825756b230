package fhir

// Coding is a single code from a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding    []Coding    `json:"coding,omitempty"`
	Text      string      `json:"text,omitempty"`
	Extension []Extension `json:"extension,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Extension struct {
	URL          string `json:"url"`
	ValueString  string `json:"valueString,omitempty"`
	ValueCode    string `json:"valueCode,omitempty"`
	ValueBoolean *bool  `json:"valueBoolean,omitempty"`
	ValueInteger *int   `json:"valueInteger,omitempty"`
}

// Attachment carries inline base64 content.
type Attachment struct {
	ContentType string `json:"contentType,omitempty"`
	Language    string `json:"language,omitempty"`
	Data        string `json:"data,omitempty"`
	Size        int    `json:"size,omitempty"`
	Title       string `json:"title,omitempty"`
	Creation    string `json:"creation,omitempty"`
}

// NewReference builds a relative literal reference such as "Patient/123".
// An empty id yields nil so that the field is omitted.
func NewReference(resourceType, id, display string) *Reference {
	if id == "" {
		return nil
	}
	return &Reference{Reference: resourceType + "/" + id, Display: display}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
