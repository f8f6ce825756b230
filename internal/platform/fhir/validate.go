package fhir

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/document_reference.schema.json
var documentReferenceSchema string

var documentReferenceLoader = gojsonschema.NewStringLoader(documentReferenceSchema)

// ValidationError lists every schema violation found in a document.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "fhir: DocumentReference failed schema validation: " + strings.Join(e.Issues, "; ")
}

// Outcome converts the validation failure into an OperationOutcome.
func (e *ValidationError) Outcome() *OperationOutcome {
	o := &OperationOutcome{ResourceType: "OperationOutcome"}
	for _, issue := range e.Issues {
		o.AddIssue(IssueSeverityError, IssueTypeStructure, issue)
	}
	return o
}

// ValidateDocumentReference checks raw JSON against the embedded
// DocumentReference schema. A *ValidationError is returned when the
// document is well formed JSON but does not conform.
func ValidateDocumentReference(data []byte) error {
	result, err := gojsonschema.Validate(documentReferenceLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("fhir: validate DocumentReference: %w", err)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{}
	for _, desc := range result.Errors() {
		verr.Issues = append(verr.Issues, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return verr
}
