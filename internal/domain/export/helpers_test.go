package export

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ehr/notexport/internal/domain/note"
)

var fixedNow = time.Date(2026, 10, 17, 14, 30, 0, 0, time.UTC)

const soapNote = "**SUBJECTIVE:**\nPatient reports pain.\n\n**PLAN:**\nFollow-up in 1 week."

func buildDoc(t *testing.T, in note.Input) *note.Document {
	t.Helper()
	b := note.NewBuilder(note.NewParser(zerolog.Nop()), note.WithClock(func() time.Time { return fixedNow }))
	doc, err := b.Build(in)
	require.NoError(t, err)
	return doc
}

func pharyngitis() []note.CodeEntry {
	return []note.CodeEntry{{Code: "J02.9", Description: "Acute pharyngitis", Confidence: 0.87}}
}

func testPatient() *note.PatientInfo {
	return &note.PatientInfo{
		ID:                  "p-001",
		Name:                "Jane Doe",
		MedicalRecordNumber: "MRN-42",
		DateOfBirth:         "1980-05-15",
		Age:                 46,
		Gender:              "female",
	}
}

func testProvider() *note.ProviderInfo {
	return &note.ProviderInfo{ID: "pr-7", Name: "Robert Smith", NationalProviderID: "1234567890"}
}

func testOptions() Options {
	return Options{Now: fixedNow}
}
