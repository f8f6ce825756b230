package export

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/notexport/internal/domain/note"
	"github.com/ehr/notexport/internal/platform/fhir"
	"github.com/ehr/notexport/internal/platform/hl7v2"
)

type xmlNote struct {
	XMLName  xml.Name `xml:"ClinicalNote"`
	Metadata struct {
		DocumentID   string `xml:"documentId"`
		WordCount    int    `xml:"wordCount"`
		SectionCount int    `xml:"sectionCount"`
		Format       string `xml:"format"`
	} `xml:"metadata"`
	Patient *struct {
		Name string `xml:"name"`
		MRN  string `xml:"mrn"`
	} `xml:"patient"`
	Provider *struct {
		NPI string `xml:"npi"`
	} `xml:"provider"`
	Sections []struct {
		Name string `xml:"name,attr"`
		Body string `xml:",chardata"`
	} `xml:"content>section"`
	Codes *struct {
		Diagnostic []xmlCode `xml:"diagnostic>code"`
		Procedure  []xmlCode `xml:"procedure>code"`
	} `xml:"codes"`
}

type xmlCode struct {
	Value      string `xml:"value,attr"`
	Confidence int    `xml:"confidence,attr"`
	Category   string `xml:"category,attr"`
	Text       string `xml:",chardata"`
}

func decodeXML(t *testing.T, data []byte) xmlNote {
	t.Helper()
	var out xmlNote
	require.NoError(t, xml.Unmarshal(data, &out))
	return out
}

func TestXMLExporter_SOAPScenario(t *testing.T) {
	doc := buildDoc(t, note.Input{Text: soapNote})

	res, err := XMLExporter{}.Export(doc, testOptions())
	require.NoError(t, err)

	got := decodeXML(t, res.Content)
	require.Len(t, got.Sections, 2)
	assert.Equal(t, "SUBJECTIVE", got.Sections[0].Name)
	assert.Equal(t, "PLAN", got.Sections[1].Name)
	assert.Equal(t, "Patient reports pain.", got.Sections[0].Body)
	assert.Equal(t, 2, got.Metadata.SectionCount)
	assert.Equal(t, "sectioned", got.Metadata.Format)
	assert.Nil(t, got.Patient)
	assert.Nil(t, got.Provider)
	assert.Nil(t, got.Codes, "codes block must be absent without codes")
	assert.True(t, bytes.HasPrefix(res.Content, []byte(`<?xml version="1.0" encoding="UTF-8"?>`)))
	assert.Equal(t, "application/xml", res.MimeType)
	assert.Equal(t, "clinical_note_1792247400000.xml", res.Filename)
}

func TestXMLExporter_RoundTripsSpecialCharacters(t *testing.T) {
	body := `BP < 120 & HR > 60, "stable" isn't worsening`
	doc := buildDoc(t, note.Input{
		Text:            "**ASSESSMENT:**\n" + body,
		DiagnosticCodes: []note.CodeEntry{{Code: "I10", Description: `Essential "primary" <hypertension> & more`, Confidence: 0.5, Category: "a&b"}},
		Patient:         &note.PatientInfo{Name: "O'Brien & Sons"},
	})

	res, err := XMLExporter{}.Export(doc, testOptions())
	require.NoError(t, err)

	got := decodeXML(t, res.Content)
	require.Len(t, got.Sections, 1)
	assert.Equal(t, body, got.Sections[0].Body)
	require.NotNil(t, got.Patient)
	assert.Equal(t, "O'Brien & Sons", got.Patient.Name)
	require.NotNil(t, got.Codes)
	require.Len(t, got.Codes.Diagnostic, 1)
	assert.Equal(t, `Essential "primary" <hypertension> & more`, got.Codes.Diagnostic[0].Text)
	assert.Equal(t, "a&b", got.Codes.Diagnostic[0].Category)
	assert.Contains(t, string(res.Content), "&apos;")
}

func TestXMLExporter_ControlCharactersStillParse(t *testing.T) {
	doc := buildDoc(t, note.Input{
		Text:            "**OBJECTIVE:**\nVitals stable\fpage two\x01 afebrile",
		DiagnosticCodes: []note.CodeEntry{{Code: "R50.9", Description: "Fever\x01", Confidence: 0.4}},
		Patient:         &note.PatientInfo{Name: "Jane\x1bDoe"},
	})

	res, err := XMLExporter{}.Export(doc, testOptions())
	require.NoError(t, err)

	got := decodeXML(t, res.Content)
	require.Len(t, got.Sections, 1)
	assert.Equal(t, "Vitals stable\uFFFDpage two\uFFFD afebrile", got.Sections[0].Body)
	require.NotNil(t, got.Patient)
	assert.Equal(t, "Jane\uFFFDDoe", got.Patient.Name)
	require.NotNil(t, got.Codes)
	assert.Equal(t, "Fever\uFFFD", got.Codes.Diagnostic[0].Text)
}

func TestXMLExporter_CodesAndPeople(t *testing.T) {
	doc := buildDoc(t, note.Input{
		Text:            soapNote,
		DiagnosticCodes: pharyngitis(),
		ProcedureCodes:  []note.CodeEntry{{Code: "99213", Description: "Office visit", Confidence: 0.92}},
	})
	opts := testOptions()
	opts.Patient = testPatient()
	opts.Provider = testProvider()

	res, err := XMLExporter{}.Export(doc, opts)
	require.NoError(t, err)
	got := decodeXML(t, res.Content)

	require.NotNil(t, got.Patient)
	assert.Equal(t, "MRN-42", got.Patient.MRN)
	require.NotNil(t, got.Provider)
	assert.Equal(t, "1234567890", got.Provider.NPI)
	require.NotNil(t, got.Codes)
	assert.Equal(t, []xmlCode{{Value: "J02.9", Confidence: 87, Text: "Acute pharyngitis"}}, got.Codes.Diagnostic)
	assert.Equal(t, 92, got.Codes.Procedure[0].Confidence)
	assert.NotContains(t, string(res.Content), "<administrative")
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	r := csv.NewReader(bytes.NewReader(data))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVExporter_RowsAndSummary(t *testing.T) {
	doc := buildDoc(t, note.Input{
		Text:            soapNote,
		DiagnosticCodes: append(pharyngitis(), note.CodeEntry{Code: "R50.9", Description: "Fever", Confidence: 0.4}),
	})
	opts := testOptions()
	opts.Patient = testPatient()
	opts.Provider = testProvider()

	res, err := CSVExporter{}.Export(doc, opts)
	require.NoError(t, err)

	rows := readCSV(t, res.Content)
	require.Len(t, rows, len(doc.Sections)+1)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{
		"2026-10-17T14:30:00Z", "MRN-42", "Jane Doe", "Robert Smith",
		"SUBJECTIVE", "Patient reports pain.", "J02.9:Acute pharyngitis; R50.9:Fever", "3",
	}, rows[1])
	assert.Equal(t, "PLAN", rows[2][4])
	assert.True(t, strings.HasSuffix(string(res.Content), "\r\n"))
	assert.True(t, strings.HasPrefix(string(res.Content), `"Timestamp","Patient_MRN"`))
}

func TestCSVExporter_PharyngitisScenario(t *testing.T) {
	doc := buildDoc(t, note.Input{Text: "**ASSESSMENT:**\nSore throat.", DiagnosticCodes: pharyngitis()})
	res, err := CSVExporter{}.Export(doc, testOptions())
	require.NoError(t, err)

	rows := readCSV(t, res.Content)
	require.Len(t, rows, 2)
	assert.Equal(t, "J02.9:Acute pharyngitis", rows[1][6])
}

func TestCSVExporter_QuotesAreDoubled(t *testing.T) {
	doc := buildDoc(t, note.Input{Text: "**PLAN:**\nPatient said \"call me\", twice\nsecond line"})
	res, err := CSVExporter{}.Export(doc, testOptions())
	require.NoError(t, err)

	assert.Contains(t, string(res.Content), `"Patient said ""call me"", twice`)
	rows := readCSV(t, res.Content)
	require.Len(t, rows, 2)
	assert.Equal(t, "Patient said \"call me\", twice\nsecond line", rows[1][5])
}

func TestHL7Exporter_PipeEscaping(t *testing.T) {
	doc := buildDoc(t, note.Input{Text: "**OBJECTIVE:**\nBP 120|80 | HR 72"})
	res, err := HL7Exporter{}.Export(doc, testOptions())
	require.NoError(t, err)

	msg, err := hl7v2.Parse(res.Content)
	require.NoError(t, err)
	obx := msg.SegmentsByName("OBX")
	require.Len(t, obx, 2)
	assert.Equal(t, `BP 120\F\80 \F\ HR 72`, obx[1].Field(5))
	assert.Equal(t, "2", obx[1].Field(1))
	assert.Equal(t, "BP 120|80 | HR 72", obx[1].Value(5))
	assert.Equal(t, "hl7_message_1792247400000.hl7", res.Filename)
	assert.Equal(t, "application/hl7-v2+er7", res.MimeType)
}

func TestHL7Exporter_SegmentsAndFacility(t *testing.T) {
	doc := buildDoc(t, note.Input{Text: soapNote, DiagnosticCodes: pharyngitis()})
	opts := testOptions()
	opts.Patient = testPatient()
	opts.Provider = testProvider()
	opts.Facility = Facility{SendingApp: "SCRIBE", SendingFacility: "NORTH"}

	res, err := HL7Exporter{}.Export(doc, opts)
	require.NoError(t, err)
	s := string(res.Content)
	assert.NotContains(t, s, "\n")
	assert.True(t, strings.HasPrefix(s, `MSH|^~\&|SCRIBE|NORTH|EHR|FACILITY|20261017143000||ORU^R01|`))

	msg, err := hl7v2.Parse(res.Content)
	require.NoError(t, err)
	names := make([]string, 0, len(msg.Segments))
	for _, seg := range msg.Segments {
		names = append(names, seg.Name)
	}
	assert.Equal(t, []string{"MSH", "PID", "PV1", "OBX", "OBX", "OBX", "OBX", "DG1"}, names)
	for i, obx := range msg.SegmentsByName("OBX") {
		assert.Equal(t, strconv.Itoa(i+1), obx.Field(1))
	}
	pid, _ := msg.FirstSegment("PID")
	assert.Equal(t, "MRN-42", pid.Field(3))
	dg1, _ := msg.FirstSegment("DG1")
	assert.Equal(t, "J02.9", dg1.Component(3, 1))
}

func TestHL7Exporter_NoPatientNoProvider(t *testing.T) {
	doc := buildDoc(t, note.Input{Text: soapNote})
	res, err := HL7Exporter{}.Export(doc, testOptions())
	require.NoError(t, err)
	assert.NotContains(t, string(res.Content), "PID|")
	assert.NotContains(t, string(res.Content), "PV1|")
}

func TestFHIRExporter_Document(t *testing.T) {
	doc := buildDoc(t, note.Input{
		Text:            soapNote,
		DiagnosticCodes: pharyngitis(),
		EncounterID:     "enc-55",
	})
	opts := testOptions()
	opts.Patient = testPatient()
	opts.Provider = testProvider()

	res, err := FHIRExporter{}.Export(doc, opts)
	require.NoError(t, err)
	require.NoError(t, fhir.ValidateDocumentReference(res.Content))

	var ref fhir.DocumentReference
	require.NoError(t, json.Unmarshal(res.Content, &ref))
	assert.Equal(t, "DocumentReference", ref.ResourceType)
	assert.Equal(t, "current", ref.Status)
	assert.Equal(t, "http://loinc.org", ref.Type.Coding[0].System)
	assert.Equal(t, "11506-3", ref.Type.Coding[0].Code)
	assert.Equal(t, "Progress note", ref.Type.Coding[0].Display)
	require.NotNil(t, ref.Subject)
	assert.Equal(t, "Patient/p-001", ref.Subject.Reference)
	require.Len(t, ref.Author, 1)
	assert.Equal(t, "Practitioner/pr-7", ref.Author[0].Reference)
	assert.Equal(t, "2026-10-17T14:30:00Z", ref.Date)

	att := ref.Content[0].Attachment
	assert.Equal(t, "text/plain; charset=utf-8", att.ContentType)
	decoded, err := base64.StdEncoding.DecodeString(att.Data)
	require.NoError(t, err)
	assert.Equal(t, doc.Text, string(decoded))

	require.NotNil(t, ref.Context)
	assert.Equal(t, "Encounter/enc-55", ref.Context.Encounter.Reference)
	require.Len(t, ref.Context.Event, 1)
	assert.Equal(t, "J02.9", ref.Context.Event[0].Coding[0].Code)
	assert.Equal(t, 87, *ref.Context.Event[0].Extension[0].ValueInteger)
	assert.Equal(t, "application/fhir+json", res.MimeType)
	assert.Equal(t, "fhir_document_reference_1792247400000.json", res.Filename)
}

func TestFHIRExporter_OmitsAbsentPeople(t *testing.T) {
	doc := buildDoc(t, note.Input{Text: soapNote})
	res, err := FHIRExporter{}.Export(doc, testOptions())
	require.NoError(t, err)
	require.NoError(t, fhir.ValidateDocumentReference(res.Content))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(res.Content, &raw))
	assert.NotContains(t, raw, "subject")
	assert.NotContains(t, raw, "author")
	assert.NotContains(t, string(res.Content), "null")

	ctx := raw["context"].(map[string]any)
	enc := ctx["encounter"].(map[string]any)
	assert.True(t, strings.HasPrefix(enc["reference"].(string), "Encounter/"))
	assert.NotContains(t, ctx, "event")
}

func TestPlainTextExporter(t *testing.T) {
	doc := buildDoc(t, note.Input{
		Text:            "**SUBJECTIVE:**\nPatient reports **sharp** pain.\n\n**PLAN:**\nRest.",
		DiagnosticCodes: pharyngitis(),
	})
	opts := testOptions()
	opts.Patient = testPatient()
	opts.Provider = testProvider()
	opts.Facility = Facility{OrganizationName: "Northside Clinic"}

	res, err := PlainTextExporter{}.Export(doc, opts)
	require.NoError(t, err)
	s := string(res.Content)

	assert.True(t, strings.HasPrefix(s, "CLINICAL NOTE\nNorthside Clinic\nGenerated: 2026-10-17 14:30 UTC\n"))
	assert.Contains(t, s, "Patient: Jane Doe\nMRN: MRN-42\nDOB: 1980-05-15\nAge: 46  Gender: female\n")
	assert.Contains(t, s, "Provider: Robert Smith\nNPI: 1234567890\n")
	assert.Contains(t, s, "\nSUBJECTIVE:\nPatient reports sharp pain.\n")
	assert.Contains(t, s, "\nDIAGNOSTIC CODES (ICD-10):\nJ02.9 - Acute pharyngitis (87% confidence)\n")
	assert.NotContains(t, s, "**")
	assert.Less(t, strings.Index(s, "SUBJECTIVE:"), strings.Index(s, "PLAN:"))
	assert.Equal(t, "clinical_note_epic_1792247400000.txt", res.Filename)
	assert.Equal(t, "text/plain", res.MimeType)
}

func TestRTFExporter(t *testing.T) {
	doc := buildDoc(t, note.Input{
		Text:            "**ASSESSMENT:**\nFièvre {resolved}\\ok\nSecond line",
		DiagnosticCodes: pharyngitis(),
	})
	res, err := RTFExporter{}.Export(doc, testOptions())
	require.NoError(t, err)
	s := string(res.Content)

	assert.True(t, strings.HasPrefix(s, `{\rtf1`))
	assert.True(t, strings.HasSuffix(s, "}"))
	assert.Equal(t, strings.Count(s, "{")-strings.Count(s, `\{`), strings.Count(s, "}")-strings.Count(s, `\}`))
	assert.Contains(t, s, `\b ASSESSMENT\b0 `)
	assert.Contains(t, s, `Fi\u232?vre \{resolved\}\\ok\par Second line`)
	assert.Contains(t, s, `J02.9 - Acute pharyngitis (87% confidence)`)
	assert.Equal(t, "application/rtf", res.MimeType)
	assert.Equal(t, "clinical_note_cerner_1792247400000.rtf", res.Filename)
}

func TestExporters_ClampConfidence(t *testing.T) {
	doc := buildDoc(t, note.Input{
		Text: soapNote,
		DiagnosticCodes: []note.CodeEntry{
			{Code: "A00", Description: "high", Confidence: 1.4},
			{Code: "B00", Description: "low", Confidence: -0.2},
			{Code: "C00", Description: "mid", Confidence: 0.875},
		},
	})

	for _, e := range []Exporter{PlainTextExporter{}, RTFExporter{}} {
		res, err := e.Export(doc, testOptions())
		require.NoError(t, err)
		s := string(res.Content)
		assert.Contains(t, s, "A00 - high (100% confidence)", e.Format())
		assert.Contains(t, s, "B00 - low (0% confidence)", e.Format())
		assert.Contains(t, s, "C00 - mid (88% confidence)", e.Format())
	}

	res, err := XMLExporter{}.Export(doc, testOptions())
	require.NoError(t, err)
	got := decodeXML(t, res.Content)
	var pct []int
	for _, c := range got.Codes.Diagnostic {
		pct = append(pct, c.Confidence)
	}
	assert.Equal(t, []int{100, 0, 88}, pct)

	res, err = FHIRExporter{}.Export(doc, testOptions())
	require.NoError(t, err)
	require.NoError(t, fhir.ValidateDocumentReference(res.Content))
	var ref fhir.DocumentReference
	require.NoError(t, json.Unmarshal(res.Content, &ref))
	pct = pct[:0]
	for _, ev := range ref.Context.Event {
		pct = append(pct, *ev.Extension[0].ValueInteger)
	}
	assert.Equal(t, []int{100, 0, 88}, pct)
}

func TestExporters_DoNotMutateDocument(t *testing.T) {
	doc := buildDoc(t, note.Input{Text: soapNote, DiagnosticCodes: pharyngitis(), Patient: testPatient()})
	before, err := json.Marshal(doc)
	require.NoError(t, err)

	for _, f := range AllFormats {
		_, err := NewRegistry().Export(doc, string(f), testOptions())
		require.NoError(t, err)
	}
	after, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}
