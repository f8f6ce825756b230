package hl7v2

import (
	"fmt"
	"strings"
	"time"

	"github.com/ehr/notexport/internal/domain/note"
	"github.com/ehr/notexport/internal/platform/escape"
)

// TimestampLayout is the HL7 v2 DTM layout used for MSH-7.
const TimestampLayout = "20060102150405"

// SegmentTerminator separates segments within a message.
const SegmentTerminator = "\r"

// progressNoteID is the OBX-3 observation identifier for note text lines.
const progressNoteID = "11506-3^Progress note^LN"

// Header carries the MSH routing fields.
type Header struct {
	SendingApp        string
	SendingFacility   string
	ReceivingApp      string
	ReceivingFacility string
	Timestamp         time.Time
}

// GenerateORU builds an ORU^R01 message carrying the note text. patient and
// provider are optional; when nil the PID and PV1 segments are omitted.
// Each non-empty line of the note becomes one OBX segment, followed by one
// DG1 segment per diagnostic code.
func GenerateORU(doc *note.Document, patient *note.PatientInfo, provider *note.ProviderInfo, h Header) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("hl7v2: document is required")
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now()
	}

	segments := []string{buildMSH(h)}
	if patient != nil {
		segments = append(segments, buildPID(patient))
	}
	if provider != nil {
		segments = append(segments, buildPV1(provider))
	}

	setID := 0
	for _, line := range strings.Split(note.StripEmphasis(doc.Text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		setID++
		segments = append(segments, buildOBX(setID, line))
	}

	for i, c := range doc.DiagnosticCodes {
		segments = append(segments, buildDG1(i+1, c))
	}

	return []byte(strings.Join(segments, SegmentTerminator)), nil
}

// buildMSH constructs the message header segment.
func buildMSH(h Header) string {
	ts := h.Timestamp.UTC()
	controlID := fmt.Sprintf("%s%03d", ts.Format(TimestampLayout), ts.Nanosecond()/int(time.Millisecond))

	return fmt.Sprintf("MSH|^~\\&|%s|%s|%s|%s|%s||ORU^R01|%s|P|2.5.1",
		escape.HL7(h.SendingApp), escape.HL7(h.SendingFacility),
		escape.HL7(h.ReceivingApp), escape.HL7(h.ReceivingFacility),
		ts.Format(TimestampLayout), controlID)
}

// buildPID constructs a PID (patient identification) segment.
func buildPID(p *note.PatientInfo) string {
	// PID-3: patient identifier list, MRN preferred
	id := escape.HL7(p.Identifier())

	// PID-5: family^given
	family, given := splitName(p.Name)
	name := ""
	if family != "" || given != "" {
		name = escape.HL7(family) + "^" + escape.HL7(given)
	}

	// PID-7: date of birth
	dob := convertDate(p.DateOfBirth)

	// PID-8: administrative sex
	sex := ""
	if p.Gender != "" {
		sex = mapGender(p.Gender)
	}

	return fmt.Sprintf("PID|1||%s||%s||%s|%s", id, name, dob, sex)
}

// buildPV1 constructs a PV1 (patient visit) segment with the attending
// provider in PV1-7 as npi^family^given.
func buildPV1(p *note.ProviderInfo) string {
	id := p.NationalProviderID
	if id == "" {
		id = p.ID
	}
	family, given := splitName(p.Name)
	attending := escape.HL7(id)
	if family != "" || given != "" {
		attending += "^" + escape.HL7(family) + "^" + escape.HL7(given)
	}
	return fmt.Sprintf("PV1|1|O|||||%s", attending)
}

// buildOBX constructs an OBX segment holding one line of note text.
func buildOBX(setID int, line string) string {
	return fmt.Sprintf("OBX|%d|TX|%s||%s||||||F", setID, progressNoteID, escape.HL7(line))
}

// buildDG1 constructs a DG1 (diagnosis) segment for an ICD-10 code.
func buildDG1(setID int, c note.CodeEntry) string {
	return fmt.Sprintf("DG1|%d||%s^%s^%s|||F", setID,
		escape.HL7(c.Code), escape.HL7(c.Description), note.CodeSystemICD10.HL7Name())
}

// splitName splits a display name into family (last word) and given names.
func splitName(name string) (family, given string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[len(parts)-1], strings.Join(parts[:len(parts)-1], " ")
}

// mapGender converts a free-text gender to an HL7 v2 administrative sex code.
func mapGender(gender string) string {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "male", "m":
		return "M"
	case "female", "f":
		return "F"
	case "other", "o":
		return "O"
	default:
		return "U"
	}
}

// convertDate converts a caller supplied date to HL7 YYYYMMDD. Unknown
// layouts fall back to stripping separators.
func convertDate(d string) string {
	d = strings.TrimSpace(d)
	if d == "" {
		return ""
	}
	for _, layout := range []string{
		"2006-01-02",
		"2006-01-02T15:04:05Z07:00",
		"01/02/2006",
		"1/2/2006",
	} {
		if t, err := time.Parse(layout, d); err == nil {
			return t.Format("20060102")
		}
	}
	r := strings.NewReplacer("-", "", "/", "", ".", "", " ", "")
	return escape.HL7(r.Replace(d))
}
