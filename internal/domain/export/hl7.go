package export

import (
	"github.com/ehr/notexport/internal/domain/note"
	"github.com/ehr/notexport/internal/platform/hl7v2"
)

// HL7Exporter renders an HL7 v2.5.1 ORU^R01 message with one OBX per
// non-empty note line.
type HL7Exporter struct{}

func (HL7Exporter) Format() Format { return FormatHL7 }

func (HL7Exporter) Export(doc *note.Document, opts Options) (*Result, error) {
	now := opts.now()
	f := opts.facility()
	data, err := hl7v2.GenerateORU(doc, opts.patient(doc), opts.provider(doc), hl7v2.Header{
		SendingApp:        f.SendingApp,
		SendingFacility:   f.SendingFacility,
		ReceivingApp:      f.ReceivingApp,
		ReceivingFacility: f.ReceivingFacility,
		Timestamp:         now,
	})
	if err != nil {
		return nil, err
	}
	return newResult(FormatHL7, data, now), nil
}
