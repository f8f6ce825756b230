package export

import (
	"fmt"
	"time"

	"github.com/ehr/notexport/internal/domain/note"
)

// Exporter renders a Document into one target format. Implementations are
// stateless and safe for concurrent use.
type Exporter interface {
	Format() Format
	Export(doc *note.Document, opts Options) (*Result, error)
}

// Facility holds the organisation and HL7 routing names, usually from config.
type Facility struct {
	OrganizationName  string
	SendingApp        string
	SendingFacility   string
	ReceivingApp      string
	ReceivingFacility string
}

// DefaultFacility is used when Options.Facility is empty.
var DefaultFacility = Facility{
	OrganizationName:  "Clinical Documentation",
	SendingApp:        "NOTEXPORT",
	SendingFacility:   "CLINIC",
	ReceivingApp:      "EHR",
	ReceivingFacility: "FACILITY",
}

// Options carries per-call inputs. Patient and Provider override the ones
// attached to the Document. A zero Now means time.Now.
type Options struct {
	Patient  *note.PatientInfo
	Provider *note.ProviderInfo
	Now      time.Time
	Facility Facility
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

func (o Options) patient(doc *note.Document) *note.PatientInfo {
	if o.Patient != nil {
		return o.Patient
	}
	return doc.Patient
}

func (o Options) provider(doc *note.Document) *note.ProviderInfo {
	if o.Provider != nil {
		return o.Provider
	}
	return doc.Provider
}

func (o Options) facility() Facility {
	f := o.Facility
	d := DefaultFacility
	if f.OrganizationName == "" {
		f.OrganizationName = d.OrganizationName
	}
	if f.SendingApp == "" {
		f.SendingApp = d.SendingApp
	}
	if f.SendingFacility == "" {
		f.SendingFacility = d.SendingFacility
	}
	if f.ReceivingApp == "" {
		f.ReceivingApp = d.ReceivingApp
	}
	if f.ReceivingFacility == "" {
		f.ReceivingFacility = d.ReceivingFacility
	}
	return f
}

// Result is a fully materialized export.
type Result struct {
	Content  []byte `json:"-"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Format   Format `json:"format"`
}

// Filename builds "<prefix>_<epoch millis>.<ext>".
func Filename(prefix, ext string, at time.Time) string {
	return fmt.Sprintf("%s_%d.%s", prefix, at.UnixMilli(), ext)
}

func newResult(f Format, content []byte, at time.Time) *Result {
	return &Result{
		Content:  content,
		Filename: Filename(f.prefix(), f.Extension(), at),
		MimeType: f.MimeType(),
		Format:   f,
	}
}
