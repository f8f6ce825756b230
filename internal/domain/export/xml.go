package export

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/notexport/internal/domain/note"
	"github.com/ehr/notexport/internal/platform/escape"
)

// codeGroupElements names the <codes> child element for each code system.
var codeGroupElements = map[note.CodeSystem]string{
	note.CodeSystemICD10: "diagnostic",
	note.CodeSystemCPT:   "procedure",
	note.CodeSystemHCPCS: "administrative",
}

// XMLExporter renders a <ClinicalNote> document. Every text node and
// attribute value goes through escape.XML.
type XMLExporter struct{}

func (XMLExporter) Format() Format { return FormatXML }

func (XMLExporter) Export(doc *note.Document, opts Options) (*Result, error) {
	now := opts.now()
	w := &xmlWriter{}

	w.raw(`<?xml version="1.0" encoding="UTF-8"?>`)
	w.open("ClinicalNote")

	w.open("metadata")
	w.leaf("documentId", uuid.New().String())
	w.leaf("generatedAt", generatedAt(doc, now).UTC().Format(time.RFC3339))
	w.leaf("organization", opts.facility().OrganizationName)
	w.leaf("wordCount", strconv.Itoa(doc.WordCount))
	w.leaf("sectionCount", strconv.Itoa(len(doc.Sections)))
	w.leaf("format", structureName(doc))
	w.close("metadata")

	if p := opts.patient(doc); p != nil {
		w.open("patient")
		w.optLeaf("id", p.ID)
		w.optLeaf("mrn", p.MedicalRecordNumber)
		w.optLeaf("name", p.Name)
		w.optLeaf("dateOfBirth", p.DateOfBirth)
		if p.Age > 0 {
			w.leaf("age", strconv.Itoa(p.Age))
		}
		w.optLeaf("gender", p.Gender)
		w.close("patient")
	}

	if p := opts.provider(doc); p != nil {
		w.open("provider")
		w.optLeaf("id", p.ID)
		w.optLeaf("name", p.Name)
		w.optLeaf("npi", p.NationalProviderID)
		w.close("provider")
	}

	w.open("content")
	for _, s := range doc.Sections {
		w.line(`<section name="` + escape.XML(s.Name) + `">` + escape.XML(s.Body) + `</section>`)
	}
	w.close("content")

	if doc.HasCodes() {
		w.open("codes")
		for _, g := range doc.CodeGroups() {
			if len(g.Codes) == 0 {
				continue
			}
			el := codeGroupElements[g.System]
			w.line(`<` + el + ` system="` + escape.XML(string(g.System)) + `">`)
			w.depth++
			for _, c := range g.Codes {
				attrs := `value="` + escape.XML(c.Code) + `" confidence="` + strconv.Itoa(c.Percent()) + `"`
				if c.Category != "" {
					attrs += ` category="` + escape.XML(c.Category) + `"`
				}
				w.line(`<code ` + attrs + `>` + escape.XML(c.Description) + `</code>`)
			}
			w.close(el)
		}
		w.close("codes")
	}

	w.close("ClinicalNote")
	return newResult(FormatXML, []byte(w.String()), now), nil
}

func structureName(doc *note.Document) string {
	if doc.Fallback {
		return "unstructured"
	}
	return "sectioned"
}

// xmlWriter emits indented elements. Callers escape text themselves.
type xmlWriter struct {
	b     strings.Builder
	depth int
}

func (w *xmlWriter) raw(s string) {
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

func (w *xmlWriter) line(s string) {
	w.b.WriteString(strings.Repeat("  ", w.depth))
	w.raw(s)
}

func (w *xmlWriter) open(name string) {
	w.line("<" + name + ">")
	w.depth++
}

func (w *xmlWriter) close(name string) {
	w.depth--
	w.line("</" + name + ">")
}

func (w *xmlWriter) leaf(name, text string) {
	w.line("<" + name + ">" + escape.XML(text) + "</" + name + ">")
}

func (w *xmlWriter) optLeaf(name, text string) {
	if text != "" {
		w.leaf(name, text)
	}
}

func (w *xmlWriter) String() string { return w.b.String() }
