package layout

import (
	"bytes"
	"io"
	"time"

	"github.com/ehr/notexport/internal/domain/export"
	"github.com/ehr/notexport/internal/domain/note"
)

// PrintFormat tags print results. It is not one of the registry formats.
const PrintFormat export.Format = "print"

const (
	printPrefix   = "clinical_note"
	printMimeType = "application/pdf"
)

// Printer lays out a note and renders it to PDF.
type Printer struct {
	engine *Engine
	render func(*Document, *bytes.Buffer) error
}

// PrinterOption customises a Printer.
type PrinterOption func(*Printer)

// WithRenderer replaces the pdfcpu backend.
func WithRenderer(render func(*Document, io.Writer) error) PrinterOption {
	return func(p *Printer) {
		p.render = func(d *Document, b *bytes.Buffer) error { return render(d, b) }
	}
}

// NewPrinter returns a Printer backed by engine.
func NewPrinter(engine *Engine, opts ...PrinterOption) *Printer {
	p := &Printer{
		engine: engine,
		render: func(d *Document, b *bytes.Buffer) error { return RenderPDF(d, b) },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Engine returns the layout engine used by the printer.
func (p *Printer) Engine() *Engine { return p.engine }

// Print returns a complete PDF or an error, never a partial document.
func (p *Printer) Print(doc *note.Document, opts Options) (*export.Result, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	laid, err := p.engine.Layout(doc, opts)
	if err != nil {
		return nil, err
	}
	return p.Render(laid, opts.Now)
}

// Render turns an already laid out document into a PDF result stamped
// with at.
func (p *Printer) Render(laid *Document, at time.Time) (*export.Result, error) {
	var buf bytes.Buffer
	if err := p.render(laid, &buf); err != nil {
		return nil, err
	}
	return &export.Result{
		Content:  buf.Bytes(),
		Filename: export.Filename(printPrefix, "pdf", at),
		MimeType: printMimeType,
		Format:   PrintFormat,
	}, nil
}
