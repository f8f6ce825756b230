package notes

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/notexport/internal/domain/export"
	"github.com/ehr/notexport/internal/domain/layout"
	"github.com/ehr/notexport/internal/domain/note"
	"github.com/ehr/notexport/internal/platform/exportlog"
)

// Service builds documents from request input and hands them to the
// exporters, the print pipeline and the export log.
type Service struct {
	builder  *note.Builder
	registry *export.Registry
	printer  *layout.Printer
	recorder exportlog.Recorder
	metrics  ExportObserver
	facility export.Facility
	logger   zerolog.Logger
	now      func() time.Time
}

// ExportObserver receives per-format export outcomes, usually for metrics.
type ExportObserver interface {
	ObserveExport(format string, size int)
	ObserveFailure(format string)
}

type nopObserver struct{}

func (nopObserver) ObserveExport(string, int) {}
func (nopObserver) ObserveFailure(string)     {}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithFacility sets the organisation and HL7 routing names.
func WithFacility(f export.Facility) ServiceOption {
	return func(s *Service) { s.facility = f }
}

// WithRecorder sets the export log. The default records nothing.
func WithRecorder(r exportlog.Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithMetrics sets the export observer.
func WithMetrics(m ExportObserver) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger used for export log failures.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithNow overrides the clock used for filenames and timestamps.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(builder *note.Builder, registry *export.Registry, printer *layout.Printer, opts ...ServiceOption) *Service {
	s := &Service{
		builder:  builder,
		registry: registry,
		printer:  printer,
		recorder: exportlog.NopRecorder{},
		metrics:  nopObserver{},
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Formats() []export.FormatInfo {
	return s.registry.Formats()
}

// Parse builds the canonical document without exporting it.
func (s *Service) Parse(in note.Input) (*note.Document, error) {
	return s.builder.Build(in)
}

// Export renders in as the named format. The format is resolved before
// the note is parsed so an unknown format fails fast.
func (s *Service) Export(ctx context.Context, in note.Input, format string) (*export.Result, error) {
	exp, err := s.registry.Lookup(format)
	if err != nil {
		return nil, err
	}
	doc, err := s.builder.Build(in)
	if err != nil {
		return nil, err
	}
	res, err := s.registry.Export(doc, format, s.options())
	if err != nil {
		s.metrics.ObserveFailure(string(exp.Format()))
		return nil, err
	}
	s.record(ctx, doc, res)
	return res, nil
}

// ExportBatch renders in as every named format, or all formats when names
// is empty. Either every result is returned or none.
func (s *Service) ExportBatch(ctx context.Context, in note.Input, names []string) ([]*export.Result, error) {
	if len(names) == 0 {
		for _, f := range s.registry.Formats() {
			names = append(names, string(f.Key))
		}
	}
	for _, name := range names {
		if _, err := s.registry.Lookup(name); err != nil {
			return nil, err
		}
	}
	doc, err := s.builder.Build(in)
	if err != nil {
		return nil, err
	}
	results, err := s.registry.ExportAll(ctx, doc, names, s.options())
	if err != nil {
		s.metrics.ObserveFailure("batch")
		return nil, err
	}
	for _, res := range results {
		s.record(ctx, doc, res)
	}
	return results, nil
}

// Print lays out in and renders it to PDF.
func (s *Service) Print(ctx context.Context, in note.Input) (*export.Result, error) {
	doc, err := s.builder.Build(in)
	if err != nil {
		return nil, err
	}
	now := s.now()
	laid, err := s.printer.Engine().Layout(doc, layout.Options{Now: now})
	if err != nil {
		s.metrics.ObserveFailure(string(layout.PrintFormat))
		return nil, fmt.Errorf("print: %w", err)
	}
	if len(laid.Unsupported) > 0 {
		s.logger.Warn().
			Strs("runes", laid.Unsupported).
			Msg("print substituted characters the PDF fonts cannot show")
	}
	res, err := s.printer.Render(laid, now)
	if err != nil {
		s.metrics.ObserveFailure(string(layout.PrintFormat))
		return nil, fmt.Errorf("print: %w", err)
	}
	s.record(ctx, doc, res)
	return res, nil
}

// Layout returns the page model without rendering it.
func (s *Service) Layout(in note.Input) (*layout.Document, error) {
	doc, err := s.builder.Build(in)
	if err != nil {
		return nil, err
	}
	return s.printer.Engine().Layout(doc, layout.Options{Now: s.now()})
}

// Recorder exposes the export log for health checks.
func (s *Service) Recorder() exportlog.Recorder { return s.recorder }

func (s *Service) options() export.Options {
	return export.Options{Now: s.now(), Facility: s.facility}
}

// record stores export metadata. The export has already succeeded, so a
// failure here is logged and swallowed.
func (s *Service) record(ctx context.Context, doc *note.Document, res *export.Result) {
	s.metrics.ObserveExport(string(res.Format), len(res.Content))
	entry := exportlog.Entry{
		Format:    string(res.Format),
		Filename:  res.Filename,
		MimeType:  res.MimeType,
		Bytes:     len(res.Content),
		Sections:  len(doc.Sections),
		WordCount: doc.WordCount,
		CreatedAt: s.now(),
	}
	if doc.Provider != nil {
		entry.ProviderID = doc.Provider.ID
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).
			Str("format", entry.Format).
			Str("backend", s.recorder.Backend()).
			Msg("export log write failed")
	}
}
