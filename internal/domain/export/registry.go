package export

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ehr/notexport/internal/domain/note"
)

// Registry maps formats to exporters. It is built once by the caller and
// is read-only afterwards.
type Registry struct {
	exporters map[Format]Exporter
}

// NewRegistry returns a registry holding the six built-in exporters plus
// any extra ones, which replace built-ins for the same format.
func NewRegistry(extra ...Exporter) *Registry {
	r := &Registry{exporters: make(map[Format]Exporter)}
	for _, e := range []Exporter{
		PlainTextExporter{},
		RTFExporter{},
		FHIRExporter{},
		HL7Exporter{},
		CSVExporter{},
		XMLExporter{},
	} {
		r.exporters[e.Format()] = e
	}
	for _, e := range extra {
		r.exporters[e.Format()] = e
	}
	return r
}

// Lookup resolves a format name to its exporter.
func (r *Registry) Lookup(name string) (Exporter, error) {
	f, err := ParseFormat(name)
	if err != nil {
		return nil, err
	}
	e, ok := r.exporters[f]
	if !ok {
		return nil, &UnsupportedFormatError{Name: name}
	}
	return e, nil
}

// Export renders doc in the named format.
func (r *Registry) Export(doc *note.Document, name string, opts Options) (*Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("export: document is required")
	}
	e, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	res, err := e.Export(doc, opts)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", e.Format(), err)
	}
	return res, nil
}

// Formats lists the registered formats in presentation order.
func (r *Registry) Formats() []FormatInfo {
	out := make([]FormatInfo, 0, len(r.exporters))
	for _, f := range AllFormats {
		if _, ok := r.exporters[f]; !ok {
			continue
		}
		out = append(out, FormatInfo{Key: f, Name: f.Name(), MimeType: f.MimeType(), Extension: f.Extension()})
	}
	return out
}

// ExportAll renders doc in every named format concurrently. All names are
// resolved before any exporter runs; on any failure no results are
// returned. Results follow the order of names.
func (r *Registry) ExportAll(ctx context.Context, doc *note.Document, names []string, opts Options) ([]*Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("export: document is required")
	}
	exporters := make([]Exporter, len(names))
	for i, name := range names {
		e, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		exporters[i] = e
	}
	// a single timestamp keeps filenames consistent across the batch
	if opts.Now.IsZero() {
		opts.Now = opts.now()
	}

	results := make([]*Result, len(exporters))
	g, ctx := errgroup.WithContext(ctx)
	for i, e := range exporters {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := e.Export(doc, opts)
			if err != nil {
				return fmt.Errorf("export %s: %w", e.Format(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
