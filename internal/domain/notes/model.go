package notes

import (
	"github.com/ehr/notexport/internal/domain/export"
	"github.com/ehr/notexport/internal/domain/note"
)

// ExportRequest is the body of POST /notes/export. Format may also be
// given as the ?format= query parameter.
type ExportRequest struct {
	note.Input
	Format string `json:"format,omitempty"`
}

// BatchRequest is the body of POST /notes/export/batch. An empty Formats
// list exports every registered format.
type BatchRequest struct {
	note.Input
	Formats []string `json:"formats,omitempty" validate:"omitempty,max=16,dive,required"`
}

// BatchItem is one rendered format in a batch response. Content is
// base64 encoded by encoding/json.
type BatchItem struct {
	Format   export.Format `json:"format"`
	Filename string        `json:"filename"`
	MimeType string        `json:"mimeType"`
	Content  []byte        `json:"content"`
}

// BatchResponse wraps the items of a batch export.
type BatchResponse struct {
	Items []BatchItem `json:"items"`
}

func newBatchResponse(results []*export.Result) BatchResponse {
	items := make([]BatchItem, len(results))
	for i, r := range results {
		items[i] = BatchItem{Format: r.Format, Filename: r.Filename, MimeType: r.MimeType, Content: r.Content}
	}
	return BatchResponse{Items: items}
}
