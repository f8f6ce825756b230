// Package pagination reads limit/offset query parameters and wraps list
// responses.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page is a window into a newest-first listing.
type Page struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset (or the FHIR spellings _count and
// _offset) from the query string, clamping limit to [1, MaxLimit].
func FromContext(c echo.Context) Page {
	limit := firstInt(c.QueryParam("limit"), c.QueryParam("_count"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := firstInt(c.QueryParam("offset"), c.QueryParam("_offset"))
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}

func firstInt(vals ...string) int {
	for _, v := range vals {
		if n, err := strconv.Atoi(v); err == nil && n != 0 {
			return n
		}
	}
	return 0
}

// HasMore reports whether entries remain after this page.
func (p Page) HasMore(total int) bool {
	return p.Offset+p.Limit < total
}

// NextURL returns path with the query of the following page, or "" on the
// last page.
func (p Page) NextURL(path string, total int) string {
	if !p.HasMore(total) {
		return ""
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(p.Offset+p.Limit))
	return path + "?" + q.Encode()
}

// Response wraps a paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Next    string      `json:"next,omitempty"`
}

// NewResponse builds the envelope for one page served at path.
func NewResponse(data interface{}, total int, p Page, path string) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasMore(total),
		Next:    p.NextURL(path, total),
	}
}
