package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func pageFor(query string) Page {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=50&offset=10", 50, 10},
		{"?_count=25&_offset=5", 25, 5},
		{"?limit=500", MaxLimit, 0},
		{"?limit=-3&offset=-7", DefaultLimit, 0},
		{"?limit=abc&offset=xyz", DefaultLimit, 0},
		{"?limit=10&_count=30", 10, 0},
	}
	for _, tt := range tests {
		p := pageFor(tt.query)
		if p.Limit != tt.limit || p.Offset != tt.offset {
			t.Errorf("%q: expected limit=%d offset=%d, got limit=%d offset=%d",
				tt.query, tt.limit, tt.offset, p.Limit, p.Offset)
		}
	}
}

func TestPage_NextURL(t *testing.T) {
	p := Page{Limit: 20, Offset: 20}
	if got := p.NextURL("/api/v1/exports", 45); got != "/api/v1/exports?limit=20&offset=40" {
		t.Errorf("unexpected next url %q", got)
	}
	if got := p.NextURL("/api/v1/exports", 40); got != "" {
		t.Errorf("expected no next url on last page, got %q", got)
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a", "b"}, 5, Page{Limit: 2, Offset: 2}, "/api/v1/exports")
	if r.Total != 5 || r.Limit != 2 || r.Offset != 2 {
		t.Errorf("unexpected envelope %+v", r)
	}
	if !r.HasMore {
		t.Error("expected HasMore")
	}
	if r.Next != "/api/v1/exports?limit=2&offset=4" {
		t.Errorf("unexpected next %q", r.Next)
	}

	last := NewResponse([]string{"e"}, 5, Page{Limit: 2, Offset: 4}, "/api/v1/exports")
	if last.HasMore || last.Next != "" {
		t.Errorf("expected last page, got %+v", last)
	}
}
