package openapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// Operation documents one method on one path.
type Operation struct {
	Summary     string
	Tag         string
	RequestRef  string // component schema name, empty for no body
	ResponseRef string // component schema name, empty for a binary download
	Query       []Param
	Public      bool
}

// Param is a query parameter.
type Param struct {
	Name        string
	Type        string
	Description string
	Enum        []string
}

// Generator builds an OpenAPI 3.0 document from the echo route table.
// Routes without an Operation entry are still listed so the document
// never drifts from what the server actually serves.
type Generator struct {
	version    string
	formats    []string
	operations map[string]Operation // "METHOD /path"
}

// NewGenerator creates a generator. formats is the list of export format
// keys advertised in the request schemas.
func NewGenerator(version string, formats []string) *Generator {
	g := &Generator{version: version, formats: formats, operations: make(map[string]Operation)}
	for key, op := range defaultOperations(formats) {
		g.operations[key] = op
	}
	return g
}

// Describe attaches documentation to a route.
func (g *Generator) Describe(method, path string, op Operation) {
	g.operations[method+" "+path] = op
}

var documentedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// GenerateSpec produces the OpenAPI document for routes.
func (g *Generator) GenerateSpec(routes []*echo.Route) map[string]interface{} {
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})

	paths := make(map[string]interface{})
	for _, r := range routes {
		if !documentedMethods[r.Method] || strings.HasSuffix(r.Path, "/*") {
			continue
		}
		item, _ := paths[openAPIPath(r.Path)].(map[string]interface{})
		if item == nil {
			item = make(map[string]interface{})
			paths[openAPIPath(r.Path)] = item
		}
		item[strings.ToLower(r.Method)] = g.buildOperation(r)
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Clinical Note Export API",
			"version":     g.version,
			"description": "Parses clinical notes and exports them as EHR-ready documents.",
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": buildComponentSchemas(g.formats),
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
	}
}

func (g *Generator) buildOperation(r *echo.Route) map[string]interface{} {
	op, documented := g.operations[r.Method+" "+r.Path]
	if !documented {
		op = Operation{Summary: r.Method + " " + r.Path, Tag: "other"}
	}

	out := map[string]interface{}{
		"summary":     op.Summary,
		"operationId": operationID(r.Method, r.Path),
		"tags":        []string{op.Tag},
	}
	if !op.Public {
		out["security"] = []map[string][]string{{"bearerAuth": {}}}
	}
	if len(op.Query) > 0 {
		params := make([]map[string]interface{}, 0, len(op.Query))
		for _, p := range op.Query {
			schema := map[string]interface{}{"type": p.Type}
			if len(p.Enum) > 0 {
				schema["enum"] = p.Enum
			}
			params = append(params, map[string]interface{}{
				"name":        p.Name,
				"in":          "query",
				"description": p.Description,
				"schema":      schema,
			})
		}
		out["parameters"] = params
	}
	if op.RequestRef != "" {
		out["requestBody"] = map[string]interface{}{
			"required": true,
			"content":  jsonContent(op.RequestRef),
		}
	}

	ok := map[string]interface{}{"description": "Success"}
	if op.ResponseRef != "" {
		ok["content"] = jsonContent(op.ResponseRef)
	} else if documented {
		ok["content"] = map[string]interface{}{
			"application/octet-stream": map[string]interface{}{
				"schema": map[string]interface{}{"type": "string", "format": "binary"},
			},
		}
	}
	out["responses"] = map[string]interface{}{
		"200":     ok,
		"default": map[string]interface{}{"description": "Error", "content": jsonContent("OperationOutcome")},
	}
	return out
}

func jsonContent(ref string) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{
			"schema": map[string]interface{}{"$ref": "#/components/schemas/" + ref},
		},
	}
}

// openAPIPath rewrites echo's :param segments to {param}.
func openAPIPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			parts[i] = "{" + p[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}

func operationID(method, path string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '.' || r == ':' }) {
		if seg == "api" || seg == "v1" {
			continue
		}
		b.WriteString(strings.ToUpper(seg[:1]))
		b.WriteString(seg[1:])
	}
	return b.String()
}

func defaultOperations(formats []string) map[string]Operation {
	formatParam := Param{Name: "format", Type: "string", Description: "Export format when the body omits one", Enum: formats}
	page := []Param{
		{Name: "limit", Type: "integer", Description: "Page size, at most 100"},
		{Name: "offset", Type: "integer", Description: "Entries to skip"},
	}
	return map[string]Operation{
		"GET /health":                     {Summary: "Liveness check", Tag: "health", Public: true},
		"GET /health/exportlog":           {Summary: "Export log connectivity", Tag: "health", Public: true},
		"GET /metrics":                    {Summary: "Prometheus metrics", Tag: "health", Public: true},
		"GET /openapi.json":               {Summary: "This document", Tag: "health", Public: true},
		"GET /api/v1/export/formats":      {Summary: "List export formats", Tag: "export", ResponseRef: "FormatList", Public: true},
		"POST /api/v1/notes/parse":        {Summary: "Parse a note into sections", Tag: "notes", RequestRef: "NoteInput", ResponseRef: "Document"},
		"POST /api/v1/notes/export":       {Summary: "Export a note in one format", Tag: "export", RequestRef: "ExportRequest", Query: []Param{formatParam}},
		"POST /api/v1/notes/export/batch": {Summary: "Export a note in several formats", Tag: "export", RequestRef: "BatchRequest", ResponseRef: "BatchResponse"},
		"POST /api/v1/notes/print":        {Summary: "Render a note as a paginated PDF", Tag: "print", RequestRef: "NoteInput", Query: []Param{{Name: "output", Type: "string", Enum: []string{"pdf", "layout"}, Description: "pdf or the page model as JSON"}}},
		"GET /api/v1/exports":             {Summary: "List recorded exports", Tag: "exports", ResponseRef: "ExportPage", Query: page},
	}
}

func buildComponentSchemas(formats []string) map[string]interface{} {
	str := map[string]interface{}{"type": "string"}
	code := map[string]interface{}{
		"type":     "object",
		"required": []string{"code"},
		"properties": map[string]interface{}{
			"code":        str,
			"description": str,
			"confidence":  map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
			"category":    str,
		},
	}
	codes := map[string]interface{}{"type": "array", "items": code}
	input := map[string]interface{}{
		"noteText":        str,
		"noteHtml":        str,
		"stripMarkup":     map[string]interface{}{"type": "boolean"},
		"diagnosticCodes": codes,
		"procedureCodes":  codes,
		"miscCodes":       codes,
		"patient": map[string]interface{}{"type": "object", "properties": map[string]interface{}{
			"id": str, "name": str, "dateOfBirth": str, "medicalRecordNumber": str,
			"age": map[string]interface{}{"type": "integer"}, "gender": str,
		}},
		"provider": map[string]interface{}{"type": "object", "properties": map[string]interface{}{
			"id": str, "name": str, "nationalProviderId": str,
		}},
		"encounterId": str,
	}
	withField := func(name string, schema interface{}) map[string]interface{} {
		props := make(map[string]interface{}, len(input)+1)
		for k, v := range input {
			props[k] = v
		}
		props[name] = schema
		return map[string]interface{}{"type": "object", "properties": props}
	}
	formatEnum := map[string]interface{}{"type": "string", "enum": formats}

	return map[string]interface{}{
		"NoteInput":     map[string]interface{}{"type": "object", "properties": input},
		"ExportRequest": withField("format", formatEnum),
		"BatchRequest":  withField("formats", map[string]interface{}{"type": "array", "maxItems": 16, "items": formatEnum}),
		"BatchResponse": map[string]interface{}{"type": "object", "properties": map[string]interface{}{
			"items": map[string]interface{}{"type": "array", "items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"format":   str,
					"filename": str,
					"mimeType": str,
					"content":  map[string]interface{}{"type": "string", "format": "byte"},
				},
			}},
		}},
		"Document": map[string]interface{}{"type": "object", "properties": map[string]interface{}{
			"text": str,
			"sections": map[string]interface{}{"type": "array", "items": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"name": str, "body": str},
			}},
			"diagnosticCodes": codes,
			"procedureCodes":  codes,
			"miscCodes":       codes,
			"generatedAt":     map[string]interface{}{"type": "string", "format": "date-time"},
			"wordCount":       map[string]interface{}{"type": "integer"},
		}},
		"FormatList": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "object"}},
		"ExportPage": map[string]interface{}{"type": "object", "properties": map[string]interface{}{
			"data":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "object"}},
			"total":    map[string]interface{}{"type": "integer"},
			"limit":    map[string]interface{}{"type": "integer"},
			"offset":   map[string]interface{}{"type": "integer"},
			"has_more": map[string]interface{}{"type": "boolean"},
			"next":     str,
		}},
		"OperationOutcome": buildOperationOutcomeSchema(),
	}
}

func buildOperationOutcomeSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"resourceType": map[string]interface{}{"type": "string", "enum": []string{"OperationOutcome"}},
			"issue": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"severity": map[string]interface{}{
							"type": "string",
							"enum": []string{"fatal", "error", "warning", "information"},
						},
						"code":        map[string]interface{}{"type": "string"},
						"diagnostics": map[string]interface{}{"type": "string"},
						"expression": map[string]interface{}{
							"type":  "array",
							"items": map[string]interface{}{"type": "string"},
						},
					},
					"required": []string{"severity", "code"},
				},
			},
		},
		"required": []string{"resourceType", "issue"},
	}
}

// RegisterRoutes serves the document at /openapi.json. The route table is
// read on each request so routes added later are included.
func (g *Generator) RegisterRoutes(e *echo.Echo) {
	e.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec(e.Routes()))
	})
}
