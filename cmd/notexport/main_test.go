package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/notexport/internal/config"
	"github.com/ehr/notexport/internal/domain/notes"
	"github.com/ehr/notexport/internal/platform/auth"
	"github.com/ehr/notexport/internal/platform/exportlog"
	"github.com/ehr/notexport/internal/platform/telemetry"
)

const soapNote = "**SUBJECTIVE:**\nSore throat for 3 days.\n\n**ASSESSMENT:**\nAcute pharyngitis.\n\n**PLAN:**\nRest | fluids."

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return runWithLog(t, "", stdin, args...)
}

// runWithLog executes the root command with EXPORT_LOG_URL set to logURL.
func runWithLog(t *testing.T, logURL, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("EXPORT_LOG_URL", logURL)
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFormatsCmd(t *testing.T) {
	out, err := run(t, "", "formats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"epic", "Cerner (RTF)", "application/fhir+json", "hl7"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 7 {
		t.Errorf("expected header plus 6 formats, got %d lines", lines)
	}
}

func TestExportCmd_AllFormats(t *testing.T) {
	dir := t.TempDir()
	codes := writeFile(t, dir, "codes.json",
		`{"diagnosticCodes":[{"code":"J02.9","description":"Acute pharyngitis","confidence":0.87}]}`)
	patient := writeFile(t, dir, "patient.json", `{"id":"p-001","name":"Jane Doe","gender":"female"}`)
	outDir := filepath.Join(dir, "out")

	out, err := run(t, soapNote, "export", "--format", "all", "--out", outDir,
		"--codes", codes, "--patient", patient, "--validate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 6 {
		t.Fatalf("expected 6 files, got %d (%s)", len(entries), out)
	}
	if strings.Count(out, "wrote ") != 6 {
		t.Errorf("expected 6 wrote lines, got:\n%s", out)
	}

	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".csv") {
			data, _ := os.ReadFile(filepath.Join(outDir, e.Name()))
			if !strings.Contains(string(data), `"J02.9:Acute pharyngitis"`) {
				t.Errorf("expected code summary in CSV, got %s", data)
			}
		}
	}
}

func TestExportCmd_UnknownFormat(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	_, err := run(t, soapNote, "export", "--format", "csv,pdf", "--out", outDir)
	if err == nil || err.Error() != "Unsupported format: pdf" {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
	if _, statErr := os.Stat(outDir); !os.IsNotExist(statErr) {
		t.Error("expected no output directory on failure")
	}
}

func TestExportCmd_EmptyNote(t *testing.T) {
	_, err := run(t, "   ", "export", "--format", "xml", "--out", t.TempDir())
	if err == nil {
		t.Fatal("expected error for empty note")
	}
}

func TestParseCmd(t *testing.T) {
	out, err := run(t, soapNote, "parse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc struct {
		Sections []struct {
			Name string `json:"name"`
		} `json:"sections"`
		WordCount int `json:"wordCount"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(doc.Sections) != 3 || doc.Sections[2].Name != "PLAN" {
		t.Errorf("unexpected sections %+v", doc.Sections)
	}
}

func TestPrintCmd_LayoutJSON(t *testing.T) {
	out, err := run(t, soapNote, "print", "--layout-json", "--page-numbers", "literal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var laid struct {
		Pages []struct {
			Lines []struct {
				Text string `json:"text"`
				Kind string `json:"kind"`
			} `json:"lines"`
		} `json:"pages"`
	}
	if err := json.Unmarshal([]byte(out), &laid); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(laid.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(laid.Pages))
	}
	var pageNumber string
	for _, ln := range laid.Pages[0].Lines {
		if ln.Kind == "page-number" {
			pageNumber = ln.Text
		}
	}
	if pageNumber != "Page 1" {
		t.Errorf("expected literal page number, got %q", pageNumber)
	}
}

func TestPrintCmd_BadPageNumbers(t *testing.T) {
	if _, err := run(t, soapNote, "print", "--layout-json", "--page-numbers", "roman"); err == nil {
		t.Error("expected error for unknown page number mode")
	}
}

func TestInspectHL7Cmd(t *testing.T) {
	dir := t.TempDir()
	codes := writeFile(t, dir, "codes.json",
		`{"diagnosticCodes":[{"code":"J02.9","description":"Acute pharyngitis","confidence":0.87}]}`)
	if _, err := run(t, soapNote, "export", "--format", "hl7", "--out", dir, "--codes", codes); err != nil {
		t.Fatalf("export: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.hl7"))
	if len(matches) != 1 {
		t.Fatalf("expected one hl7 file, got %v", matches)
	}

	out, err := run(t, "", "inspect-hl7", matches[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Type:       ORU^R01", "Diagnosis:  J02.9 Acute pharyngitis", "Rest | fluids."} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestExportlogCmds(t *testing.T) {
	if _, err := run(t, "", "exportlog", "migrate"); err == nil {
		t.Error("expected error without EXPORT_LOG_URL")
	}

	logURL := "sqlite:" + filepath.Join(t.TempDir(), "exports.db")
	out, err := runWithLog(t, logURL, "", "exportlog", "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "Export log schema ready (sqlite)") {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := runWithLog(t, logURL, soapNote, "export", "--format", "csv,xml", "--out", t.TempDir()); err != nil {
		t.Fatalf("export: %v", err)
	}
	out, err = runWithLog(t, logURL, "", "exportlog", "list", "--limit", "1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "1 of 2 export(s)") {
		t.Errorf("expected paged listing, got:\n%s", out)
	}
}

func testServerConfig() *config.Config {
	return &config.Config{
		Port:           "8000",
		Env:            "production",
		LogFormat:      "json",
		OrgName:        "Riverside Clinic",
		PageNumbers:    "running",
		AuthSigningKey: strings.Repeat("s", 32),
		BodyLimit:      "64K",
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	engine, err := newEngine("", cfg.PageNumbers)
	if err != nil {
		t.Fatal(err)
	}
	metrics := telemetry.New()
	svc := newService(cfg, zerolog.Nop(), engine, exportlog.NopRecorder{}, notes.WithMetrics(metrics))
	e, err := newServer(cfg, zerolog.Nop(), svc, metrics)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func signToken(t *testing.T, key string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "pr-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name: "Robert Smith",
		NPI:  "1234567890",
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestServer_PublicRoutes(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	for _, path := range []string{"/health", "/health/exportlog", "/metrics", "/openapi.json", "/api/v1/export/formats"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: expected request id header", path)
		}
	}
}

func TestServer_ExportRequiresToken(t *testing.T) {
	cfg := testServerConfig()
	srv := newTestServer(t, cfg)
	body := `{"noteText":"**PLAN:**\nRest.","format":"hl7"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes/export", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"login"`) {
		t.Errorf("expected login OperationOutcome, got %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/notes/export", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, cfg.AuthSigningKey))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "1234567890^Smith^Robert") {
		t.Errorf("expected provider from token in PV1, got %q", rec.Body.String())
	}
}

func TestServer_BodyLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.Env = "development"
	srv := newTestServer(t, cfg)

	body := `{"noteText":"` + strings.Repeat("a", 70*1024) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes/parse", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	cfg := testServerConfig()
	cfg.Env = "development"
	srv := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nothing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "OperationOutcome") {
		t.Errorf("expected OperationOutcome body, got %s", rec.Body.String())
	}
}

func TestServer_MetricsCountExports(t *testing.T) {
	cfg := testServerConfig()
	srv := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes/export?format=csv",
		strings.NewReader(`{"noteText":"**PLAN:**\nRest."}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, cfg.AuthSigningKey))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `notexport_exports_total{format="csv"} 1`) {
		t.Errorf("expected csv export counter, got:\n%s", body)
	}
	if !strings.Contains(body, `route="/api/v1/notes/export",status_code="200"`) {
		t.Errorf("expected export route in request histogram, got:\n%s", body)
	}
}
