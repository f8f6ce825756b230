package notes

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/ehr/notexport/internal/domain/export"
	"github.com/ehr/notexport/internal/domain/layout"
	"github.com/ehr/notexport/internal/domain/note"
	"github.com/ehr/notexport/internal/platform/auth"
	"github.com/ehr/notexport/internal/platform/fhir"
)

var validate = validator.New()

// Handler serves the /notes and /export endpoints.
type Handler struct {
	svc *Service
}

// NewHandler returns a Handler backed by svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the endpoints on api, normally the /api/v1 group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/export/formats", h.ListFormats)

	api.POST("/notes/parse", h.ParseNote)
	api.POST("/notes/export", h.ExportNote)
	api.POST("/notes/export/batch", h.ExportBatch)
	api.POST("/notes/print", h.PrintNote)
}

// ListFormats returns the registered export formats in presentation order.
func (h *Handler) ListFormats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Formats())
}

func (h *Handler) ParseNote(c echo.Context) error {
	var in note.Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doc, err := h.svc.Parse(in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) ExportNote(c echo.Context) error {
	var req ExportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Format == "" {
		req.Format = c.QueryParam("format")
	}
	if req.Format == "" {
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome("format", "format is required"))
	}
	providerFromPrincipal(c, &req.Input)

	res, err := h.svc.Export(c.Request().Context(), req.Input, req.Format)
	if err != nil {
		return h.fail(c, err)
	}
	return blob(c, res)
}

func (h *Handler) ExportBatch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return h.fail(c, err)
	}
	providerFromPrincipal(c, &req.Input)

	results, err := h.svc.ExportBatch(c.Request().Context(), req.Input, req.Formats)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, newBatchResponse(results))
}

// PrintNote returns the rendered PDF, or the page model as JSON when
// ?output=layout is given.
func (h *Handler) PrintNote(c echo.Context) error {
	var in note.Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	providerFromPrincipal(c, &in)

	switch c.QueryParam("output") {
	case "", "pdf":
	case "layout":
		laid, err := h.svc.Layout(in)
		if err != nil {
			return h.fail(c, err)
		}
		return c.JSON(http.StatusOK, laid)
	default:
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("output must be pdf or layout"))
	}

	res, err := h.svc.Print(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return blob(c, res)
}

func blob(c echo.Context, res *export.Result) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", res.Filename))
	return c.Blob(http.StatusOK, res.MimeType, res.Content)
}

// providerFromPrincipal fills the provider from the verified token when
// the request does not name one.
func providerFromPrincipal(c echo.Context, in *note.Input) {
	if in.Provider != nil {
		return
	}
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return
	}
	in.Provider = &note.ProviderInfo{ID: p.Subject, Name: p.Name, NationalProviderID: p.NPI}
}

// fail maps service errors onto OperationOutcome responses. Anything not
// recognised is passed to the echo error handler as a 500.
func (h *Handler) fail(c echo.Context, err error) error {
	var unsupported *export.UnsupportedFormatError
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &unsupported):
		return c.JSON(http.StatusBadRequest, fhir.NotSupportedOutcome(unsupported.Error()))
	case errors.Is(err, note.ErrEmptyNote):
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome("noteText", "note text is empty"))
	case errors.As(err, &verrs):
		outcome := fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeInvalid, "request validation failed")
		for _, fe := range verrs {
			outcome.AddIssue(fhir.IssueSeverityError, fhir.IssueTypeValue,
				fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()), jsonPath(fe.Namespace()))
		}
		return c.JSON(http.StatusBadRequest, outcome)
	case errors.Is(err, layout.ErrInvalidProfile):
		return echo.NewHTTPError(http.StatusInternalServerError, "layout profile is invalid")
	}
	return err
}

// jsonPath drops the root type from a validator namespace.
func jsonPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
