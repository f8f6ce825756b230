package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/notexport/internal/platform/fhir"
)

// ErrorHandler renders every error as a FHIR OperationOutcome. Errors that
// are not *echo.HTTPError become 500s with a generic message.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		} else {
			logger.Error().Err(err).
				Str("request_id", requestID(c)).
				Msg("unhandled error")
		}

		outcome := fhir.NewOperationOutcome(fhir.IssueSeverityError, issueType(code), msg)
		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, outcome)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func issueType(code int) string {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fhir.IssueTypeInvalid
	case http.StatusUnauthorized:
		return fhir.IssueTypeLogin
	case http.StatusForbidden:
		return fhir.IssueTypeSecurity
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return fhir.IssueTypeNotSupported
	case http.StatusRequestEntityTooLarge:
		return fhir.IssueTypeTooLong
	case http.StatusTooManyRequests:
		return fhir.IssueTypeThrottled
	}
	return fhir.IssueTypeException
}

func requestID(c echo.Context) string {
	rid, _ := c.Get(RequestIDKey).(string)
	return rid
}
