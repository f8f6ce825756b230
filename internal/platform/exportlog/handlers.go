package exportlog

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/notexport/pkg/pagination"
)

// HealthHandler reports whether the export log backend is reachable.
func HealthHandler(r Recorder) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		if err := r.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":  "unhealthy",
				"backend": r.Backend(),
				"error":   err.Error(),
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"backend": r.Backend(),
		})
	}
}

// ListHandler serves recorded export metadata newest first, paged with
// limit and offset.
func ListHandler(r Recorder) echo.HandlerFunc {
	return func(c echo.Context) error {
		page := pagination.FromContext(c)
		entries, total, err := r.List(c.Request().Context(), page.Limit, page.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "export log unavailable")
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, page, c.Request().URL.Path))
	}
}
