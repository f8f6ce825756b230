package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/notexport/internal/config"
	"github.com/ehr/notexport/internal/domain/notes"
	"github.com/ehr/notexport/internal/platform/auth"
	"github.com/ehr/notexport/internal/platform/exportlog"
	"github.com/ehr/notexport/internal/platform/middleware"
	"github.com/ehr/notexport/internal/platform/openapi"
	"github.com/ehr/notexport/internal/platform/telemetry"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the export API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runServer(cfg, logger)
		},
	}
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("running without token verification (ENV=development); do not use in production")
	}

	ctx := context.Background()
	rec, err := openRecorder(ctx, cfg)
	if err != nil {
		return err
	}
	defer rec.Close()
	if err := rec.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("export log schema: %w", err)
	}
	logger.Info().Str("backend", rec.Backend()).Msg("export log ready")

	engine, err := newEngine(cfg.LayoutProfile, cfg.PageNumbers)
	if err != nil {
		return err
	}
	metrics := telemetry.New()
	svc := newService(cfg, logger, engine, rec, notes.WithMetrics(metrics))
	e, err := newServer(cfg, logger, svc, metrics)
	if err != nil {
		return err
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires middleware and routes. It does not listen.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *notes.Service, metrics *telemetry.Metrics) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		jwtCfg := auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}
		if cfg.AuthPublicKey != "" {
			key, err := auth.ParsePublicKey(cfg.AuthPublicKey)
			if err != nil {
				return nil, err
			}
			jwtCfg.PublicKey = key
		}
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/exportlog", exportlog.HealthHandler(svc.Recorder()))
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")
	notes.NewHandler(svc).RegisterRoutes(apiV1)
	apiV1.GET("/exports", exportlog.ListHandler(svc.Recorder()))

	formats := make([]string, 0, len(svc.Formats()))
	for _, f := range svc.Formats() {
		formats = append(formats, string(f.Key))
	}
	openapi.NewGenerator(version, formats).RegisterRoutes(e)

	return e, nil
}
