package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/notexport/internal/config"
	"github.com/ehr/notexport/internal/domain/export"
	"github.com/ehr/notexport/internal/domain/layout"
	"github.com/ehr/notexport/internal/domain/note"
	"github.com/ehr/notexport/internal/domain/notes"
	"github.com/ehr/notexport/internal/platform/exportlog"
	"github.com/ehr/notexport/internal/platform/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:          "notexport",
		Short:        "Clinical note structuring and multi-format export",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to an optional dotenv file")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(exportCmd(opts))
	rootCmd.AddCommand(printCmd(opts))
	rootCmd.AddCommand(parseCmd(opts))
	rootCmd.AddCommand(formatsCmd())
	rootCmd.AddCommand(inspectHL7Cmd())
	rootCmd.AddCommand(exportlogCmd(opts))
	return rootCmd
}

// setup loads configuration and builds a logger writing to w.
func (o *rootOptions) setup(w io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadFile(o.envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := logging.Setup(cfg.LogFormat, cfg.LogLevel, w)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func facilityFromConfig(cfg *config.Config) export.Facility {
	return export.Facility{
		OrganizationName:  cfg.OrgName,
		SendingApp:        cfg.SendingApp,
		SendingFacility:   cfg.SendingFacility,
		ReceivingApp:      cfg.ReceivingApp,
		ReceivingFacility: cfg.ReceivingFacility,
	}
}

// newEngine builds the layout engine from an optional YAML profile and a
// page-number mode. An empty mode keeps the profile's own setting.
func newEngine(profilePath, pageNumbers string) (*layout.Engine, error) {
	profile := layout.DefaultProfile()
	if profilePath != "" {
		p, err := layout.LoadProfile(profilePath)
		if err != nil {
			return nil, err
		}
		profile = p
	}
	if pageNumbers != "" {
		mode, err := layout.ParsePageNumberMode(pageNumbers)
		if err != nil {
			return nil, err
		}
		profile.PageNumbers = mode
	}
	return layout.NewEngine(profile)
}

func openRecorder(ctx context.Context, cfg *config.Config) (exportlog.Recorder, error) {
	rec, err := exportlog.Open(ctx, cfg.ExportLogURL, exportlog.Options{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open export log: %w", err)
	}
	return rec, nil
}

func newService(cfg *config.Config, logger zerolog.Logger, engine *layout.Engine, rec exportlog.Recorder, extra ...notes.ServiceOption) *notes.Service {
	builder := note.NewBuilder(note.NewParser(logger))
	opts := []notes.ServiceOption{
		notes.WithFacility(facilityFromConfig(cfg)),
		notes.WithRecorder(rec),
		notes.WithLogger(logger),
	}
	return notes.NewService(builder, export.NewRegistry(), layout.NewPrinter(engine), append(opts, extra...)...)
}
