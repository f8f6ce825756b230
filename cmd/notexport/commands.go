package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/notexport/internal/domain/export"
	"github.com/ehr/notexport/internal/domain/note"
	"github.com/ehr/notexport/internal/platform/exportlog"
	"github.com/ehr/notexport/internal/platform/fhir"
	"github.com/ehr/notexport/internal/platform/hl7v2"
)

// inputFlags are the note inputs shared by export, print and parse.
type inputFlags struct {
	in        string
	html      bool
	codes     string
	patient   string
	provider  string
	encounter string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.in, "in", "-", "Note text file, - for stdin")
	cmd.Flags().BoolVar(&f.html, "html", false, "Treat the input as HTML")
	cmd.Flags().StringVar(&f.codes, "codes", "", "JSON file with diagnosticCodes, procedureCodes and miscCodes")
	cmd.Flags().StringVar(&f.patient, "patient", "", "JSON file with patient demographics")
	cmd.Flags().StringVar(&f.provider, "provider", "", "JSON file with provider details")
	cmd.Flags().StringVar(&f.encounter, "encounter", "", "Encounter identifier")
}

type codeFile struct {
	DiagnosticCodes []note.CodeEntry `json:"diagnosticCodes"`
	ProcedureCodes  []note.CodeEntry `json:"procedureCodes"`
	MiscCodes       []note.CodeEntry `json:"miscCodes"`
}

func (f *inputFlags) input(cmd *cobra.Command) (note.Input, error) {
	var in note.Input
	raw, err := readSource(cmd, f.in)
	if err != nil {
		return in, err
	}
	if f.html {
		in.HTML = string(raw)
	} else {
		in.Text = string(raw)
	}
	in.EncounterID = f.encounter

	if f.codes != "" {
		var codes codeFile
		if err := readJSON(f.codes, &codes); err != nil {
			return in, err
		}
		in.DiagnosticCodes = codes.DiagnosticCodes
		in.ProcedureCodes = codes.ProcedureCodes
		in.MiscCodes = codes.MiscCodes
	}
	if f.patient != "" {
		in.Patient = &note.PatientInfo{}
		if err := readJSON(f.patient, in.Patient); err != nil {
			return in, err
		}
	}
	if f.provider != "" {
		in.Provider = &note.ProviderInfo{}
		if err := readJSON(f.provider, in.Provider); err != nil {
			return in, err
		}
	}
	return in, nil
}

func readSource(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeResults(cmd *cobra.Command, dir string, results []*export.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, res := range results {
		path := filepath.Join(dir, res.Filename)
		if err := os.WriteFile(path, res.Content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(res.Content))
	}
	return nil
}

// validateResult re-reads machine formats with the same code a receiver
// would use.
func validateResult(res *export.Result) error {
	switch res.Format {
	case export.FormatFHIR:
		return fhir.ValidateDocumentReference(res.Content)
	case export.FormatHL7:
		_, err := hl7v2.Parse(res.Content)
		return err
	}
	return nil
}

func exportCmd(opts *rootOptions) *cobra.Command {
	var (
		flags    inputFlags
		format   string
		out      string
		validate bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a note to one or more formats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			in, err := flags.input(cmd)
			if err != nil {
				return err
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

			engine, err := newEngine(cfg.LayoutProfile, cfg.PageNumbers)
			if err != nil {
				return err
			}
			svc := newService(cfg, logger, engine, rec)

			var names []string
			if !strings.EqualFold(format, "all") {
				for _, name := range strings.Split(format, ",") {
					names = append(names, strings.TrimSpace(name))
				}
			}
			results, err := svc.ExportBatch(ctx, in, names)
			if err != nil {
				return err
			}
			if validate {
				for _, res := range results {
					if err := validateResult(res); err != nil {
						return fmt.Errorf("%s output failed validation: %w", res.Format, err)
					}
				}
			}
			return writeResults(cmd, out, results)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", "all", "Format key or name, comma separated list, or all")
	cmd.Flags().StringVar(&out, "out", ".", "Output directory")
	cmd.Flags().BoolVar(&validate, "validate", false, "Validate FHIR and HL7 output before writing")
	return cmd
}

func printCmd(opts *rootOptions) *cobra.Command {
	var (
		flags       inputFlags
		out         string
		profile     string
		pageNumbers string
		layoutJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Lay out a note and render it to PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			in, err := flags.input(cmd)
			if err != nil {
				return err
			}
			if profile == "" {
				profile = cfg.LayoutProfile
			}
			if pageNumbers == "" {
				pageNumbers = cfg.PageNumbers
			}
			engine, err := newEngine(profile, pageNumbers)
			if err != nil {
				return err
			}

			svc := newService(cfg, logger, engine, exportlog.NopRecorder{})
			if layoutJSON {
				laid, err := svc.Layout(in)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(laid)
			}

			res, err := svc.Print(context.Background(), in)
			if err != nil {
				return err
			}
			return writeResults(cmd, out, []*export.Result{res})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&out, "out", ".", "Output directory")
	cmd.Flags().StringVar(&profile, "profile", "", "YAML layout profile (defaults to LAYOUT_PROFILE)")
	cmd.Flags().StringVar(&pageNumbers, "page-numbers", "", "Footer page numbers: running or literal")
	cmd.Flags().BoolVar(&layoutJSON, "layout-json", false, "Print the page model as JSON instead of rendering")
	return cmd
}

func parseCmd(opts *rootOptions) *cobra.Command {
	var flags inputFlags
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Print the structured form of a note as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := opts.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			in, err := flags.input(cmd)
			if err != nil {
				return err
			}
			doc, err := note.NewBuilder(note.NewParser(logger)).Build(in)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
	flags.register(cmd)
	return cmd
}

func formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List export formats",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-8s %-24s %-24s %s\n", "KEY", "NAME", "MIME TYPE", "EXT")
			for _, f := range export.NewRegistry().Formats() {
				fmt.Fprintf(w, "%-8s %-24s %-24s %s\n", f.Key, f.Name, f.MimeType, f.Extension)
			}
			return nil
		},
	}
}

func inspectHL7Cmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect-hl7 [file]",
		Short: "Summarise an HL7 v2 note message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			raw, err := readSource(cmd, path)
			if err != nil {
				return err
			}
			msg, err := hl7v2.Parse(raw)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Type:       %s\n", msg.Type)
			fmt.Fprintf(w, "Control ID: %s\n", msg.ControlID)
			fmt.Fprintf(w, "Version:    %s\n", msg.Version)
			if !msg.Timestamp.IsZero() {
				fmt.Fprintf(w, "Timestamp:  %s\n", msg.Timestamp.Format(time.RFC3339))
			}
			fmt.Fprintf(w, "Sending:    %s / %s\n", msg.SendingApp, msg.SendingFac)
			fmt.Fprintf(w, "Receiving:  %s / %s\n", msg.ReceivingApp, msg.ReceivingFac)
			for _, s := range msg.Segments {
				fmt.Fprintf(w, "  %-4s %d fields\n", s.Name, len(s.Fields))
			}
			for _, dg1 := range msg.SegmentsByName("DG1") {
				fmt.Fprintf(w, "Diagnosis:  %s %s\n", dg1.Component(3, 1), dg1.Component(3, 2))
			}
			fmt.Fprintln(w, "--- note text ---")
			fmt.Fprintln(w, msg.NoteText())
			return nil
		},
	}
}

func exportlogCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exportlog",
		Short: "Manage the export log",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the export log table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.ExportLogURL == "" {
				return fmt.Errorf("EXPORT_LOG_URL is not set")
			}
			ctx := context.Background()
			rec, err := openRecorder(ctx, cfg)
			if err != nil {
				return err
			}
			defer rec.Close()
			if err := rec.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Export log schema ready (%s).\n", rec.Backend())
			return nil
		},
	})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show recorded exports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			cfg, _, err := opts.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := context.Background()
			rec, err := openRecorder(ctx, cfg)
			if err != nil {
				return err
			}
			defer rec.Close()
			entries, total, err := rec.List(ctx, limit, offset)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-20s %-8s %-40s %s\n", "CREATED AT", "FORMAT", "FILENAME", "BYTES")
			for _, e := range entries {
				fmt.Fprintf(w, "%-20s %-8s %-40s %d\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Format, e.Filename, e.Bytes)
			}
			fmt.Fprintf(w, "%d of %d export(s)\n", len(entries), total)
			return nil
		},
	}
	listCmd.Flags().Int("limit", 20, "Number of entries to show")
	listCmd.Flags().Int("offset", 0, "Number of entries to skip")
	cmd.AddCommand(listCmd)

	return cmd
}
