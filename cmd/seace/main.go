// Package main provides the command-line validator for SEACE workbooks.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/seace/internal/application"
	"github.com/JonMunkholm/seace/internal/config"
	"github.com/JonMunkholm/seace/internal/core"
	"github.com/JonMunkholm/seace/internal/logging"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitRuntimeError    = 2
)

const dayLayout = "2006-01-02"

func main() {
	_ = godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration:", err)
		os.Exit(ExitRuntimeError)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	root := newRootCmd(os.Stdout, func(ctx context.Context) (*application.App, error) {
		return application.New(ctx, cfg)
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var ce *core.Error
	if errors.As(err, &ce) && ce.Kind == core.MissingColumnsError {
		return ExitValidationError
	}
	return ExitRuntimeError
}

// opener builds the application for a command.
type opener func(ctx context.Context) (*application.App, error)

type cli struct {
	out     io.Writer
	open    opener
	profile string
	verbose bool

	output   string
	entities []string
	objects  []string
	from     string
	to       string
	mailTo   string
	archive  bool
}

func newRootCmd(out io.Writer, open opener) *cobra.Command {
	c := &cli{out: out, open: open}

	root := &cobra.Command{
		Use:   "seace",
		Short: "Validate and filter SEACE procurement workbooks",
		Long: `seace checks SEACE process workbooks (.xls or .xlsx) against a header
profile, renames recognized headers to their canonical names and exports the
filtered rows as procesos_validado.xlsx.

Examples:
  # Check a workbook against the default profile
  seace validate procesos.xlsx

  # Export the "Bien" processes of one entity published in March
  seace export procesos.xlsx --entity "MUNI LIMA" --object Bien \
      --from 2024-03-01 --to 2024-03-31 -o marzo.xlsx`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if c.verbose {
				logging.Setup("debug", "text")
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&c.profile, "profile", "p", "", "header profile (default: RULES_PROFILE or the first profile)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a workbook against a header profile",
		Long: `Parse a workbook, map its headers and check the required fields.

Exit codes:
  0 - Workbook is valid
  1 - Required columns are missing
  2 - The file could not be read or parsed`,
		Args: cobra.ExactArgs(1),
		RunE: c.runValidate,
	}

	exportCmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write, mail or archive the filtered workbook",
		Long: `Validate a workbook, apply the filters and export the matching rows.

Without filters every row is exported. Dates are inclusive calendar days in
YYYY-MM-DD form; a missing bound takes the earliest or latest date found.`,
		Args: cobra.ExactArgs(1),
		RunE: c.runExport,
	}
	exportCmd.Flags().StringVarP(&c.output, "output", "o", core.ExportFileName, "output path, empty to skip writing")
	exportCmd.Flags().StringSliceVar(&c.entities, "entity", nil, "entity to keep (repeatable)")
	exportCmd.Flags().StringSliceVar(&c.objects, "object", nil, "contract object to keep (repeatable)")
	exportCmd.Flags().StringVar(&c.from, "from", "", "first publication day (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&c.to, "to", "", "last publication day (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&c.mailTo, "mail-to", "", "also mail the workbook to this address")
	exportCmd.Flags().BoolVar(&c.archive, "archive", false, "also store the workbook in the archive bucket")

	profilesCmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the configured header profiles",
		Args:  cobra.NoArgs,
		RunE:  c.runProfiles,
	}

	root.AddCommand(validateCmd, exportCmd, profilesCmd)
	return root
}

// load opens the application and ingests path into a fresh session.
func (c *cli) load(ctx context.Context, path string) (*application.App, *core.Session, error) {
	app, err := c.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		app.Close()
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	ds, err := app.Service.Ingest(ctx, filepath.Base(path), data, c.profile)
	if err != nil {
		app.Close()
		c.printError(err)
		return nil, nil, err
	}
	sess := core.NewSession()
	sess.SetDataset(ds)
	return app, sess, nil
}

func (c *cli) runValidate(cmd *cobra.Command, args []string) error {
	app, sess, err := c.load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer app.Close()

	ds := sess.Dataset()
	fmt.Fprintf(c.out, "✓ %s es válido (perfil %s)\n", ds.FileName, ds.Profile.Name)
	fmt.Fprintf(c.out, "  Filas: %d\n  Columnas: %d\n", ds.Table.Len(), len(ds.Table.Columns))
	for _, r := range ds.Report.Headers.Renames {
		fmt.Fprintf(c.out, "  Renombrada: %q -> %q\n", r.From, r.To)
	}
	for _, cf := range ds.Report.Headers.Conflicts {
		fmt.Fprintf(c.out, "  Conflicto: %q ya usado por %q, queda como %q\n", cf.Canonical, cf.KeptBy, cf.Renamed)
	}
	fmt.Fprintf(c.out, "  Fechas: %d válidas, %d vacías, %d inválidas\n", ds.Dates.Parsed, ds.Dates.Missing-ds.Dates.Invalid, ds.Dates.Invalid)
	return nil
}

func (c *cli) runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	criteria, err := c.criteria()
	if err != nil {
		return err
	}

	app, sess, err := c.load(ctx, args[0])
	if err != nil {
		return err
	}
	defer app.Close()

	criteria = fillBounds(criteria, sess.Dataset())
	rows := sess.Dataset().Filter(criteria).Len()
	fmt.Fprintf(c.out, "%d de %d filas coinciden con los filtros.\n", rows, sess.Dataset().Table.Len())

	if c.output != "" {
		data, err := app.Service.Download(ctx, sess, criteria)
		if err != nil {
			return err
		}
		if err := os.WriteFile(c.output, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", c.output, err)
		}
		fmt.Fprintf(c.out, "Escrito %s\n", c.output)
	}

	if c.mailTo != "" {
		res, err := app.Service.SendMail(ctx, sess, core.MailRequest{
			Token:    sess.Mail().Token(),
			To:       c.mailTo,
			Criteria: criteria,
		})
		if err != nil {
			c.printError(err)
			return err
		}
		fmt.Fprintf(c.out, "Correo enviado a %s con %d filas.\n", res.To, res.Rows)
	}

	if c.archive {
		res, err := app.Service.Archive(ctx, sess, criteria)
		if err != nil {
			c.printError(err)
			return err
		}
		fmt.Fprintf(c.out, "Archivado en %s\n  %s\n", res.Key, res.URL)
	}
	return nil
}

func (c *cli) runProfiles(cmd *cobra.Command, _ []string) error {
	app, err := c.open(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	rules := app.Rules
	for _, p := range rules.Profiles {
		marker := " "
		if p.Name == rules.DefaultProfile {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s %-10s %s (%d obligatorios)\n", marker, p.Name, p.Label, len(p.Required))
	}
	return nil
}

// criteria builds the filter from the flags. Date bounds are validated here;
// missing bounds are filled once the dataset is known.
func (c *cli) criteria() (core.Criteria, error) {
	crit := core.Criteria{Entities: c.entities, Objects: c.objects}
	if c.from == "" && c.to == "" {
		return crit, nil
	}
	var r core.DateRange
	var err error
	if c.from != "" {
		if r.From, err = time.Parse(dayLayout, c.from); err != nil {
			return crit, fmt.Errorf("--from: %w", err)
		}
	}
	if c.to != "" {
		if r.To, err = time.Parse(dayLayout, c.to); err != nil {
			return crit, fmt.Errorf("--to: %w", err)
		}
	}
	crit.Dates = &r
	return crit, nil
}

// fillBounds replaces a zero date bound with the observed extreme and orders
// the range. Without observed dates the range is kept and matches no row.
func fillBounds(c core.Criteria, ds *core.Dataset) core.Criteria {
	if c.Dates == nil {
		return c
	}
	opts := ds.Options()
	if !opts.HasDates {
		return c
	}
	r := *c.Dates
	if r.From.IsZero() {
		r.From = opts.MinDate
	}
	if r.To.IsZero() {
		r.To = opts.MaxDate
	}
	if r.To.Before(r.From) {
		r.From, r.To = r.To, r.From
	}
	c.Dates = &r
	return c
}

func (c *cli) printError(err error) {
	var ce *core.Error
	if errors.As(err, &ce) && len(ce.Missing) > 0 {
		fmt.Fprintln(c.out, "✗ Faltan columnas obligatorias:")
		for _, m := range ce.Missing {
			fmt.Fprintf(c.out, "  - %s\n", m)
		}
	}
	if msg := core.FormatUserError(err); msg != "" {
		fmt.Fprintln(c.out, msg)
	}
	slog.Debug("command failed", "error", err)
}
