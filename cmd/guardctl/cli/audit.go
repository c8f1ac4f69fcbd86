package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/guardpost/guardpost/internal/audit"
	"github.com/guardpost/guardpost/internal/shared"
)

const dateLayout = "2006-01-02"

// AuditSource returns every audit entry matching the filters.
type AuditSource interface {
	Export(ctx context.Context, filters audit.Filters) ([]audit.Entry, error)
}

type exportOptions struct {
	format    string
	actor     string
	operation string
	from      string
	to        string
	output    string
}

func newAuditCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Work with the audit trail",
	}
	var opts exportOptions
	export := &cobra.Command{
		Use:   "export",
		Short: "Export audit entries as CSV or JSON",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, env *Env, _ []string) error {
			return runExport(cmd, env, opts)
		}),
	}
	f := export.Flags()
	f.StringVar(&opts.format, "format", "csv", "csv or json")
	f.StringVar(&opts.actor, "actor", "", "actor name contains")
	f.StringVar(&opts.operation, "operation", "", "operation contains")
	f.StringVar(&opts.from, "from", "", "first day, YYYY-MM-DD")
	f.StringVar(&opts.to, "to", "", "last day, YYYY-MM-DD")
	f.StringVarP(&opts.output, "out", "o", "", "write to file instead of stdout")
	cmd.AddCommand(export)
	return cmd
}

func runExport(cmd *cobra.Command, env *Env, opts exportOptions) error {
	format := strings.ToLower(strings.TrimSpace(opts.format))
	if format != "csv" && format != "json" {
		return fmt.Errorf("unsupported format %q", opts.format)
	}
	filters, err := exportFilters(opts, env.Location)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	entries, err := env.Audit.Export(ctx, filters)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	exporter := audit.NewExporter(env.Location)
	var body []byte
	if format == "json" {
		body, err = exporter.WriteJSON(entries)
	} else {
		body, err = exporter.WriteCSV(entries)
	}
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	if opts.output == "" {
		if _, err := cmd.OutOrStdout().Write(body); err != nil {
			return err
		}
	} else {
		if err := os.WriteFile(opts.output, body, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d entries to %s\n", len(entries), opts.output)
	}

	env.Auditor.Record(ctx, shared.OpExportLogs, shared.EntityLog,
		fmt.Sprintf("Exportação de %d registros de log em %s via guardctl.", len(entries), strings.ToUpper(format)),
		map[string]any{
			"formato": format,
			"filtros": map[string]string{"actor": opts.actor, "operation": opts.operation, "from": opts.from, "to": opts.to},
		})
	return nil
}

// exportFilters reads the date bounds as whole days in loc; to is inclusive.
func exportFilters(opts exportOptions, loc *time.Location) (audit.Filters, error) {
	filters := audit.Filters{
		Actor:     strings.TrimSpace(opts.actor),
		Operation: strings.TrimSpace(opts.operation),
	}
	if opts.from != "" {
		from, err := time.ParseInLocation(dateLayout, opts.from, loc)
		if err != nil {
			return filters, fmt.Errorf("invalid --from %q", opts.from)
		}
		filters.From = from
	}
	if opts.to != "" {
		to, err := time.ParseInLocation(dateLayout, opts.to, loc)
		if err != nil {
			return filters, fmt.Errorf("invalid --to %q", opts.to)
		}
		filters.To = to.AddDate(0, 0, 1)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && !filters.From.Before(filters.To) {
		return filters, errors.New("--from must not be after --to")
	}
	return filters, nil
}
