package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/repository"
	"EstateDesk/internal/services/compliance"
	"EstateDesk/internal/usecase"
)

var (
	auditFormat string
	auditAsOf   string
	auditRisky  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print a compliance report for the property file",
	Example: `  estatedesk audit
  estatedesk audit --risky --format json
  estatedesk audit --as-of 2025-06-15 --format csv`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().StringVar(&auditFormat, "format", "table", "output format: table, json, csv")
	auditCmd.Flags().StringVar(&auditAsOf, "as-of", "", "evaluate as of this date (YYYY-MM-DD); default today")
	auditCmd.Flags().BoolVar(&auditRisky, "risky", false, "only properties with URGENT or WARNING flags")
}

// evaluatorFor returns an evaluator pinned to asOf, or the wall clock.
func evaluatorFor(asOf string) (*compliance.Evaluator, error) {
	if asOf == "" {
		return compliance.NewEvaluator(), nil
	}
	t, err := time.Parse("2006-01-02", asOf)
	if err != nil {
		return nil, fmt.Errorf("--as-of: %w", err)
	}
	return compliance.NewEvaluator(compliance.WithClock(func() time.Time { return t })), nil
}

func runAudit(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := repository.LoadPropertyStore(cfg.Data.PropertiesFile, cfg.Data.Portfolios)
	if err != nil {
		return err
	}
	evaluator, err := evaluatorFor(auditAsOf)
	if err != nil {
		return err
	}
	props, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	analyzed := evaluator.AnalyzeAll(props)
	if auditRisky {
		analyzed = compliance.RiskMapProperties(analyzed)
	}
	return writeAudit(cmd.OutOrStdout(), auditFormat, analyzed)
}

func writeAudit(w io.Writer, format string, props []models.Property) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(props)
	case "csv":
		_, err := fmt.Fprintln(w, usecase.PropertiesCSV(props))
		return err
	case "table":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tLOCATION\tFLAGS")
	for _, p := range props {
		flags := make([]string, 0, len(p.ComplianceFlags))
		for _, f := range p.ComplianceFlags {
			flags = append(flags, fmt.Sprintf("%s:%s", f.Type, f.Severity))
		}
		if len(flags) == 0 {
			flags = append(flags, "-")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s, %s\t%s\n", p.ID, p.Title, p.City, p.State, strings.Join(flags, " "))
	}
	return tw.Flush()
}
