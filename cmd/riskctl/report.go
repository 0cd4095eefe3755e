package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/ericksa/contractrisk/internal/config"
	"github.com/ericksa/contractrisk/internal/risk"
	"github.com/ericksa/contractrisk/internal/store"
	"github.com/spf13/cobra"
)

// RiskReport summarizes the stored contracts by risk band.
type RiskReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Stats       store.Stats       `json:"stats"`
	High        []store.Contract  `json:"high"`
	Medium      []store.Contract  `json:"medium"`
	Low         []store.Contract  `json:"low"`
	Unscored    []store.Contract  `json:"unscored"`
	TopRisks    []store.TypeCount `json:"top_risks"`
}

func newReportCmd() *cobra.Command {
	var (
		output string
		driver string
		dsn    string
		top    int
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize stored contracts by risk level",
		Long: "Reads the contract database used by the server and groups contracts into\n" +
			"high, medium and low risk bands.\n\n" +
			"--output accepts console, json, or a file path ending in .json or .md.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if driver != "" {
				cfg.Database.Driver = driver
			}
			if dsn != "" {
				cfg.Database.DSN = dsn
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			report, err := generateReport(ctx, st, top, time.Now())
			if err != nil {
				return fmt.Errorf("failed to generate report: %w", err)
			}
			return writeReport(cmd.OutOrStdout(), output, report)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "console", "Output format: console, json, or file path")
	cmd.Flags().StringVar(&driver, "driver", "", "Database driver (default: from config)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Database DSN (default: from config)")
	cmd.Flags().IntVar(&top, "top", 5, "Number of most frequent risk types to list")
	return cmd
}

func generateReport(ctx context.Context, st *store.Store, top int, now time.Time) (*RiskReport, error) {
	stats, err := st.Stats(ctx)
	if err != nil {
		return nil, err
	}
	contracts, err := st.ListContracts(ctx)
	if err != nil {
		return nil, err
	}
	topRisks, err := st.TopRiskTypes(ctx, top)
	if err != nil {
		return nil, err
	}

	report := &RiskReport{
		GeneratedAt: now,
		Stats:       stats,
		High:        []store.Contract{},
		Medium:      []store.Contract{},
		Low:         []store.Contract{},
		Unscored:    []store.Contract{},
		TopRisks:    topRisks,
	}
	for _, c := range contracts {
		if c.Status != store.StatusAnalyzed {
			report.Unscored = append(report.Unscored, c)
			continue
		}
		switch risk.BandFor(c.RiskScore) {
		case risk.BandHigh:
			report.High = append(report.High, c)
		case risk.BandMedium:
			report.Medium = append(report.Medium, c)
		default:
			report.Low = append(report.Low, c)
		}
	}
	return report, nil
}

func writeReport(w io.Writer, output string, report *RiskReport) error {
	switch {
	case output == "console":
		printConsoleReport(w, report)
		return nil
	case output == "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case strings.HasSuffix(output, ".json"):
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	case strings.HasSuffix(output, ".md"):
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		if err := markdownTemplate.Execute(f, report); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown output %q", output)
	}
	fmt.Fprintf(w, "Report written to: %s\n", output)
	return nil
}

func printConsoleReport(w io.Writer, report *RiskReport) {
	rule := strings.Repeat("=", 64)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "                    CONTRACT RISK REPORT")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Generated: %s\n\n", report.GeneratedAt.Format("Mon Jan 2, 2006 3:04 PM"))

	fmt.Fprintf(w, "  Contracts analyzed: %4d\n", report.Stats.ContractsAnalyzed)
	fmt.Fprintf(w, "  Risks detected:     %4d\n", report.Stats.RisksDetected)
	fmt.Fprintf(w, "  Active vendors:     %4d\n", report.Stats.ActiveVendors)

	sections := []struct {
		title     string
		contracts []store.Contract
	}{
		{"HIGH RISK", report.High},
		{"MEDIUM RISK", report.Medium},
		{"LOW RISK", report.Low},
		{"NOT SCORED", report.Unscored},
	}
	for _, s := range sections {
		if len(s.contracts) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s (%d)\n", s.title, len(s.contracts))
		fmt.Fprintln(w, strings.Repeat("-", 64))
		for _, c := range s.contracts {
			fmt.Fprintf(w, "  #%-5d %-40s score %3d  %s\n", c.ID, c.OriginalName, c.RiskScore, c.Status)
		}
	}

	if len(report.TopRisks) > 0 {
		fmt.Fprintln(w, "\nMOST FREQUENT RISKS")
		fmt.Fprintln(w, strings.Repeat("-", 64))
		for _, t := range report.TopRisks {
			fmt.Fprintf(w, "  %-24s %-6s %d contracts\n", t.Type, t.Severity, t.Count)
		}
	}
	fmt.Fprintln(w)
}

var markdownTemplate = template.Must(template.New("report").Parse(`# Contract Risk Report
**Generated:** {{.GeneratedAt.Format "Mon Jan 2, 2006 3:04 PM"}}

## Summary

| Metric | Count |
|--------|-------|
| Contracts analyzed | {{.Stats.ContractsAnalyzed}} |
| Risks detected | {{.Stats.RisksDetected}} |
| Active vendors | {{.Stats.ActiveVendors}} |
{{define "contracts"}}
| ID | Contract | Score | Uploaded |
|----|----------|-------|----------|
{{- range .}}
| {{.ID}} | {{.OriginalName}} | {{.RiskScore}} | {{.UploadDate.Format "Jan 2, 2006"}} |
{{- end}}
{{end}}
{{- if .High}}
## High Risk ({{len .High}})
{{template "contracts" .High}}{{end}}
{{- if .Medium}}
## Medium Risk ({{len .Medium}})
{{template "contracts" .Medium}}{{end}}
{{- if .Low}}
## Low Risk ({{len .Low}})
{{template "contracts" .Low}}{{end}}
{{- if .Unscored}}
## Not Scored ({{len .Unscored}})
{{template "contracts" .Unscored}}{{end}}
{{- if .TopRisks}}
## Most Frequent Risks

| Risk | Severity | Contracts |
|------|----------|-----------|
{{- range .TopRisks}}
| {{.Type}} | {{.Severity}} | {{.Count}} |
{{- end}}
{{end}}`))
