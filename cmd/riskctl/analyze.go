package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ericksa/contractrisk/internal/extract"
	"github.com/ericksa/contractrisk/internal/risk"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// fileResult is the outcome for one file passed to analyze.
type fileResult struct {
	File      string       `json:"file" yaml:"file"`
	RiskLevel risk.Band    `json:"riskLevel,omitempty" yaml:"riskLevel,omitempty"`
	Report    *risk.Report `json:"report,omitempty" yaml:"report,omitempty"`
	Error     string       `json:"error,omitempty" yaml:"error,omitempty"`
}

func newAnalyzeCmd() *cobra.Command {
	var (
		output   string
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Extract text from contract files and score them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if parallel < 1 {
				return fmt.Errorf("--parallel must be at least 1")
			}
			results := analyzeFiles(risk.NewClassifier(nil), args, parallel)
			if err := writeResults(cmd.OutOrStdout(), output, results); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be analyzed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text|json|yaml)")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "Number of files analyzed at once")
	return cmd
}

// analyzeFiles scores every path, keeping the input order. A failing file
// is recorded in its result and does not stop the others.
func analyzeFiles(c *risk.Classifier, paths []string, parallel int) []fileResult {
	results := make([]fileResult, len(paths))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = analyzeFile(c, path)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func analyzeFile(c *risk.Classifier, path string) fileResult {
	res := fileResult{File: path}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = fmt.Sprintf("failed to read file: %v", err)
		return res
	}
	text, err := extract.Extract(filepath.Base(path), data)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	report := c.Analyze(text)
	res.Report = &report
	res.RiskLevel = risk.BandFor(report.RiskScore)
	return res
}

func writeResults(w io.Writer, format string, results []fileResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(w, "%s: ERROR %s\n", r.File, r.Error)
				continue
			}
			fmt.Fprintf(w, "%s: score %d (%s), %d risks, %d words\n",
				r.File, r.Report.RiskScore, r.RiskLevel, r.Report.RiskCount, r.Report.WordCount)
			for _, f := range r.Report.Risks {
				fmt.Fprintf(w, "  [%-6s] %-22s x%d  %s\n", f.Severity, f.Type, f.Occurrences, f.Description)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
