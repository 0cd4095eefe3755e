package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ericksa/contractrisk/internal/risk"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRulesCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the risk rule table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeRules(cmd.OutOrStdout(), output, risk.DefaultRules().Describe())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (yaml|json)")
	return cmd
}

func writeRules(w io.Writer, format string, rules []risk.RuleInfo) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rules); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rules)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
