// Command riskctl scores contract documents from the shell and prints
// reports over the contracts stored by the server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "riskctl",
		Short: "Contract risk analysis from the command line",
		Long: "Scores PDF, Word, HTML and text contracts against the built-in risk rules\n" +
			"and reports on the contracts stored by the contract risk server.",
		SilenceUsage: true,
	}
	root.AddCommand(newAnalyzeCmd(), newRulesCmd(), newReportCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
