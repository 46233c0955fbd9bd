// triagectl runs the triage engine from the command line: classify alert
// text, print runbooks and render the summary a contact would receive.
//
// Usage:
//
//	triagectl classify <text...> [--json]
//	triagectl runbook <system> <symptom> [--env production]
//	triagectl summary <text...> --recipient <key> [--directory file] [--detected-at RFC3339]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "triagectl",
		Short:         "Operator tools for the firstline triage engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newClassifyCmd(), newRunbookCmd(), newSummaryCmd())
	return root
}
