package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/firstline/internal/triage"
)

type classification struct {
	Detection triage.Detection `json:"detection"`
	Severity  triage.Severity  `json:"severity,omitempty"`
	Runbook   *triage.Runbook  `json:"runbook,omitempty"`
}

func classify(text string) classification {
	det := triage.NewDetector().Detect(text)
	out := classification{Detection: det}
	if det.Classified() {
		out.Severity = triage.Classify(det.System, det.Symptom, det.Environment)
		rb := triage.SelectRunbook(det.System, det.Symptom, out.Severity)
		out.Runbook = &rb
	}
	return out
}

func newClassifyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <text...>",
		Short: "Detect system, symptom, environment and severity of alert text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := classify(strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			}
			printClassification(out, c)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}

func printClassification(out io.Writer, c classification) {
	d := c.Detection
	fmt.Fprintf(out, "Sistema:   %s\n", triage.SystemLabel(d.System))
	fmt.Fprintf(out, "Síntoma:   %s\n", triage.SymptomLabel(d.System, d.Symptom))
	fmt.Fprintf(out, "Ambiente:  %s\n", triage.EnvironmentLabel(d.Environment))
	if d.Node != "" {
		fmt.Fprintf(out, "Nodo:      %s\n", d.Node)
	}
	if d.Timestamp != "" {
		fmt.Fprintf(out, "Hora:      %s\n", d.Timestamp)
	}
	if len(d.Matched) > 0 {
		fmt.Fprintf(out, "Reglas:    %s\n", strings.Join(d.Matched, ", "))
	}
	if c.Runbook == nil {
		fmt.Fprintln(out, "Sin clasificar: falta sistema o síntoma.")
		return
	}
	fmt.Fprintf(out, "Severidad: %s\n", c.Severity.Label())
	fmt.Fprintf(out, "Runbook:   %s\n", c.Runbook.Title)
	for _, item := range c.Runbook.QuickChecklist {
		fmt.Fprintf(out, "  - %s\n", item)
	}
	fmt.Fprintf(out, "Siguiente: %s\n", c.Runbook.NextAction)
}
