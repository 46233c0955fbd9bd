package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/firstline/internal/directory"
	"github.com/linnemanlabs/firstline/internal/triage"
)

func newRunbookCmd() *cobra.Command {
	var env, dirFile string
	cmd := &cobra.Command{
		Use:   "runbook <system> <symptom>",
		Short: "Print the runbook for a system and symptom",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, ok := triage.ParseSystem(args[0])
			if !ok {
				return fmt.Errorf("unknown system %q (want sap, infra or other)", args[0])
			}
			sym, ok := triage.ParseSymptom(args[1])
			if !ok {
				return fmt.Errorf("unknown symptom %q (want failover, down, queueing, slow or errors)", args[1])
			}
			e, ok := triage.ParseEnvironment(env)
			if !ok {
				return fmt.Errorf("unknown environment %q (want production, qa or dev)", env)
			}

			dir, err := directory.Load(dirFile)
			if err != nil {
				return err
			}

			d := triage.Draft{System: sys, Symptom: sym, Environment: e}
			d.Coerce()
			sev := d.Severity()
			rb := triage.SelectRunbook(d.System, d.Symptom, sev)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s [%s]\n\n", rb.Title, sev.Label())
			fmt.Fprintln(out, "Checklist rápido:")
			for _, item := range rb.QuickChecklist {
				fmt.Fprintf(out, "  - %s\n", item)
			}
			for i, s := range rb.Steps {
				fmt.Fprintf(out, "\n%d. %s\n", i+1, s.Title)
				for _, b := range s.Bullets {
					fmt.Fprintf(out, "   - %s\n", b)
				}
			}
			fmt.Fprintf(out, "\nSiguiente acción: %s\n", rb.NextAction)
			if l, ok := dir.RunbookFor(d.System); ok {
				fmt.Fprintf(out, "Documento: %s\n", l.URL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", string(triage.EnvProduction), "environment (production, qa, dev)")
	cmd.Flags().StringVar(&dirFile, "directory", "", "YAML directory file (empty = builtin)")
	return cmd
}
