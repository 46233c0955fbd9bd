package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/firstline/internal/directory"
	"github.com/linnemanlabs/firstline/internal/triage"
)

func newSummaryCmd() *cobra.Command {
	var (
		recipient  string
		dirFile    string
		detectedAt string
	)
	cmd := &cobra.Command{
		Use:   "summary <text...>",
		Short: "Render the summary a contact would receive for alert text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := directory.Load(dirFile)
			if err != nil {
				return err
			}
			to, ok := dir.Contact(recipient)
			if !ok {
				return fmt.Errorf("unknown recipient %q", recipient)
			}

			at := time.Now().UTC()
			if detectedAt != "" {
				if at, err = time.Parse(time.RFC3339, detectedAt); err != nil {
					return fmt.Errorf("invalid --detected-at: %w", err)
				}
			}

			text := strings.Join(args, " ")
			det := triage.NewDetector().Detect(text)
			if !det.Classified() {
				return fmt.Errorf("text is not classified (system=%s, symptom=%s)", det.System, det.Symptom)
			}
			d := triage.NewDraft(at)
			d.Apply(det, text)

			fmt.Fprint(cmd.OutOrStdout(), triage.RenderSummary(d, to.Recipient()))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&recipient, "recipient", "", "directory contact key (required)")
	f.StringVar(&dirFile, "directory", "", "YAML directory file (empty = builtin)")
	f.StringVar(&detectedAt, "detected-at", "", "detection time in RFC3339 (default now)")
	_ = cmd.MarkFlagRequired("recipient")
	return cmd
}
