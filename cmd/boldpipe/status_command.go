package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"boldpipe/internal/artifacts"
	"boldpipe/pkg/config"
)

// shortFingerprint abbreviates a fingerprint for table display.
func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func newStatusCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List recorded stage runs from the artifact ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configFlag)
			if err != nil {
				return err
			}

			store, err := artifacts.Open(cfg.Output.Dir)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context())
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no recorded stage runs")
				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"Stage", "Fingerprint", "Outputs", "Completed"})
			for _, run := range runs {
				tw.AppendRow(table.Row{
					run.Stage,
					shortFingerprint(run.Fingerprint),
					len(run.Outputs),
					run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				})
			}
			tw.Render()
			return nil
		},
	}
}
