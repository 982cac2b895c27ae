package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand(resolve clientResolver) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished recording sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := resolve()
			if err != nil {
				return err
			}
			history, err := client.history(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd, history)
			}

			out := cmd.OutOrStdout()
			if history.Count == 0 {
				fmt.Fprintln(out, "no sessions recorded yet")
				return nil
			}

			rows := make([][]string, 0, history.Count)
			for _, record := range history.Sessions {
				rows = append(rows, []string{
					shortID(record.SessionID),
					record.StartTimeLocal,
					formatDuration(record.DurationSeconds),
					record.SubjectID,
					record.RecordingType,
					record.Camera,
					record.ExportStatus,
				})
			}

			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Started", "Duration", "Subject", "Type", "Camera", "Export"},
				rows,
				2, // duration
			))
			fmt.Fprintf(out, "showing %d of %d sessions\n", history.Count, history.Total)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum sessions to list (1-500)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit raw JSON")
	return cmd
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", seconds)
	}
	return d.String()
}
