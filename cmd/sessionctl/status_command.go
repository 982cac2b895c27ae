package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type clientResolver func() (*apiClient, error)

func newStatusCommand(resolve clientResolver) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, instrument, and broker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := resolve()
			if err != nil {
				return err
			}
			status, err := client.status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, renderStatusLine("daemon", statusOK, status.Daemon, colorize))
			fmt.Fprintln(out, renderStatusLine("instrument", boolKind(status.Instrument.Connected),
				fmt.Sprintf("state=%s", status.Instrument.RecordingState), colorize))
			fmt.Fprintln(out, renderStatusLine("mqtt", boolKind(status.MQTT.Connected), "", colorize))
			fmt.Fprintln(out, renderStatusLine("recorder", boolKind(status.Recorder.Reachable), "", colorize))

			if status.Session != nil {
				s := status.Session
				fmt.Fprintln(out, renderStatusLine("session", statusInfo,
					fmt.Sprintf("%s subject=%s type=%s camera=%s since %s",
						shortID(s.SessionID), s.SubjectID, s.RecordingType, s.Camera, s.StartTimeLocal),
					colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("session", statusInfo, "idle", colorize))
			}

			pendingKind := statusOK
			pendingMsg := fmt.Sprintf("subject=%s type=%s operator=%s chamber=%d",
				status.Pending.SubjectID, status.Pending.RecordingType,
				status.Pending.Operator, status.Pending.Chamber)
			if status.Pending.IsDefault {
				pendingKind = statusWarn
				pendingMsg += " (defaults, set metadata before recording)"
			}
			fmt.Fprintln(out, renderStatusLine("next session", pendingKind, pendingMsg, colorize))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit raw JSON")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
