package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(resolve clientResolver) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check daemon health (exit code 1 when degraded)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := resolve()
			if err != nil {
				return err
			}
			health, err := client.health(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				if err := printJSON(cmd, health); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintln(out, renderStatusLine("instrument", boolKind(health.InstrumentConnected), "", colorize))
				fmt.Fprintln(out, renderStatusLine("mqtt", boolKind(health.MQTTConnected), "", colorize))
			}
			if !health.Healthy {
				return errors.New("daemon is degraded")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit raw JSON")
	return cmd
}
