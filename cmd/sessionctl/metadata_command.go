package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newMetadataCommand(resolve clientResolver) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Manage metadata staged for the next session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newMetadataSetCommand(resolve))
	cmd.AddCommand(newMetadataClearCommand(resolve))
	return cmd
}

func newMetadataSetCommand(resolve clientResolver) *cobra.Command {
	var subject string
	var recordingType string
	var operator string
	var chamber int

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set metadata fields for the next session",
		Example: `  sessionctl metadata set --subject HETCF3R1 --type basal --chamber 0
  sessionctl metadata set --operator andrea`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var update metadataRequest
			if cmd.Flags().Changed("subject") {
				update.SubjectID = &subject
			}
			if cmd.Flags().Changed("type") {
				update.RecordingType = &recordingType
			}
			if cmd.Flags().Changed("operator") {
				update.Operator = &operator
			}
			if cmd.Flags().Changed("chamber") {
				update.Chamber = &chamber
			}
			if update == (metadataRequest{}) {
				return errors.New("nothing to set: provide at least one of --subject, --type, --operator, --chamber")
			}

			client, err := resolve()
			if err != nil {
				return err
			}
			updated, err := client.setMetadata(cmd.Context(), update)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"next session: subject=%s type=%s operator=%s chamber=%d\n",
				updated.SubjectID, updated.RecordingType, updated.Operator, updated.Chamber)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Subject identifier")
	cmd.Flags().StringVar(&recordingType, "type", "", "Recording type (e.g. basal, sd)")
	cmd.Flags().StringVar(&operator, "operator", "", "Operator name")
	cmd.Flags().IntVar(&chamber, "chamber", 0, "Chamber number")
	return cmd
}

func newMetadataClearCommand(resolve clientResolver) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Reset staged metadata to defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := resolve()
			if err != nil {
				return err
			}
			if err := client.clearMetadata(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "metadata cleared to defaults")
			return nil
		},
	}
}
