package cmd

import (
	"fmt"

	"aicam-ingest/internal/apiclient"

	"github.com/spf13/cobra"
)

var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "Stream registry commands",
}

var streamsRegisterCmd = &cobra.Command{
	Use:   "register <id>",
	Short: "Register a camera stream",
	Example: `  aicamctl streams register lobby --context "store entrance"
  aicamctl streams register garage --phone +15550100`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		streamContext, _ := cmd.Flags().GetString("context")
		phone, _ := cmd.Flags().GetString("phone")

		cfg, err := newClient().RegisterStream(cmd.Context(), apiclient.RegisterRequest{
			ID:              args[0],
			Context:         streamContext,
			EscalationPhone: phone,
		})
		if err != nil {
			return fmt.Errorf("register stream: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), cfg)
	},
}

var streamsGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one stream, or list all streams",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if len(args) == 0 {
			items, err := c.ListStreams(cmd.Context())
			if err != nil {
				return fmt.Errorf("list streams: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), items)
		}
		cfg, err := c.GetStream(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get stream: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), cfg)
	},
}

var streamsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stream with all its events and clips",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteStream(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete stream: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stream %s deleted\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(streamsCmd)
	streamsCmd.AddCommand(streamsRegisterCmd, streamsGetCmd, streamsDeleteCmd)

	streamsRegisterCmd.Flags().String("context", "", "what the camera is watching")
	streamsRegisterCmd.Flags().String("phone", "", "escalation phone number (E.164); server default if empty")
}
