package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "List logged events for a stream, newest first",
	Example: `  aicamctl events --stream lobby --limit 20`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		streamID, _ := cmd.Flags().GetString("stream")
		limit, _ := cmd.Flags().GetInt("limit")

		items, err := newClient().ListEvents(cmd.Context(), streamID, limit)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), items)
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringP("stream", "s", "", "stream id")
	eventsCmd.Flags().IntP("limit", "n", 100, "maximum number of events")
	_ = eventsCmd.MarkFlagRequired("stream")
}
