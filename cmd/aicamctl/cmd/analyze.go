package cmd

import (
	"fmt"
	"os"

	"aicam-ingest/internal/model"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Submit a clip for analysis",
	Example: `  aicamctl analyze clip.mp4 --stream lobby
  aicamctl analyze clip.webm --stream lobby --timestamp 2024-10-01T12:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		streamID, _ := cmd.Flags().GetString("stream")
		ts, _ := cmd.Flags().GetString("timestamp")

		video, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read clip: %w", err)
		}

		res, err := newClient().Analyze(cmd.Context(), streamID, ts, video)
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if res.Outcome == model.OutcomeError {
			return fmt.Errorf("analyze failed: %s: %s", res.ErrorKind, res.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("stream", "s", "", "stream id")
	analyzeCmd.Flags().String("timestamp", "", "clip timestamp (RFC 3339 with offset); server time if empty")
	_ = analyzeCmd.MarkFlagRequired("stream")
}
