package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"aicam-ingest/internal/apiclient"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "aicamctl",
	Short: "aicam ingest server CLI",
	Long: `aicamctl talks to the aicam ingest server.

Register camera streams, submit clips for analysis and read the event log
from your terminal.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("AICAM_SERVER", "http://localhost:8080"), "ingest server base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")
}

func newClient() *apiclient.Client {
	return apiclient.New(serverURL, timeout)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
