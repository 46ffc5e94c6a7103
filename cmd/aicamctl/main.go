package main

import (
	"os"

	"aicam-ingest/cmd/aicamctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
