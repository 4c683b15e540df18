// Package main provides the entry point for the TeaMgr HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "teamgr",
	Short: "TeaMgr talent management API server",
	Long:  "TeaMgr turns free-form notes and resume PDFs into structured talent cards via an LLM extraction pipeline, and answers natural-language queries over the talent library with pseudonymized context.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
