// Package main provides the entry point for the Product Factory server and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "factory_agent",
	Short: "Product Factory pipeline server",
	Long:  "Product Factory turns a product request into research, epics, stories, specs, code, and a validation report through an approval-gated pipeline, exposed via REST API and CLI.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
