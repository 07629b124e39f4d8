// Package main provides the clementine operator CLI.
//
// The CLI runs the same transform pipeline the workers run, but against a
// local media directory and a TOML run file instead of DynamoDB and S3.
// It exists for debugging: reproduce a guest's job on a laptop, iterate on
// a prompt template, or verify an overlay asset before an event goes live.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/clementinehq/clementine/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "clementine",
	Short: "Run photobooth transform jobs locally",
	Long: `Clementine CLI executes transform jobs from a TOML run file against a
local media directory, using the same pipeline code as the production
workers.

Examples:
  clementine run --config run.toml
  clementine run -c run.toml --output ./out.jpg
  GEMINI_API_KEY=... clementine run -c run.toml`,
}

func init() {
	cobra.OnInitialize(func() {
		logging.Init()
		if err := godotenv.Load(); err != nil {
			log.Debug().Msg("No .env file found, using environment variables")
		}
	})
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
