package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Ganymede - adapter gateway for remote model deployments",
	Long: `Ganymede is an adapter gateway that exposes chat completion and embeddings
deployments backed by a remote serving platform.

It resolves inbound API keys against a declarative catalog of models and
applications, then relays each request to the deployment's configured
upstream endpoints in order, failing over until one begins responding:
  - Key and role based access control per deployment
  - Ordered upstream failover with connect and first-byte deadlines
  - Verbatim streaming relay with idle-chunk protection
  - SQLite-backed audit records with scheduled retention pruning`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
