package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
)

var validateFlags struct {
	format string
}

// validationReport summarizes a configuration file for validate output.
type validationReport struct {
	Valid        bool     `json:"valid"`
	Path         string   `json:"path"`
	Deployments  []string `json:"deployments"`
	Keys         int      `json:"keys"`
	Roles        int      `json:"roles"`
	AuditEnabled bool     `json:"audit_enabled"`
	TLSEnabled   bool     `json:"tls_enabled"`
	Error        string   `json:"error,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply defaults, and report whether it is valid.

Validation covers the catalog (every upstream endpoint parses, every role
referenced by a key exists, every deployment granted by a role exists) as
well as the server, relay, audit, and security sections.

Examples:
  # Validate the default config
  ganymede validate

  # Validate a specific file with JSON output
  ganymede validate --config /etc/ganymede/config.yaml --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	formatter := cli.NewFormatter(cli.OutputFormat(validateFlags.format))
	report := validationReport{Path: cfgFile}

	cfg, err := config.LoadConfig(cfgFile)
	if err == nil {
		var store *config.Store
		store, err = config.NewStore(cfg)
		if err == nil {
			report.Valid = true
			report.Deployments = store.DeploymentNames()
			sort.Strings(report.Deployments)
			report.Keys = len(cfg.Keys)
			report.Roles = len(cfg.Roles)
			report.AuditEnabled = cfg.Audit.Enabled
			report.TLSEnabled = cfg.Security.TLS.Enabled
		}
	}
	if err != nil {
		report.Error = err.Error()
	}

	if validateFlags.format == "json" {
		if fmtErr := formatter.FormatTo(os.Stdout, report); fmtErr != nil {
			return fmtErr
		}
	} else {
		printReport(report)
	}

	if err != nil {
		return cli.NewConfigError(report.Path, "", err.Error())
	}
	return nil
}

func printReport(report validationReport) {
	if !report.Valid {
		fmt.Printf("✗ %s is invalid\n  %s\n", report.Path, report.Error)
		return
	}
	fmt.Printf("✓ %s is valid\n", report.Path)
	fmt.Printf("  deployments: %d\n", len(report.Deployments))
	for _, name := range report.Deployments {
		fmt.Printf("    - %s\n", name)
	}
	fmt.Printf("  keys:  %d\n", report.Keys)
	fmt.Printf("  roles: %d\n", report.Roles)
	fmt.Printf("  audit: %t\n", report.AuditEnabled)
	fmt.Printf("  tls:   %t\n", report.TLSEnabled)
}
