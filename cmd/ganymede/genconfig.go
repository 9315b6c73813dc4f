package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/genconfig"
)

var genconfigFlags struct {
	remoteURL       string
	remoteKey       string
	localURL        string
	deploymentRegex string
	localAppURL     string
	output          string
}

var genconfigCmd = &cobra.Command{
	Use:   "genconfig",
	Short: "Generate a configuration from a remote catalog",
	Long: `Fetch the model and application catalog of a remote Core and emit a
ready-to-run Ganymede configuration that mirrors every chat and embeddings
capable deployment.

The remote URL and key may also be supplied through the GANYMEDE_REMOTE_URL
and GANYMEDE_REMOTE_KEY environment variables.

Examples:
  # Mirror every deployment of a remote Core
  ganymede genconfig --remote-url https://core.example.com --remote-key $KEY

  # Mirror only GPT deployments and write to a file
  ganymede genconfig --remote-url https://core.example.com --remote-key $KEY \
    --deployment-regex 'gpt' --output config.yaml

  # Include a locally hosted application
  ganymede genconfig --remote-url https://core.example.com --remote-key $KEY \
    --local-app-url http://app:5000/chat/completions`,
	RunE: generateConfig,
}

func init() {
	rootCmd.AddCommand(genconfigCmd)

	genconfigCmd.Flags().StringVar(&genconfigFlags.remoteURL, "remote-url", "", "base URL of the remote Core")
	genconfigCmd.Flags().StringVar(&genconfigFlags.remoteKey, "remote-key", "", "API key for the remote Core")
	genconfigCmd.Flags().StringVar(&genconfigFlags.localURL, "local-url", "", "base URL this gateway will be reachable at")
	genconfigCmd.Flags().StringVar(&genconfigFlags.deploymentRegex, "deployment-regex", "", "only mirror deployment IDs matching this regex")
	genconfigCmd.Flags().StringVar(&genconfigFlags.localAppURL, "local-app-url", "", "chat completions endpoint of a locally hosted application to include")
	genconfigCmd.Flags().StringVarP(&genconfigFlags.output, "output", "o", "", "write the configuration to a file instead of stdout")
}

func generateConfig(cmd *cobra.Command, args []string) error {
	opts := genconfig.Options{
		RemoteURL:       genconfigFlags.remoteURL,
		RemoteKey:       genconfigFlags.remoteKey,
		LocalURL:        genconfigFlags.localURL,
		DeploymentRegex: genconfigFlags.deploymentRegex,
		LocalAppURL:     genconfigFlags.localAppURL,
	}
	if opts.RemoteURL == "" {
		opts.RemoteURL = os.Getenv("GANYMEDE_REMOTE_URL")
	}
	if opts.RemoteKey == "" {
		opts.RemoteKey = os.Getenv("GANYMEDE_REMOTE_KEY")
	}

	out := os.Stdout
	if genconfigFlags.output != "" {
		f, err := os.Create(genconfigFlags.output)
		if err != nil {
			return cli.NewCommandError("genconfig", err)
		}
		defer f.Close()
		out = f
	}

	ctx := cli.SetupSignalHandler()
	if err := genconfig.Generate(ctx, opts, out); err != nil {
		return cli.NewCommandError("genconfig", err)
	}

	if genconfigFlags.output != "" {
		fmt.Fprintf(os.Stderr, "✓ Configuration written to %s\n", genconfigFlags.output)
	}
	return nil
}
