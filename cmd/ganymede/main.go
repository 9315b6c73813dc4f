// Ganymede is an adapter gateway that exposes chat completion and embeddings
// deployments backed by a remote serving platform.
//
// It resolves inbound API keys against a declarative catalog of models and
// applications, then relays each request to the deployment's configured
// upstream endpoints in order, failing over until one begins responding:
//   - Key and role based access control per deployment
//   - Ordered upstream failover with connect and first-byte deadlines
//   - Verbatim streaming relay with idle-chunk protection
//   - SQLite-backed audit records with scheduled retention pruning
//
// Usage:
//
//	# Start the gateway with default configuration
//	ganymede run
//
//	# Start with a custom configuration file
//	ganymede run --config /path/to/config.yaml
//
//	# Validate a configuration file without starting
//	ganymede validate
//
//	# Mirror a remote catalog into a ready-to-run configuration
//	ganymede genconfig --remote-url https://core.example.com --remote-key $KEY
//
//	# Show version information
//	ganymede version
package main

func main() {
	Execute()
}
