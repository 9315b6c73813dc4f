/*
Package security groups transport security and secret handling for Ganymede.

# TLS

The tls subpackage builds the listener's TLS configuration with automatic
certificate reload:

	tlsConfig, err := tls.NewServerConfig(ctx, cfg.Security.TLS, logger)
	if err != nil {
		log.Fatal(err)
	}

# Secret References

The secrets subpackage resolves secret references in upstream credentials
at request time. References use a scheme prefix:

	env:OPENAI_KEY    value of the OPENAI_KEY environment variable
	file:openai-key   entry "openai-key" in the configured secrets file

	manager := secrets.NewManager(
		secrets.NewEnvProvider(),
		fileProvider,
	)
	key, err := manager.ResolveCredential(ctx, "env:OPENAI_KEY")

Values without a recognized scheme are used literally.
*/
package security
