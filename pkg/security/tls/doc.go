/*
Package tls builds the gateway's TLS listener configuration.

Certificates are served through a reloader that polls the files on disk, so
renewed certificates (e.g. Let's Encrypt) take effect without a restart:

	tlsConfig, err := tls.NewServerConfig(ctx, cfg.Security.TLS, logger)
	if err != nil {
		return err
	}
	server.TLSConfig = tlsConfig
*/
package tls
