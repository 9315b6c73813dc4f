package tls

import (
	"context"
	stdtls "crypto/tls"
	"fmt"
	"log/slog"
	"os"

	"mercator-hq/ganymede/pkg/config"
)

// NewServerConfig builds the listener's TLS configuration from cfg. The
// certificate is served through a reloader that picks up renewed files
// within the configured reload interval, so rotation does not require a
// restart. The reloader stops when ctx is cancelled.
func NewServerConfig(ctx context.Context, cfg config.TLSConfig, logger *slog.Logger) (*stdtls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if cfg.CertFile == "" {
		return nil, fmt.Errorf("cert_file is required when TLS is enabled")
	}
	if cfg.KeyFile == "" {
		return nil, fmt.Errorf("key_file is required when TLS is enabled")
	}
	if _, err := os.Stat(cfg.CertFile); err != nil {
		return nil, fmt.Errorf("certificate file not found: %s: %w", cfg.CertFile, err)
	}
	if _, err := os.Stat(cfg.KeyFile); err != nil {
		return nil, fmt.Errorf("key file not found: %s: %w", cfg.KeyFile, err)
	}

	reloader := NewCertificateReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval, logger)
	if err := reloader.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	return &stdtls.Config{
		MinVersion:     parseTLSVersion(cfg.MinVersion),
		GetCertificate: reloader.GetCertificateFunc(),
	}, nil
}

// parseTLSVersion converts a version string to a tls constant. Versions
// below 1.2 are not offered.
func parseTLSVersion(version string) uint16 {
	switch version {
	case "1.3":
		return stdtls.VersionTLS13
	default:
		return stdtls.VersionTLS12
	}
}
