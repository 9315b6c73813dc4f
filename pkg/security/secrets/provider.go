package secrets

import "context"

// Provider retrieves secret values by name from one backend.
type Provider interface {
	// GetSecret retrieves a secret by name. It returns an error if the
	// secret is not found or cannot be retrieved.
	GetSecret(ctx context.Context, name string) (string, error)

	// Scheme returns the reference scheme this provider serves ("env",
	// "file").
	Scheme() string
}
