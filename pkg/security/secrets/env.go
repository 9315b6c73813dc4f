package secrets

import (
	"context"
	"fmt"
	"os"
)

// EnvProvider resolves "env:NAME" references from process environment
// variables. The name is used as the variable name verbatim.
type EnvProvider struct{}

// NewEnvProvider creates a new environment variable secret provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

// GetSecret reads the environment variable named name. An unset or empty
// variable is an error: an empty upstream credential is never intended.
func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("secret not found in environment: %s", name)
	}
	return value, nil
}

// Scheme returns the provider scheme.
func (p *EnvProvider) Scheme() string {
	return "env"
}
