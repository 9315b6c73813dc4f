package secrets

import (
	"context"
	"fmt"
	"strings"
)

// Manager dispatches secret references of the form "scheme:name" to the
// registered provider for the scheme. Values without a recognized scheme
// are returned as literals, so plain credentials in configuration keep
// working unchanged.
type Manager struct {
	providers map[string]Provider
}

// NewManager creates a manager over the given providers, keyed by scheme.
func NewManager(providers ...Provider) *Manager {
	m := &Manager{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		m.providers[p.Scheme()] = p
	}
	return m
}

// ResolveCredential resolves ref to its value. "env:NAME" and "file:NAME"
// are dispatched to the matching provider; anything else passes through as
// a literal. A reference whose scheme has no registered provider is an
// error, not a literal, so a typo or a missing secrets file surfaces
// instead of being sent to an upstream as the credential.
func (m *Manager) ResolveCredential(ctx context.Context, ref string) (string, error) {
	scheme, name, ok := strings.Cut(ref, ":")
	if !ok || !isScheme(scheme) {
		return ref, nil
	}

	provider, registered := m.providers[scheme]
	if !registered {
		return "", fmt.Errorf("secret reference %q: no %q provider configured", redactRef(ref), scheme)
	}

	value, err := provider.GetSecret(ctx, name)
	if err != nil {
		return "", fmt.Errorf("secret reference %q: %w", redactRef(ref), err)
	}
	return value, nil
}

// isScheme reports whether s is a recognized secret reference scheme.
func isScheme(s string) bool {
	return s == "env" || s == "file"
}

// redactRef keeps the scheme and name shape of a reference for error
// messages. References never contain the secret value, but a literal that
// accidentally matched the scheme test would; cap the echoed length.
func redactRef(ref string) string {
	if len(ref) > 64 {
		return ref[:64] + "..."
	}
	return ref
}
