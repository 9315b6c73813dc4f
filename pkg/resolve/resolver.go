package resolve

import "mercator-hq/ganymede/pkg/config"

// Plan is a resolved relay plan for one request: the ordered upstream
// candidates and the auth-forwarding policy. The upstream slice is a copy;
// callers may not observe or cause mutation of the store.
type Plan struct {
	// Deployment is the resolved deployment. Never nil.
	Deployment *config.Deployment

	// Key is the inbound key record that authorized the request. Never nil.
	Key *config.KeyRecord

	// Upstreams is the ordered candidate list, configuration order
	// preserved. The first entry is primary; later entries are fallbacks
	// tried only before a response has begun.
	Upstreams []config.Upstream

	// ForwardAuthToken controls whether the caller's original
	// Authorization header is passed through to the upstream.
	ForwardAuthToken bool
}

// Resolver produces relay plans from the immutable configuration store.
// It is a pure reader: Resolve has no side effects and is safe for
// unsynchronized concurrent use.
type Resolver struct {
	store *config.Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(store *config.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve authorizes the inbound key against the requested deployment and,
// on success, returns the relay plan. The checks run in a fixed order:
//
//  1. Unknown key            -> Denial(Unauthorized)
//  2. Role lacks limit entry -> Denial(Forbidden)
//  3. Unknown deployment     -> Denial(UnknownDeployment)
//  4. No upstreams           -> Denial(NotProxied)
//
// The permission check deliberately precedes the existence check so that a
// caller without access cannot distinguish a forbidden deployment from a
// nonexistent one.
func (r *Resolver) Resolve(deploymentName, inboundKey string) (*Plan, *Denial) {
	key, ok := r.store.KeyRecord(inboundKey)
	if !ok {
		return nil, &Denial{Reason: ReasonUnauthorized, Deployment: deploymentName}
	}

	role, ok := r.store.Role(key.Role)
	if !ok {
		// The store guarantees key roles exist; treat a miss as unauthorized
		// rather than panicking on a violated invariant.
		return nil, &Denial{Reason: ReasonUnauthorized, Deployment: deploymentName}
	}
	if !role.HasLimit(deploymentName) {
		return nil, &Denial{Reason: ReasonForbidden, Deployment: deploymentName}
	}

	dep, ok := r.store.Deployment(deploymentName)
	if !ok {
		return nil, &Denial{Reason: ReasonUnknownDeployment, Deployment: deploymentName}
	}

	if !dep.Proxied() {
		return nil, &Denial{Reason: ReasonNotProxied, Deployment: deploymentName}
	}

	upstreams := make([]config.Upstream, len(dep.Upstreams))
	copy(upstreams, dep.Upstreams)

	return &Plan{
		Deployment:       dep,
		Key:              key,
		Upstreams:        upstreams,
		ForwardAuthToken: dep.ForwardAuthToken,
	}, nil
}
