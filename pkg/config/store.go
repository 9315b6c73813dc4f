package config

import "fmt"

// DeploymentKind distinguishes the two deployment variants.
type DeploymentKind string

const (
	// KindModel is a chat- or embedding-capable model deployment.
	KindModel DeploymentKind = "model"
	// KindApplication is an application deployment.
	KindApplication DeploymentKind = "application"
)

// Upstream is a resolved (endpoint, credential) relay target.
type Upstream struct {
	// Endpoint is the complete upstream operation URL.
	Endpoint string

	// Key is the credential for the upstream, possibly a secret reference.
	Key string
}

// Deployment is the unified view of a configured model or application.
// Fields common to both variants live on the struct; kind-specific fields
// hang off Model or Application, exactly one of which is non-nil.
type Deployment struct {
	// Name is the unique deployment name callers address.
	Name string

	// Kind tags the variant.
	Kind DeploymentKind

	// Endpoint is the locally advertised address (informational).
	Endpoint string

	// ForwardAuthToken controls Authorization passthrough to upstreams.
	ForwardAuthToken bool

	// Upstreams is the ordered relay target list. Empty means the
	// deployment is locally served and not relayed.
	Upstreams []Upstream

	// Model holds model-specific fields when Kind is KindModel.
	Model *ModelConfig

	// Application holds application-specific fields when Kind is
	// KindApplication.
	Application *ApplicationConfig
}

// Proxied reports whether the deployment has at least one upstream and is
// therefore relayed by this process.
func (d *Deployment) Proxied() bool {
	return len(d.Upstreams) > 0
}

// KeyRecord is the resolved view of an inbound API key.
type KeyRecord struct {
	// Secret is the inbound key value.
	Secret string

	// Project is the project label for requests made with this key.
	Project string

	// Role is the name of the key's permission role. The store guarantees
	// the role exists.
	Role string
}

// Role is a named permission set over deployment names.
type Role struct {
	// Name is the unique role name.
	Name string

	// Limits maps deployment names to opaque limit descriptors. Presence
	// of an entry grants access.
	Limits map[string]LimitDescriptor
}

// HasLimit reports whether the role grants access to the named deployment.
func (r *Role) HasLimit(deployment string) bool {
	_, ok := r.Limits[deployment]
	return ok
}

// Store is an immutable snapshot of the deployment catalog, key records,
// and roles. It is built once at startup and shared by reference across all
// request handlers; it is never mutated afterwards, so lookups require no
// synchronization.
type Store struct {
	deployments map[string]*Deployment
	keys        map[string]*KeyRecord
	roles       map[string]*Role
}

// NewStore builds a Store from a validated configuration. Construction is
// all-or-nothing: any internal inconsistency (which Validate should already
// have rejected) returns an error and no store.
func NewStore(cfg *Config) (*Store, error) {
	s := &Store{
		deployments: make(map[string]*Deployment, len(cfg.Models)+len(cfg.Applications)),
		keys:        make(map[string]*KeyRecord, len(cfg.Keys)),
		roles:       make(map[string]*Role, len(cfg.Roles)),
	}

	for name := range cfg.Models {
		model := cfg.Models[name]
		if _, dup := s.deployments[name]; dup {
			return nil, fmt.Errorf("duplicate deployment name %q", name)
		}
		s.deployments[name] = &Deployment{
			Name:             name,
			Kind:             KindModel,
			Endpoint:         model.Endpoint,
			ForwardAuthToken: model.ForwardAuthToken,
			Upstreams:        toUpstreams(model.Upstreams),
			Model:            &model,
		}
	}

	for name := range cfg.Applications {
		app := cfg.Applications[name]
		if _, dup := s.deployments[name]; dup {
			return nil, fmt.Errorf("duplicate deployment name %q", name)
		}
		s.deployments[name] = &Deployment{
			Name:             name,
			Kind:             KindApplication,
			Endpoint:         app.Endpoint,
			ForwardAuthToken: app.ForwardAuthToken,
			Upstreams:        toUpstreams(app.Upstreams),
			Application:      &app,
		}
	}

	for roleName, role := range cfg.Roles {
		limits := make(map[string]LimitDescriptor, len(role.Limits))
		for dep, desc := range role.Limits {
			limits[dep] = desc
		}
		s.roles[roleName] = &Role{
			Name:   roleName,
			Limits: limits,
		}
	}

	for secret, key := range cfg.Keys {
		if _, ok := s.roles[key.Role]; !ok {
			return nil, fmt.Errorf("key %q references unknown role %q", redactSecret(secret), key.Role)
		}
		s.keys[secret] = &KeyRecord{
			Secret:  secret,
			Project: key.Project,
			Role:    key.Role,
		}
	}

	return s, nil
}

// Deployment looks up a deployment by name.
func (s *Store) Deployment(name string) (*Deployment, bool) {
	d, ok := s.deployments[name]
	return d, ok
}

// KeyRecord looks up an inbound key record by its secret.
func (s *Store) KeyRecord(secret string) (*KeyRecord, bool) {
	k, ok := s.keys[secret]
	return k, ok
}

// Role looks up a role by name. Every role referenced by a key record is
// guaranteed to exist.
func (s *Store) Role(name string) (*Role, bool) {
	r, ok := s.roles[name]
	return r, ok
}

// Deployments returns the number of configured deployments.
func (s *Store) Deployments() int {
	return len(s.deployments)
}

// DeploymentNames returns the names of all configured deployments.
// Order is unspecified.
func (s *Store) DeploymentNames() []string {
	names := make([]string, 0, len(s.deployments))
	for name := range s.deployments {
		names = append(names, name)
	}
	return names
}

func toUpstreams(configs []UpstreamConfig) []Upstream {
	if len(configs) == 0 {
		return nil
	}
	upstreams := make([]Upstream, len(configs))
	for i, up := range configs {
		upstreams[i] = Upstream{
			Endpoint: up.Endpoint,
			Key:      up.Key,
		}
	}
	return upstreams
}
