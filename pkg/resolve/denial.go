package resolve

import "fmt"

// DenialReason classifies why a resolution was refused.
type DenialReason string

const (
	// ReasonUnauthorized means the inbound API key is unknown.
	ReasonUnauthorized DenialReason = "unauthorized"

	// ReasonForbidden means the key's role has no limit entry for the
	// requested deployment.
	ReasonForbidden DenialReason = "forbidden"

	// ReasonUnknownDeployment means the requested deployment does not exist.
	ReasonUnknownDeployment DenialReason = "unknown_deployment"

	// ReasonNotProxied means the deployment exists but has no upstreams;
	// it is served locally and is not this process's concern.
	ReasonNotProxied DenialReason = "not_proxied"
)

// Denial is a refused resolution. It carries enough information for the
// HTTP boundary to choose a status code and message; the resolver itself
// never formats transport responses.
type Denial struct {
	// Reason classifies the refusal.
	Reason DenialReason

	// Deployment is the requested deployment name.
	Deployment string
}

// Error implements the error interface.
func (d *Denial) Error() string {
	switch d.Reason {
	case ReasonUnauthorized:
		return "unknown API key"
	case ReasonForbidden:
		return fmt.Sprintf("access to deployment %q is not permitted", d.Deployment)
	case ReasonUnknownDeployment:
		return fmt.Sprintf("deployment %q does not exist", d.Deployment)
	case ReasonNotProxied:
		return fmt.Sprintf("deployment %q is not served by this gateway", d.Deployment)
	default:
		return fmt.Sprintf("request for deployment %q denied", d.Deployment)
	}
}
