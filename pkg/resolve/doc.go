// Package resolve turns an inbound (deployment, API key) pair into a relay
// plan or a typed denial.
//
// Resolution is a pure read over the immutable configuration store: it
// validates the key, checks the key's role for a limit entry on the
// requested deployment, and copies the deployment's ordered upstream list
// into a Plan. All denials are decided before any upstream I/O happens.
package resolve
