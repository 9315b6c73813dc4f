// Package genconfig generates a gateway configuration from a remote
// Core's deployment catalog.
//
// It mirrors every chat- or embeddings-capable model and application the
// remote lists as a local deployment relaying to the remote, seeds a
// default role granting all of them, and emits the result as YAML ready
// for review and editing.
package genconfig
