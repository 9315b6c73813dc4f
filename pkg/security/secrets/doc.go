// Package secrets resolves upstream credential references.
//
// Configured credentials may be literal values, "env:NAME" references
// resolved from the process environment, or "file:NAME" references
// resolved from a YAML secrets file. The file provider can watch its file
// and pick up rotated values without a restart; resolution happens per
// request, so a reload takes effect on the next relay attempt.
package secrets
