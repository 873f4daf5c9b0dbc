// Package provider holds the per-backend live-state clients the instance
// handlers consume. Every client distinguishes a legitimately empty or
// missing scope (nil result, or ErrNotFound where callers need to branch)
// from a transient API failure (wrapped error); handlers rely on that
// distinction to avoid mass-deleting instances on a transient read error.
package provider

import "errors"

// ErrNotFound marks a scope (application, function, group) the backend does
// not know about, as opposed to a failed call.
var ErrNotFound = errors.New("provider: not found")
