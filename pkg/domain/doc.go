// Package domain defines the core value types shared by the doodle gate service.
//
// This package contains pure domain logic with no dependencies outside the Go
// standard library. Types here describe gate decisions, the mint-button view
// state derived from them, and the error vocabulary used across packages:
//
//	canvas → normalize → gate → session → server
//
// Infrastructure packages (storage, inference, server) depend on domain, never
// the other way around.
package domain
