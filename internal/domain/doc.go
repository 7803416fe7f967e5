// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (channel.go, run.go, price.go, ...) hold shared types
// and the store contracts the rest of the service depends on. No implementation
// code lives here, so every adapter can import it without cycles.
package domain
