// Package core provides the fundamental types and interfaces for sitepipe.
//
// This package contains:
//   - Job and ProgressStep data models with GORM annotations
//   - The fixed, ordered pipeline stage list
//   - The Store interface defining the persistence contract
//   - Event types for queue monitoring
//   - Sentinel errors shared by every layer
//
// Most users should import the root package github.com/jdziat/sitepipe
// instead of this package directly.
package core
