// Package security provides validation, sanitization, and limits for sitepipe.
//
// This package includes:
//   - Key normalization and hostname validation for submissions
//   - Payload size and shape checks
//   - Error message sanitization before anything is persisted or returned
//   - Clamping functions for batch sizes and listing limits
//
// Most users should import the root package github.com/jdziat/sitepipe
// which re-exports these functions.
package security
