// Package errors provides standardized error types and error handling
// utilities for the Back Burn platform. It defines the error taxonomy shared
// by the token verification engine and the backing-store clients: stable
// machine-readable codes, category-to-HTTP-status mapping, and helpers for
// creating, wrapping, and inspecting errors.
//
// # Error Categories
//
//   - Validation errors: invalid input, bad configuration values
//   - Authentication errors: malformed, expired, or unverifiable tokens
//   - Authorization errors: insufficient assurance level, access denied
//   - NotFound errors: resource or cache entry does not exist
//   - Internal errors: unexpected system failures
//   - Unavailable errors: identity provider or store unreachable
//   - Timeout errors: operation exceeded its deadline
//
// # Error Codes
//
// Each error carries a machine-readable code (e.g. "AUTH_005") following the
// pattern CATEGORY_XXX. Codes are stable once assigned and are intended for
// internal classification, logging, and alerting. They are deliberately NOT
// surfaced to API clients: authentication failures must reach the caller as a
// generic unauthorized signal, never as a diagnostic that distinguishes a
// forged signature from an expired token.
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.CodeAuthMalformed, "auth: token is malformed")
//
// Wrap an underlying cause:
//
//	err := errors.Wrap(err, errors.CodeUnavailableUpstream, "auth: key-set fetch failed")
//
// Check a category:
//
//	if errors.IsAuthentication(err) {
//	    // respond 401 with a generic body
//	}
package errors
