// Package auth implements the token verification engine for the Back Burn
// platform. It verifies bearer tokens issued by the external identity
// provider against a live, cached view of the provider's rotating public-key
// set, and exposes guard entry points that API services mount in front of
// their handlers.
//
// # Verification flow
//
// A request's bearer token is structurally parsed ([ParseToken]), then driven
// through the rotation recovery flow by [TokenVerifier]: the signing key is
// looked up in the [KeySetCache], the signature and standard claims are
// verified, and on key-identity failures (unknown kid, signature mismatch on
// a cached key) the cache is refreshed exactly once and the attempt retried.
// Claim-semantics failures (expired, wrong issuer, wrong audience) are
// terminal immediately: a refresh cannot fix them. When the primary path is
// exhausted on a key-identity failure and the fallback is enabled, the raw
// token is validated remotely through the provider's introspection endpoint.
//
// # Concurrency
//
// Verification runs per request; the key-set cache is the only shared
// mutable state. Reads never block on network I/O, and refreshes are
// single-flighted so a rotation event observed by many concurrent requests
// produces one fetch against the provider, not a thundering herd.
//
// # Guards
//
// [Guard.RequireIdentity] fails closed, [Guard.OptionalIdentity] passes
// through anonymously only when no credential was supplied at all, and
// [Guard.RequireAssurance] gates step-up-auth operations on the token's
// authenticator assurance level. All three compose the same core
// verification; only the interpretation of failure differs.
package auth

import (
	"time"
)

// AssuranceLevel is the authenticator assurance level asserted by the
// identity provider: how strongly the user authenticated. The provider
// reports it in the "aal" claim.
type AssuranceLevel string

const (
	// AssuranceNone means the token carried no assurance claim.
	AssuranceNone AssuranceLevel = ""

	// AssuranceLevel1 is single-factor authentication (e.g., password or
	// magic link alone).
	AssuranceLevel1 AssuranceLevel = "aal1"

	// AssuranceLevel2 is multi-factor authentication (a second factor was
	// verified during login). Sensitive operations require this level.
	AssuranceLevel2 AssuranceLevel = "aal2"
)

// rank returns the ordering of the assurance level. Unknown values rank
// lowest so that a provider introducing a new level never accidentally
// satisfies a stricter gate.
func (a AssuranceLevel) rank() int {
	switch a {
	case AssuranceLevel1:
		return 1
	case AssuranceLevel2:
		return 2
	default:
		return 0
	}
}

// Meets reports whether this assurance level satisfies the given minimum.
func (a AssuranceLevel) Meets(minimum AssuranceLevel) bool {
	return a.rank() >= minimum.rank()
}

// Valid reports whether the assurance level is one of the recognized values.
func (a AssuranceLevel) Valid() bool {
	switch a {
	case AssuranceNone, AssuranceLevel1, AssuranceLevel2:
		return true
	default:
		return false
	}
}

// VerifiedClaims is the trusted output of a successful verification, from
// either the primary (signature) path or the fallback (introspection) path.
// The typed fields cover the claims the platform acts on; Raw preserves the
// full claim map for forward compatibility with provider additions.
type VerifiedClaims struct {
	// Subject is the provider's unique user id (the "sub" claim).
	Subject string

	// Issuer is the token's "iss" claim, already checked against the
	// configured expected issuer.
	Issuer string

	// Audience is the token's "aud" claim, already checked to contain the
	// configured expected audience.
	Audience []string

	// IssuedAt and ExpiresAt are the token's "iat" and "exp" claims.
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Email is the user's email address, when the provider includes it.
	Email string

	// Role is the provider-assigned role (e.g., "authenticated").
	Role string

	// Assurance is the authenticator assurance level from the "aal"
	// claim, or AssuranceNone when absent.
	Assurance AssuranceLevel

	// Raw is a copy of the full claim map as verified.
	Raw map[string]any
}

// IdentityContext is the immutable, per-request identity record handed to
// downstream application logic. It is constructed only from successfully
// verified claims (or as the anonymous value), lives for a single request,
// and is never persisted or cached.
type IdentityContext struct {
	// UserID is the provider's unique user id. Empty for anonymous.
	UserID string

	// Email is the user's email address, if the token carried one.
	Email string

	// Role is the provider-assigned role for row-level access decisions.
	Role string

	// Assurance is the authenticator assurance level of the session.
	Assurance AssuranceLevel

	// IsAnonymous is true only for the identity produced by an
	// optional-auth guard when no credential was supplied.
	IsAnonymous bool
}

// NewIdentityContext maps verified claims into an identity record. Pure
// mapping, no I/O.
func NewIdentityContext(claims VerifiedClaims) IdentityContext {
	return IdentityContext{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		Assurance: claims.Assurance,
	}
}

// AnonymousIdentity returns the identity used when an optional-auth guard
// passes a credential-less request through.
func AnonymousIdentity() IdentityContext {
	return IdentityContext{IsAnonymous: true}
}
