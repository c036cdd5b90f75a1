package auth

import (
	"context"
	"strings"

	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

// HeaderAuthorization is the request header carrying the bearer credential.
const HeaderAuthorization = "Authorization"

// bearerPrefix is the scheme prefix of a bearer Authorization header value.
// Matching is case-insensitive per RFC 9110.
const bearerPrefix = "bearer "

// ExtractBearerToken pulls the raw token out of an Authorization header
// value. Distinguishes two failures the guards treat differently:
//
//   - an absent header returns [bberr.CodeAuthNoCredential] (the request
//     carries no credential at all)
//   - a present but non-bearer or empty-token header returns
//     [bberr.CodeAuthMalformed] (the request tried and failed to present
//     a credential)
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", bberr.New(bberr.CodeAuthNoCredential, "auth: no bearer credential supplied")
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", bberr.New(bberr.CodeAuthMalformed, "auth: authorization header is not a bearer credential")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", bberr.New(bberr.CodeAuthMalformed, "auth: bearer credential is empty")
	}
	return token, nil
}

// Guard turns verification outcomes into per-request identity decisions.
// It is transport-agnostic; the HTTP middleware and gRPC interceptors in
// this package adapt it to their framing.
type Guard struct {
	verifier Verifier
}

// NewGuard creates a Guard over the given verifier.
func NewGuard(verifier Verifier) *Guard {
	return &Guard{verifier: verifier}
}

// RequireIdentity verifies the Authorization header value and returns the
// authenticated identity. Every failure — missing credential, malformed
// header, or any verification rejection — is returned as an error: this is
// the fail-closed guard for endpoints that require a caller identity.
func (g *Guard) RequireIdentity(ctx context.Context, authorization string) (IdentityContext, error) {
	token, err := ExtractBearerToken(authorization)
	if err != nil {
		return IdentityContext{}, err
	}

	claims, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return IdentityContext{}, err
	}

	return NewIdentityContext(claims), nil
}

// OptionalIdentity verifies the Authorization header value for endpoints
// that serve both anonymous and authenticated callers. The distinction it
// preserves:
//
//   - no credential supplied at all: returns the anonymous identity, nil
//     error
//   - a credential supplied but invalid: returns the verification error
//
// A caller who presented a bad token is never silently downgraded to
// anonymous; that would make every rejection invisible.
func (g *Guard) OptionalIdentity(ctx context.Context, authorization string) (IdentityContext, error) {
	token, err := ExtractBearerToken(authorization)
	if err != nil {
		if bberr.IsNoCredential(err) {
			return AnonymousIdentity(), nil
		}
		return IdentityContext{}, err
	}

	claims, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return IdentityContext{}, err
	}

	return NewIdentityContext(claims), nil
}

// RequireAssurance behaves like [Guard.RequireIdentity] and additionally
// requires the verified session's authenticator assurance level to meet the
// given minimum. An authenticated caller below the minimum receives
// [bberr.CodeAuthzInsufficientAssurance] — an authorization rejection, not
// an authentication one, since the caller's identity is established.
func (g *Guard) RequireAssurance(ctx context.Context, authorization string, minimum AssuranceLevel) (IdentityContext, error) {
	identity, err := g.RequireIdentity(ctx, authorization)
	if err != nil {
		return IdentityContext{}, err
	}

	if !identity.Assurance.Meets(minimum) {
		return IdentityContext{}, bberr.Newf(bberr.CodeAuthzInsufficientAssurance,
			"auth: operation requires assurance level %q", minimum)
	}

	return identity, nil
}
