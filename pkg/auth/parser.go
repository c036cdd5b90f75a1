package auth

import (
	"encoding/base64"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

// maxTokenSize is the maximum accepted size for a bearer token string (8 KB).
// Tokens larger than this are rejected to prevent resource exhaustion.
const maxTokenSize = 8192

// allowedAlgorithms are the signing algorithms the engine accepts. The
// provider signs access tokens asymmetrically; symmetric (HS*) and unsigned
// ("none") tokens are rejected at parse time, before any key lookup, so an
// attacker cannot steer verification toward a weaker scheme.
var allowedAlgorithms = []string{"RS256", "ES256"}

// UnverifiedToken is the output of structural parsing: the token's header
// fields and claims, decoded but NOT verified. Nothing in an UnverifiedToken
// may be trusted or acted upon; it exists only to select the signing key and
// to drive the verification flow.
type UnverifiedToken struct {
	// Raw is the compact serialization the token arrived as.
	Raw string

	// KeyID is the "kid" header naming the signing key.
	KeyID string

	// Algorithm is the "alg" header, already checked against the allowed
	// set.
	Algorithm string

	// Claims is the decoded, unverified claim map.
	Claims map[string]any
}

// ParseToken structurally parses a compact-serialized token without
// verifying its signature. It enforces the token's shape up front:
//
//   - three dot-separated base64url segments, within the size cap
//   - decodable header and claims JSON
//   - an allowed asymmetric signing algorithm (alg "none" and HS* rejected)
//   - a non-empty "kid" header
//   - a decodable signature segment
//
// Every violation maps to [bberr.CodeAuthMalformed]: a structurally invalid
// token can never become valid, so the verification flow treats it as
// terminal without touching the key-set cache.
func ParseToken(raw string) (*UnverifiedToken, error) {
	if raw == "" {
		return nil, bberr.New(bberr.CodeAuthMalformed, "auth: token must not be empty")
	}
	if len(raw) > maxTokenSize {
		return nil, bberr.New(bberr.CodeAuthMalformed, "auth: token exceeds maximum size")
	}

	parser := jwt.NewParser()
	unverified, parts, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil || unverified == nil {
		return nil, bberr.Wrap(coalesceParseErr(err), bberr.CodeAuthMalformed,
			"auth: token is malformed")
	}

	// The signature segment is not decoded by ParseUnverified; check it
	// here so garbage after the second dot is caught at parse time.
	if len(parts) != 3 {
		return nil, bberr.New(bberr.CodeAuthMalformed, "auth: token must have three segments")
	}
	if _, err := base64.RawURLEncoding.DecodeString(parts[2]); err != nil {
		return nil, bberr.Wrap(err, bberr.CodeAuthMalformed,
			"auth: token signature segment is not valid base64url")
	}

	alg, _ := unverified.Header["alg"].(string)
	if !algorithmAllowed(alg) {
		return nil, bberr.Newf(bberr.CodeAuthMalformed,
			"auth: signing algorithm %q is not permitted", alg)
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, bberr.New(bberr.CodeAuthMalformed, "auth: token header missing kid")
	}

	mc, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, bberr.New(bberr.CodeAuthMalformed, "auth: unable to extract claims")
	}

	return &UnverifiedToken{
		Raw:       raw,
		KeyID:     kid,
		Algorithm: alg,
		Claims:    mapClaimsToMap(mc),
	}, nil
}

// algorithmAllowed reports whether alg is in the allowed set. Comparison is
// case-insensitive so "None"/"NONE" variants cannot slip past the check.
func algorithmAllowed(alg string) bool {
	for _, a := range allowedAlgorithms {
		if strings.EqualFold(alg, a) {
			return true
		}
	}
	return false
}

// coalesceParseErr substitutes a generic error when the jwt parser returned
// a nil token without an error, so Wrap always has a cause to carry.
func coalesceParseErr(err error) error {
	if err != nil {
		return err
	}
	return jwt.ErrTokenMalformed
}

// mapClaimsToMap converts jwt.MapClaims to a plain map[string]any so claims
// can be passed around without carrying the jwt library type.
func mapClaimsToMap(mc jwt.MapClaims) map[string]any {
	result := make(map[string]any, len(mc))
	for k, v := range mc {
		result[k] = v
	}
	return result
}
