package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

// ---------------------------------------------------------------------------
// Secret type — prevents accidental logging of sensitive values
// ---------------------------------------------------------------------------

// Secret is a string type that redacts its value in String(), GoString(), and
// MarshalText() to prevent accidental exposure in logs, JSON output, or
// fmt.Printf. The actual value is only accessible via the [Secret.Value]
// method, which should be called only where the raw value is truly needed
// (e.g., setting an Authorization header on an outbound request).
type Secret string

// secretRedacted is the placeholder text shown instead of the actual secret
// value when the secret is printed, formatted, or serialized.
const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder, preventing the secret from being
// printed via fmt.Println, log.Printf, or similar functions.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder, preventing the secret from being
// printed via fmt.Printf("%#v", secret).
func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret string.
func (s Secret) Value() string { return string(s) }

// MarshalText implements [encoding.TextMarshaler], returning the redacted
// placeholder. This prevents the secret from leaking into JSON, YAML, or
// any other text-based serialization format.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// ---------------------------------------------------------------------------
// HTTPClient interface
// ---------------------------------------------------------------------------

// HTTPClient abstracts the HTTP client used for fetching the provider's
// key-set document and calling the introspection endpoint. This allows
// callers to provide custom HTTP clients with specific timeouts, transport
// settings, or middleware (e.g., for mTLS, proxy configuration, or request
// tracing).
//
// The standard [http.Client] satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ---------------------------------------------------------------------------
// KeySet — the provider's published signing keys
// ---------------------------------------------------------------------------

// KeyMaterial is a single public signing key from the provider's key set:
// the reconstructed crypto key plus the algorithm it is bound to.
type KeyMaterial struct {
	// KeyID is the provider-assigned key id ("kid") clients select by.
	KeyID string

	// Algorithm is the signing algorithm the key is published for
	// ("RS256" or "ES256").
	Algorithm string

	// Key is the reconstructed public key: *rsa.PublicKey or
	// *ecdsa.PublicKey.
	Key any
}

// KeySet is one parsed snapshot of the provider's published key set. It is
// immutable after construction; rotation replaces the whole snapshot rather
// than mutating it in place.
type KeySet struct {
	keys map[string]KeyMaterial

	// raw is the document the snapshot was parsed from, retained so the
	// snapshot can be persisted for warm starts without re-serializing.
	raw []byte
}

// Lookup returns the key material for the given key id.
func (s *KeySet) Lookup(kid string) (KeyMaterial, bool) {
	if s == nil {
		return KeyMaterial{}, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

// Len returns the number of usable keys in the snapshot.
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// KeyIDs returns the key ids present in the snapshot, in map order.
func (s *KeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		ids = append(ids, kid)
	}
	return ids
}

// Document returns the raw JSON document the snapshot was parsed from.
func (s *KeySet) Document() []byte {
	if s == nil {
		return nil
	}
	return s.raw
}

// keySetDocument represents the JSON structure of the provider's key-set
// endpoint response.
type keySetDocument struct {
	Keys []keySetKey `json:"keys"`
}

// keySetKey represents a single key in a key-set response. Only the fields
// needed for RSA and EC key reconstruction are included.
type keySetKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	// RSA fields
	N string `json:"n"`
	E string `json:"e"`
	// EC fields
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// ParseKeySet parses a raw key-set JSON document into an immutable [KeySet]
// snapshot. Individual keys that cannot be reconstructed (unknown type,
// undecodable coordinates, missing kid) are skipped rather than failing the
// whole document, so one malformed entry in a rotation cannot take down
// verification for every other key. A document that yields zero usable keys
// is an error.
func ParseKeySet(raw []byte) (*KeySet, error) {
	var doc keySetDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, bberr.Wrap(err, bberr.CodeUnavailableUpstream,
			"auth: failed to parse key-set JSON")
	}

	keys := make(map[string]KeyMaterial, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" {
			continue
		}
		switch k.Kty {
		case "RSA":
			pub, err := parseRSAPublicKey(k.N, k.E)
			if err != nil {
				continue // Skip malformed keys.
			}
			alg := k.Alg
			if alg == "" {
				alg = "RS256"
			}
			keys[k.Kid] = KeyMaterial{KeyID: k.Kid, Algorithm: alg, Key: pub}
		case "EC":
			pub, err := parseECPublicKey(k.Crv, k.X, k.Y)
			if err != nil {
				continue // Skip malformed keys.
			}
			alg := k.Alg
			if alg == "" {
				alg = "ES256"
			}
			keys[k.Kid] = KeyMaterial{KeyID: k.Kid, Algorithm: alg, Key: pub}
		}
	}

	if len(keys) == 0 {
		return nil, bberr.New(bberr.CodeUnavailableUpstream,
			"auth: key-set document contains no usable keys")
	}

	return &KeySet{keys: keys, raw: raw}, nil
}

// parseRSAPublicKey constructs an *rsa.PublicKey from base64url-encoded
// modulus (n) and exponent (e) values.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}

// parseECPublicKey constructs an *ecdsa.PublicKey from a curve name and
// base64url-encoded x and y coordinates.
func parseECPublicKey(crv, xBase64, yBase64 string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("auth: unsupported EC curve %q", crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(xBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode EC x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(yBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode EC y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// ---------------------------------------------------------------------------
// KeySetFetcher — retrieves the key-set document from the provider
// ---------------------------------------------------------------------------

// KeySetFetcher retrieves the provider's current key-set snapshot. The
// production implementation is [HTTPKeySetFetcher]; tests substitute
// counting or failing fetchers.
type KeySetFetcher interface {
	Fetch(ctx context.Context) (*KeySet, error)
}

// HTTPKeySetFetcher fetches the key-set document from a fixed HTTPS endpoint.
type HTTPKeySetFetcher struct {
	url    string
	apiKey Secret
	client HTTPClient
}

// NewHTTPKeySetFetcher creates a fetcher for the given key-set URL. The
// apiKey, when non-empty, is sent as the "apikey" request header (the
// provider requires it even for the public key-set endpoint). A nil client
// falls back to a default [http.Client] with a 10-second timeout.
func NewHTTPKeySetFetcher(url string, apiKey Secret, client HTTPClient) *HTTPKeySetFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPKeySetFetcher{url: url, apiKey: apiKey, client: client}
}

// Fetch performs one GET against the key-set endpoint and parses the result.
// Network failures, non-200 statuses, and unusable documents all map to
// [bberr.CodeUnavailableUpstream]: from the verification flow's point of
// view the provider is unreachable either way.
//
// The response body is limited to 1 MB to prevent resource exhaustion.
func (f *HTTPKeySetFetcher) Fetch(ctx context.Context) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, bberr.Wrap(err, bberr.CodeUnavailableUpstream,
			"auth: failed to create key-set request")
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey.Value() != "" {
		req.Header.Set("apikey", f.apiKey.Value())
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, bberr.Wrap(err, bberr.CodeUnavailableUpstream,
			"auth: key-set request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, bberr.Newf(bberr.CodeUnavailableUpstream,
			"auth: key-set endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, bberr.Wrap(err, bberr.CodeUnavailableUpstream,
			"auth: failed to read key-set response")
	}

	return ParseKeySet(body)
}
