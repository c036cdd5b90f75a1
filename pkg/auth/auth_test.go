package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/ssimonitch/back-burn-core/internal/testutil/fixtures"
)

// ---------------------------------------------------------------------------
// Shared test fixtures for the verification engine
// ---------------------------------------------------------------------------

// Baseline claim values used across the package tests, shared with the
// rest of the test suite through the fixtures package.
const (
	testIssuer   = fixtures.TestIssuer
	testAudience = fixtures.TestAudience
	testSubject  = fixtures.TestSubject
)

// testEpoch is the fixed "now" all fake clocks start from.
var testEpoch = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

// fakeClock is an injectable Clock whose time only moves when a test says so.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// authTestGenerateRSAKeyPair generates a 2048-bit RSA key pair for testing.
func authTestGenerateRSAKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key pair")
	return privKey, &privKey.PublicKey
}

// authTestGenerateECDSAKeyPair generates a P-256 ECDSA key pair for testing.
func authTestGenerateECDSAKeyPair(t *testing.T) (*ecdsa.PrivateKey, *ecdsa.PublicKey) {
	t.Helper()
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err, "failed to generate ECDSA key pair")
	return privKey, &privKey.PublicKey
}

// authTestSignRSAToken creates an RS256-signed token with the given claims
// and kid.
func authTestSignRSAToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	tokenStr, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign RSA token")
	return tokenStr
}

// authTestSignECDSAToken creates an ES256-signed token with the given claims
// and kid.
func authTestSignECDSAToken(t *testing.T, key *ecdsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = kid
	tokenStr, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign ECDSA token")
	return tokenStr
}

// authTestClaims returns a claim map valid relative to the given clock:
// issued now, expiring in an hour, carrying the baseline issuer, audience,
// and subject plus the provider's custom claims.
func authTestClaims(clock Clock, overrides jwt.MapClaims) jwt.MapClaims {
	now := clock.Now()
	claims := jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   testSubject,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"email": "user@backburn.test",
		"role":  "authenticated",
		"aal":   "aal1",
	}
	for k, v := range overrides {
		claims[k] = v
	}
	return claims
}

// authTestKeySetDoc builds a key-set JSON document from RSA public keys
// keyed by kid.
func authTestKeySetDoc(t *testing.T, rsaKeys map[string]*rsa.PublicKey) []byte {
	t.Helper()

	type jwkEntry struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Alg string `json:"alg,omitempty"`
		Use string `json:"use,omitempty"`
		N   string `json:"n,omitempty"`
		E   string `json:"e,omitempty"`
	}

	var keys []jwkEntry
	for kid, pub := range rsaKeys {
		keys = append(keys, jwkEntry{
			Kty: "RSA",
			Kid: kid,
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}

	doc, err := json.Marshal(map[string]any{"keys": keys})
	require.NoError(t, err, "failed to marshal key-set document")
	return doc
}

// authTestKeySet parses a KeySet holding the given RSA public keys.
func authTestKeySet(t *testing.T, rsaKeys map[string]*rsa.PublicKey) *KeySet {
	t.Helper()
	set, err := ParseKeySet(authTestKeySetDoc(t, rsaKeys))
	require.NoError(t, err, "failed to parse test key set")
	return set
}

// fakeFetcher is a KeySetFetcher that counts calls and serves a swappable
// snapshot (or a fixed error).
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	set   *KeySet
	err   error

	// block, when non-nil, is received from before each fetch returns,
	// letting tests hold a refresh in flight.
	block chan struct{}

	// entered, when non-nil, is signaled each time a fetch starts.
	entered chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context) (*KeySet, error) {
	f.mu.Lock()
	f.calls++
	set, err := f.set, f.err
	entered, block := f.entered, f.block
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return set, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = 0
}

func (f *fakeFetcher) SetKeySet(set *KeySet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = set
	f.err = nil
}

func (f *fakeFetcher) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// newTestVerifier wires a TokenVerifier over a fakeFetcher-backed cache.
// The cache starts cold; tests that want a warm cache call warmCache.
func newTestVerifier(t *testing.T, clock Clock, fetcher *fakeFetcher, mutate func(*VerifierConfig)) *TokenVerifier {
	t.Helper()

	cfg := DefaultVerifierConfig()
	cfg.KeySetURL = "https://auth.backburn.test/jwks"
	cfg.ExpectedIssuer = testIssuer
	cfg.ExpectedAudience = testAudience
	cfg.Clock = clock
	if mutate != nil {
		mutate(&cfg)
	}

	cache := NewKeySetCache(fetcher, clock, cfg.CacheTTL)
	v, err := NewTokenVerifierFromCache(cfg, cache)
	require.NoError(t, err, "failed to construct verifier")
	return v
}

// warmCache refreshes the verifier's cache once and resets the fetch
// counter, so subsequent assertions count only the fetches the exercised
// flow caused.
func warmCache(t *testing.T, v *TokenVerifier, fetcher *fakeFetcher) {
	t.Helper()
	require.NoError(t, v.KeySet().Refresh(context.Background()))
	fetcher.Reset()
}
