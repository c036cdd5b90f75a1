package auth

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

func TestParseToken_ValidRSAToken(t *testing.T) {
	t.Parallel()

	priv, _ := authTestGenerateRSAKeyPair(t)
	clock := newFakeClock()
	raw := authTestSignRSAToken(t, priv, "A1", authTestClaims(clock, nil))

	tok, err := ParseToken(raw)
	require.NoError(t, err)

	assert.Equal(t, raw, tok.Raw)
	assert.Equal(t, "A1", tok.KeyID)
	assert.Equal(t, "RS256", tok.Algorithm)
	assert.Equal(t, testSubject, tok.Claims["sub"])
	assert.Equal(t, testIssuer, tok.Claims["iss"])
}

func TestParseToken_ValidECDSAToken(t *testing.T) {
	t.Parallel()

	priv, _ := authTestGenerateECDSAKeyPair(t)
	clock := newFakeClock()
	raw := authTestSignECDSAToken(t, priv, "E1", authTestClaims(clock, nil))

	tok, err := ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "ES256", tok.Algorithm)
	assert.Equal(t, "E1", tok.KeyID)
}

func TestParseToken_StructuralRejections(t *testing.T) {
	t.Parallel()

	priv, _ := authTestGenerateRSAKeyPair(t)
	clock := newFakeClock()

	noKid := func() string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, authTestClaims(clock, nil))
		raw, err := token.SignedString(priv)
		require.NoError(t, err)
		return raw
	}()

	valid := authTestSignRSAToken(t, priv, "A1", authTestClaims(clock, nil))
	twoSegments := valid[:strings.LastIndex(valid, ".")]

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "not a token", token: "definitely-not-a-token"},
		{name: "two segments", token: twoSegments},
		{name: "oversized", token: strings.Repeat("a", maxTokenSize+1)},
		{name: "garbage header", token: "!!!." + strings.SplitN(valid, ".", 3)[1] + ".sig"},
		{name: "undecodable signature segment", token: twoSegments + ".%%%"},
		{name: "missing kid", token: noKid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseToken(tt.token)
			require.Error(t, err)
			assert.Equal(t, bberr.CodeAuthMalformed, bberr.GetCode(err))
		})
	}
}

func TestParseToken_RejectsForbiddenAlgorithms(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	claims := authTestClaims(clock, nil)

	noneToken := func() string {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
		token.Header["kid"] = "A1"
		raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		return raw
	}()

	hmacToken := func() string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		token.Header["kid"] = "A1"
		raw, err := token.SignedString([]byte("this-is-a-32-byte-test-secret-ke"))
		require.NoError(t, err)
		return raw
	}()

	tests := []struct {
		name  string
		token string
	}{
		{name: "alg none", token: noneToken},
		{name: "alg HS256", token: hmacToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseToken(tt.token)
			require.Error(t, err)
			assert.Equal(t, bberr.CodeAuthMalformed, bberr.GetCode(err),
				"forbidden algorithms must be rejected at parse time")
		})
	}
}
