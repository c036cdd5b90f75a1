package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

// echoIdentityHandler writes the identity found on the request context.
func echoIdentityHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		require.True(t, ok, "guarded handler must see an identity")
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(identity))
	})
}

func decodeIdentity(t *testing.T, rec *httptest.ResponseRecorder) IdentityContext {
	t.Helper()
	var identity IdentityContext
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&identity))
	return identity
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestRequireAuth_Success(t *testing.T) {
	t.Parallel()

	guard := NewGuard(&stubVerifier{claims: stubClaims()})
	handler := RequireAuth(guard)(echoIdentityHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/plans", nil)
	req.Header.Set(HeaderAuthorization, "Bearer the-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testSubject, decodeIdentity(t, rec).UserID)
}

func TestRequireAuth_RejectionsAreGeneric(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		verify     error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no credential",
			header:     "",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "unauthorized",
		},
		{
			name:       "expired token",
			header:     "Bearer t",
			verify:     bberr.New(bberr.CodeAuthExpired, "auth: token has expired"),
			wantStatus: http.StatusUnauthorized,
			wantBody:   "unauthorized",
		},
		{
			name:       "signature invalid",
			header:     "Bearer t",
			verify:     bberr.New(bberr.CodeAuthSignatureInvalid, "auth: token signature is invalid"),
			wantStatus: http.StatusUnauthorized,
			wantBody:   "unauthorized",
		},
		{
			name:       "upstream down",
			header:     "Bearer t",
			verify:     bberr.New(bberr.CodeUnavailableUpstream, "auth: key-set refresh failed"),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "service unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			guard := NewGuard(&stubVerifier{err: tt.verify})
			handler := RequireAuth(guard)(echoIdentityHandler(t))

			req := httptest.NewRequest(http.MethodGet, "/plans", nil)
			if tt.header != "" {
				req.Header.Set(HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, decodeErrorBody(t, rec),
				"the body must not reveal which verification step failed")
		})
	}
}

func TestRequireAuth_UpstreamFailureInvitesRetry(t *testing.T) {
	t.Parallel()

	guard := NewGuard(&stubVerifier{err: bberr.New(bberr.CodeUnavailableUpstream, "down")})
	handler := RequireAuth(guard)(echoIdentityHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/plans", nil)
	req.Header.Set(HeaderAuthorization, "Bearer t")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestOptionalAuth_AnonymousPassThrough(t *testing.T) {
	t.Parallel()

	verifier := &stubVerifier{}
	handler := OptionalAuth(NewGuard(verifier))(echoIdentityHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	identity := decodeIdentity(t, rec)
	assert.True(t, identity.IsAnonymous)
	assert.Equal(t, 0, verifier.calls)
}

func TestOptionalAuth_AuthenticatedPassThrough(t *testing.T) {
	t.Parallel()

	handler := OptionalAuth(NewGuard(&stubVerifier{claims: stubClaims()}))(echoIdentityHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Header.Set(HeaderAuthorization, "Bearer the-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	identity := decodeIdentity(t, rec)
	assert.False(t, identity.IsAnonymous)
	assert.Equal(t, testSubject, identity.UserID)
}

func TestOptionalAuth_BadCredentialStillRejected(t *testing.T) {
	t.Parallel()

	guard := NewGuard(&stubVerifier{err: bberr.New(bberr.CodeAuthExpired, "expired")})
	handler := OptionalAuth(guard)(echoIdentityHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Header.Set(HeaderAuthorization, "Bearer t")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAssuranceLevel(t *testing.T) {
	t.Parallel()

	t.Run("sufficient", func(t *testing.T) {
		t.Parallel()

		claims := stubClaims()
		claims.Assurance = AssuranceLevel2
		handler := RequireAssuranceLevel(NewGuard(&stubVerifier{claims: claims}), AssuranceLevel2)(echoIdentityHandler(t))

		req := httptest.NewRequest(http.MethodDelete, "/account", nil)
		req.Header.Set(HeaderAuthorization, "Bearer t")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("insufficient", func(t *testing.T) {
		t.Parallel()

		handler := RequireAssuranceLevel(NewGuard(&stubVerifier{claims: stubClaims()}), AssuranceLevel2)(echoIdentityHandler(t))

		req := httptest.NewRequest(http.MethodDelete, "/account", nil)
		req.Header.Set(HeaderAuthorization, "Bearer t")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "forbidden", decodeErrorBody(t, rec))
	})
}
