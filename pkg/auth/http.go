package auth

import (
	"encoding/json"
	"net/http"

	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

// HTTP middleware adapting [Guard] to net/http handler chains. Rejection
// responses are deliberately generic: the status code distinguishes 401
// from 403 from 503, but the body never reveals which verification step
// failed. The specific rejection is recorded on the request span and is
// available to server-side logging; it is not for the caller.

// RequireAuth wraps a handler so it only runs for authenticated requests.
// The verified identity is placed on the request context for retrieval with
// [IdentityFromContext].
func RequireAuth(guard *Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := guard.RequireIdentity(r.Context(), r.Header.Get(HeaderAuthorization))
			if err != nil {
				writeAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalAuth wraps a handler that serves both anonymous and authenticated
// callers. Requests with no credential proceed with the anonymous identity;
// requests with an invalid credential are rejected (never downgraded).
func OptionalAuth(guard *Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := guard.OptionalIdentity(r.Context(), r.Header.Get(HeaderAuthorization))
			if err != nil {
				writeAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAssuranceLevel wraps a handler that must only run for sessions at
// or above the given authenticator assurance level.
func RequireAssuranceLevel(guard *Guard, minimum AssuranceLevel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := guard.RequireAssurance(r.Context(), r.Header.Get(HeaderAuthorization), minimum)
			if err != nil {
				writeAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// errorBody is the generic JSON rejection body.
type errorBody struct {
	Error string `json:"error"`
}

// writeAuthError writes the generic rejection for a guard failure. Bodies
// carry only a category word; codes and messages stay server-side.
func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	if e, ok := bberr.AsError(err); ok {
		status = e.HTTPStatus()
	}

	var msg string
	switch {
	case status == http.StatusForbidden:
		msg = "forbidden"
	case status >= 500:
		msg = "service unavailable"
		// Upstream trouble is not the caller's fault; invite a retry.
		w.Header().Set("Retry-After", "1")
	default:
		status = http.StatusUnauthorized
		msg = "unauthorized"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}
