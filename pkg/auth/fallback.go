package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

// IntrospectionConfig configures the [IntrospectionValidator].
type IntrospectionConfig struct {
	// URL is the provider's introspection endpoint.
	URL string

	// APIKey is the provider project API key sent with each request.
	APIKey Secret

	// ExpectedIssuer and ExpectedAudience are re-checked against the
	// introspection response. The endpoint is authoritative about whether
	// the token is active, but the engine still refuses tokens scoped to
	// a different issuer or audience.
	ExpectedIssuer   string
	ExpectedAudience string

	// HTTPClient performs the request. If nil, a default [http.Client]
	// with a 10-second timeout is used.
	HTTPClient HTTPClient

	// Clock supplies time for the expiry re-check. If nil, [SystemClock].
	Clock Clock

	// ClockSkew is the tolerance applied to the expiry re-check.
	ClockSkew time.Duration
}

// IntrospectionValidator validates a token remotely through the provider's
// introspection endpoint. It is the engine's fallback path: slower and
// network-bound, but immune to key-distribution problems because the
// provider checks the token against its own signing state.
//
// The validator trusts the endpoint's active/inactive verdict but still
// re-validates expiry, issuer, and audience from the returned metadata,
// failing closed when they are absent or wrong.
type IntrospectionValidator struct {
	config IntrospectionConfig
	client HTTPClient
	clock  Clock
}

// NewIntrospectionValidator creates a validator for the configured endpoint.
func NewIntrospectionValidator(cfg IntrospectionConfig) *IntrospectionValidator {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	return &IntrospectionValidator{config: cfg, client: client, clock: clock}
}

// introspectionRequest is the JSON body sent to the introspection endpoint.
type introspectionRequest struct {
	Token string `json:"token"`
}

// introspectionResponse is the provider's introspection result. Field names
// follow RFC 7662; the provider adds email, role, and aal.
type introspectionResponse struct {
	Active   bool     `json:"active"`
	Subject  string   `json:"sub"`
	Issuer   string   `json:"iss"`
	Audience audience `json:"aud"`
	Expiry   int64    `json:"exp"`
	IssuedAt int64    `json:"iat"`
	Email    string   `json:"email"`
	Role     string   `json:"role"`
	AAL      string   `json:"aal"`
}

// audience accepts both the single-string and array forms of the aud field.
type audience []string

func (a *audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audience{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = audience(many)
	return nil
}

// Validate sends the raw token to the introspection endpoint and maps the
// response to [VerifiedClaims].
//
// Outcomes:
//   - transport failure or a 5xx status: [bberr.CodeUnavailableUpstream]
//     (the caller fails closed)
//   - active=false: [bberr.CodeAuthentication]
//   - active=true but expired, wrong issuer, or wrong audience per the
//     returned metadata: the corresponding AUTH rejection
//   - otherwise: trusted claims
func (iv *IntrospectionValidator) Validate(ctx context.Context, raw string) (VerifiedClaims, error) {
	body, err := json.Marshal(introspectionRequest{Token: raw})
	if err != nil {
		return VerifiedClaims{}, bberr.Wrap(err, bberr.CodeInternal,
			"auth: failed to encode introspection request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, iv.config.URL, bytes.NewReader(body))
	if err != nil {
		return VerifiedClaims{}, bberr.Wrap(err, bberr.CodeUnavailableUpstream,
			"auth: failed to create introspection request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if iv.config.APIKey.Value() != "" {
		req.Header.Set("apikey", iv.config.APIKey.Value())
	}

	resp, err := iv.client.Do(req)
	if err != nil {
		return VerifiedClaims{}, bberr.Wrap(err, bberr.CodeUnavailableUpstream,
			"auth: introspection request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Proceed to decode.
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// The endpoint rejected our credentials or the token outright.
		return VerifiedClaims{}, bberr.Newf(bberr.CodeAuthentication,
			"auth: introspection endpoint rejected the token (status %d)", resp.StatusCode)
	default:
		return VerifiedClaims{}, bberr.Newf(bberr.CodeUnavailableUpstream,
			"auth: introspection endpoint returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return VerifiedClaims{}, bberr.Wrap(err, bberr.CodeUnavailableUpstream,
			"auth: failed to read introspection response")
	}

	var ir introspectionResponse
	if err := json.Unmarshal(payload, &ir); err != nil {
		return VerifiedClaims{}, bberr.Wrap(err, bberr.CodeUnavailableUpstream,
			"auth: failed to parse introspection response")
	}

	if !ir.Active {
		return VerifiedClaims{}, bberr.New(bberr.CodeAuthentication,
			"auth: token is not active")
	}

	return iv.claimsFromResponse(ir)
}

// claimsFromResponse re-validates the metadata of an active token and maps
// it to [VerifiedClaims]. Missing metadata fails closed: an introspection
// response without an expiry or subject is not trusted.
func (iv *IntrospectionValidator) claimsFromResponse(ir introspectionResponse) (VerifiedClaims, error) {
	if ir.Subject == "" {
		return VerifiedClaims{}, bberr.New(bberr.CodeAuthMalformed,
			"auth: introspection response is missing the subject")
	}
	if ir.Expiry == 0 {
		return VerifiedClaims{}, bberr.New(bberr.CodeAuthMalformed,
			"auth: introspection response is missing the expiry")
	}

	expiresAt := time.Unix(ir.Expiry, 0)
	if iv.clock.Now().After(expiresAt.Add(iv.config.ClockSkew)) {
		return VerifiedClaims{}, bberr.New(bberr.CodeAuthExpired,
			"auth: token has expired")
	}

	if ir.Issuer != iv.config.ExpectedIssuer {
		return VerifiedClaims{}, bberr.New(bberr.CodeAuthIssuerMismatch,
			"auth: token issuer is invalid")
	}

	if iv.config.ExpectedAudience != "" && !containsAudience(ir.Audience, iv.config.ExpectedAudience) {
		return VerifiedClaims{}, bberr.New(bberr.CodeAuthAudienceMismatch,
			"auth: token audience is invalid")
	}

	claims := VerifiedClaims{
		Subject:   ir.Subject,
		Issuer:    ir.Issuer,
		Audience:  []string(ir.Audience),
		ExpiresAt: expiresAt,
		Email:     ir.Email,
		Role:      ir.Role,
		Assurance: AssuranceLevel(ir.AAL),
	}
	if ir.IssuedAt != 0 {
		claims.IssuedAt = time.Unix(ir.IssuedAt, 0)
	}
	return claims, nil
}

func containsAudience(aud audience, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
