package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for auth spans.
const tracerName = "github.com/ssimonitch/back-burn-core/pkg/auth"

// ---------------------------------------------------------------------------
// VerifierConfig
// ---------------------------------------------------------------------------

// VerifierConfig holds the configuration for [TokenVerifier]. KeySetURL and
// ExpectedIssuer are required; everything else has a production default.
type VerifierConfig struct {
	// KeySetURL is the provider's key-set endpoint (the JWKS URL).
	KeySetURL string `json:"keyset_url" yaml:"keyset_url" env:"KEYSET_URL" required:"true"`

	// ExpectedIssuer is the exact "iss" claim value tokens must carry.
	ExpectedIssuer string `json:"expected_issuer" yaml:"expected_issuer" env:"EXPECTED_ISSUER" required:"true"`

	// ExpectedAudience is the audience tokens must be scoped to. The
	// provider issues access tokens with aud "authenticated".
	ExpectedAudience string `json:"expected_audience" yaml:"expected_audience" env:"EXPECTED_AUDIENCE" envDefault:"authenticated"`

	// APIKey is the provider project API key, sent on key-set and
	// introspection requests. The Secret type prevents accidental logging.
	APIKey Secret `json:"-" yaml:"-" env:"API_KEY"`

	// CacheTTL controls key-set snapshot staleness: how old a persisted
	// snapshot may be and still warm the cache, and how long Fresh()
	// reports true after a refresh. It never gates verification against
	// a known kid. Must be non-negative. Defaults to 10 minutes.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" env:"CACHE_TTL" envDefault:"10m"`

	// ClockSkew is the maximum allowed clock difference between this
	// service and the token issuer when evaluating exp and iat. Must be
	// non-negative. Defaults to 30 seconds.
	ClockSkew time.Duration `json:"clock_skew" yaml:"clock_skew" env:"CLOCK_SKEW" envDefault:"30s"`

	// FallbackEnabled turns on remote introspection for tokens the
	// primary path cannot resolve to a key. Requires IntrospectionURL.
	FallbackEnabled bool `json:"fallback_enabled" yaml:"fallback_enabled" env:"FALLBACK_ENABLED" envDefault:"false"`

	// IntrospectionURL is the provider endpoint that authoritatively
	// reports whether a token is active. Required when FallbackEnabled.
	IntrospectionURL string `json:"introspection_url,omitempty" yaml:"introspection_url" env:"INTROSPECTION_URL"`

	// HTTPClient is used for key-set and introspection requests. If nil,
	// a default [http.Client] with a 10-second timeout is used.
	HTTPClient HTTPClient `json:"-" yaml:"-"`

	// Clock supplies time for expiry and staleness decisions. If nil,
	// [SystemClock] is used. Tests inject a fake.
	Clock Clock `json:"-" yaml:"-"`

	// SnapshotStore, when non-nil, persists key-set snapshots for warm
	// starts. See [SnapshotStore].
	SnapshotStore SnapshotStore `json:"-" yaml:"-"`

	// Logger receives non-fatal engine events (fallback invocations,
	// snapshot store failures). If nil, slog.Default() is used.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// Validate checks the configuration for logical correctness and returns a
// *[bberr.Error] with code [bberr.CodeValidation] if any field is invalid.
func (c *VerifierConfig) Validate() error {
	if c.KeySetURL == "" {
		return bberr.New(bberr.CodeValidation, "auth: key-set URL must not be empty")
	}
	if c.ExpectedIssuer == "" {
		return bberr.New(bberr.CodeValidation, "auth: expected issuer must not be empty")
	}
	if c.CacheTTL < 0 {
		return bberr.New(bberr.CodeValidation, "auth: cache TTL must be non-negative")
	}
	if c.ClockSkew < 0 {
		return bberr.New(bberr.CodeValidation, "auth: clock skew must be non-negative")
	}
	if c.FallbackEnabled && c.IntrospectionURL == "" {
		return bberr.New(bberr.CodeValidation, "auth: introspection URL must not be empty when fallback is enabled")
	}
	return nil
}

// DefaultVerifierConfig returns a VerifierConfig with production defaults.
// KeySetURL and ExpectedIssuer must still be filled in by the caller.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		ExpectedAudience: "authenticated",
		CacheTTL:         10 * time.Minute,
		ClockSkew:        30 * time.Second,
	}
}

// ---------------------------------------------------------------------------
// TokenVerifier
// ---------------------------------------------------------------------------

// TokenVerifier verifies bearer tokens against the provider's rotating key
// set. The verification flow per token is strictly bounded: at most one
// key-set refresh, and the refresh happens only for failures a rotation
// could explain (unknown kid, signature mismatch). Failures of claim
// semantics (expired, wrong issuer, wrong audience) are terminal without
// touching the cache, since no amount of refreshing changes what the token
// says about itself.
//
// TokenVerifier is safe for concurrent use by multiple goroutines.
type TokenVerifier struct {
	config   VerifierConfig
	keys     *KeySetCache
	fallback *IntrospectionValidator // nil when fallback disabled
	clock    Clock
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Verifier is the minimal surface guards depend on, satisfied by
// [TokenVerifier] and by test doubles.
type Verifier interface {
	Verify(ctx context.Context, raw string) (VerifiedClaims, error)
}

// Compile-time assertion that TokenVerifier implements Verifier.
var _ Verifier = (*TokenVerifier)(nil)

// NewTokenVerifier creates a TokenVerifier from the given configuration.
// The configuration is validated before use.
func NewTokenVerifier(cfg VerifierConfig) (*TokenVerifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	fetcher := NewHTTPKeySetFetcher(cfg.KeySetURL, cfg.APIKey, httpClient)

	cacheOpts := []KeySetCacheOption{WithCacheLogger(logger)}
	if cfg.SnapshotStore != nil {
		cacheOpts = append(cacheOpts, WithSnapshotStore(cfg.SnapshotStore))
	}
	cache := NewKeySetCache(fetcher, clock, cfg.CacheTTL, cacheOpts...)

	v := &TokenVerifier{
		config: cfg,
		keys:   cache,
		clock:  clock,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}

	if cfg.FallbackEnabled {
		v.fallback = NewIntrospectionValidator(IntrospectionConfig{
			URL:              cfg.IntrospectionURL,
			APIKey:           cfg.APIKey,
			ExpectedIssuer:   cfg.ExpectedIssuer,
			ExpectedAudience: cfg.ExpectedAudience,
			HTTPClient:       httpClient,
			Clock:            clock,
			ClockSkew:        cfg.ClockSkew,
		})
	}

	return v, nil
}

// NewTokenVerifierFromCache creates a TokenVerifier over an existing
// [KeySetCache]. Used by tests and by callers that share one cache across
// several verifiers.
func NewTokenVerifierFromCache(cfg VerifierConfig, cache *KeySetCache) (*TokenVerifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	v := &TokenVerifier{
		config: cfg,
		keys:   cache,
		clock:  clock,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}

	if cfg.FallbackEnabled {
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 10 * time.Second}
		}
		v.fallback = NewIntrospectionValidator(IntrospectionConfig{
			URL:              cfg.IntrospectionURL,
			APIKey:           cfg.APIKey,
			ExpectedIssuer:   cfg.ExpectedIssuer,
			ExpectedAudience: cfg.ExpectedAudience,
			HTTPClient:       httpClient,
			Clock:            clock,
			ClockSkew:        cfg.ClockSkew,
		})
	}

	return v, nil
}

// KeySet exposes the verifier's key-set cache so application startup can
// call Warm and readiness probes can call Fresh.
func (v *TokenVerifier) KeySet() *KeySetCache { return v.keys }

// Verify verifies a raw bearer token and returns its trusted claims.
//
// The flow per token:
//
//  1. Structural parse. Malformed tokens are rejected without any key-set
//     interaction.
//  2. Key lookup by the token's kid. On a miss, refresh the key set once
//     and retry the lookup.
//  3. Signature and claim verification against the resolved key. A
//     signature mismatch on a key that was cached before this call earns
//     the one refresh (the cached copy may predate a re-publication); a
//     mismatch against a just-refreshed set does not.
//  4. Expired, wrong-issuer, and wrong-audience rejections are terminal
//     wherever they occur: the signature already verified, so the token's
//     own content is the problem.
//  5. When the primary path ends in a key-identity failure or a refresh
//     failure and fallback is enabled, the raw token is validated through
//     the provider's introspection endpoint and that outcome is returned.
//
// No call path performs more than one key-set refresh.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (VerifiedClaims, error) {
	ctx, span := v.tracer.Start(ctx, "auth.Verify")
	defer span.End()

	tok, err := ParseToken(raw)
	if err != nil {
		finishSpan(span, err)
		return VerifiedClaims{}, err
	}
	span.SetAttributes(
		attribute.String("auth.kid", tok.KeyID),
		attribute.String("auth.alg", tok.Algorithm),
	)

	refreshed := false

	key, ok := v.keys.Lookup(tok.KeyID)
	if !ok {
		if rerr := v.keys.Refresh(ctx); rerr != nil {
			return v.exhausted(ctx, span, tok, rerr)
		}
		refreshed = true

		key, ok = v.keys.Lookup(tok.KeyID)
		if !ok {
			return v.exhausted(ctx, span, tok, unknownKeyError(tok.KeyID))
		}
	}
	span.SetAttributes(attribute.Bool("auth.key_refreshed", refreshed))

	claims, verr := v.verifyWithKey(tok, key)
	if verr == nil {
		v.finishOK(span, claims)
		return claims, nil
	}
	if !isKeyIdentityFailure(verr) {
		// Claim-semantics rejection: terminal, no refresh, no fallback.
		finishSpan(span, verr)
		return VerifiedClaims{}, verr
	}

	if refreshed {
		return v.exhausted(ctx, span, tok, verr)
	}

	// Signature mismatch against a previously cached key. Spend the one
	// refresh: the provider may have re-published the key under the same
	// kid.
	if rerr := v.keys.Refresh(ctx); rerr != nil {
		return v.exhausted(ctx, span, tok, rerr)
	}
	key, ok = v.keys.Lookup(tok.KeyID)
	if !ok {
		return v.exhausted(ctx, span, tok, unknownKeyError(tok.KeyID))
	}

	claims, verr = v.verifyWithKey(tok, key)
	if verr == nil {
		v.finishOK(span, claims)
		return claims, nil
	}
	if !isKeyIdentityFailure(verr) {
		finishSpan(span, verr)
		return VerifiedClaims{}, verr
	}
	return v.exhausted(ctx, span, tok, verr)
}

// verifyWithKey runs full signature and claim verification of the token
// against a single resolved key. Pure computation, no I/O.
func (v *TokenVerifier) verifyWithKey(tok *UnverifiedToken, key KeyMaterial) (VerifiedClaims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(allowedAlgorithms),
		jwt.WithIssuer(v.config.ExpectedIssuer),
		jwt.WithLeeway(v.config.ClockSkew),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if v.config.ExpectedAudience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.config.ExpectedAudience))
	}

	parsed, err := jwt.Parse(tok.Raw, func(t *jwt.Token) (any, error) {
		return key.Key, nil
	}, parserOpts...)
	if err != nil {
		return VerifiedClaims{}, classifyVerifyError(err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return VerifiedClaims{}, bberr.New(bberr.CodeAuthMalformed,
			"auth: unable to extract verified claims")
	}

	return claimsFromMap(mc)
}

// exhausted handles the end of the primary path: the one allowed refresh
// has been spent (or itself failed) and the token still cannot be resolved
// to a verifying key. When fallback is enabled the introspection outcome
// replaces the primary failure; otherwise the primary failure stands.
func (v *TokenVerifier) exhausted(ctx context.Context, span trace.Span, tok *UnverifiedToken, primary error) (VerifiedClaims, error) {
	if v.fallback == nil {
		finishSpan(span, primary)
		return VerifiedClaims{}, primary
	}

	span.SetAttributes(attribute.Bool("auth.fallback", true))
	v.logger.DebugContext(ctx, "token verification falling back to introspection",
		slog.String("kid", tok.KeyID),
		slog.String("primary_error", primary.Error()))

	claims, err := v.fallback.Validate(ctx, tok.Raw)
	if err != nil {
		finishSpan(span, err)
		return VerifiedClaims{}, err
	}

	v.finishOK(span, claims)
	return claims, nil
}

// finishOK records success attributes on the span.
func (v *TokenVerifier) finishOK(span trace.Span, claims VerifiedClaims) {
	span.SetAttributes(
		attribute.String("auth.subject", claims.Subject),
		attribute.String("auth.assurance", string(claims.Assurance)),
	)
}

// unknownKeyError builds the rejection for a kid absent from the key set
// even after a refresh.
func unknownKeyError(kid string) error {
	return bberr.Newf(bberr.CodeAuthUnknownKey,
		"auth: no key for kid %q in provider key set", kid)
}

// isKeyIdentityFailure reports whether the rejection is about resolving the
// token to a verifying key, as opposed to what the token's verified claims
// say. Key-identity failures (and refresh failures) are what the fallback
// path exists for; claim-semantics failures are never eligible.
func isKeyIdentityFailure(err error) bool {
	switch bberr.GetCode(err) {
	case bberr.CodeAuthUnknownKey, bberr.CodeAuthSignatureInvalid, bberr.CodeUnavailableUpstream:
		return true
	default:
		return false
	}
}

// classifyVerifyError converts a jwt library error into the engine's
// structured rejection. Errors already carrying a structured code pass
// through unchanged.
func classifyVerifyError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := bberr.AsError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return bberr.Wrap(err, bberr.CodeAuthMalformed, "auth: token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return bberr.Wrap(err, bberr.CodeAuthSignatureInvalid, "auth: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenExpired):
		return bberr.Wrap(err, bberr.CodeAuthExpired, "auth: token has expired")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return bberr.Wrap(err, bberr.CodeAuthIssuerMismatch, "auth: token issuer is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return bberr.Wrap(err, bberr.CodeAuthAudienceMismatch, "auth: token audience is invalid")
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return bberr.Wrap(err, bberr.CodeAuthMalformed, "auth: token is missing a required claim")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return bberr.Wrap(err, bberr.CodeAuthExpired, "auth: token is not yet valid")
	default:
		return bberr.Wrap(err, bberr.CodeAuthentication, "auth: token verification failed")
	}
}

// claimsFromMap builds [VerifiedClaims] from a verified claim map. The
// subject is required; the provider never issues an access token without
// one, so its absence marks the token unusable.
func claimsFromMap(mc jwt.MapClaims) (VerifiedClaims, error) {
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return VerifiedClaims{}, bberr.New(bberr.CodeAuthMalformed,
			"auth: token is missing the subject claim")
	}

	claims := VerifiedClaims{
		Subject: sub,
		Raw:     mapClaimsToMap(mc),
	}

	if iss, err := mc.GetIssuer(); err == nil {
		claims.Issuer = iss
	}
	if aud, err := mc.GetAudience(); err == nil {
		claims.Audience = []string(aud)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}

	if email, ok := mc["email"].(string); ok {
		claims.Email = email
	}
	if role, ok := mc["role"].(string); ok {
		claims.Role = role
	}
	if aal, ok := mc["aal"].(string); ok {
		claims.Assurance = AssuranceLevel(aal)
	}

	return claims, nil
}

// finishSpan records an error on the span if err is non-nil and sets the
// span status to Error.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
