package errors

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., AUTH, VAL, INT) and XXX is a three-digit numeric code.
//
// Error codes are designed to be:
//   - Stable: Codes do not change once assigned
//   - Unique: Each error condition has a distinct code
//   - Machine-readable: Suitable for automated classification and alerting
type Code string

// Error code categories and their ranges:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	AUTHZ_xxx   - Authorization errors (403 Forbidden)
//	NF_xxx      - Not found errors (404 Not Found)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// Validation errors (VAL_xxx) - HTTP 400
	// Used when input or configuration fails validation rules.

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// Authentication errors (AUTH_xxx) - HTTP 401
	// One code per rejection kind of the token verification engine, so the
	// rotation recovery policy can branch on the failure class without
	// string matching.

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthExpired indicates the token's expiry is in the past
	// (beyond the configured clock-skew tolerance).
	CodeAuthExpired Code = "AUTH_002"

	// CodeAuthMalformed indicates the token is structurally invalid:
	// bad segment count, undecodable header or claims, or an
	// unsupported/forbidden signing algorithm.
	CodeAuthMalformed Code = "AUTH_003"

	// CodeAuthSignatureInvalid indicates the signature does not verify
	// against the key selected by the token's kid.
	CodeAuthSignatureInvalid Code = "AUTH_004"

	// CodeAuthUnknownKey indicates the token references a signing key id
	// that is not present in the provider's key set.
	CodeAuthUnknownKey Code = "AUTH_005"

	// CodeAuthIssuerMismatch indicates the token's issuer claim does not
	// equal the configured expected issuer.
	CodeAuthIssuerMismatch Code = "AUTH_006"

	// CodeAuthAudienceMismatch indicates the token's audience claim does
	// not contain the configured expected audience.
	CodeAuthAudienceMismatch Code = "AUTH_007"

	// CodeAuthNoCredential indicates no bearer credential was supplied.
	// Optional-auth guards treat this as anonymous rather than an error.
	CodeAuthNoCredential Code = "AUTH_008"

	// Authorization errors (AUTHZ_xxx) - HTTP 403
	// Raised only after successful authentication.

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthzInsufficientAssurance indicates the verified identity's
	// authenticator assurance level does not meet the level required by
	// the operation (e.g., aal1 token on an aal2-gated endpoint).
	CodeAuthzInsufficientAssurance Code = "AUTHZ_002"

	// Not found errors (NF_xxx) - HTTP 404

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// Internal errors (INT_xxx) - HTTP 500

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableUpstream indicates the identity provider's key-set or
	// introspection endpoint could not be reached or returned an unusable
	// response. Verification flows fail closed on this code.
	CodeUnavailableUpstream Code = "UNAVAIL_002"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
