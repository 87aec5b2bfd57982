package oauthmodel

// ResponseType represents the OAuth 2.0 response type requested from the
// lichess authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	// Lichess only supports this flow, always paired with PKCE.
	// Example: /oauth?response_type=code&client_id=...&code_challenge=...
	CodeResponseType ResponseType = "code"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
// Binds the code exchange to a secret held only by this client.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	// Lichess validates: SHA256(provided code_verifier) == stored code_challenge
	// This is the only method lichess accepts.
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypePlain means no hashing, code_verifier sent directly.
	// Recognised so that a misconfigured challenge is reported rather than sent.
	CodeMethodTypePlain CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, client_id, redirect_uri, code_verifier
	// Returns: access_token, expires_in and, when issued, refresh_token
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a new access token.
	// Token request includes: refresh_token, client_id
	// Returns: new access_token and possibly a rotated refresh_token
	RefreshTokenGrant GrantType = "refresh_token"
)

// TokenResponse is the token endpoint response body.
// Lichess returns access_token, token_type and expires_in; refresh_token and
// scope are optional.
type TokenResponse struct {
	// AccessToken is the bearer token used on every API call.
	// Example: "lio_VdlyBkMU7YtVlSd9AqdGJZfjBgGdZ4Iq"
	AccessToken string `json:"access_token,omitempty"`

	// TokenType indicates how to use the access token (always "Bearer").
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Zero means absent, in which case a one hour lifetime is assumed.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// RefreshToken is an opaque token used to obtain new access tokens.
	// When a refresh response omits it, the previous one stays valid.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the space separated list of granted scopes.
	// May be less than requested if some scopes were denied.
	Scope string `json:"scope,omitempty"`
}
