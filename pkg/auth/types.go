package auth

import "github.com/golang-jwt/jwt/v5"

// OperatorClaims are the JWT claims expected on the bearer token guarding
// the operator-facing control endpoints (/drain, /session-cleanup,
// /refresh/*). tenant_id is intentionally not required: these are
// cross-tenant operator actions, not per-tenant API calls.
type OperatorClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}
