package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/CRT-AUTO/bridge-core/pkg/api"
)

// OperatorGuard validates the Bearer JWT (HS256) guarding the three
// operator-facing control endpoints (/drain, /session-cleanup and
// /api/refresh/{connection_id}). A nil or empty signingKey is a
// programmer error — callers must have already enforced the fatal
// startup check in pkg/config; OperatorGuard itself always fails closed
// if somehow constructed without one.
type OperatorGuard struct {
	signingKey []byte
}

// NewOperatorGuard builds a guard from the configured HS256 signing key.
func NewOperatorGuard(signingKey string) *OperatorGuard {
	return &OperatorGuard{signingKey: []byte(signingKey)}
}

// Middleware enforces Bearer JWT auth. Missing or invalid tokens are
// rejected with a 401 RFC 7807 response; there is no fallback identity.
func (g *OperatorGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(g.signingKey) == 0 {
			api.WriteUnauthorized(w, "operator authentication not configured")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			api.WriteUnauthorized(w, "missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			api.WriteUnauthorized(w, "expected 'Bearer <token>' Authorization header")
			return
		}

		claims := &OperatorClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return g.signingKey, nil
		})
		if err != nil || !token.Valid {
			api.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := WithOperator(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
