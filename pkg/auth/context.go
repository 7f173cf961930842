package auth

import (
	"context"
	"errors"
)

type contextKey string

const operatorKey contextKey = "operator_claims"

// WithOperator attaches the validated OperatorClaims to the context.
func WithOperator(ctx context.Context, claims *OperatorClaims) context.Context {
	return context.WithValue(ctx, operatorKey, claims)
}

// GetOperator retrieves the OperatorClaims injected by the operator-auth
// middleware. Returns an error if no claims are present — handlers that
// require it should treat that as an internal misconfiguration, since the
// middleware guarantees it runs first.
func GetOperator(ctx context.Context) (*OperatorClaims, error) {
	claims, ok := ctx.Value(operatorKey).(*OperatorClaims)
	if !ok || claims == nil {
		return nil, errors.New("no operator claims in context")
	}
	return claims, nil
}
