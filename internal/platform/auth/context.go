package auth

import (
	"context"

	"github.com/ehr/vitals/internal/domain/access"
)

type contextKey string

const principalKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p access.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, or the zero
// (anonymous) Principal when the request carried no credentials.
func PrincipalFromContext(ctx context.Context) access.Principal {
	p, _ := ctx.Value(principalKey).(access.Principal)
	return p
}
