package auth

import "context"

type contextKey string

const principalContextKey contextKey = "principal"

// Roles carried in the token.
const (
	RolePatient      = "patient"
	RoleProfessional = "professional"
)

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    string
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

func GetUserID(ctx context.Context) (string, bool) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return "", false
	}
	return p.Subject, true
}
