package shared

import "context"

// Role is the staff role carried by a verified caller.
type Role string

const (
	RoleOwner      Role = "owner"
	RolePharmacist Role = "pharmacist"
	RoleCashier    Role = "cashier"
	RoleAuditor    Role = "auditor"
)

// Principal is the verified identity of the caller: the pharmacy it acts for and its staff role.
type Principal struct {
	ActorID    string
	PharmacyID string
	Role       Role
}

// CanWrite reports whether the role may mutate pharmacy state.
func (p Principal) CanWrite() bool {
	return p.Role != RoleAuditor && p.PharmacyID != ""
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
