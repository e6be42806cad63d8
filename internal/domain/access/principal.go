package access

// PrincipalID is the opaque, stable identity of an authenticated actor
// (the JWT subject).
type PrincipalID string

// Principal is the actor a request is made on behalf of. It is resolved once
// by the auth layer and passed explicitly into every policy and scoping call.
type Principal struct {
	ID        PrincipalID
	Username  string
	Staff     bool
	Clinician bool
}

// Authenticated reports whether the principal carries an identity. The zero
// Principal is the unauthenticated one.
func (p Principal) Authenticated() bool {
	return p.ID != ""
}

// Privileged reports whether the principal bypasses ownership checks.
func (p Principal) Privileged() bool {
	return p.Staff || p.Clinician
}

// Owns reports whether owner is set and equal to the principal's identity.
// A nil owner is never owned by anyone.
func (p Principal) Owns(owner *PrincipalID) bool {
	return owner != nil && p.Authenticated() && *owner == p.ID
}

// Roles renders the role flags as role names for logging and auditing.
func (p Principal) Roles() []string {
	var roles []string
	if p.Staff {
		roles = append(roles, RoleStaff)
	}
	if p.Clinician {
		roles = append(roles, RoleClinician)
	}
	return roles
}

const (
	RoleStaff     = "staff"
	RoleClinician = "clinician"
)

// OwnerRef returns a pointer to a copy of id, for assigning nullable owners.
func OwnerRef(id PrincipalID) *PrincipalID {
	return &id
}
