package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ehr/vitals/internal/domain/access"
)

// Claims is the bearer token payload accepted by JWTMiddleware.
type Claims struct {
	jwt.RegisteredClaims
	TenantID          string   `json:"tenant_id"`
	PreferredUsername string   `json:"preferred_username"`
	Roles             []string `json:"roles"`
	IsStaff           bool     `json:"is_staff"`
	IsClinician       bool     `json:"is_clinician"`
}

// Principal maps the token onto the caller identity used by access checks.
// The "admin" and "staff" roles grant staff; "clinician" grants clinician.
func (c *Claims) Principal() access.Principal {
	p := access.Principal{
		ID:        access.PrincipalID(c.Subject),
		Username:  c.PreferredUsername,
		Staff:     c.IsStaff,
		Clinician: c.IsClinician,
	}
	for _, r := range c.Roles {
		switch strings.ToLower(r) {
		case "admin", access.RoleStaff:
			p.Staff = true
		case access.RoleClinician:
			p.Clinician = true
		}
	}
	if p.Username == "" {
		p.Username = c.Subject
	}
	return p
}
