package account

import (
	"time"

	"github.com/ehr/vitals/internal/domain/access"
)

// Account is the local record of a principal that has touched patient data.
// Patients reference it as their owner.
type Account struct {
	ID         access.PrincipalID `json:"id"`
	Username   string             `json:"username"`
	Staff      bool               `json:"is_staff"`
	Clinician  bool               `json:"is_clinician"`
	CreatedAt  time.Time          `json:"created_at"`
	LastSeenAt time.Time          `json:"last_seen_at"`
}

func FromPrincipal(p access.Principal) *Account {
	return &Account{ID: p.ID, Username: p.Username, Staff: p.Staff, Clinician: p.Clinician}
}

// Profile is the response of GET /accounts/me. Registered is false until
// the principal has been stored by a write.
type Profile struct {
	*Account
	Roles      []string `json:"roles"`
	Registered bool     `json:"registered"`
}
