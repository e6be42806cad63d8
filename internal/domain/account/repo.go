package account

import (
	"context"

	"github.com/ehr/vitals/internal/domain/access"
)

type Repository interface {
	// Upsert inserts the account or refreshes its username, role flags and
	// last_seen_at. CreatedAt and LastSeenAt are filled from the store.
	Upsert(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id access.PrincipalID) (*Account, error)
}
