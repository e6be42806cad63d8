package account

import (
	"context"
	"errors"

	"github.com/ehr/vitals/internal/domain/access"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register stores p so it can be referenced as an owner. It must run in the
// same transaction as the write that needs the reference.
func (s *Service) Register(ctx context.Context, p access.Principal) (*Account, error) {
	if !p.Authenticated() {
		return nil, access.ErrUnauthenticated
	}
	a := FromPrincipal(p)
	if err := s.repo.Upsert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Me describes the caller. Role flags always come from the current
// credentials, not from the stored row.
func (s *Service) Me(ctx context.Context, p access.Principal) (*Profile, error) {
	if !p.Authenticated() {
		return nil, access.ErrUnauthenticated
	}
	prof := &Profile{Account: FromPrincipal(p), Roles: p.Roles()}
	if prof.Roles == nil {
		prof.Roles = []string{}
	}
	stored, err := s.repo.GetByID(ctx, p.ID)
	switch {
	case errors.Is(err, access.ErrNotFound):
		return prof, nil
	case err != nil:
		return nil, err
	}
	prof.CreatedAt = stored.CreatedAt
	prof.LastSeenAt = stored.LastSeenAt
	prof.Registered = true
	return prof, nil
}
