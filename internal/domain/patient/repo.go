package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists patients. GetByID reports a missing row as
// access.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error)
}
