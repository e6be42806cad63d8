package reading

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Reading) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reading, error)
	Update(ctx context.Context, r *Reading) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Search returns readings matching f, newest recorded_at first.
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Reading, int, error)
}
