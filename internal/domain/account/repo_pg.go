package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ehr/vitals/internal/domain/access"
	"github.com/ehr/vitals/internal/platform/db"
)

type repoPG struct {
	pool db.Querier
}

func NewRepo(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Upsert(ctx context.Context, a *Account) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO principal (id, username, is_staff, is_clinician)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			is_staff = EXCLUDED.is_staff,
			is_clinician = EXCLUDED.is_clinician,
			last_seen_at = NOW()
		RETURNING created_at, last_seen_at`,
		string(a.ID), a.Username, a.Staff, a.Clinician,
	).Scan(&a.CreatedAt, &a.LastSeenAt)
	if err != nil {
		return fmt.Errorf("upsert principal %s: %w", a.ID, err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id access.PrincipalID) (*Account, error) {
	var a Account
	var rawID string
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, username, is_staff, is_clinician, created_at, last_seen_at
		FROM principal WHERE id = $1`, string(id),
	).Scan(&rawID, &a.Username, &a.Staff, &a.Clinician, &a.CreatedAt, &a.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, access.NotFound("principal", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("get principal %s: %w", id, err)
	}
	a.ID = access.PrincipalID(rawID)
	return &a, nil
}
