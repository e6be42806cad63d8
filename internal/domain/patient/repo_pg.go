package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/vitals/internal/domain/access"
	"github.com/ehr/vitals/internal/platform/db"
	"github.com/ehr/vitals/internal/platform/query"
)

type repoPG struct {
	pool db.Querier
}

func NewRepo(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

const patientCols = `id, owner_id, first_name, last_name, date_of_birth, sex, place, external_id, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p     Patient
		owner *string
		dob   *time.Time
	)
	err := row.Scan(&p.ID, &owner, &p.FirstName, &p.LastName, &dob, &p.Sex, &p.Place,
		&p.ExternalID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		p.OwnerID = access.OwnerRef(access.PrincipalID(*owner))
	}
	p.DateOfBirth = dateFrom(dob)
	return &p, nil
}

func ownerParam(id *access.PrincipalID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, owner_id, first_name, last_name, date_of_birth, sex, place, external_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, ownerParam(p.OwnerID), p.FirstName, p.LastName, p.DateOfBirth.timePtr(), p.Sex, p.Place, p.ExternalID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, access.NotFound("patient", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

// Update writes the demographic fields. owner_id is not part of the
// statement; ownership only changes through the principal FK.
func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET first_name = $2, last_name = $3, date_of_birth = $4, sex = $5,
			place = $6, external_id = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth.timePtr(), p.Sex, p.Place, p.ExternalID,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return access.NotFound("patient", p.ID.String())
	}
	if err != nil {
		return fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return access.NotFound("patient", id.String())
	}
	return nil
}

func (r *repoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	q := query.NewSearchQuery("patient", patientCols)
	f.Apply(q)
	q.OrderBy("created_at DESC, id")

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := conn.Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
