package reading

import (
	"context"
	"errors"
	"fmt"

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

const readingCols = `id, patient_id, bpm, recorded_at, device_id, metadata, created_at`

func scanReading(row pgx.Row) (*Reading, error) {
	var r Reading
	if err := row.Scan(&r.ID, &r.PatientID, &r.Value, &r.RecordedAt, &r.DeviceID, &r.Metadata, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.RecordedAt = r.RecordedAt.UTC()
	return &r, nil
}

func (r *repoPG) Create(ctx context.Context, rd *Reading) error {
	if rd.ID == uuid.Nil {
		rd.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO heart_rate (id, patient_id, bpm, recorded_at, device_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		rd.ID, rd.PatientID, rd.Value, rd.RecordedAt, rd.DeviceID, rd.Metadata,
	).Scan(&rd.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert heart rate: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reading, error) {
	rd, err := scanReading(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+readingCols+` FROM heart_rate WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, access.NotFound("reading", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get heart rate %s: %w", id, err)
	}
	return rd, nil
}

func (r *repoPG) Update(ctx context.Context, rd *Reading) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE heart_rate SET patient_id = $2, bpm = $3, recorded_at = $4, device_id = $5, metadata = $6
		WHERE id = $1`,
		rd.ID, rd.PatientID, rd.Value, rd.RecordedAt, rd.DeviceID, rd.Metadata,
	)
	if err != nil {
		return fmt.Errorf("update heart rate %s: %w", rd.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return access.NotFound("reading", rd.ID.String())
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM heart_rate WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete heart rate %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return access.NotFound("reading", id.String())
	}
	return nil
}

func (r *repoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Reading, int, error) {
	q := query.NewSearchQuery("heart_rate", readingCols)
	f.Apply(q)
	q.OrderBy("recorded_at DESC, id")

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count heart rates: %w", err)
	}

	rows, err := conn.Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search heart rates: %w", err)
	}
	defer rows.Close()

	var items []*Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan heart rate: %w", err)
		}
		items = append(items, rd)
	}
	return items, total, rows.Err()
}
