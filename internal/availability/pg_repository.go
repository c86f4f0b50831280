package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telecare-scheduling/internal/slot"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const windowColumns = `id, provider_id, day_of_week, start_min, end_min, active, location, created_at, updated_at`

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var start, end int16
	var loc []byte

	err := row.Scan(
		&w.ID,
		&w.ProviderID,
		&w.DayOfWeek,
		&start,
		&end,
		&w.Active,
		&loc,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	w.StartTime = slot.ClockTime(start)
	w.EndTime = slot.ClockTime(end)
	if len(loc) > 0 {
		var l slot.Location
		if err := json.Unmarshal(loc, &l); err != nil {
			return nil, fmt.Errorf("decode window location: %w", err)
		}
		w.Location = &l
	}
	return &w, nil
}

func encodeLocation(l *slot.Location) ([]byte, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (r *PgRepository) UpsertForDay(ctx context.Context, w Window) (*Window, error) {
	loc, err := encodeLocation(w.Location)
	if err != nil {
		return nil, err
	}

	// A nil location keeps the stored one, matching a partial replace.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_windows (id, provider_id, day_of_week, start_min, end_min, active, location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, true, $6, now(), now())
		ON CONFLICT (provider_id, day_of_week) DO UPDATE
		SET start_min = EXCLUDED.start_min,
		    end_min = EXCLUDED.end_min,
		    active = true,
		    location = COALESCE(EXCLUDED.location, availability_windows.location),
		    updated_at = now()
		RETURNING `+windowColumns,
		uuid.New(), w.ProviderID, w.DayOfWeek, int16(w.StartTime), int16(w.EndTime), loc)

	return scanWindow(row)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Window, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE id = $1
	`, id)
	return scanWindow(row)
}

func (r *PgRepository) Update(ctx context.Context, w Window) (*Window, error) {
	loc, err := encodeLocation(w.Location)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE availability_windows
		SET start_min = $2,
		    end_min = $3,
		    location = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+windowColumns,
		w.ID, int16(w.StartTime), int16(w.EndTime), loc)

	return scanWindow(row)
}

func (r *PgRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_windows
		SET active = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, active)
	if err != nil {
		return fmt.Errorf("set window active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

func (r *PgRepository) ListActive(ctx context.Context, providerID uuid.UUID) ([]Window, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE provider_id = $1 AND active
		ORDER BY day_of_week ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
