package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telecare-scheduling/internal/db"
	"github.com/hackgods/telecare-scheduling/internal/slot"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, provider_id, requested_at, approved_at, reason, notes, status,
	duration_minutes, source_window_id, location, slot_date::text, slot_start, slot_end, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var loc []byte

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.RequestedAt,
		&a.ApprovedAt,
		&a.Reason,
		&a.Notes,
		&a.Status,
		&a.DurationMinutes,
		&a.SourceWindowID,
		&loc,
		&a.SlotDate,
		&a.SlotStart,
		&a.SlotEnd,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if len(loc) > 0 {
		var l slot.Location
		if err := json.Unmarshal(loc, &l); err != nil {
			return nil, fmt.Errorf("decode appointment location: %w", err)
		}
		a.Location = &l
	}
	return &a, nil
}

func collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, a Appointment) (*Appointment, error) {
	var loc []byte
	if a.Location != nil {
		var err error
		if loc, err = json.Marshal(a.Location); err != nil {
			return nil, err
		}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, requested_at, reason, status, duration_minutes,
		                          source_window_id, location, slot_date, slot_start, slot_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8, $9::date, $10, $11, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.ProviderID, a.RequestedAt, a.Reason, a.DurationMinutes,
		a.SourceWindowID, loc, a.SlotDate, a.SlotStart, a.SlotEnd)

	created, err := scanAppointment(row)
	if err != nil {
		if db.IsSlotConflict(err) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByProviderOnDate(ctx context.Context, providerID uuid.UUID, date string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1 AND slot_date = $2::date
		ORDER BY slot_start ASC
	`, providerID, date)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY requested_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PgRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		ORDER BY requested_at DESC
		LIMIT $2 OFFSET $3
	`, providerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PgRepository) ListAll(ctx context.Context, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PgRepository) Transition(ctx context.Context, id uuid.UUID, from Status, c Change) (*Appointment, error) {
	var date *string
	var start, end *time.Time
	if c.Reslot != nil {
		date, start, end = &c.Reslot.Date, &c.Reslot.Start, &c.Reslot.End
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    approved_at = COALESCE($4, approved_at),
		    notes = COALESCE($5, notes),
		    slot_date = COALESCE($6::date, slot_date),
		    slot_start = COALESCE($7, slot_start),
		    slot_end = COALESCE($8, slot_end),
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns,
		id, from, c.To, c.ApprovedAt, c.Notes, date, start, end)

	updated, err := scanAppointment(row)
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, ErrAppointmentNotFound):
		// Either the row is gone or its status moved on.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrWrongState
	case db.IsSlotConflict(err):
		return nil, ErrSlotUnavailable
	default:
		return nil, err
	}
}

func (r *PgRepository) FindElapsedApproved(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'approved'
		  AND slot_end <= $1
	`, now)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}
