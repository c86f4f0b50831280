package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const grantColumns = `patient_id, provider_id, appointment_id, access_granted, granted_at, revoked_at, created_at, updated_at`

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	err := row.Scan(
		&g.PatientID,
		&g.ProviderID,
		&g.AppointmentID,
		&g.AccessGranted,
		&g.GrantedAt,
		&g.RevokedAt,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGrantNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *PgRepository) Upsert(ctx context.Context, g Grant) (*Grant, error) {
	query := `
		INSERT INTO access_grants (patient_id, provider_id, appointment_id, access_granted, granted_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (patient_id, provider_id, appointment_id) DO UPDATE
		SET access_granted = EXCLUDED.access_granted,
		    granted_at = COALESCE(EXCLUDED.granted_at, access_grants.granted_at),
		    revoked_at = EXCLUDED.revoked_at,
		    updated_at = now()
		RETURNING ` + grantColumns

	out, err := scanGrant(r.pool.QueryRow(ctx, query,
		g.PatientID, g.ProviderID, g.AppointmentID, g.AccessGranted, g.GrantedAt, g.RevokedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert access grant: %w", err)
	}
	return out, nil
}

func (r *PgRepository) Get(ctx context.Context, k Key) (*Grant, error) {
	query := `SELECT ` + grantColumns + `
		FROM access_grants
		WHERE patient_id = $1 AND provider_id = $2 AND appointment_id = $3`

	return scanGrant(r.pool.QueryRow(ctx, query, k.PatientID, k.ProviderID, k.AppointmentID))
}

func (r *PgRepository) ListForAppointment(ctx context.Context, patientID, appointmentID uuid.UUID) ([]Grant, error) {
	query := `SELECT ` + grantColumns + `
		FROM access_grants
		WHERE patient_id = $1 AND appointment_id = $2
		ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, patientID, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *g)
	}
	return result, rows.Err()
}
