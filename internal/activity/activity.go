package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Recorder appends entries to a user's activity feed.
type Recorder interface {
	Record(ctx context.Context, subjectID uuid.UUID, title, description string, metadata map[string]any) error
}

type PgRecorder struct {
	pool *pgxpool.Pool
}

func NewPgRecorder(pool *pgxpool.Pool) *PgRecorder {
	return &PgRecorder{pool: pool}
}

func (r *PgRecorder) Record(ctx context.Context, subjectID uuid.UUID, title, description string, metadata map[string]any) error {
	var payload []byte
	if len(metadata) > 0 {
		var err error
		payload, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encode activity metadata: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO activities (subject_id, title, description, metadata)
		VALUES ($1, $2, $3, $4)
	`, subjectID, title, description, payload)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// LogRecorder writes activities to the log instead of a table. Used with the
// memory store.
type LogRecorder struct {
	log zerolog.Logger
}

func NewLogRecorder(log zerolog.Logger) *LogRecorder {
	return &LogRecorder{log: log.With().Str("component", "activity").Logger()}
}

func (r *LogRecorder) Record(_ context.Context, subjectID uuid.UUID, title, description string, metadata map[string]any) error {
	r.log.Info().
		Str("subject_id", subjectID.String()).
		Str("title", title).
		Str("description", description).
		Fields(metadata).
		Msg("activity")
	return nil
}
