package db

import (
	"context"

	"cropsense/internal/types"
)

// ReadingRepository provides data access for the sensor_readings table.
type ReadingRepository struct {
	db DBTX
}

// NewReadingRepository creates a ReadingRepository backed by the given
// database connection (pool or transaction).
func NewReadingRepository(db DBTX) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// Create inserts a sensor reading. The caller must set the ID (prefixed UUID,
// e.g. "read_..."). CreatedAt is filled by the database when zero.
func (r *ReadingRepository) Create(ctx context.Context, rec *types.ReadingRecord) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO sensor_readings
		 (id, location, nitrogen, phosphorus, potassium, leaf_color, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		 RETURNING created_at`,
		rec.ID,
		rec.Location,
		rec.Reading.Nitrogen,
		rec.Reading.Phosphorus,
		rec.Reading.Potassium,
		rec.Reading.LeafColor,
		nilIfZeroTime(rec.CreatedAt),
	)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store sensor reading", err)
	}
	return nil
}
