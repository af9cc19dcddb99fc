package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"cropsense/internal/types"
)

// AdvisoryRepository provides data access for the advisories table.
type AdvisoryRepository struct {
	db DBTX
}

// NewAdvisoryRepository creates an AdvisoryRepository backed by the given
// database connection (pool or transaction).
func NewAdvisoryRepository(db DBTX) *AdvisoryRepository {
	return &AdvisoryRepository{db: db}
}

// Create inserts an advisory record. The caller must set the ID (prefixed
// UUID, e.g. "adv_...") and the ReadingID of the reading stored alongside it.
func (r *AdvisoryRepository) Create(ctx context.Context, rec *types.AdvisoryRecord) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO advisories
		 (id, reading_id, location, label, confidence, override_applied,
		  override_rule, model_version, weather_condition, weather_temperature,
		  weather_humidity, weather_is_stale, weather_is_default, generated_at,
		  created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		         COALESCE($15, NOW()))
		 RETURNING created_at`,
		rec.ID,
		rec.ReadingID,
		rec.Location,
		rec.Advisory.Label,
		rec.Advisory.Confidence,
		rec.Advisory.OverrideApplied,
		nilIfEmpty(rec.Advisory.OverrideRule),
		rec.Advisory.ModelVersion,
		string(rec.Advisory.Weather.Condition),
		rec.Advisory.Weather.TemperatureC,
		rec.Advisory.Weather.HumidityPercent,
		rec.Advisory.Weather.IsStale,
		rec.Advisory.Weather.IsDefault,
		rec.Advisory.GeneratedAt,
		nilIfZeroTime(rec.CreatedAt),
	)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store advisory", err)
	}
	return nil
}

// ListRecent returns the most recent advisories for a location, newest first,
// capped at limit.
func (r *AdvisoryRepository) ListRecent(ctx context.Context, location string, limit int) ([]types.AdvisoryRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, reading_id, location, label, confidence, override_applied,
		        COALESCE(override_rule, ''), model_version, weather_condition,
		        weather_temperature, weather_humidity, weather_is_stale,
		        weather_is_default, generated_at, created_at
		 FROM advisories
		 WHERE LOWER(location) = LOWER($1)
		 ORDER BY created_at DESC
		 LIMIT $2`,
		location, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list advisories", err)
	}
	defer rows.Close()

	records := make([]types.AdvisoryRecord, 0, limit)
	for rows.Next() {
		var rec types.AdvisoryRecord
		var condition string
		if err := rows.Scan(
			&rec.ID,
			&rec.ReadingID,
			&rec.Location,
			&rec.Advisory.Label,
			&rec.Advisory.Confidence,
			&rec.Advisory.OverrideApplied,
			&rec.Advisory.OverrideRule,
			&rec.Advisory.ModelVersion,
			&condition,
			&rec.Advisory.Weather.TemperatureC,
			&rec.Advisory.Weather.HumidityPercent,
			&rec.Advisory.Weather.IsStale,
			&rec.Advisory.Weather.IsDefault,
			&rec.Advisory.GeneratedAt,
			&rec.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan advisory row", err)
		}
		rec.Advisory.ID = rec.ID
		rec.Advisory.Weather.Condition = types.WeatherCondition(condition)
		rec.Advisory.Weather.Location = rec.Location
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate advisory rows", err)
	}

	return records, nil
}

// TxStarter is implemented by *pgxpool.Pool; it lets SaveAdvisory run the
// reading and advisory inserts atomically.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SaveAdvisory stores a reading and its advisory in one transaction, so a
// stored advisory always references a stored reading.
func SaveAdvisory(ctx context.Context, starter TxStarter, reading *types.ReadingRecord, advisory *types.AdvisoryRecord) error {
	tx, err := starter.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := NewReadingRepository(tx).Create(ctx, reading); err != nil {
		return err
	}

	advisory.ReadingID = reading.ID
	if err := NewAdvisoryRepository(tx).Create(ctx, advisory); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

// nilIfZeroTime converts a zero time to nil so COALESCE defaults apply.
func nilIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// nilIfEmpty converts an empty string to nil for nullable text columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
