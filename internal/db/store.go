package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"cropsense/internal/types"
)

// Store is the pool-backed persistence facade handed to the API layer. It
// bundles the transactional save path and the read path behind one value so
// handlers depend on a single narrow interface.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Save stores a reading and its advisory atomically.
func (s *Store) Save(ctx context.Context, reading *types.ReadingRecord, advisory *types.AdvisoryRecord) error {
	return SaveAdvisory(ctx, s.pool, reading, advisory)
}

// ListRecent returns the most recent advisories for a location, newest first.
func (s *Store) ListRecent(ctx context.Context, location string, limit int) ([]types.AdvisoryRecord, error) {
	return NewAdvisoryRepository(s.pool).ListRecent(ctx, location, limit)
}
