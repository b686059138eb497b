// Package rates provides instrument APR rates: declared rates straight from
// the registry, live rates from the ledger with a persisted fallback.
package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no stored rate exists for the instrument.
var ErrNotFound = errors.New("stored rate not found")

// StoredRate is the last successfully observed live APR for an instrument.
type StoredRate struct {
	InstrumentID string
	AprBps       int64
	UpdatedAt    time.Time
}

// Repository defines persistent storage for observed rates.
type Repository interface {
	Upsert(ctx context.Context, rate StoredRate) error
	Get(ctx context.Context, instrumentID string) (StoredRate, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL rates repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Upsert(ctx context.Context, rate StoredRate) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO instrument_rates (instrument_id, apr_bps, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (instrument_id)
		 DO UPDATE SET apr_bps = EXCLUDED.apr_bps, updated_at = EXCLUDED.updated_at`,
		rate.InstrumentID, rate.AprBps, rate.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting rate for %s: %w", rate.InstrumentID, err)
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, instrumentID string) (StoredRate, error) {
	var rate StoredRate
	err := r.pool.QueryRow(ctx,
		`SELECT instrument_id, apr_bps, updated_at
		 FROM instrument_rates
		 WHERE instrument_id = $1`, instrumentID).
		Scan(&rate.InstrumentID, &rate.AprBps, &rate.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredRate{}, ErrNotFound
	}
	if err != nil {
		return StoredRate{}, fmt.Errorf("reading rate for %s: %w", instrumentID, err)
	}
	return rate, nil
}
