// Package activity persists the feed of executed wallet actions.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the requested activity record was not found.
var ErrNotFound = errors.New("activity record not found")

// Record is one executed mutating action. Amount is the raw amount as a
// decimal string in the instrument token's smallest unit.
type Record struct {
	ID            string    `json:"id"`
	Account       string    `json:"account"`
	Action        string    `json:"action"`
	InstrumentID  string    `json:"instrumentId"`
	Amount        string    `json:"amount"`
	TransactionID string    `json:"transactionId"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Repository defines persistent storage for the activity feed.
type Repository interface {
	Insert(ctx context.Context, rec Record) error
	List(ctx context.Context, account string, limit int) ([]Record, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL activity repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Insert(ctx context.Context, rec Record) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO wallet_actions (id, account, action, instrument_id, amount, transaction_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Account, rec.Action, rec.InstrumentID, rec.Amount,
		rec.TransactionID, rec.Status, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting activity record: %w", err)
	}
	return nil
}

func (r *PgRepository) List(ctx context.Context, account string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, account, action, instrument_id, amount, transaction_id, status, created_at
		 FROM wallet_actions
		 WHERE account = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Account, &rec.Action, &rec.InstrumentID,
			&rec.Amount, &rec.TransactionID, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning activity record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity records: %w", err)
	}
	return records, nil
}
