package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/catalog"
	"github.com/99degreesdevs/emuna-back/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
	// LockTimeout bounds how long a statement waits on a row lock. A timeout
	// aborts the transaction and surfaces as a retryable error.
	LockTimeout time.Duration
}

// WithinTx runs fn in one transaction, committing only when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return postgres.Classify(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.LockTimeout.Milliseconds())); err != nil {
			return postgres.Classify(fmt.Errorf("set lock_timeout: %w", err))
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return postgres.Classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return postgres.Classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) CreditSummary(ctx context.Context, userID string) (CreditSummary, error) {
	rows, err := s.DB.Query(ctx, `SELECT category, COUNT(*) FROM credits
		WHERE user_id=$1 AND is_active GROUP BY category`, userID)
	if err != nil {
		return CreditSummary{}, postgres.Classify(err)
	}
	defer rows.Close()

	var out CreditSummary
	for rows.Next() {
		var c catalog.Category
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return CreditSummary{}, err
		}
		switch c {
		case catalog.CategoryClass:
			out.Classes = n
		case catalog.CategoryCeremony:
			out.Ceremonies = n
		case catalog.CategoryService:
			out.Services = n
		}
	}
	return out, postgres.Classify(rows.Err())
}

// ExpireClasses deactivates schedules that started before now.
func (s *Store) ExpireClasses(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.DB.Exec(ctx, `UPDATE class_schedules SET is_active=false
		WHERE is_active AND class_date_start < $1`, now)
	if err != nil {
		return 0, postgres.Classify(err)
	}
	return ct.RowsAffected(), nil
}

func (s *Store) Shipments(ctx context.Context, orderID string) ([]Shipment, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, nil
	}
	rows, err := s.DB.Query(ctx, `SELECT order_id::text, sku, user_id, amount, status, tracking, is_finished
		FROM shipments WHERE order_id=$1 ORDER BY sku`, orderID)
	if err != nil {
		return nil, postgres.Classify(err)
	}
	defer rows.Close()

	var out []Shipment
	for rows.Next() {
		var sh Shipment
		if err := rows.Scan(&sh.OrderID, &sh.SKU, &sh.UserID, &sh.Amount, &sh.Status, &sh.Tracking, &sh.IsFinished); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, postgres.Classify(rows.Err())
}
