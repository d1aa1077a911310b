package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/99degreesdevs/emuna-back/internal/catalog"
	"github.com/99degreesdevs/emuna-back/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type pgTx struct{ tx pgx.Tx }

var _ Tx = (*pgTx)(nil)

func (t *pgTx) LockOrder(ctx context.Context, orderID, buyerID string) (orders.Order, error) {
	return orders.LockForBuyer(ctx, t.tx, orderID, buyerID)
}

func (t *pgTx) SetOrderStatus(ctx context.Context, orderID string, s orders.Status, finished bool) error {
	return orders.SetStatus(ctx, t.tx, orderID, s, finished)
}

func (t *pgTx) PackageEntries(ctx context.Context, skus []string) (map[string][]catalog.PackageEntry, error) {
	return catalog.PackageEntries(ctx, t.tx, skus)
}

func (t *pgTx) IssueCredits(ctx context.Context, userID, orderID string, c catalog.Category, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ids := make([]string, 0, n)
	b := &pgx.Batch{}
	for i := 0; i < n; i++ {
		id := uuid.NewString()
		ids = append(ids, id)
		b.Queue(`INSERT INTO credits(id, user_id, order_id, category, is_active) VALUES ($1,$2,$3,$4,true)`,
			id, userID, orderID, c)
	}
	br := t.tx.SendBatch(ctx, b)
	for range ids {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return nil, fmt.Errorf("issue credit: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("issue credits: %w", err)
	}
	return ids, nil
}

func (t *pgTx) CreateShipment(ctx context.Context, s Shipment) error {
	if s.Status == "" {
		s.Status = ShipmentPending
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO shipments(order_id, sku, user_id, amount, status, tracking, is_finished)
		VALUES ($1,$2,$3,$4,$5,$6,false)`,
		s.OrderID, s.SKU, s.UserID, s.Amount, s.Status, s.Tracking)
	if err != nil {
		return fmt.Errorf("insert shipment %s: %w", s.SKU, err)
	}
	return nil
}

// DecrementStock is a single guarded UPDATE, so concurrent orders cannot
// both pass a stale read; the row lock it takes is held until commit.
func (t *pgTx) DecrementStock(ctx context.Context, sku string, qty int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE sku=$1 AND stock_quantity >= $2`, sku, qty)
	if err != nil {
		return fmt.Errorf("decrement stock %s: %w", sku, err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var available int
	err = t.tx.QueryRow(ctx, `SELECT stock_quantity FROM products WHERE sku=$1`, sku).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrProductNotFound.Withf("product %s does not exist", sku)
	}
	if err != nil {
		return fmt.Errorf("read stock %s: %w", sku, err)
	}
	return apperr.ErrInsufficientStock.Withf("product %s: requested %d, available %d", sku, qty, available)
}
