package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/99degreesdevs/emuna-back/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id::text, COALESCE(external_id, ''), buyer_id, COALESCE(address_id::text, ''), status,
	is_finished, requires_shipping, amount, subtotal, discount, total, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ExternalID, &o.BuyerID, &o.AddressID, &o.Status,
		&o.IsFinished, &o.RequiresShipping, &o.Amount, &o.Subtotal, &o.Discount, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// externalIDIndex makes external_id unique per buyer.
const externalIDIndex = "orders_buyer_external_uq"

// Create is idempotent via (buyer_id, external_id).
func (r *Repo) Create(ctx context.Context, o *Order) (bool, error) {
	if o.ExternalID != "" {
		existing, err := r.byExternalID(ctx, o.BuyerID, o.ExternalID)
		if err == nil {
			*o = existing
			return true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, postgres.Classify(err)
		}
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, postgres.Classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o.ID = uuid.NewString()
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, external_id, buyer_id, address_id, status, is_finished, requires_shipping,
		                   amount, subtotal, discount, total)
		VALUES ($1, NULLIF($2,''), $3, NULLIF($4,'')::uuid, $5, false, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		o.ID, o.ExternalID, o.BuyerID, o.AddressID, o.Status, o.RequiresShipping,
		o.Amount, o.Subtotal, o.Discount, o.Total,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, externalIDIndex) {
			// lost the race against a concurrent checkout with the same key
			existing, lerr := r.byExternalID(ctx, o.BuyerID, o.ExternalID)
			if lerr != nil {
				return false, postgres.Classify(lerr)
			}
			*o = existing
			return true, nil
		}
		return false, postgres.Classify(fmt.Errorf("insert order: %w", err))
	}

	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, sku, name, category, price, discount, quantity)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			o.ID, i+1, it.SKU, it.Name, it.Category, it.Price, it.Discount, it.Quantity,
		); err != nil {
			return false, postgres.Classify(fmt.Errorf("insert order item: %w", err))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, postgres.Classify(err)
	}
	return false, nil
}

func (r *Repo) byExternalID(ctx context.Context, buyerID, externalID string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id=$1 AND external_id=$2`, buyerID, externalID))
	if err != nil {
		return Order{}, err
	}
	o.Items, err = loadItems(ctx, r.DB, o.ID)
	return o, err
}

func (r *Repo) ResolveAddress(ctx context.Context, userID, addressID string) (string, error) {
	var id string
	var err error
	if addressID != "" {
		if _, perr := uuid.Parse(addressID); perr != nil {
			return "", apperr.ErrAddressRequired.Withf("address %s does not exist", addressID)
		}
		err = r.DB.QueryRow(ctx, `SELECT id::text FROM addresses WHERE id=$1 AND user_id=$2`, addressID, userID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.ErrAddressRequired.Withf("address %s does not exist", addressID)
		}
	} else {
		err = r.DB.QueryRow(ctx, `SELECT id::text FROM addresses WHERE user_id=$1 AND is_default
			ORDER BY id LIMIT 1`, userID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.ErrAddressRequired.Withf("the user has no default address, add or choose one to continue")
		}
	}
	if err != nil {
		return "", postgres.Classify(err)
	}
	return id, nil
}

func (r *Repo) Get(ctx context.Context, orderID string) (Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return Order{}, apperr.ErrOrderNotFound.Withf("order %s does not exist", orderID)
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.ErrOrderNotFound.Withf("order %s does not exist", orderID)
	}
	if err != nil {
		return Order{}, postgres.Classify(err)
	}
	if o.Items, err = loadItems(ctx, r.DB, o.ID); err != nil {
		return Order{}, postgres.Classify(err)
	}
	return o, nil
}

// LockForBuyer loads the order owned by buyerID and holds its row lock until
// q's transaction ends. Concurrent notifications for one order serialise here.
func LockForBuyer(ctx context.Context, q postgres.Querier, orderID, buyerID string) (Order, error) {
	notFound := apperr.ErrOrderNotFound.Withf("order %s not found for user %s", orderID, buyerID)
	if _, err := uuid.Parse(orderID); err != nil {
		return Order{}, notFound
	}
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE id=$1 AND buyer_id=$2 FOR UPDATE`, orderID, buyerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, notFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("lock order: %w", err)
	}
	if o.Items, err = loadItems(ctx, q, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

func SetStatus(ctx context.Context, q postgres.Querier, orderID string, s Status, finished bool) error {
	ct, err := q.Exec(ctx, `UPDATE orders SET status=$2, is_finished=$3, updated_at=now() WHERE id=$1`, orderID, s, finished)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return apperr.ErrOrderNotFound.Withf("order %s does not exist", orderID)
	}
	return nil
}

func loadItems(ctx context.Context, q postgres.Querier, orderID string) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT sku, name, category, price, discount, quantity
		FROM order_items WHERE order_id=$1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var out []LineItem
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.SKU, &it.Name, &it.Category, &it.Price, &it.Discount, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
