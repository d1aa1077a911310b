package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/99degreesdevs/emuna-back/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const productColumns = `sku, name, category, price, discount_pct, stock_quantity, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.SKU, &p.Name, &p.Category, &p.Price, &p.DiscountPct, &p.StockQuantity, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ProductsBySKU returns the active products among skus, keyed by sku.
// Missing skus are simply absent from the map.
func (r *Repo) ProductsBySKU(ctx context.Context, skus []string) (map[string]Product, error) {
	return ProductsBySKU(ctx, r.DB, skus)
}

func ProductsBySKU(ctx context.Context, q postgres.Querier, skus []string) (map[string]Product, error) {
	out := make(map[string]Product, len(skus))
	if len(skus) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(skus))
	for _, s := range skus {
		args = append(args, s)
	}
	rows, err := q.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE is_active AND sku IN (`+postgres.Placeholders(len(skus), 1)+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.SKU] = p
	}
	return out, rows.Err()
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE is_active ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PackageEntries loads the definitions of the given bundle skus.
func PackageEntries(ctx context.Context, q postgres.Querier, skus []string) (map[string][]PackageEntry, error) {
	out := make(map[string][]PackageEntry, len(skus))
	if len(skus) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT sku, category, amount FROM packages WHERE sku = ANY($1) ORDER BY sku, id`, skus)
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e PackageEntry
		if err := rows.Scan(&e.SKU, &e.Category, &e.Amount); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		out[e.SKU] = append(out[e.SKU], e)
	}
	return out, rows.Err()
}

// ReplacePackage validates and stores the definition of a bundle sku,
// replacing any previous one. The sku must already exist as a PACKAGE product.
func (r *Repo) ReplacePackage(ctx context.Context, sku string, entries []PackageEntry) error {
	if err := ValidatePackage(sku, entries); err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return postgres.Classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cat Category
	err = tx.QueryRow(ctx, `SELECT category FROM products WHERE sku=$1 FOR UPDATE`, sku).Scan(&cat)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && cat != CategoryPackage) {
		return apperr.ErrProductNotFound.Withf("no package product with sku %s", sku)
	}
	if err != nil {
		return postgres.Classify(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM packages WHERE sku=$1`, sku); err != nil {
		return postgres.Classify(err)
	}
	for _, e := range entries {
		if _, err := tx.Exec(ctx, `INSERT INTO packages(sku, category, amount) VALUES ($1,$2,$3)`,
			sku, e.Category, e.Amount); err != nil {
			return postgres.Classify(err)
		}
	}
	return postgres.Classify(tx.Commit(ctx))
}
