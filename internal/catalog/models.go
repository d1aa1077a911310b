package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Category      Category        `json:"category"`
	Price         decimal.Decimal `json:"price"`
	DiscountPct   decimal.Decimal `json:"discount_pct"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// UnitDiscount is the per-unit discount amount, price * pct / 100.
func (p Product) UnitDiscount() decimal.Decimal {
	return p.Price.Mul(p.DiscountPct).Div(decimal.NewFromInt(100)).Round(2)
}

// PackageEntry is one constituent of a bundle SKU.
type PackageEntry struct {
	SKU      string   `json:"sku"`
	Category Category `json:"category"`
	Amount   int      `json:"amount"`
}
