package orders

import (
	"time"

	"github.com/99degreesdevs/emuna-back/internal/catalog"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID               string          `json:"id"`
	ExternalID       string          `json:"external_id,omitempty"`
	BuyerID          string          `json:"buyer_id"`
	AddressID        string          `json:"address_id,omitempty"`
	Status           Status          `json:"status"`
	IsFinished       bool            `json:"is_finished"`
	RequiresShipping bool            `json:"requires_shipping"`
	Amount           int             `json:"amount"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Discount         decimal.Decimal `json:"discount"`
	Total            decimal.Decimal `json:"total"`
	Items            []LineItem      `json:"items"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// LineItem is the checkout-time snapshot of a product. Fulfillment reads
// only this snapshot, never the live product row.
type LineItem struct {
	SKU      string           `json:"sku"`
	Name     string           `json:"name"`
	Category catalog.Category `json:"category"`
	Price    decimal.Decimal  `json:"price"`
	Discount decimal.Decimal  `json:"discount"`
	Quantity int              `json:"quantity"`
}

// CatalogItems reduces the snapshot to what classification needs.
func (o Order) CatalogItems() []catalog.Item {
	out := make([]catalog.Item, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, catalog.Item{SKU: it.SKU, Category: it.Category, Quantity: it.Quantity})
	}
	return out
}
