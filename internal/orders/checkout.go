package orders

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/99degreesdevs/emuna-back/internal/catalog"
	"github.com/99degreesdevs/emuna-back/internal/logging"
	"github.com/shopspring/decimal"
)

type CheckoutLine struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"amount"`
}

type CheckoutRequest struct {
	ExternalID string         `json:"external_id,omitempty"`
	AddressID  string         `json:"address_id,omitempty"`
	Items      []CheckoutLine `json:"products"`
}

type ProductLookup interface {
	ProductsBySKU(ctx context.Context, skus []string) (map[string]catalog.Product, error)
}

type Store interface {
	// ResolveAddress returns addressID when it belongs to userID, or the
	// user's default address when addressID is empty.
	ResolveAddress(ctx context.Context, userID, addressID string) (string, error)
	// Create persists o and its items. When o.BuyerID already used
	// o.ExternalID, that stored order is loaded into o and existed is true.
	Create(ctx context.Context, o *Order) (existed bool, err error)
}

type Service struct {
	Products ProductLookup
	Store    Store
	Log      *slog.Logger
}

// Checkout snapshots the requested products into a new PENDING order. Stock
// is only checked here, never reserved: ledgers move when payment lands.
func (s *Service) Checkout(ctx context.Context, userID string, req CheckoutRequest) (Order, bool, error) {
	lines := mergeLines(req.Items)
	if userID == "" || len(lines) == 0 {
		return Order{}, false, apperr.ErrInvalidInput.Withf("an order needs a buyer and at least one product")
	}

	skus := make([]string, 0, len(lines))
	for _, l := range lines {
		skus = append(skus, l.SKU)
	}
	products, err := s.Products.ProductsBySKU(ctx, skus)
	if err != nil {
		return Order{}, false, err
	}

	o, err := BuildOrder(userID, lines, products)
	if err != nil {
		return Order{}, false, err
	}
	o.ExternalID = req.ExternalID

	if o.RequiresShipping {
		addr, err := s.Store.ResolveAddress(ctx, userID, req.AddressID)
		if err != nil {
			return Order{}, false, err
		}
		o.AddressID = addr
	}

	existed, err := s.Store.Create(ctx, &o)
	if err != nil {
		return Order{}, false, err
	}
	if existed && o.BuyerID != userID {
		// external ids are scoped per buyer; never hand out someone else's order
		return Order{}, false, apperr.ErrInvalidInput.Withf("external_id %q is already in use", req.ExternalID)
	}
	logging.OrDefault(s.Log).Info("order created",
		"order_id", o.ID, "user_id", userID, "total", o.Total.StringFixed(2), "idempotent", existed)
	return o, existed, nil
}

// BuildOrder validates lines against products and computes the snapshot and
// totals. It has no side effects.
func BuildOrder(userID string, lines []CheckoutLine, products map[string]catalog.Product) (Order, error) {
	var missing, short []string
	o := Order{BuyerID: userID, Status: StatusPending}
	for _, l := range lines {
		p, ok := products[l.SKU]
		if !ok {
			missing = append(missing, l.SKU)
			continue
		}
		if p.Category == catalog.CategoryPhysical {
			o.RequiresShipping = true
			if l.Quantity > p.StockQuantity {
				short = append(short, l.SKU)
			}
		}
		o.Items = append(o.Items, LineItem{
			SKU:      p.SKU,
			Name:     p.Name,
			Category: p.Category,
			Price:    p.Price,
			Discount: p.UnitDiscount(),
			Quantity: l.Quantity,
		})
	}
	if len(missing) > 0 {
		return Order{}, apperr.ErrProductNotFound.Withf("unknown products: %s", strings.Join(missing, ", "))
	}
	if len(short) > 0 {
		return Order{}, apperr.ErrInsufficientStock.Withf("not enough stock for: %s", strings.Join(short, ", "))
	}
	o.Amount, o.Subtotal, o.Discount, o.Total = Totals(o.Items)
	return o, nil
}

// Totals returns units, subtotal, discount and total rounded to cents.
func Totals(items []LineItem) (amount int, subtotal, discount, total decimal.Decimal) {
	subtotal, discount = decimal.Zero, decimal.Zero
	for _, it := range items {
		q := decimal.NewFromInt(int64(it.Quantity))
		amount += it.Quantity
		subtotal = subtotal.Add(it.Price.Mul(q))
		discount = discount.Add(it.Discount.Mul(q))
	}
	subtotal, discount = subtotal.Round(2), discount.Round(2)
	return amount, subtotal, discount, subtotal.Sub(discount)
}

// mergeLines sums repeated skus and drops non-positive quantities, keeping a
// stable sku order.
func mergeLines(in []CheckoutLine) []CheckoutLine {
	qty := map[string]int{}
	for _, l := range in {
		sku := strings.TrimSpace(l.SKU)
		if sku == "" || l.Quantity <= 0 {
			continue
		}
		qty[sku] += l.Quantity
	}
	out := make([]CheckoutLine, 0, len(qty))
	for sku, n := range qty {
		out = append(out, CheckoutLine{SKU: sku, Quantity: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}
