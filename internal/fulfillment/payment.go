package fulfillment

import (
	"context"
	"sort"
	"strings"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/99degreesdevs/emuna-back/internal/catalog"
	"github.com/99degreesdevs/emuna-back/internal/events"
	"github.com/99degreesdevs/emuna-back/internal/ledger"
	"github.com/99degreesdevs/emuna-back/internal/orders"
)

type Outcome string

const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomePending  Outcome = "PENDING"
	OutcomeRejected Outcome = "REJECTED"
)

// ParseOutcome accepts the provider's status tag in any case.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToUpper(strings.TrimSpace(s))); o {
	case OutcomeApproved, OutcomePending, OutcomeRejected:
		return o, nil
	}
	return "", apperr.ErrUnknownOutcome.Withf("unrecognized order status %q", s)
}

// PaymentResult describes what a payment outcome did to an order.
type PaymentResult struct {
	OrderID    string                   `json:"order_id"`
	Status     orders.Status            `json:"status"`
	IsFinished bool                     `json:"is_finished"`
	Credits    map[catalog.Category]int `json:"credits,omitempty"`
	Shipments  []string                 `json:"shipments,omitempty"`
}

var outcomeTransitions = map[Outcome]struct {
	status   orders.Status
	finished bool
	event    string
}{
	OutcomeApproved: {orders.StatusPaid, true, events.EventOrderPaid},
	OutcomePending:  {orders.StatusPending, false, events.EventOrderPending},
	OutcomeRejected: {orders.StatusCanceled, true, events.EventOrderCanceled},
}

// ApplyPaymentOutcome moves an order according to the provider's outcome.
// APPROVED fulfils the order: credits, shipments and stock move together or
// not at all. A finalized order is refused with apperr.ErrOrderFinalized, so
// a duplicate delivery changes nothing.
func (e *Engine) ApplyPaymentOutcome(ctx context.Context, orderID, userID string, outcome Outcome) (PaymentResult, error) {
	next, ok := outcomeTransitions[outcome]
	if !ok {
		return PaymentResult{}, apperr.ErrUnknownOutcome.Withf("unrecognized order status %q", outcome)
	}

	var res PaymentResult
	err := e.Store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		res = PaymentResult{OrderID: orderID}

		o, err := tx.LockOrder(ctx, orderID, userID)
		if err != nil {
			return err
		}
		if o.IsFinished {
			return apperr.ErrOrderFinalized.Withf("order %s was already finalized as %s", orderID, o.Status)
		}
		if !orders.CanTransition(o.Status, next.status) {
			return apperr.ErrOrderFinalized.Withf("order %s cannot move from %s to %s", orderID, o.Status, next.status)
		}

		if outcome == OutcomeApproved {
			if err := fulfill(ctx, tx, o, &res); err != nil {
				return err
			}
		}
		if err := tx.SetOrderStatus(ctx, o.ID, next.status, next.finished); err != nil {
			return err
		}
		res.Status, res.IsFinished = next.status, next.finished
		return nil
	})
	if err != nil {
		e.log().Warn("payment outcome not applied",
			"order_id", orderID, "user_id", userID, "outcome", outcome, "reason", apperr.ReasonOf(err), "err", err)
		return PaymentResult{}, err
	}

	e.log().Info("payment outcome applied",
		"order_id", orderID, "user_id", userID, "outcome", outcome, "status", res.Status,
		"shipments", len(res.Shipments), "credits", res.Credits)
	e.emit(ctx, events.TopicOrderOutcome, next.event, orderID, events.OrderOutcomePayload{
		OrderID:    orderID,
		UserID:     userID,
		Status:     string(res.Status),
		IsFinished: res.IsFinished,
		Credits:    creditsByName(res.Credits),
		Shipments:  res.Shipments,
	})
	return res, nil
}

// fulfill issues one credit per unit of every credit-bearing line, expanded
// bundles included, then ships and destocks every physical line.
func fulfill(ctx context.Context, tx ledger.Tx, o orders.Order, res *PaymentResult) error {
	items := o.CatalogItems()

	var packages map[string][]catalog.PackageEntry
	if bundles := catalog.BundleSKUs(items); len(bundles) > 0 {
		var err error
		if packages, err = tx.PackageEntries(ctx, bundles); err != nil {
			return err
		}
	}
	part, err := catalog.Classify(items, packages)
	if err != nil {
		return err
	}

	for _, g := range part.Credits() {
		if _, err := tx.IssueCredits(ctx, o.BuyerID, o.ID, g.Category, g.Amount); err != nil {
			return err
		}
		if res.Credits == nil {
			res.Credits = map[catalog.Category]int{}
		}
		res.Credits[g.Category] += g.Amount
	}

	for _, it := range mergePhysical(part.Physical) {
		if err := tx.CreateShipment(ctx, ledger.Shipment{
			OrderID: o.ID,
			SKU:     it.SKU,
			UserID:  o.BuyerID,
			Amount:  it.Quantity,
			Status:  ledger.ShipmentPending,
		}); err != nil {
			return err
		}
		if err := tx.DecrementStock(ctx, it.SKU, it.Quantity); err != nil {
			return err
		}
		res.Shipments = append(res.Shipments, it.SKU)
	}
	return nil
}

// mergePhysical folds repeated skus into one line and sorts by sku, which
// keeps exactly one shipment per product and takes stock row locks in a
// stable order across concurrent fulfilments.
func mergePhysical(items []catalog.Item) []catalog.Item {
	qty := map[string]int{}
	for _, it := range items {
		qty[it.SKU] += it.Quantity
	}
	out := make([]catalog.Item, 0, len(qty))
	for sku, n := range qty {
		out = append(out, catalog.Item{SKU: sku, Category: catalog.CategoryPhysical, Quantity: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

func creditsByName(in map[catalog.Category]int) map[string]int {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]int, len(in))
	for c, n := range in {
		out[c.String()] = n
	}
	return out
}
