package fulfillment

import (
	"context"
	"errors"
	"testing"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/99degreesdevs/emuna-back/internal/catalog"
	"github.com/99degreesdevs/emuna-back/internal/events"
	"github.com/99degreesdevs/emuna-back/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buyer = "user-1"

func seedOrder(st *memStore, id string, items ...orders.LineItem) {
	st.state.orders[id] = orders.Order{ID: id, BuyerID: buyer, Status: orders.StatusPending, Items: items}
}

func line(sku string, c catalog.Category, qty int) orders.LineItem {
	return orders.LineItem{SKU: sku, Name: sku, Category: c, Quantity: qty}
}

func creditsOf(s *memState, c catalog.Category) int {
	n := 0
	for _, cr := range s.credits {
		if cr.Category == c && cr.UserID == buyer {
			n++
		}
	}
	return n
}

func newEngine(st *memStore) (*Engine, *recordingSink) {
	sink := &recordingSink{}
	return &Engine{Store: st, Events: sink}, sink
}

func TestParseOutcome(t *testing.T) {
	for in, want := range map[string]Outcome{"approved": OutcomeApproved, " Pending ": OutcomePending, "REJECTED": OutcomeRejected} {
		got, err := ParseOutcome(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseOutcome("in_process")
	assert.ErrorIs(t, err, apperr.ErrUnknownOutcome)
	assert.Equal(t, apperr.KindPolicyViolation, apperr.KindOf(err))
}

func TestApplyPaymentOutcomeApproved(t *testing.T) {
	st := newMemStore()
	st.state.stock["MAT"] = 5
	st.state.stock["INCENSE"] = 10
	st.state.packages["PACK-4"] = []catalog.PackageEntry{
		{SKU: "PACK-4", Category: catalog.CategoryClass, Amount: 4},
		{SKU: "PACK-4", Category: catalog.CategoryCeremony, Amount: 1},
	}
	seedOrder(st, "o1",
		line("MAT", catalog.CategoryPhysical, 2),
		line("INCENSE", catalog.CategoryPhysical, 3),
		line("YOGA", catalog.CategoryClass, 1),
		line("TEMAZCAL", catalog.CategoryCeremony, 2),
		line("MASSAGE", catalog.CategoryService, 1),
		line("PACK-4", catalog.CategoryPackage, 1),
	)
	e, sink := newEngine(st)

	res, err := e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomeApproved)
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPaid, res.Status)
	assert.True(t, res.IsFinished)
	assert.Equal(t, []string{"INCENSE", "MAT"}, res.Shipments)
	assert.Equal(t, map[catalog.Category]int{
		catalog.CategoryClass:    5,
		catalog.CategoryCeremony: 3,
		catalog.CategoryService:  1,
	}, res.Credits)

	s := st.snapshot()
	assert.Equal(t, orders.StatusPaid, s.orders["o1"].Status)
	assert.True(t, s.orders["o1"].IsFinished)
	assert.Equal(t, 3, s.stock["MAT"])
	assert.Equal(t, 7, s.stock["INCENSE"])
	assert.Equal(t, 5, creditsOf(s, catalog.CategoryClass))
	assert.Equal(t, 3, creditsOf(s, catalog.CategoryCeremony))
	assert.Equal(t, 1, creditsOf(s, catalog.CategoryService))
	assert.Len(t, s.shipments, 2)
	assert.Equal(t, 2, s.shipments["o1/MAT/"+buyer].Amount)
	for _, cr := range s.credits {
		assert.True(t, cr.IsActive)
		assert.Equal(t, "o1", cr.OrderID)
	}
	assert.Equal(t, []string{events.EventOrderPaid}, sink.types())
}

func TestApplyPaymentOutcomeTransitions(t *testing.T) {
	tests := []struct {
		outcome  Outcome
		status   orders.Status
		finished bool
		event    string
	}{
		{OutcomeRejected, orders.StatusCanceled, true, events.EventOrderCanceled},
		{OutcomePending, orders.StatusPending, false, events.EventOrderPending},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			st := newMemStore()
			st.state.stock["MAT"] = 1
			seedOrder(st, "o1", line("MAT", catalog.CategoryPhysical, 1), line("YOGA", catalog.CategoryClass, 1))
			e, sink := newEngine(st)

			res, err := e.ApplyPaymentOutcome(context.Background(), "o1", buyer, tt.outcome)
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)

			s := st.snapshot()
			assert.Equal(t, tt.status, s.orders["o1"].Status)
			assert.Equal(t, tt.finished, s.orders["o1"].IsFinished)
			assert.Empty(t, s.credits)
			assert.Empty(t, s.shipments)
			assert.Equal(t, 1, s.stock["MAT"])
			assert.Equal(t, []string{tt.event}, sink.types())
		})
	}
}

func TestPendingThenApproved(t *testing.T) {
	st := newMemStore()
	seedOrder(st, "o1", line("YOGA", catalog.CategoryClass, 2))
	e, _ := newEngine(st)

	_, err := e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomePending)
	require.NoError(t, err)
	_, err = e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomeApproved)
	require.NoError(t, err)

	assert.Equal(t, 2, creditsOf(st.snapshot(), catalog.CategoryClass))
}

func TestApplyPaymentOutcomeNotFound(t *testing.T) {
	st := newMemStore()
	seedOrder(st, "o1", line("YOGA", catalog.CategoryClass, 1))
	e, sink := newEngine(st)

	_, err := e.ApplyPaymentOutcome(context.Background(), "missing", buyer, OutcomeApproved)
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)

	_, err = e.ApplyPaymentOutcome(context.Background(), "o1", "someone-else", OutcomeApproved)
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	assert.Empty(t, st.snapshot().credits)
	assert.Empty(t, sink.types())
}

func TestApplyPaymentOutcomeUnknownOutcome(t *testing.T) {
	st := newMemStore()
	seedOrder(st, "o1", line("YOGA", catalog.CategoryClass, 1))
	e, _ := newEngine(st)

	_, err := e.ApplyPaymentOutcome(context.Background(), "o1", buyer, Outcome("REFUNDED"))
	assert.ErrorIs(t, err, apperr.ErrUnknownOutcome)
	assert.Zero(t, st.txs, "no unit of work is opened for an unknown outcome")
}

// Duplicate delivery of the same approval is refused and changes nothing.
func TestIdempotentFulfillment(t *testing.T) {
	st := newMemStore()
	st.state.stock["MAT"] = 4
	seedOrder(st, "o1", line("MAT", catalog.CategoryPhysical, 1), line("YOGA", catalog.CategoryClass, 2))
	e, sink := newEngine(st)

	_, err := e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomeApproved)
	require.NoError(t, err)
	once := st.snapshot()

	_, err = e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomeApproved)
	assert.ErrorIs(t, err, apperr.ErrOrderFinalized)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	twice := st.snapshot()
	assert.Equal(t, once.stock, twice.stock)
	assert.Equal(t, once.credits, twice.credits)
	assert.Equal(t, once.shipments, twice.shipments)
	assert.Equal(t, once.orders, twice.orders)
	assert.Len(t, sink.types(), 1)

	// a rejection after approval is refused the same way
	_, err = e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomeRejected)
	assert.ErrorIs(t, err, apperr.ErrOrderFinalized)
}

// Two units of a product with one in stock: nothing moves and the order
// stays pending.
func TestInsufficientStockRollsBack(t *testing.T) {
	st := newMemStore()
	st.state.stock["MAT"] = 1
	seedOrder(st, "o1", line("MAT", catalog.CategoryPhysical, 2))
	e, sink := newEngine(st)

	_, err := e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomeApproved)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, apperr.KindInsufficientResource, apperr.KindOf(err))

	s := st.snapshot()
	assert.Equal(t, orders.StatusPending, s.orders["o1"].Status)
	assert.False(t, s.orders["o1"].IsFinished)
	assert.Equal(t, 1, s.stock["MAT"])
	assert.Empty(t, s.shipments)
	assert.Empty(t, sink.types())
}

// One short product among k physical and m credit-bearing items leaves no
// trace at all.
func TestAtomicFulfillment(t *testing.T) {
	st := newMemStore()
	st.state.stock["A"] = 10
	st.state.stock["B"] = 10
	st.state.stock["C"] = 0
	st.state.packages["PACK"] = []catalog.PackageEntry{{SKU: "PACK", Category: catalog.CategoryClass, Amount: 3}}
	seedOrder(st, "o1",
		line("YOGA", catalog.CategoryClass, 2),
		line("PACK", catalog.CategoryPackage, 1),
		line("TEMAZCAL", catalog.CategoryCeremony, 1),
		line("A", catalog.CategoryPhysical, 1),
		line("B", catalog.CategoryPhysical, 2),
		line("C", catalog.CategoryPhysical, 1),
	)
	before := st.snapshot()
	e, _ := newEngine(st)

	_, err := e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomeApproved)
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	after := st.snapshot()
	assert.Empty(t, after.credits)
	assert.Empty(t, after.shipments)
	assert.Equal(t, before.stock, after.stock)
	assert.Equal(t, before.orders, after.orders)
}

func TestTransientFailureIsRetryable(t *testing.T) {
	st := newMemStore()
	st.state.stock["MAT"] = 3
	seedOrder(st, "o1", line("MAT", catalog.CategoryPhysical, 1), line("YOGA", catalog.CategoryClass, 1))
	st.failOn["DecrementStock"] = apperr.Transient(errors.New("lock timeout"))
	e, _ := newEngine(st)

	_, err := e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomeApproved)
	require.True(t, apperr.IsRetryable(err))
	assert.Empty(t, st.snapshot().credits)

	// the retry succeeds because nothing was half-applied
	_, err = e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomeApproved)
	require.NoError(t, err)
	s := st.snapshot()
	assert.Equal(t, 2, s.stock["MAT"])
	assert.Equal(t, 1, creditsOf(s, catalog.CategoryClass))
}

// A bundle expanding to two class credits yields two credits and no shipment.
func TestBundleExpandsToCredits(t *testing.T) {
	st := newMemStore()
	st.state.packages["PACK-2"] = []catalog.PackageEntry{{SKU: "PACK-2", Category: catalog.CategoryClass, Amount: 2}}
	seedOrder(st, "o1", line("PACK-2", catalog.CategoryPackage, 1))
	e, _ := newEngine(st)

	_, err := e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomeApproved)
	require.NoError(t, err)

	s := st.snapshot()
	assert.Equal(t, 2, creditsOf(s, catalog.CategoryClass))
	assert.Len(t, s.credits, 2)
	assert.Empty(t, s.shipments)
}

func TestBundleWithoutDefinitionFails(t *testing.T) {
	st := newMemStore()
	seedOrder(st, "o1", line("PACK-X", catalog.CategoryPackage, 1), line("YOGA", catalog.CategoryClass, 1))
	e, _ := newEngine(st)

	_, err := e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomeApproved)
	assert.ErrorIs(t, err, apperr.ErrPackageNotFound)
	assert.Empty(t, st.snapshot().credits)
	assert.False(t, st.snapshot().orders["o1"].IsFinished)
}

func TestRepeatedPhysicalSKUShipsOnce(t *testing.T) {
	st := newMemStore()
	st.state.stock["MAT"] = 5
	seedOrder(st, "o1", line("MAT", catalog.CategoryPhysical, 1), line("MAT", catalog.CategoryPhysical, 2))
	e, _ := newEngine(st)

	_, err := e.ApplyPaymentOutcome(context.Background(), "o1", buyer, OutcomeApproved)
	require.NoError(t, err)

	s := st.snapshot()
	require.Len(t, s.shipments, 1)
	assert.Equal(t, 3, s.shipments["o1/MAT/"+buyer].Amount)
	assert.Equal(t, 2, s.stock["MAT"])
}
