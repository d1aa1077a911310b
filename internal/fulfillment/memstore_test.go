package fulfillment

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/99degreesdevs/emuna-back/internal/catalog"
	"github.com/99degreesdevs/emuna-back/internal/ledger"
	"github.com/99degreesdevs/emuna-back/internal/orders"
)

// memState is the whole database. A transaction works on a clone and the
// clone replaces the state only on commit.
type memState struct {
	orders       map[string]orders.Order
	stock        map[string]int
	packages     map[string][]catalog.PackageEntry
	credits      map[string]ledger.Credit
	shipments    map[string]ledger.Shipment
	classes      map[string]ledger.ClassSchedule
	reservations map[string]ledger.Reservation
	seq          int
}

func newMemState() *memState {
	return &memState{
		orders:       map[string]orders.Order{},
		stock:        map[string]int{},
		packages:     map[string][]catalog.PackageEntry{},
		credits:      map[string]ledger.Credit{},
		shipments:    map[string]ledger.Shipment{},
		classes:      map[string]ledger.ClassSchedule{},
		reservations: map[string]ledger.Reservation{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.seq = s.seq
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.packages {
		c.packages[k] = v
	}
	for k, v := range s.credits {
		c.credits[k] = v
	}
	for k, v := range s.shipments {
		c.shipments[k] = v
	}
	for k, v := range s.classes {
		c.classes[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	return c
}

// memStore serialises transactions, standing in for row locks.
type memStore struct {
	mu    sync.Mutex
	state *memState
	// failOn makes the named Tx method fail once with the given error.
	failOn map[string]error
	txs    int
}

func newMemStore() *memStore { return &memStore{state: newMemState(), failOn: map[string]error{}} }

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs++
	work := m.state.clone()
	if err := fn(ctx, &memTx{s: work, store: m}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// snapshot returns a copy safe to inspect outside a transaction.
func (m *memStore) snapshot() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

type memTx struct {
	s     *memState
	store *memStore
}

func (t *memTx) fail(op string) error {
	if err, ok := t.store.failOn[op]; ok {
		delete(t.store.failOn, op)
		return err
	}
	return nil
}

func (t *memTx) nextID(prefix string) string {
	t.s.seq++
	return fmt.Sprintf("%s-%03d", prefix, t.s.seq)
}

func (t *memTx) LockOrder(_ context.Context, orderID, buyerID string) (orders.Order, error) {
	if err := t.fail("LockOrder"); err != nil {
		return orders.Order{}, err
	}
	o, ok := t.s.orders[orderID]
	if !ok || o.BuyerID != buyerID {
		return orders.Order{}, apperr.ErrOrderNotFound
	}
	return o, nil
}

func (t *memTx) SetOrderStatus(_ context.Context, orderID string, st orders.Status, finished bool) error {
	if err := t.fail("SetOrderStatus"); err != nil {
		return err
	}
	o := t.s.orders[orderID]
	o.Status, o.IsFinished = st, finished
	t.s.orders[orderID] = o
	return nil
}

func (t *memTx) PackageEntries(_ context.Context, skus []string) (map[string][]catalog.PackageEntry, error) {
	out := map[string][]catalog.PackageEntry{}
	for _, s := range skus {
		if e, ok := t.s.packages[s]; ok {
			out[s] = e
		}
	}
	return out, nil
}

func (t *memTx) IssueCredits(_ context.Context, userID, orderID string, c catalog.Category, n int) ([]string, error) {
	if err := t.fail("IssueCredits"); err != nil {
		return nil, err
	}
	var ids []string
	for i := 0; i < n; i++ {
		id := t.nextID("credit")
		t.s.credits[id] = ledger.Credit{ID: id, UserID: userID, OrderID: orderID, Category: c, IsActive: true}
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *memTx) CreateShipment(_ context.Context, sh ledger.Shipment) error {
	key := sh.OrderID + "/" + sh.SKU + "/" + sh.UserID
	if _, dup := t.s.shipments[key]; dup {
		return fmt.Errorf("duplicate shipment %s", key)
	}
	t.s.shipments[key] = sh
	return nil
}

func (t *memTx) DecrementStock(_ context.Context, sku string, qty int) error {
	if err := t.fail("DecrementStock"); err != nil {
		return err
	}
	have, ok := t.s.stock[sku]
	if !ok {
		return apperr.ErrProductNotFound
	}
	if have < qty {
		return apperr.ErrInsufficientStock.Withf("product %s: requested %d, available %d", sku, qty, have)
	}
	t.s.stock[sku] = have - qty
	return nil
}

func (t *memTx) LockClass(_ context.Context, classID string) (ledger.ClassSchedule, error) {
	c, ok := t.s.classes[classID]
	if !ok {
		return ledger.ClassSchedule{}, apperr.ErrClassNotFound
	}
	return c, nil
}

func (t *memTx) ActiveReservation(_ context.Context, classID, userID string) (ledger.Reservation, error) {
	for _, r := range t.s.reservations {
		if r.ClassID == classID && r.UserID == userID && r.Status == ledger.ReservationReserved && r.IsActive {
			return r, nil
		}
	}
	return ledger.Reservation{}, apperr.ErrNoReservation
}

func (t *memTx) ClaimCredit(_ context.Context, userID string, c catalog.Category) (string, error) {
	var ids []string
	for id, cr := range t.s.credits {
		if cr.UserID == userID && cr.Category == c && cr.IsActive {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", apperr.ErrNoCredit
	}
	sort.Strings(ids)
	cr := t.s.credits[ids[0]]
	cr.IsActive = false
	t.s.credits[cr.ID] = cr
	return cr.ID, nil
}

func (t *memTx) RestoreCredit(_ context.Context, creditID string) error {
	cr, ok := t.s.credits[creditID]
	if !ok {
		return apperr.ErrNoCredit
	}
	cr.IsActive = true
	t.s.credits[creditID] = cr
	return nil
}

func (t *memTx) TakeSeat(_ context.Context, classID string) error {
	if err := t.fail("TakeSeat"); err != nil {
		return err
	}
	c := t.s.classes[classID]
	if c.AvailablePlaces <= 0 {
		return apperr.ErrNoCapacity
	}
	c.AvailablePlaces--
	t.s.classes[classID] = c
	return nil
}

func (t *memTx) ReleaseSeat(_ context.Context, classID string) error {
	c := t.s.classes[classID]
	if c.AvailablePlaces < c.Places {
		c.AvailablePlaces++
	}
	t.s.classes[classID] = c
	return nil
}

func (t *memTx) CreateReservation(_ context.Context, r *ledger.Reservation) error {
	if _, err := t.ActiveReservation(context.Background(), r.ClassID, r.UserID); err == nil {
		return apperr.ErrAlreadyReserved
	}
	r.ID = t.nextID("reservation")
	r.Status, r.IsActive = ledger.ReservationReserved, true
	t.s.reservations[r.ID] = *r
	return nil
}

func (t *memTx) CancelReservation(_ context.Context, reservationID string) error {
	r, ok := t.s.reservations[reservationID]
	if !ok || !r.IsActive {
		return apperr.ErrNoReservation
	}
	r.Status, r.IsActive = ledger.ReservationCanceled, false
	t.s.reservations[reservationID] = r
	return nil
}

type recordedEvent struct {
	topic, eventType, key string
	payload               any
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingSink) Emit(_ context.Context, topic, eventType, key string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{topic, eventType, key, payload})
	return nil
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.eventType)
	}
	return out
}
