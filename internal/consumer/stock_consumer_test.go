package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NicolaiBoKunkel/e-commerace-project/internal/db"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/events"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/messaging"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/models"
)

type fakeStore struct {
	products   map[string]*models.Product
	lookupErr  map[string]error
	deductErr  map[string]error
	deductions int
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*models.Product, error) {
	if err := s.lookupErr[id]; err != nil {
		return nil, err
	}
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) DeductStock(ctx context.Context, id string, quantity int) (*models.Product, error) {
	if err := s.deductErr[id]; err != nil {
		return nil, err
	}
	p, ok := s.products[id]
	if !ok || p.Stock < quantity {
		return nil, db.ErrInsufficientStock
	}
	p.Stock -= quantity
	s.deductions++
	cp := *p
	return &cp, nil
}

type fakeBus struct {
	exchanges []string
	published [][]byte
	err       error
}

func (b *fakeBus) Publish(exchange string, body []byte) error {
	if b.err != nil {
		return b.err
	}
	b.exchanges = append(b.exchanges, exchange)
	b.published = append(b.published, body)
	return nil
}

type fakeLedger struct {
	seen    map[string]bool
	seenErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: make(map[string]bool)}
}

func (l *fakeLedger) SeenEvent(ctx context.Context, id string) (bool, error) {
	if l.seenErr != nil {
		return false, l.seenErr
	}
	return l.seen[id], nil
}

func (l *fakeLedger) MarkEventSeen(ctx context.Context, id string) error {
	l.seen[id] = true
	return nil
}

func newTestConsumer(store *fakeStore, bus *fakeBus, ledger *fakeLedger) *StockConsumer {
	return NewStockConsumer(zap.NewNop().Sugar(), store, bus, ledger)
}

func shippedEvent(orderID string, items ...events.LineItem) []byte {
	return events.Envelope{
		Type:     events.TypeOrderShipped,
		OrderID:  orderID,
		UserID:   "user-1",
		Products: items,
	}.Encode()
}

func decodeCompensation(t *testing.T, body []byte) events.Envelope {
	t.Helper()
	var ev events.Envelope
	require.NoError(t, json.Unmarshal(body, &ev))
	return ev
}

func TestStockConsumer_DeductsStockOnFulfillment(t *testing.T) {
	store := &fakeStore{products: map[string]*models.Product{
		"P1": {ID: "P1", Name: "Laptop", Stock: 5},
	}}
	bus := &fakeBus{}
	c := newTestConsumer(store, bus, newFakeLedger())

	c.Handle(context.Background(), shippedEvent("O1", events.LineItem{ProductID: "P1", Quantity: 3}))

	assert.Equal(t, 2, store.products["P1"].Stock)
	assert.Empty(t, bus.published, "full success must not publish a compensation event")
}

func TestStockConsumer_InsufficientStockPublishesCompensation(t *testing.T) {
	store := &fakeStore{products: map[string]*models.Product{
		"P2": {ID: "P2", Name: "Mouse", Stock: 1},
	}}
	bus := &fakeBus{}
	c := newTestConsumer(store, bus, newFakeLedger())

	c.Handle(context.Background(), shippedEvent("O2", events.LineItem{ProductID: "P2", Quantity: 4}))

	assert.Equal(t, 1, store.products["P2"].Stock, "over-requested item must not be deducted")
	require.Len(t, bus.published, 1, "exactly one compensation event")
	assert.Equal(t, []string{messaging.OrderEventsExchange}, bus.exchanges)

	comp := decodeCompensation(t, bus.published[0])
	assert.Equal(t, events.TypeStockUpdateFailed, comp.Type)
	assert.Equal(t, "O2", comp.OrderID)
	assert.Equal(t, "user-1", comp.UserID)
	assert.NotEmpty(t, comp.EventID)
	assert.Equal(t, []events.FailedItem{{ProductID: "P2", Requested: 4, Available: 1}}, comp.FailedProducts)
}

func TestStockConsumer_PartialFailureDeductsSatisfiableItems(t *testing.T) {
	store := &fakeStore{products: map[string]*models.Product{
		"P1": {ID: "P1", Name: "Laptop", Stock: 5},
		"P2": {ID: "P2", Name: "Mouse", Stock: 1},
	}}
	bus := &fakeBus{}
	c := newTestConsumer(store, bus, newFakeLedger())

	c.Handle(context.Background(), shippedEvent("O3",
		events.LineItem{ProductID: "P1", Quantity: 3},
		events.LineItem{ProductID: "P2", Quantity: 4},
	))

	assert.Equal(t, 2, store.products["P1"].Stock, "satisfiable item in the same event is still deducted")
	assert.Equal(t, 1, store.products["P2"].Stock)

	require.Len(t, bus.published, 1)
	comp := decodeCompensation(t, bus.published[0])
	assert.Equal(t, []events.FailedItem{{ProductID: "P2", Requested: 4, Available: 1}}, comp.FailedProducts,
		"only the over-requested item appears in the failure list")
}

func TestStockConsumer_MalformedMessageIsDropped(t *testing.T) {
	store := &fakeStore{products: map[string]*models.Product{
		"P1": {ID: "P1", Stock: 5},
	}}
	bus := &fakeBus{}
	c := newTestConsumer(store, bus, newFakeLedger())

	c.Handle(context.Background(), []byte("not json at all"))
	c.Handle(context.Background(), []byte(`{"orderId":"O1"}`)) // missing type

	assert.Equal(t, 5, store.products["P1"].Stock)
	assert.Empty(t, bus.published)
}

func TestStockConsumer_UnrecognizedTypeIsIgnored(t *testing.T) {
	store := &fakeStore{products: map[string]*models.Product{
		"P1": {ID: "P1", Stock: 5},
	}}
	bus := &fakeBus{}
	c := newTestConsumer(store, bus, newFakeLedger())

	body := events.Envelope{
		Type:     "PAYMENT_COMPLETED",
		OrderID:  "O1",
		Products: []events.LineItem{{ProductID: "P1", Quantity: 3}},
	}.Encode()
	c.Handle(context.Background(), body)

	assert.Equal(t, 5, store.products["P1"].Stock)
	assert.Empty(t, bus.published)
}

func TestStockConsumer_UnknownProductIsNotAFailure(t *testing.T) {
	store := &fakeStore{products: map[string]*models.Product{}}
	bus := &fakeBus{}
	c := newTestConsumer(store, bus, newFakeLedger())

	c.Handle(context.Background(), shippedEvent("O1", events.LineItem{ProductID: "ghost", Quantity: 2}))

	assert.Empty(t, bus.published, "a product this service doesn't own is nothing to do, not a failure")
}

func TestStockConsumer_StoreErrorDoesNotBlockOtherItems(t *testing.T) {
	store := &fakeStore{
		products: map[string]*models.Product{
			"P1": {ID: "P1", Stock: 5},
			"P2": {ID: "P2", Stock: 5},
		},
		lookupErr: map[string]error{"P1": errors.New("connection reset")},
	}
	bus := &fakeBus{}
	c := newTestConsumer(store, bus, newFakeLedger())

	c.Handle(context.Background(), shippedEvent("O1",
		events.LineItem{ProductID: "P1", Quantity: 1},
		events.LineItem{ProductID: "P2", Quantity: 2},
	))

	assert.Equal(t, 5, store.products["P1"].Stock)
	assert.Equal(t, 3, store.products["P2"].Stock, "a store error on one item must not abort the rest")
	assert.Empty(t, bus.published, "a store error is logged and skipped, not compensated")
}

func TestStockConsumer_DeductionRaceIsRecordedAsFailure(t *testing.T) {
	// The read sees enough stock but the guarded UPDATE loses a race with a
	// concurrent deduction.
	store := &fakeStore{
		products:  map[string]*models.Product{"P1": {ID: "P1", Stock: 5}},
		deductErr: map[string]error{"P1": db.ErrInsufficientStock},
	}
	bus := &fakeBus{}
	c := newTestConsumer(store, bus, newFakeLedger())

	c.Handle(context.Background(), shippedEvent("O1", events.LineItem{ProductID: "P1", Quantity: 3}))

	require.Len(t, bus.published, 1)
	comp := decodeCompensation(t, bus.published[0])
	assert.Equal(t, []events.FailedItem{{ProductID: "P1", Requested: 3, Available: 5}}, comp.FailedProducts)
}

func TestStockConsumer_DuplicateDeliveryDeductsOnce(t *testing.T) {
	store := &fakeStore{products: map[string]*models.Product{
		"P1": {ID: "P1", Stock: 5},
	}}
	bus := &fakeBus{}
	ledger := newFakeLedger()
	c := newTestConsumer(store, bus, ledger)

	body := events.Envelope{
		EventID:  "evt-1",
		Type:     events.TypeOrderShipped,
		OrderID:  "O1",
		UserID:   "user-1",
		Products: []events.LineItem{{ProductID: "P1", Quantity: 3}},
	}.Encode()

	c.Handle(context.Background(), body)
	c.Handle(context.Background(), body)

	assert.Equal(t, 2, store.products["P1"].Stock, "redelivery of the same eventId must not deduct twice")
	assert.Equal(t, 1, store.deductions)
}

func TestStockConsumer_NoEventIDStillNeverGoesNegative(t *testing.T) {
	// Without a dedup key the floor is at-least-once tolerance: repeated
	// delivery may deduct again, but the guard keeps stock non-negative and
	// the shortfall surfaces as a compensation.
	store := &fakeStore{products: map[string]*models.Product{
		"P1": {ID: "P1", Stock: 5},
	}}
	bus := &fakeBus{}
	c := newTestConsumer(store, bus, newFakeLedger())

	body := shippedEvent("O1", events.LineItem{ProductID: "P1", Quantity: 3})
	c.Handle(context.Background(), body)
	c.Handle(context.Background(), body)

	assert.Equal(t, 2, store.products["P1"].Stock)
	require.Len(t, bus.published, 1)
	comp := decodeCompensation(t, bus.published[0])
	assert.Equal(t, []events.FailedItem{{ProductID: "P1", Requested: 3, Available: 2}}, comp.FailedProducts)
}

func TestStockConsumer_LedgerErrorFailsOpen(t *testing.T) {
	store := &fakeStore{products: map[string]*models.Product{
		"P1": {ID: "P1", Stock: 5},
	}}
	bus := &fakeBus{}
	ledger := newFakeLedger()
	ledger.seenErr = errors.New("redis down")
	c := newTestConsumer(store, bus, ledger)

	body := events.Envelope{
		EventID:  "evt-1",
		Type:     events.TypeOrderShipped,
		Products: []events.LineItem{{ProductID: "P1", Quantity: 3}},
	}.Encode()
	c.Handle(context.Background(), body)

	assert.Equal(t, 2, store.products["P1"].Stock, "an unavailable ledger must not stall processing")
}

func TestStockConsumer_CompensationPublishFailureStillCompletes(t *testing.T) {
	store := &fakeStore{products: map[string]*models.Product{
		"P1": {ID: "P1", Stock: 1},
	}}
	bus := &fakeBus{err: errors.New("channel closed")}
	ledger := newFakeLedger()
	c := newTestConsumer(store, bus, ledger)

	body := events.Envelope{
		EventID:  "evt-1",
		Type:     events.TypeOrderShipped,
		Products: []events.LineItem{{ProductID: "P1", Quantity: 4}},
	}.Encode()
	c.Handle(context.Background(), body)

	// Handle returns normally so the caller acks; the loss is logged.
	assert.True(t, ledger.seen["evt-1"])
}
