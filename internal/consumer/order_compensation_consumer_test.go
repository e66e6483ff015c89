package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NicolaiBoKunkel/e-commerace-project/internal/events"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/models"
)

type fakeOrderStore struct {
	statuses map[string]string
	err      error
}

func (s *fakeOrderStore) UpdateStatus(ctx context.Context, id string, status string) error {
	if s.err != nil {
		return s.err
	}
	s.statuses[id] = status
	return nil
}

func newCompensationConsumer(store *fakeOrderStore) *OrderCompensationConsumer {
	return NewOrderCompensationConsumer(zap.NewNop().Sugar(), store)
}

func TestOrderCompensationConsumer_MarksOrderStockFailed(t *testing.T) {
	store := &fakeOrderStore{statuses: make(map[string]string)}
	c := newCompensationConsumer(store)

	body := events.Envelope{
		EventID: "evt-9",
		Type:    events.TypeStockUpdateFailed,
		OrderID: "O7",
		UserID:  "user-1",
		FailedProducts: []events.FailedItem{
			{ProductID: "P2", Requested: 4, Available: 1},
		},
	}.Encode()
	c.Handle(context.Background(), body)

	require.Len(t, store.statuses, 1)
	assert.Equal(t, models.OrderStatusStockFailed, store.statuses["O7"])
}

func TestOrderCompensationConsumer_IgnoresOtherTypes(t *testing.T) {
	store := &fakeOrderStore{statuses: make(map[string]string)}
	c := newCompensationConsumer(store)

	// The order service receives its own ORDER_SHIPPED broadcasts too.
	c.Handle(context.Background(), events.Envelope{
		Type:    events.TypeOrderShipped,
		OrderID: "O7",
	}.Encode())

	assert.Empty(t, store.statuses)
}

func TestOrderCompensationConsumer_DropsMalformedAndIncomplete(t *testing.T) {
	store := &fakeOrderStore{statuses: make(map[string]string)}
	c := newCompensationConsumer(store)

	c.Handle(context.Background(), []byte("{{{"))
	c.Handle(context.Background(), events.Envelope{
		Type: events.TypeStockUpdateFailed, // no orderId
	}.Encode())

	assert.Empty(t, store.statuses)
}

func TestOrderCompensationConsumer_StoreErrorIsLoggedNotFatal(t *testing.T) {
	store := &fakeOrderStore{statuses: make(map[string]string), err: errors.New("db down")}
	c := newCompensationConsumer(store)

	assert.NotPanics(t, func() {
		c.Handle(context.Background(), events.Envelope{
			Type:    events.TypeStockUpdateFailed,
			OrderID: "O7",
		}.Encode())
	})
}
