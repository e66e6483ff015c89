package consumer

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/NicolaiBoKunkel/e-commerace-project/internal/events"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/models"
)

// OrderStore is the order service's local store surface.
type OrderStore interface {
	UpdateStatus(ctx context.Context, id string, status string) error
}

// OrderCompensationConsumer is the order service's side of the saga: it
// listens on its own queue bound to the same exchange and marks an order as
// stock_failed when the product service reports that items could not be
// satisfied.
type OrderCompensationConsumer struct {
	orders OrderStore
	log    *zap.SugaredLogger
}

func NewOrderCompensationConsumer(log *zap.SugaredLogger, orders OrderStore) *OrderCompensationConsumer {
	return &OrderCompensationConsumer{
		orders: orders,
		log:    log,
	}
}

// Run consumes deliveries until the channel closes or ctx is cancelled.
// Same ack discipline as the stock consumer: every message is acked once
// after processing.
func (c *OrderCompensationConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			c.Handle(ctx, msg.Body)
			if err := msg.Ack(false); err != nil {
				c.log.Errorf("❌ Failed to ack message: %v", err)
			}
		}
	}
}

// Handle reacts to STOCK_UPDATE_FAILED events; everything else on the
// exchange (including the order service's own ORDER_SHIPPED broadcasts) is
// ignored.
func (c *OrderCompensationConsumer) Handle(ctx context.Context, body []byte) {
	ev, err := events.Decode(body)
	if err != nil {
		c.log.Warnf("❌ Dropping malformed message: %v", err)
		return
	}

	if ev.Type != events.TypeStockUpdateFailed {
		return
	}

	if ev.OrderID == "" {
		c.log.Warn("⚠️ STOCK_UPDATE_FAILED event without orderId, nothing to update")
		return
	}

	c.log.Warnf("📥 Stock update failed for order %s (%d products)", ev.OrderID, len(ev.FailedProducts))

	if err := c.orders.UpdateStatus(ctx, ev.OrderID, models.OrderStatusStockFailed); err != nil {
		c.log.Errorf("❌ Failed to mark order %s as %s: %v", ev.OrderID, models.OrderStatusStockFailed, err)
		return
	}

	c.log.Infof("✅ Order %s marked as %s", ev.OrderID, models.OrderStatusStockFailed)
}
