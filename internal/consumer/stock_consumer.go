package consumer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/NicolaiBoKunkel/e-commerace-project/internal/db"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/events"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/messaging"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/models"
)

// ProductStore is the participant's local store surface. Each DeductStock
// call must be atomic in the store itself; the consumer does no in-process
// locking.
type ProductStore interface {
	GetByID(ctx context.Context, id string) (*models.Product, error)
	DeductStock(ctx context.Context, id string, quantity int) (*models.Product, error)
}

// EventPublisher publishes envelopes onto the shared fanout exchange.
type EventPublisher interface {
	Publish(exchange string, body []byte) error
}

// ProcessedLedger remembers event ids that were already handled, so a
// redelivered message doesn't deduct stock twice.
type ProcessedLedger interface {
	SeenEvent(ctx context.Context, id string) (bool, error)
	MarkEventSeen(ctx context.Context, id string) error
}

// StockConsumer is the product service's saga participant: it reacts to
// fulfillment events from its private queue, deducts stock per line item,
// and publishes a compensation event when any item cannot be satisfied.
type StockConsumer struct {
	store  ProductStore
	bus    EventPublisher
	ledger ProcessedLedger
	policy Policy
	log    *zap.SugaredLogger
}

func NewStockConsumer(log *zap.SugaredLogger, store ProductStore, bus EventPublisher, ledger ProcessedLedger) *StockConsumer {
	return &StockConsumer{
		store:  store,
		bus:    bus,
		ledger: ledger,
		policy: DefaultPolicy(),
		log:    log,
	}
}

// Run consumes deliveries until the channel closes or ctx is cancelled.
// Every message is acked exactly once after processing: malformed or
// unrecognized messages are dropped, and business failures travel as
// compensation events rather than transport retries, which avoids redelivery
// storms and double-deduction.
func (c *StockConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
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

// Handle runs a single message body through parse → evaluate. The caller
// acks afterwards regardless of the outcome.
func (c *StockConsumer) Handle(ctx context.Context, body []byte) {
	ev, err := events.Decode(body)
	if err != nil {
		c.log.Warnf("❌ Dropping malformed message: %v", err)
		return
	}

	reaction, ok := c.policy[ev.Type]
	if !ok {
		c.log.Debugf("Ignoring event type: %s", ev.Type)
		return
	}

	if c.alreadyProcessed(ctx, ev) {
		return
	}

	c.log.Infof("📥 Received %s event for order %s", ev.Type, ev.OrderID)

	failed := reaction.Mutate(ctx, c, ev)

	if reaction.ShouldCompensate(failed) {
		c.publishCompensation(ev, reaction.CompensationType, failed)
	}

	c.markProcessed(ctx, ev)
}

// deductStock applies one fulfillment event to the local store. Items are
// evaluated independently: a missing product means "nothing to do", a store
// error is logged and skipped, and an over-requested item is recorded as
// failed without touching its stock. One bad item never blocks the rest of
// the order.
func (c *StockConsumer) deductStock(ctx context.Context, ev *events.Envelope) []events.FailedItem {
	var failed []events.FailedItem

	for _, item := range ev.Products {
		product, err := c.store.GetByID(ctx, item.ProductID)
		if err != nil {
			c.log.Errorf("❌ Failed to look up product %s: %v", item.ProductID, err)
			continue
		}
		if product == nil {
			// This service does not own every product referenced
			// system-wide.
			continue
		}

		if item.Quantity > product.Stock {
			c.log.Warnf("⚠️ Insufficient stock for '%s' — requested: %d, available: %d",
				product.Name, item.Quantity, product.Stock)
			failed = append(failed, events.FailedItem{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: product.Stock,
			})
			continue
		}

		updated, err := c.store.DeductStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			if errors.Is(err, db.ErrInsufficientStock) {
				// Lost a race with a concurrent deduction since the read;
				// the guard left the stock untouched.
				failed = append(failed, events.FailedItem{
					ProductID: item.ProductID,
					Requested: item.Quantity,
					Available: product.Stock,
				})
				continue
			}
			c.log.Errorf("❌ Failed to update stock for product %s: %v", item.ProductID, err)
			continue
		}

		c.log.Infof("✅ Reduced stock of '%s' from %d to %d", updated.Name, product.Stock, updated.Stock)
	}

	return failed
}

// publishCompensation sends exactly one compensation event carrying the full
// failure list, correlated to the triggering event's order and user.
func (c *StockConsumer) publishCompensation(ev *events.Envelope, compensationType string, failed []events.FailedItem) {
	compensation := events.Envelope{
		EventID:        uuid.NewString(),
		Type:           compensationType,
		OrderID:        ev.OrderID,
		UserID:         ev.UserID,
		FailedProducts: failed,
	}

	if err := c.bus.Publish(messaging.OrderEventsExchange, compensation.Encode()); err != nil {
		// Still acked by the caller: requeueing the inbound message would
		// risk double deduction. The loss has to be loud instead.
		c.log.Errorf("❌ Failed to publish %s for order %s: %v", compensationType, ev.OrderID, err)
		return
	}

	c.log.Infof("📤 Published %s for order %s (%d failed products)", compensationType, ev.OrderID, len(failed))
}

func (c *StockConsumer) alreadyProcessed(ctx context.Context, ev *events.Envelope) bool {
	if ev.EventID == "" {
		// Older producers don't set a dedup key; at-least-once is the floor
		// and the guarded deduction keeps stock non-negative regardless.
		return false
	}

	seen, err := c.ledger.SeenEvent(ctx, ev.EventID)
	if err != nil {
		c.log.Warnf("⚠️ Event ledger unavailable, processing anyway: %v", err)
		return false
	}
	if seen {
		c.log.Infof("🔁 Duplicate delivery of event %s, skipping", ev.EventID)
	}
	return seen
}

func (c *StockConsumer) markProcessed(ctx context.Context, ev *events.Envelope) {
	if ev.EventID == "" {
		return
	}
	if err := c.ledger.MarkEventSeen(ctx, ev.EventID); err != nil {
		c.log.Warnf("⚠️ Failed to record event %s in ledger: %v", ev.EventID, err)
	}
}
