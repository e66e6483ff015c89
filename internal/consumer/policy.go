package consumer

import (
	"context"

	"github.com/NicolaiBoKunkel/e-commerace-project/internal/events"
)

// Reaction ties an inbound event type to the local mutation it triggers and
// the compensation published when that mutation partially fails.
type Reaction struct {
	// Mutate applies the local state transition and returns one FailedItem
	// per line item that could not be satisfied.
	Mutate func(ctx context.Context, c *StockConsumer, ev *events.Envelope) []events.FailedItem
	// CompensationType tags the event published when ShouldCompensate
	// reports true.
	CompensationType string
	// ShouldCompensate decides whether the outcome warrants a compensation
	// event.
	ShouldCompensate func(failed []events.FailedItem) bool
}

// Policy maps inbound event types to reactions. Event types without an entry
// are acked and ignored. Adding a saga step means adding an entry here; the
// consumer's control flow stays untouched.
type Policy map[string]Reaction

// DefaultPolicy handles ORDER_SHIPPED by deducting stock and answers partial
// failure with a single STOCK_UPDATE_FAILED event.
func DefaultPolicy() Policy {
	return Policy{
		events.TypeOrderShipped: {
			Mutate: func(ctx context.Context, c *StockConsumer, ev *events.Envelope) []events.FailedItem {
				return c.deductStock(ctx, ev)
			},
			CompensationType: events.TypeStockUpdateFailed,
			ShouldCompensate: func(failed []events.FailedItem) bool {
				return len(failed) > 0
			},
		},
	}
}
