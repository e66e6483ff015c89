package publisher

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NicolaiBoKunkel/e-commerace-project/internal/events"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/messaging"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/models"
)

// Bus is the slice of the messaging layer the publisher needs.
type Bus interface {
	Publish(exchange string, body []byte) error
}

// OrderPublisher broadcasts order fulfillment events to every saga
// participant bound to the order_events exchange.
type OrderPublisher struct {
	bus Bus
	log *zap.SugaredLogger
}

func NewOrderPublisher(log *zap.SugaredLogger, bus Bus) *OrderPublisher {
	return &OrderPublisher{
		bus: bus,
		log: log,
	}
}

// PublishOrderShipped broadcasts an ORDER_SHIPPED event for the order. Every
// bound queue gets a copy; each participant decides independently whether to
// react.
func (p *OrderPublisher) PublishOrderShipped(order *models.Order) error {
	ev := events.Envelope{
		EventID: uuid.NewString(),
		Type:    events.TypeOrderShipped,
		OrderID: order.ID,
		UserID:  order.UserID,
	}

	for _, item := range order.Items {
		ev.Products = append(ev.Products, events.LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	if err := p.bus.Publish(messaging.OrderEventsExchange, ev.Encode()); err != nil {
		return err
	}

	p.log.Infof("📤 Published %s for order %s (%d products)", events.TypeOrderShipped, order.ID, len(ev.Products))
	return nil
}
