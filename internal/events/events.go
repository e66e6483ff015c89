package events

import (
	"encoding/json"
	"fmt"
)

// Event types carried on the order_events exchange. The set is open-ended:
// consumers ignore types they don't recognize.
const (
	TypeOrderShipped      = "ORDER_SHIPPED"
	TypeStockUpdateFailed = "STOCK_UPDATE_FAILED"
)

// LineItem is one product affected by a fulfillment event.
type LineItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// FailedItem records one product that could not be satisfied, with the
// quantity that was requested and what was actually available.
type FailedItem struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Envelope is the unit of communication on the bus. OrderID and UserID
// correlate every event belonging to one business transaction and must be
// propagated onto any compensation event. EventID is a dedup key set by
// publishers; older producers may omit it.
type Envelope struct {
	EventID        string       `json:"eventId,omitempty"`
	Type           string       `json:"type"`
	OrderID        string       `json:"orderId,omitempty"`
	UserID         string       `json:"userId,omitempty"`
	Products       []LineItem   `json:"products,omitempty"`
	FailedProducts []FailedItem `json:"failedProducts,omitempty"`
}

// DecodeError marks a message body that cannot be turned into an Envelope.
// Consumers ack and drop such messages instead of crashing or requeueing.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode event: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode event: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses a message body into an Envelope. Unknown fields are ignored
// for forward compatibility. Returns *DecodeError on non-JSON input or a
// missing type tag; never panics.
func Decode(body []byte) (*Envelope, error) {
	var ev Envelope
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, &DecodeError{Reason: "invalid JSON", Err: err}
	}
	if ev.Type == "" {
		return nil, &DecodeError{Reason: "missing type field"}
	}
	return &ev, nil
}

// Encode serializes the envelope to its wire form. Marshaling a plain struct
// of strings, ints and slices cannot fail.
func (e Envelope) Encode() []byte {
	data, _ := json.Marshal(e)
	return data
}
