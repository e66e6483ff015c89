package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_FulfillmentEvent(t *testing.T) {
	body := []byte(`{
		"eventId": "evt-1",
		"type": "ORDER_SHIPPED",
		"orderId": "O1",
		"userId": "user-1",
		"products": [{"productId": "P1", "quantity": 3}]
	}`)

	ev, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.EventID)
	assert.Equal(t, TypeOrderShipped, ev.Type)
	assert.Equal(t, "O1", ev.OrderID)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, []LineItem{{ProductID: "P1", Quantity: 3}}, ev.Products)
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	// Newer producers may add fields; old consumers must not choke on them.
	body := []byte(`{
		"type": "ORDER_SHIPPED",
		"orderId": "O1",
		"warehouse": "eu-west",
		"priority": 3,
		"products": [{"productId": "P1", "quantity": 1, "sku": "extra"}]
	}`)

	ev, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, "O1", ev.OrderID)
	require.Len(t, ev.Products, 1)
	assert.Equal(t, "P1", ev.Products[0].ProductID)
}

func TestDecode_RejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("definitely not json")},
		{"empty body", []byte("")},
		{"json without type", []byte(`{"orderId": "O1"}`)},
		{"json array", []byte(`[1, 2, 3]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(tt.body)
			assert.Nil(t, ev)

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr, "malformed input must yield a typed DecodeError")
		})
	}
}

func TestDecodeError_UnwrapsCause(t *testing.T) {
	_, err := Decode([]byte("nope"))

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.NotNil(t, errors.Unwrap(decodeErr))
	assert.NotEmpty(t, decodeErr.Error())
}

func TestEncode_RoundTripsCompensation(t *testing.T) {
	original := Envelope{
		EventID: "evt-2",
		Type:    TypeStockUpdateFailed,
		OrderID: "O2",
		UserID:  "user-1",
		FailedProducts: []FailedItem{
			{ProductID: "P2", Requested: 4, Available: 1},
		},
	}

	decoded, err := Decode(original.Encode())
	require.NoError(t, err)
	assert.Equal(t, &original, decoded)
}

func TestEncode_OmitsEmptySequences(t *testing.T) {
	body := Envelope{Type: TypeOrderShipped, OrderID: "O1"}.Encode()

	assert.NotContains(t, string(body), "products")
	assert.NotContains(t, string(body), "failedProducts")
	assert.NotContains(t, string(body), "eventId")
}
