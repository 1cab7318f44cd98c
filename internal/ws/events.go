package ws

import "encoding/json"

// Event types pushed to outlet rooms. Terminals use these to refresh the
// order board without polling.
const (
	EventOrderCreated   = "order.created"
	EventOrderRevised   = "order.revised"
	EventPaymentUpdated = "payment.updated"
	EventKitchenUpdated = "kitchen.updated"
)

// NewEvent marshals the payload into a typed broadcast event.
func NewEvent(eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw}, nil
}
