package messages

import "time"

// TopicOrderTrackingUpdated carries one event per order whose tracking
// snapshot changed during a refresh. Keyed by order id.
const TopicOrderTrackingUpdated = "order.tracking.updated"

type OrderTrackingUpdated struct {
	OrderID   uint64    `json:"order_id"`
	Carrier   string    `json:"carrier,omitempty"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	UpdatedAt time.Time `json:"updated_at"`
}
