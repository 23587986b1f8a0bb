package tracking

import "github.com/arimarlgomes/KleinManager/internal/models"

// NextStatus derives the order status that follows from a snapshot. The
// machine is one-directional: Ordered -> Shipped -> Delivered, Delivered
// terminal, and no rule ever moves a status backward.
//
// Rule order, first match wins:
//  1. error snapshot        -> unchanged
//  2. progress == 100       -> Delivered (directly from Ordered too)
//  3. currently Ordered     -> Shipped
//  4. otherwise             -> unchanged
func NextStatus(current string, snap models.TrackingSnapshot) string {
	switch {
	case snap.Error != "":
		return current
	case snap.Progress == 100:
		return models.OrderStatusDelivered
	case current == models.OrderStatusOrdered:
		return models.OrderStatusShipped
	default:
		return current
	}
}
