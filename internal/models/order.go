package models

import "time"

// Order lifecycle statuses. Forward-only: Ordered -> Shipped -> Delivered.
const (
	OrderStatusOrdered   = "Ordered"
	OrderStatusShipped   = "Shipped"
	OrderStatusDelivered = "Delivered"
)

type Order struct {
	ID               uint64
	AdID             *string
	Title            string
	Price            float64
	Description      *string
	Category         *string
	Location         *string
	SellerName       *string
	SellerProfileURL *string
	SellerSince      *string
	SellerIsNew      bool
	ArticleURL       *string
	ImageURLs        *string
	LocalImages      *string

	TrackingNumber *string
	Carrier        *string
	// TrackingDetails holds the serialized TrackingSnapshot of the last poll.
	TrackingDetails *string
	// DHLStatus and DHLDetails mirror the snapshot for readers of the old
	// single-carrier schema. Written on every poll regardless of carrier.
	DHLStatus     *string
	DHLDetails    *string
	DHLLastUpdate *time.Time

	Status string
	Notes  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrackingSnapshot is the canonical result of one tracking poll. It replaces
// the previous snapshot wholesale; fields are never merged.
type TrackingSnapshot struct {
	Carrier  string          `json:"carrier,omitempty"`
	Status   string          `json:"status"`
	Progress int             `json:"progress"`
	History  []TrackingEvent `json:"history,omitempty"`
	// Error carries a data-level lookup failure. When set, the rest of the
	// snapshot is best-effort and must not drive a status transition.
	Error string `json:"error,omitempty"`
}

type TrackingEvent struct {
	Time        time.Time `json:"time"`
	Status      string    `json:"status"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
}

// ListingData is what the marketplace scraper extracts from an ad page.
type ListingData struct {
	AdID             string
	Title            string
	Price            float64
	Description      *string
	Category         *string
	Location         *string
	SellerName       *string
	SellerProfileURL *string
	SellerSince      *string
	SellerIsNew      bool
	ArticleURL       string
	ImageURLs        []string
}

// OrderPatch carries the updatable order fields. Nil means "leave unchanged".
type OrderPatch struct {
	Title          *string
	Price          *float64
	TrackingNumber *string
	Carrier        *string
	Status         *string
	Notes          *string
}
