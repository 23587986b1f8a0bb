package models

// Stats is the dashboard summary.
type Stats struct {
	TotalOrders int     `json:"total_orders"`
	InTransit   int     `json:"in_transit"`
	TotalValue  float64 `json:"total_value"`
	NewSellers  int     `json:"new_sellers"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type DetailedStats struct {
	ByStatus      map[string]int  `json:"by_status"`
	TopCategories []CategoryCount `json:"top_categories"`
}
