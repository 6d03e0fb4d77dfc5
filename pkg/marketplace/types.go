package marketplace

// CreateOrderRequest is the payload for POST /orders.
type CreateOrderRequest struct {
	ListingID             string `json:"listing_id"`
	Quantity              int    `json:"quantity"`
	TotalAmountMinorUnits int64  `json:"total_amount_minor_units"`
	Currency              string `json:"currency"`
}

// Order is the remote order as returned by the marketplace.
type Order struct {
	ID                    string `json:"id"`
	Status                string `json:"status"`
	ListingID             string `json:"listing_id,omitempty"`
	Quantity              int    `json:"quantity,omitempty"`
	TotalAmountMinorUnits int64  `json:"total_amount_minor_units,omitempty"`
	Currency              string `json:"currency,omitempty"`
}

// SellerDemand summarizes buyer interest in a seller's listings.
type SellerDemand struct {
	SellerID       string  `json:"seller_id"`
	ActiveListings int     `json:"active_listings"`
	Views7d        int     `json:"views_7d"`
	Saves7d        int     `json:"saves_7d"`
	DemandScore    float64 `json:"demand_score"`
}

// PriceCoach carries pricing guidance for a product.
type PriceCoach struct {
	ProductID           string `json:"product_id"`
	Currency            string `json:"currency"`
	SuggestedMinorUnits int64  `json:"suggested_minor_units"`
	LowMinorUnits       int64  `json:"low_minor_units"`
	HighMinorUnits      int64  `json:"high_minor_units"`
}

type RecommendedListing struct {
	ListingID       string  `json:"listing_id"`
	Title           string  `json:"title"`
	PriceMinorUnits int64   `json:"price_minor_units"`
	Currency        string  `json:"currency"`
	ThumbnailURL    *string `json:"thumbnail_url,omitempty"`
}
