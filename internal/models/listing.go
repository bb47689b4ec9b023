package models

import "time"

// ListingStatus is the visibility state of a listing.
type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusInactive ListingStatus = "inactive"
)

// Listing is a seller-owned sellable unit: one card at one price. Quantity
// never goes negative and is decremented only by completed order items.
type Listing struct {
	ID        string        `json:"id"`
	SellerID  string        `json:"seller_id"`
	CardID    string        `json:"card_id"`
	CardName  string        `json:"card_name"`
	Price     Money         `json:"price"`
	Quantity  int           `json:"quantity"`
	Status    ListingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// IsActive reports whether the listing can currently be purchased.
func (l *Listing) IsActive() bool {
	return l.Status == ListingStatusActive
}
