package models

import "time"

// Gear is a rentable catalog item. Each gear id is a single physical unit.
type Gear struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	PricePerDay float64   `json:"pricePerDay"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Images      []string  `json:"images"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Address is a delivery address in a user's address book.
type Address struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	IsDefault bool   `json:"isDefault"`
}

// AdminBooking is a booking joined with its delivery address for the admin console.
type AdminBooking struct {
	Booking
	Address *Address `json:"address,omitempty"`
}
