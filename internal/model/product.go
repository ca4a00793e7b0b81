package model

import "time"

// Product represents a sellable product in the catalogue. TotalStock is a
// denormalized sum of its units' quantities, recomputed best-effort after
// every stock mutation; it may lag and must never be used for reservation
// decisions.
type Product struct {
	ID                string    `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"`
	BasePrice         float64   `json:"basePrice" db:"base_price"`
	Category          string    `json:"category" db:"category"`
	TotalStock        int       `json:"totalStock" db:"total_stock"`
	LowStockThreshold *int      `json:"lowStockThreshold,omitempty" db:"low_stock_threshold"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
}
