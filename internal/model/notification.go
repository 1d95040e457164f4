package model

import (
	"encoding/json"
	"time"
)

// Notification categories.
const (
	CategoryTransfer    = "transfer"
	CategoryMaintenance = "maintenance"
	CategoryRental      = "rental"
	CategoryPayment     = "payment"
	CategorySystem      = "system"
)

// ValidCategory reports whether c is a known notification category.
func ValidCategory(c string) bool {
	switch c {
	case CategoryTransfer, CategoryMaintenance, CategoryRental, CategoryPayment, CategorySystem:
		return true
	}
	return false
}

// Notification delivery statuses.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// Notification is a message addressed to a single user.
type Notification struct {
	ID          string          `json:"id"`
	UserID      int64           `json:"user_id"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Category    string          `json:"category"`
	IsRead      bool            `json:"is_read"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
	Status      string          `json:"status"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
}
