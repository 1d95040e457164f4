package model

import "time"

// Product is a stocked article. Kind distinguishes consumables and
// accessories ("product") from serial medical devices ("device").
type Product struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Reference string     `json:"reference,omitempty"`
	Brand     string     `json:"brand,omitempty"`
	Model     string     `json:"model,omitempty"`
	Status    string     `json:"status"`
	HasPhoto  bool       `json:"has_photo"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Product kinds.
const (
	ProductKindProduct = "product"
	ProductKindDevice  = "device"
)

// Product statuses.
const (
	ProductStatusActive      = "active"
	ProductStatusMaintenance = "maintenance"
	ProductStatusRetired     = "retired"
)

// ValidProductKind reports whether kind is a known product kind.
func ValidProductKind(kind string) bool {
	return kind == ProductKindProduct || kind == ProductKindDevice
}

// ValidProductStatus reports whether status is a known product status.
func ValidProductStatus(status string) bool {
	switch status {
	case ProductStatusActive, ProductStatusMaintenance, ProductStatusRetired:
		return true
	}
	return false
}
