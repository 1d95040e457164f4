package model

import "time"

// Location is a place that can hold stock: a warehouse, the repair shop,
// a technician's vehicle or a patient's home.
type Location struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Location kinds.
const (
	LocationWarehouse = "warehouse"
	LocationRepair    = "repair"
	LocationPatient   = "patient"
	LocationVehicle   = "vehicle"
)

// ValidLocationKind reports whether kind is a known location kind.
func ValidLocationKind(kind string) bool {
	switch kind {
	case LocationWarehouse, LocationRepair, LocationPatient, LocationVehicle:
		return true
	}
	return false
}
