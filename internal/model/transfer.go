package model

import "time"

// TransferState is the verification state of a stock transfer.
type TransferState string

// Transfer states. A transfer is created pending and decided exactly once.
const (
	TransferPending  TransferState = "pending"
	TransferApproved TransferState = "approved"
	TransferRejected TransferState = "rejected"
)

// Decided reports whether the state is terminal.
func (s TransferState) Decided() bool {
	return s == TransferApproved || s == TransferRejected
}

// Valid reports whether s is a known state.
func (s TransferState) Valid() bool {
	return s == TransferPending || s.Decided()
}

// StateFromDecision maps an approve/reject decision to its state.
func StateFromDecision(approve bool) TransferState {
	if approve {
		return TransferApproved
	}
	return TransferRejected
}

// Transfer represents a stock movement between two locations.
type Transfer struct {
	ID             int64         `json:"id"`
	ProductID      int64         `json:"product_id"`
	FromLocationID int64         `json:"from_location_id"`
	ToLocationID   int64         `json:"to_location_id"`
	Quantity       int           `json:"quantity"`
	Notes          string        `json:"notes,omitempty"`
	TransferredAt  time.Time     `json:"transferred_at"`
	TransferredBy  int64         `json:"transferred_by"`
	State          TransferState `json:"state"`
	Verified       *bool         `json:"verified"`
	VerifiedBy     *int64        `json:"verified_by,omitempty"`
	VerifiedAt     *time.Time    `json:"verified_at,omitempty"`

	// Joined fields (not always populated).
	ProductName       string `json:"product_name,omitempty"`
	ProductKind       string `json:"product_kind,omitempty"`
	FromLocationName  string `json:"from_location_name,omitempty"`
	ToLocationName    string `json:"to_location_name,omitempty"`
	TransferredByName string `json:"transferred_by_name,omitempty"`
	TransferredByRole string `json:"transferred_by_role,omitempty"`
}

// Stock represents the quantity of a product held at a location.
type Stock struct {
	ProductID  int64 `json:"product_id"`
	LocationID int64 `json:"location_id"`
	Quantity   int   `json:"quantity"`

	// Joined fields (not always populated).
	ProductName  string `json:"product_name,omitempty"`
	LocationName string `json:"location_name,omitempty"`
	LocationKind string `json:"location_kind,omitempty"`
}
