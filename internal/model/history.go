package model

import (
	"encoding/json"
	"time"
)

// ActionKind is the fixed vocabulary of audited actions.
type ActionKind string

// Action kinds.
const (
	ActionCreate   ActionKind = "CREATE"
	ActionUpdate   ActionKind = "UPDATE"
	ActionDelete   ActionKind = "DELETE"
	ActionVerify   ActionKind = "VERIFY"
	ActionTransfer ActionKind = "TRANSFER"
	ActionLogin    ActionKind = "LOGIN"
)

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionCreate, ActionUpdate, ActionDelete, ActionVerify, ActionTransfer, ActionLogin:
		return true
	}
	return false
}

// Related entity types recorded in the action history.
const (
	EntityStockTransfer = "StockTransfer"
	EntityStock         = "Stock"
	EntityProduct       = "Product"
	EntityLocation      = "StockLocation"
	EntityUser          = "User"
)

// ActionEntry is one immutable row of the user action history.
type ActionEntry struct {
	ID          string          `json:"id"`
	UserID      int64           `json:"user_id"`
	Action      ActionKind      `json:"action"`
	RelatedType string          `json:"related_type"`
	RelatedID   string          `json:"related_id"`
	Details     json.RawMessage `json:"details"`
	CreatedAt   time.Time       `json:"created_at"`

	// Joined fields (not always populated).
	Username string `json:"username,omitempty"`
}
