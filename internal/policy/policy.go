// Package policy decides which roles may perform which operations. Both the
// HTTP middleware and the services ask it, so a capability is granted in
// exactly one place.
package policy

import (
	"fmt"

	"github.com/medequip/depot/internal/common"
	"github.com/medequip/depot/internal/model"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID   int64
	Username string
	Role     string
}

// Capability names an operation class guarded by a role.
type Capability string

// Capabilities.
const (
	CapVerifyTransfers Capability = "transfers:verify"
	CapRequestTransfer Capability = "transfers:request"
	CapViewTransfers   Capability = "transfers:view"
	CapManageStock     Capability = "stock:manage"
	CapManageCatalog   Capability = "catalog:manage"
	CapManageUsers     Capability = "users:manage"
	CapViewHistory     Capability = "history:view"
)

// minimum role holding each capability.
var grants = map[Capability]string{
	CapVerifyTransfers: model.RoleAdmin,
	CapRequestTransfer: model.RoleDoctor,
	CapViewTransfers:   model.RoleDoctor,
	CapManageStock:     model.RoleEmployee,
	CapManageCatalog:   model.RoleEmployee,
	CapManageUsers:     model.RoleAdmin,
	CapViewHistory:     model.RoleAdmin,
}

// Decision is the outcome of a capability check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Check decides whether actor holds c. Unknown capabilities and unknown
// roles are denied.
func Check(actor *Actor, c Capability) Decision {
	if actor == nil {
		return Decision{Reason: "not authenticated"}
	}
	minRole, ok := grants[c]
	if !ok {
		return Decision{Reason: fmt.Sprintf("unknown capability %q", c)}
	}
	if !model.RoleAtLeast(actor.Role, minRole) {
		return Decision{Reason: fmt.Sprintf("role %s lacks %s", actor.Role, c)}
	}
	return Decision{Allowed: true}
}

// Require returns common.ErrNotAuthenticated for a nil actor and
// common.ErrNotAuthorized when the check fails.
func Require(actor *Actor, c Capability) error {
	if actor == nil {
		return common.ErrNotAuthenticated
	}
	if d := Check(actor, c); !d.Allowed {
		return fmt.Errorf("%s: %w", d.Reason, common.ErrNotAuthorized)
	}
	return nil
}
