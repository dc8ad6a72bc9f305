package rbac

import "time"

// Permission names guarding custody endpoints.
const (
	PermCustodyView   = "custody.view"
	PermCustodyCreate = "custody.create"
	PermCustodyEdit   = "custody.edit"
	PermCustodySubmit = "custody.submit"
	PermCustodyCancel = "custody.cancel"
	PermCustodyDebug  = "custody.debug"
	PermMasterView    = "master.view"
	PermMasterEdit    = "master.edit"
	PermPermsView     = "permissions.view"
	PermAuditView     = "audit.view"
)

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
