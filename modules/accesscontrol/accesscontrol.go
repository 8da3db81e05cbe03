// Package accesscontrol owns the per-user overrides and per-role
// permissions the access resolver consults. Rows live in SQLite under the
// module's storage namespace; other modules reach the store through the
// service registry, never by importing this package.
package accesscontrol

import (
	"context"
	"errors"

	"github.com/stackward/platform"
)

// ModuleID is the identifier the module registers under.
const ModuleID = "accesscontrol"

// Module errors
var (
	ErrUnknownUser = errors.New("override references unknown user")
)

// Event types emitted by this module.
const (
	EventTypeOverrideSet       = "com.stackward.platform.access.override.set"
	EventTypeOverrideCleared   = "com.stackward.platform.access.override.cleared"
	EventTypePermissionSet     = "com.stackward.platform.access.permission.set"
	EventTypePermissionCleared = "com.stackward.platform.access.permission.cleared"
)

// Store is the exported service surface: the resolver's read interface
// plus the mutations the admin endpoints use.
type Store interface {
	platform.AccessStore

	SetOverride(ctx context.Context, override platform.AccessOverride) error
	ClearOverride(ctx context.Context, userID, moduleID string) error
	ListOverrides(ctx context.Context, userID string) ([]platform.AccessOverride, error)

	SetRolePermission(ctx context.Context, perm platform.RolePermission) error
	ClearRolePermission(ctx context.Context, moduleID, role string) error
	ListRolePermissions(ctx context.Context, moduleID string) ([]platform.RolePermission, error)
}

// userChecker is the slice of the identity service this module needs. It
// is satisfied structurally by the identity module's registered handle, so
// there is no compile-time dependency on that package.
type userChecker interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}
