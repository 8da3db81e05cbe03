package platform

import (
	"context"
)

// AccessReason explains an access decision. The values are stable
// identifiers suitable for JSON responses and audit records.
type AccessReason string

const (
	AccessModuleNotFound        AccessReason = "module_not_found"
	AccessModuleDisabled        AccessReason = "module_disabled"
	AccessUserOverrideEnabled   AccessReason = "user_override_enabled"
	AccessUserOverrideDisabled  AccessReason = "user_override_disabled"
	AccessRolePermissionGranted AccessReason = "role_permission_granted"
	AccessRolePermissionDenied  AccessReason = "role_permission_denied"
	AccessNoPermissionDefined   AccessReason = "no_permission_defined"
	AccessCheckError            AccessReason = "access_check_error"
)

// AccessDecision is the verdict for one (user, module) query. Decisions
// are computed fresh on every call and never persisted.
type AccessDecision struct {
	HasAccess bool         `json:"hasAccess"`
	Reason    AccessReason `json:"reason"`
}

// AccessOverride is a per-user exception for one module. Overrides always
// win over role policy; they are the designed escape hatch for per-user
// exceptions.
type AccessOverride struct {
	UserID   string `json:"userId"`
	ModuleID string `json:"moduleId"`
	Enabled  bool   `json:"enabled"`
}

// RolePermission is a per-role default access policy for one module.
type RolePermission struct {
	ModuleID  string `json:"moduleId"`
	Role      string `json:"role"`
	CanAccess bool   `json:"canAccess"`
}

// AccessStore is the read surface the resolver consults. Both lookups
// return (nil, nil) when no record exists; an error means the store
// itself failed and the resolver fails closed.
//
// The store is owned by the access-control module and reached through its
// registered service handle, never by direct import.
type AccessStore interface {
	Override(ctx context.Context, userID, moduleID string) (*AccessOverride, error)
	RolePermission(ctx context.Context, moduleID, role string) (*RolePermission, error)
}

// ModuleStateView is the read-only view of the runtime the resolver needs:
// module existence and the enabled flag.
type ModuleStateView interface {
	ModuleState(id string) (ModuleStatus, bool)
	ModuleIDs() []string
}

// StoreLookup resolves the access store at query time, so the resolver
// follows the live service registry rather than pinning a handle that may
// belong to a disabled module.
type StoreLookup func() (AccessStore, bool)

// StoreFromRegistry builds a StoreLookup over the service handle the given
// module registers.
func StoreFromRegistry(services *ServiceRegistry, moduleID string) StoreLookup {
	return func() (AccessStore, bool) {
		return ServiceAs[AccessStore](services, moduleID)
	}
}

// AccessResolver decides whether a principal may use a module, using a
// three-tier precedence policy: user override, then role permission, then
// default deny. It holds no state of its own and is safe for concurrent
// use.
type AccessResolver struct {
	modules ModuleStateView
	store   StoreLookup
	logger  Logger
}

// NewAccessResolver wires the resolver to a runtime view and a store
// lookup.
func NewAccessResolver(modules ModuleStateView, store StoreLookup, logger Logger) *AccessResolver {
	return &AccessResolver{modules: modules, store: store, logger: logger}
}

// CheckAccess resolves the verdict for userID on moduleID, in strict
// order:
//
//  1. unknown module           -> module_not_found
//  2. administratively disabled -> module_disabled
//  3. user override             -> user_override_enabled / _disabled
//  4. role permission           -> role_permission_granted / _denied
//  5. no record                 -> no_permission_defined (default deny)
//
// A store failure at step 3 or 4 resolves to access_check_error with
// access denied; access checks never fail open.
func (r *AccessResolver) CheckAccess(ctx context.Context, userID, moduleID, role string) AccessDecision {
	state, known := r.modules.ModuleState(moduleID)
	if !known {
		return AccessDecision{HasAccess: false, Reason: AccessModuleNotFound}
	}
	if !state.Enabled {
		return AccessDecision{HasAccess: false, Reason: AccessModuleDisabled}
	}

	store, ok := r.store()
	if !ok {
		r.logger.Error("Access check failed", "user", userID, "module", moduleID,
			"error", ErrAccessStoreUnavailable)
		return AccessDecision{HasAccess: false, Reason: AccessCheckError}
	}

	override, err := store.Override(ctx, userID, moduleID)
	if err != nil {
		r.logger.Error("Access check failed", "user", userID, "module", moduleID, "error", err)
		return AccessDecision{HasAccess: false, Reason: AccessCheckError}
	}
	if override != nil {
		if override.Enabled {
			return AccessDecision{HasAccess: true, Reason: AccessUserOverrideEnabled}
		}
		return AccessDecision{HasAccess: false, Reason: AccessUserOverrideDisabled}
	}

	if role != "" {
		perm, err := store.RolePermission(ctx, moduleID, role)
		if err != nil {
			r.logger.Error("Access check failed", "user", userID, "module", moduleID, "error", err)
			return AccessDecision{HasAccess: false, Reason: AccessCheckError}
		}
		if perm != nil {
			if perm.CanAccess {
				return AccessDecision{HasAccess: true, Reason: AccessRolePermissionGranted}
			}
			return AccessDecision{HasAccess: false, Reason: AccessRolePermissionDenied}
		}
	}

	return AccessDecision{HasAccess: false, Reason: AccessNoPermissionDefined}
}

// AccessibleModules returns the IDs of every module the user may access,
// sorted. It runs CheckAccess once per module with no caching layer,
// which is O(modules) per call; fine for the module counts an admin
// platform carries.
func (r *AccessResolver) AccessibleModules(ctx context.Context, userID, role string) []string {
	var out []string
	for _, id := range r.modules.ModuleIDs() {
		if r.CheckAccess(ctx, userID, id, role).HasAccess {
			out = append(out, id)
		}
	}
	return out
}
