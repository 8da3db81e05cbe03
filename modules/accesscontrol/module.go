package accesscontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stackward/platform"
)

// AccessControlModule stores access overrides and role permissions and
// exposes them as the resolver's access store.
type AccessControlModule struct {
	env    *platform.Environment
	dbPath string
	store  *SQLiteStore
}

// Definition returns the module definition. dbPath is the SQLite file the
// module owns; use ":memory:" for ephemeral deployments.
func Definition(dbPath string) platform.Definition {
	return platform.Definition{
		Descriptor: platform.Descriptor{
			ID:               ModuleID,
			Name:             "Access Control",
			Version:          "1.2.1",
			APIPrefix:        "/api/access",
			StorageNamespace: "access_",
			Dependencies:     []string{"identity"},
			MinimumRole:      platform.RoleAdmin,
			Capabilities: []platform.Capability{
				{
					Name:        "access-policy",
					Description: "Manage per-user overrides and per-role module permissions",
					Endpoints:   []string{"/overrides", "/permissions"},
				},
			},
		},
		Bootstrap: func(ctx context.Context, env *platform.Environment) (platform.Module, error) {
			return &AccessControlModule{env: env, dbPath: dbPath}, nil
		},
	}
}

// Init opens the SQLite store and ensures the schema.
func (m *AccessControlModule) Init(ctx context.Context) error {
	store, err := OpenSQLiteStore(ctx, m.dbPath)
	if err != nil {
		return err
	}
	m.store = store
	m.env.Logger.Info("Access store opened", "path", m.dbPath)
	return nil
}

// Stop closes the database.
func (m *AccessControlModule) Stop(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

// HealthCheck pings the database.
func (m *AccessControlModule) HealthCheck(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// ServiceHandle registers the Store so the resolver and other modules can
// consult access data through the service registry.
func (m *AccessControlModule) ServiceHandle() any {
	return Store(m.store)
}

// Routes returns the admin endpoints for managing policy rows.
func (m *AccessControlModule) Routes() []platform.Route {
	return []platform.Route{
		{Method: http.MethodGet, Pattern: "/overrides/{userID}", Handler: m.handleListOverrides},
		{Method: http.MethodPut, Pattern: "/overrides", Handler: m.handleSetOverride},
		{Method: http.MethodDelete, Pattern: "/overrides/{userID}/{moduleID}", Handler: m.handleClearOverride},
		{Method: http.MethodGet, Pattern: "/permissions/{moduleID}", Handler: m.handleListPermissions},
		{Method: http.MethodPut, Pattern: "/permissions", Handler: m.handleSetPermission},
		{Method: http.MethodDelete, Pattern: "/permissions/{moduleID}/{role}", Handler: m.handleClearPermission},
	}
}

// checkUser verifies the override target exists in the identity
// directory, reached through the service registry.
func (m *AccessControlModule) checkUser(ctx context.Context, userID string) error {
	checker, ok := platform.ServiceAs[userChecker](m.env.Services, "identity")
	if !ok {
		// Identity not loaded; skip validation rather than block policy
		// administration.
		return nil
	}
	exists, err := checker.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return nil
}

func (m *AccessControlModule) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	var override platform.AccessOverride
	if err := json.NewDecoder(r.Body).Decode(&override); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if override.UserID == "" || override.ModuleID == "" {
		http.Error(w, "userId and moduleId are required", http.StatusBadRequest)
		return
	}
	if err := m.checkUser(r.Context(), override.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := m.store.SetOverride(r.Context(), override); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m.env.Bus.Emit(r.Context(), platform.NewPlatformEvent(EventTypeOverrideSet, ModuleID,
		override, nil))
	writeJSON(w, http.StatusOK, override)
}

func (m *AccessControlModule) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	overrides, err := m.store.ListOverrides(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, overrides)
}

func (m *AccessControlModule) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	userID, moduleID := chi.URLParam(r, "userID"), chi.URLParam(r, "moduleID")
	if err := m.store.ClearOverride(r.Context(), userID, moduleID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m.env.Bus.Emit(r.Context(), platform.NewPlatformEvent(EventTypeOverrideCleared, ModuleID,
		map[string]string{"user": userID, "module": moduleID}, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (m *AccessControlModule) handleSetPermission(w http.ResponseWriter, r *http.Request) {
	var perm platform.RolePermission
	if err := json.NewDecoder(r.Body).Decode(&perm); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if perm.ModuleID == "" || perm.Role == "" {
		http.Error(w, "moduleId and role are required", http.StatusBadRequest)
		return
	}
	if err := m.store.SetRolePermission(r.Context(), perm); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m.env.Bus.Emit(r.Context(), platform.NewPlatformEvent(EventTypePermissionSet, ModuleID,
		perm, nil))
	writeJSON(w, http.StatusOK, perm)
}

func (m *AccessControlModule) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := m.store.ListRolePermissions(r.Context(), chi.URLParam(r, "moduleID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

func (m *AccessControlModule) handleClearPermission(w http.ResponseWriter, r *http.Request) {
	moduleID, role := chi.URLParam(r, "moduleID"), chi.URLParam(r, "role")
	if err := m.store.ClearRolePermission(r.Context(), moduleID, role); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m.env.Bus.Emit(r.Context(), platform.NewPlatformEvent(EventTypePermissionCleared, ModuleID,
		map[string]string{"module": moduleID, "role": role}, nil))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
