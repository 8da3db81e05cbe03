package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stackward/platform"
)

// IdentityModule wires the directory service into the platform runtime.
type IdentityModule struct {
	env     *platform.Environment
	store   UserStore
	service *Service
}

// Definition returns the module definition for registration with the
// runtime.
func Definition() platform.Definition {
	return platform.Definition{
		Descriptor: platform.Descriptor{
			ID:               ModuleID,
			Name:             "Identity",
			Version:          "1.4.0",
			APIPrefix:        "/api/identity",
			StorageNamespace: "identity_",
			MinimumRole:      platform.RoleOperator,
			Core:             true,
			Capabilities: []platform.Capability{
				{
					Name:        "user-directory",
					Description: "Create, query and delete platform users and their roles",
					Endpoints:   []string{"/users", "/users/{id}"},
				},
			},
		},
		Bootstrap: func(ctx context.Context, env *platform.Environment) (platform.Module, error) {
			return &IdentityModule{env: env, store: NewMemoryUserStore()}, nil
		},
	}
}

// Init builds the directory service and seeds the initial admin account
// when the store is empty, so a fresh installation is never locked out.
func (m *IdentityModule) Init(ctx context.Context) error {
	m.service = NewService(m.store, m.env.Bus, m.env.Logger)

	users, err := m.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		admin := &User{
			ID:    "admin",
			Email: "admin@localhost",
			Name:  "Administrator",
			Role:  platform.RoleAdmin,
		}
		if err := m.store.CreateUser(ctx, admin); err != nil {
			return err
		}
		m.env.Logger.Info("Seeded initial admin user", "user", admin.ID)
	}
	return nil
}

// HealthCheck verifies the store answers.
func (m *IdentityModule) HealthCheck(ctx context.Context) error {
	_, err := m.store.ListUsers(ctx)
	return err
}

// ServiceHandle registers the Directory as this module's service handle.
func (m *IdentityModule) ServiceHandle() any {
	return Directory(m.service)
}

// Routes returns the module's HTTP route table, mounted by the runtime
// under the descriptor's API prefix.
func (m *IdentityModule) Routes() []platform.Route {
	return []platform.Route{
		{Method: http.MethodGet, Pattern: "/users", Handler: m.handleListUsers},
		{Method: http.MethodPost, Pattern: "/users", Handler: m.handleCreateUser},
		{Method: http.MethodGet, Pattern: "/users/{id}", Handler: m.handleGetUser},
		{Method: http.MethodDelete, Pattern: "/users/{id}", Handler: m.handleDeleteUser},
	}
}

func (m *IdentityModule) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := m.service.ListUsers(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (m *IdentityModule) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var user User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := m.service.CreateUser(r.Context(), &user); err != nil {
		switch {
		case errors.Is(err, ErrUserAlreadyExists):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ErrInvalidUser):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (m *IdentityModule) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := m.service.User(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (m *IdentityModule) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := m.service.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
