// Package settings provides the core admin-settings module: a small
// key/value store of operator-facing configuration with change
// notification on the event bus. It is a core module and can never be
// disabled.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/stackward/platform"
)

// ModuleID is the identifier the module registers under.
const ModuleID = "settings"

// ErrSettingNotFound is returned for unknown keys.
var ErrSettingNotFound = errors.New("setting not found")

// EventTypeSettingChanged is emitted on every write.
const EventTypeSettingChanged = "com.stackward.platform.settings.changed"

// Setting is one key/value pair.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Store is the exported service surface.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	List(ctx context.Context) ([]Setting, error)
}

// SettingsModule holds the in-memory settings store.
type SettingsModule struct {
	env    *platform.Environment
	mu     sync.RWMutex
	values map[string]string
}

// Definition returns the module definition for registration with the
// runtime.
func Definition() platform.Definition {
	return platform.Definition{
		Descriptor: platform.Descriptor{
			ID:               ModuleID,
			Name:             "Admin Settings",
			Version:          "1.1.0",
			APIPrefix:        "/api/settings",
			StorageNamespace: "settings_",
			MinimumRole:      platform.RoleAdmin,
			Core:             true,
			Capabilities: []platform.Capability{
				{
					Name:        "admin-settings",
					Description: "Operator-facing platform configuration",
					Endpoints:   []string{"/", "/{key}"},
				},
			},
		},
		Bootstrap: func(ctx context.Context, env *platform.Environment) (platform.Module, error) {
			return &SettingsModule{env: env, values: make(map[string]string)}, nil
		},
	}
}

func (m *SettingsModule) Init(ctx context.Context) error {
	return nil
}

// ServiceHandle registers the Store as the module's service handle.
func (m *SettingsModule) ServiceHandle() any {
	return Store(m)
}

// Get returns the value for key.
func (m *SettingsModule) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return "", ErrSettingNotFound
	}
	return value, nil
}

// Set writes key and announces the change.
func (m *SettingsModule) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()

	m.env.Bus.Emit(ctx, platform.NewPlatformEvent(EventTypeSettingChanged, ModuleID,
		Setting{Key: key, Value: value}, nil))
	return nil
}

// List returns all settings sorted by key.
func (m *SettingsModule) List(ctx context.Context) ([]Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Setting, 0, len(m.values))
	for key, value := range m.values {
		out = append(out, Setting{Key: key, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Routes returns the module's HTTP route table.
func (m *SettingsModule) Routes() []platform.Route {
	return []platform.Route{
		{Method: http.MethodGet, Pattern: "/", Handler: m.handleList},
		{Method: http.MethodGet, Pattern: "/{key}", Handler: m.handleGet},
		{Method: http.MethodPut, Pattern: "/{key}", Handler: m.handleSet},
	}
}

func (m *SettingsModule) handleList(w http.ResponseWriter, r *http.Request) {
	settings, _ := m.List(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(settings)
}

func (m *SettingsModule) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := m.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Setting{Key: key, Value: value})
}

func (m *SettingsModule) handleSet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	key := chi.URLParam(r, "key")
	_ = m.Set(r.Context(), key, body.Value)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Setting{Key: key, Value: body.Value})
}
