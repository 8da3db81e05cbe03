// Package audit records every event crossing the platform bus into a
// bounded in-memory trail that operators can query over HTTP. It uses the
// bus's explicit subscribe-all API, so new event types show up in the
// trail without any registration step.
package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stackward/platform"
)

// ModuleID is the identifier the module registers under.
const ModuleID = "audit"

// DefaultTrailSize bounds the in-memory trail.
const DefaultTrailSize = 512

// Entry is one recorded event. Actor is the display name of the acting
// user when the event payload names one, falling back to the raw user ID.
type Entry struct {
	Time   time.Time `json:"time"`
	Type   string    `json:"type"`
	Source string    `json:"source"`
	ID     string    `json:"id"`
	Actor  string    `json:"actor,omitempty"`
}

// actorNamer is the slice of the identity directory used to resolve an
// acting user's ID into a display name. Satisfied structurally by the
// identity module's registered handle, so there is no compile-time
// dependency on that package.
type actorNamer interface {
	UserName(ctx context.Context, userID string) (string, error)
}

// Trail is the exported service surface.
type Trail interface {
	Recent(limit int) []Entry
}

// AuditModule subscribes to all bus events and keeps the bounded trail.
type AuditModule struct {
	env      *platform.Environment
	capacity int
	sub      *platform.Subscription
	mu       sync.RWMutex
	entries  []Entry
}

// Definition returns the module definition for registration with the
// runtime.
func Definition() platform.Definition {
	return platform.Definition{
		Descriptor: platform.Descriptor{
			ID:               ModuleID,
			Name:             "Audit Trail",
			Version:          "0.9.0",
			APIPrefix:        "/api/audit",
			StorageNamespace: "audit_",
			Dependencies:     []string{"identity"},
			MinimumRole:      platform.RoleOperator,
			Capabilities: []platform.Capability{
				{
					Name:        "event-trail",
					Description: "Bounded trail of all platform events",
					Endpoints:   []string{"/events"},
				},
			},
		},
		Bootstrap: func(ctx context.Context, env *platform.Environment) (platform.Module, error) {
			return &AuditModule{env: env, capacity: DefaultTrailSize}, nil
		},
	}
}

// Init subscribes to every event type.
func (m *AuditModule) Init(ctx context.Context) error {
	m.sub = m.env.Bus.OnAll(m.record)
	return nil
}

// Stop cancels the subscription; the trail stays readable until destroy.
func (m *AuditModule) Stop(ctx context.Context) error {
	if m.sub != nil {
		m.sub.Cancel()
		m.sub = nil
	}
	return nil
}

func (m *AuditModule) record(ctx context.Context, event cloudevents.Event) error {
	entry := Entry{
		Time:   event.Time(),
		Type:   event.Type(),
		Source: event.Source(),
		ID:     event.ID(),
	}
	if actor := actorFromData(event.Data()); actor != "" {
		entry.Actor = m.resolveActor(ctx, actor)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	if len(m.entries) > m.capacity {
		m.entries = m.entries[len(m.entries)-m.capacity:]
	}
	return nil
}

// actorFromData pulls the acting user ID out of the event payload, when
// the emitting module included one.
func actorFromData(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var payload struct {
		User string `json:"user"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.User
}

// resolveActor maps a user ID to its display name through the identity
// directory. The raw ID stands in when identity is unavailable or the
// user is unknown.
func (m *AuditModule) resolveActor(ctx context.Context, userID string) string {
	namer, ok := platform.ServiceAs[actorNamer](m.env.Services, "identity")
	if !ok {
		return userID
	}
	name, err := namer.UserName(ctx, userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}

// ServiceHandle registers the Trail view.
func (m *AuditModule) ServiceHandle() any {
	return Trail(m)
}

// Recent returns up to limit entries, newest first. limit <= 0 returns
// the whole trail.
func (m *AuditModule) Recent(limit int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[i])
	}
	return out
}

// Routes returns the module's HTTP route table.
func (m *AuditModule) Routes() []platform.Route {
	return []platform.Route{
		{Method: http.MethodGet, Pattern: "/events", Handler: m.handleEvents},
	}
}

func (m *AuditModule) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Recent(limit))
}
