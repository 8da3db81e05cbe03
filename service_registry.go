package platform

import (
	"context"
	"sync"
)

// ServiceRegistry maps module IDs to the opaque service handle each module
// registers at load time. It exists so one module can call into another's
// exported operations (the access-control module asking identity for a
// user's role) without a compile-time import cycle.
//
// The runtime keeps the registry consistent with load state: a handle is
// registered when its module loads and unregistered when the module is
// disabled or stopped, so the registry never holds an entry for a module
// that is not currently loaded.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
	bus      *Bus
	logger   Logger
}

// NewServiceRegistry creates an empty registry. Registration changes are
// announced on bus.
func NewServiceRegistry(bus *Bus, logger Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]any),
		bus:      bus,
		logger:   logger,
	}
}

// Register stores handle under moduleID, overwriting any prior entry, and
// emits a service.registered event.
func (r *ServiceRegistry) Register(moduleID string, handle any) {
	r.mu.Lock()
	r.services[moduleID] = handle
	r.mu.Unlock()

	r.logger.Debug("Service handle registered", "module", moduleID)
	r.bus.Emit(context.Background(), NewPlatformEvent(
		EventTypeServiceRegistered, EventSourceRuntime,
		map[string]string{"module": moduleID}, nil))
}

// Get returns the handle registered for moduleID, if any.
func (r *ServiceRegistry) Get(moduleID string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.services[moduleID]
	return handle, ok
}

// Unregister removes the entry for moduleID and emits a
// service.unregistered event. Removing an absent entry is a no-op.
func (r *ServiceRegistry) Unregister(moduleID string) {
	r.mu.Lock()
	_, existed := r.services[moduleID]
	delete(r.services, moduleID)
	r.mu.Unlock()

	if !existed {
		return
	}
	r.logger.Debug("Service handle unregistered", "module", moduleID)
	r.bus.Emit(context.Background(), NewPlatformEvent(
		EventTypeServiceUnregistered, EventSourceRuntime,
		map[string]string{"module": moduleID}, nil))
}

// Clear removes every entry without emitting per-module events. Used
// during shutdown.
func (r *ServiceRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = make(map[string]any)
}

// ServiceAs retrieves a module's handle and asserts it to T.
//
//	dir, ok := platform.ServiceAs[identity.Directory](services, "identity")
func ServiceAs[T any](r *ServiceRegistry, moduleID string) (T, bool) {
	var zero T
	handle, ok := r.Get(moduleID)
	if !ok {
		return zero, false
	}
	typed, ok := handle.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
