package platform

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// DefaultHookTimeout bounds every lifecycle hook invocation so one stuck
// module cannot stall a health sweep or shutdown indefinitely.
const DefaultHookTimeout = 10 * time.Second

// registeredModule is the mutable runtime record wrapping one descriptor.
// The Runtime is its sole mutator; no other component writes loaded,
// healthy or enabled.
type registeredModule struct {
	def             Definition
	enabled         bool
	loaded          bool
	healthy         bool
	lastHealthCheck time.Time
	lastErr         string
	instance        Module
	handle          any
	routes          []Route
	mounted         bool

	// loadMu serializes load attempts for this record so concurrent
	// dependents inside LoadAll cannot bootstrap it twice.
	loadMu sync.Mutex
}

// RuntimeOption configures a Runtime at construction time.
type RuntimeOption func(*Runtime)

// WithRouter attaches the HTTP router module route tables are mounted on.
// Without a router the runtime skips mounting and Enable does not
// re-trigger loads.
func WithRouter(router Router) RuntimeOption {
	return func(r *Runtime) { r.router = router }
}

// WithHookTimeout overrides DefaultHookTimeout for every lifecycle hook
// invocation, bootstrap included.
func WithHookTimeout(d time.Duration) RuntimeOption {
	return func(r *Runtime) {
		if d > 0 {
			r.hookTimeout = d
		}
	}
}

// WithModuleSettings seeds operator intent per module ID: false disables a
// module before first load. Core modules ignore a false setting.
func WithModuleSettings(enabled map[string]bool) RuntimeOption {
	return func(r *Runtime) {
		for id, on := range enabled {
			r.settings[id] = on
		}
	}
}

// WithRoleExtractor installs the function the role middleware uses to
// read the requesting principal's role. Required for descriptors that set
// MinimumRole.
func WithRoleExtractor(extract RoleExtractor) RuntimeOption {
	return func(r *Runtime) { r.roleExtractor = extract }
}

// Runtime discovers module definitions, loads them in dependency order,
// drives their lifecycle hooks, aggregates health and supports runtime
// enable/disable. A single Runtime owns its module records exclusively.
//
// Load, Enable, Disable, LoadAll, StopAll and Shutdown may be invoked
// concurrently by different external requests; they serialize on an
// internal operations mutex, while status reads and health sweeps only
// take the record lock.
type Runtime struct {
	logger        Logger
	bus           *Bus
	services      *ServiceRegistry
	router        Router
	roleExtractor RoleExtractor
	hookTimeout   time.Duration
	settings      map[string]bool
	env           *Environment

	// opMu serializes mutating operations; mu guards the maps below for
	// readers so hooks may query status without deadlocking.
	opMu    sync.Mutex
	mu      sync.RWMutex
	defs    []Definition
	modules map[string]*registeredModule
}

// NewRuntime constructs a runtime wired to the given logger, bus and
// service registry. Definitions are added with Register and materialized
// by Discover.
func NewRuntime(logger Logger, bus *Bus, services *ServiceRegistry, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		logger:      logger,
		bus:         bus,
		services:    services,
		hookTimeout: DefaultHookTimeout,
		settings:    make(map[string]bool),
		modules:     make(map[string]*registeredModule),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.env = &Environment{Logger: logger, Bus: bus, Services: services}
	return r
}

// Register adds a module definition to the discovery set. Call before
// Discover; registering the same ID twice is caught at discovery time.
func (r *Runtime) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = append(r.defs, def)
}

// Discover resolves every registered definition into a runtime record.
// A definition that fails validation, or that duplicates an already
// discovered ID, is logged and skipped; discovery of the remaining
// modules continues. Returns the number of modules discovered in this
// pass.
func (r *Runtime) Discover() int {
	r.mu.Lock()
	pending := r.defs
	r.defs = nil
	r.mu.Unlock()

	discovered := 0
	for _, def := range pending {
		desc := def.Descriptor
		if err := desc.Validate(); err != nil {
			r.logger.Error("Skipping module with invalid descriptor", "module", desc.ID, "error", err)
			continue
		}
		if def.Bootstrap == nil {
			r.logger.Error("Skipping module without bootstrap", "module", desc.ID)
			continue
		}

		r.mu.Lock()
		if _, exists := r.modules[desc.ID]; exists {
			r.mu.Unlock()
			r.logger.Error("Skipping duplicate module", "module", desc.ID, "error", ErrDuplicateModule)
			continue
		}
		enabled := true
		if setting, ok := r.settings[desc.ID]; ok {
			enabled = setting
		}
		if desc.Core {
			enabled = true
		}
		r.modules[desc.ID] = &registeredModule{def: def, enabled: enabled}
		r.mu.Unlock()

		discovered++
		r.logger.Debug("Module discovered", "module", desc.ID, "version", desc.Version, "enabled", enabled)
		r.bus.Emit(context.Background(), NewPlatformEvent(
			EventTypeModuleDiscovered, EventSourceRuntime,
			map[string]any{"module": desc.ID, "version": desc.Version, "enabled": enabled}, nil))
	}
	return discovered
}

// Load loads one module, recursively loading any enabled-but-unloaded
// dependency first. It is idempotent: loading an already loaded module
// returns nil immediately. A missing or disabled dependency fails this
// module only.
func (r *Runtime) Load(ctx context.Context, id string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.loadOne(ctx, id, make(map[string]bool))
}

// loadOne performs the load of a single record. visiting carries the DFS
// path for cycle detection on the direct Load path; LoadAll excludes
// cycles up front via topoLevels.
func (r *Runtime) loadOne(ctx context.Context, id string, visiting map[string]bool) error {
	r.mu.RLock()
	rec, ok := r.modules[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}

	if visiting[id] {
		return fmt.Errorf("%w: via %s", ErrCircularDependency, id)
	}
	visiting[id] = true
	defer delete(visiting, id)

	rec.loadMu.Lock()
	defer rec.loadMu.Unlock()

	r.mu.RLock()
	loaded, enabled := rec.loaded, rec.enabled
	deps := rec.def.Descriptor.Dependencies
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	if !enabled {
		return fmt.Errorf("%w: %s", ErrModuleDisabled, id)
	}

	for _, dep := range deps {
		r.mu.RLock()
		depRec, known := r.modules[dep]
		depEnabled := known && depRec.enabled
		r.mu.RUnlock()
		if !known {
			return r.failLoad(ctx, rec, fmt.Errorf("%w: %s depends on %s", ErrDependencyMissing, id, dep))
		}
		if !depEnabled {
			return r.failLoad(ctx, rec, fmt.Errorf("%w: %s depends on %s", ErrDependencyDisabled, id, dep))
		}
		if err := r.loadOne(ctx, dep, visiting); err != nil {
			return r.failLoad(ctx, rec, fmt.Errorf("%w: %s requires %s: %s", ErrDependencyFailed, id, dep, err))
		}
	}

	var instance Module
	err := r.callHook(ctx, "bootstrap", id, func(hctx context.Context) error {
		inst, berr := rec.def.Bootstrap(hctx, r.env)
		if berr != nil {
			return berr
		}
		if inst == nil {
			return ErrBootstrapNil
		}
		instance = inst
		return nil
	})
	if err != nil {
		return r.failLoad(ctx, rec, fmt.Errorf("%w: %s", ErrBootstrapFailed, err))
	}

	handle := any(instance)
	if hp, ok := instance.(HandleProvider); ok {
		handle = hp.ServiceHandle()
	}
	r.services.Register(id, handle)

	var routes []Route
	if rp, ok := instance.(RouteProvider); ok {
		routes = rp.Routes()
	}
	r.mountRoutes(rec, routes)

	if err := r.callHook(ctx, "init", id, instance.Init); err != nil {
		r.services.Unregister(id)
		return r.failLoad(ctx, rec, err)
	}

	r.mu.Lock()
	rec.instance = instance
	rec.handle = handle
	rec.routes = routes
	rec.loaded = true
	rec.healthy = true
	rec.lastErr = ""
	r.mu.Unlock()

	r.logger.Info("Module loaded", "module", id, "version", rec.def.Descriptor.Version)
	r.bus.Emit(ctx, NewPlatformEvent(EventTypeModuleLoaded, EventSourceRuntime,
		map[string]string{"module": id}, nil))
	return nil
}

// failLoad records a load failure on the record without affecting sibling
// modules, and returns err for the caller's report.
func (r *Runtime) failLoad(ctx context.Context, rec *registeredModule, err error) error {
	id := rec.def.Descriptor.ID
	r.mu.Lock()
	rec.loaded = false
	rec.healthy = false
	rec.lastErr = err.Error()
	r.mu.Unlock()

	r.logger.Error("Module load failed", "module", id, "error", err)
	r.bus.Emit(ctx, NewPlatformEvent(EventTypeModuleLoadFailed, EventSourceRuntime,
		map[string]string{"module": id, "error": err.Error()}, nil))
	return err
}

// mountRoutes mounts the module's route table under its API prefix. Chi
// cannot unmount, so handlers are wrapped with an availability guard that
// returns 503 while the module is not loaded, and routes are mounted only
// once per record even across disable/enable cycles.
func (r *Runtime) mountRoutes(rec *registeredModule, routes []Route) {
	if r.router == nil || len(routes) == 0 {
		return
	}
	r.mu.Lock()
	if rec.mounted {
		r.mu.Unlock()
		return
	}
	rec.mounted = true
	r.mu.Unlock()

	desc := rec.def.Descriptor
	prefix := desc.APIPrefix
	if prefix == "" {
		prefix = "/api/" + desc.ID
	}

	sub := chi.NewRouter()
	if desc.MinimumRole != "" {
		extract := r.roleExtractor
		if extract == nil {
			// No way to establish a caller's role, so the gate denies
			// everything rather than serving a privileged tree open.
			r.logger.Warn("No role extractor configured; rejecting all requests to role-gated module",
				"module", desc.ID, "minimumRole", desc.MinimumRole)
			extract = func(*http.Request) string { return "" }
		}
		sub.Use(RequireRole(desc.MinimumRole, extract))
	}
	for _, route := range routes {
		sub.MethodFunc(route.Method, route.Pattern, r.guardHandler(rec, route.Handler))
	}
	r.router.Mount(prefix, sub)
	r.logger.Debug("Module routes mounted", "module", desc.ID, "prefix", prefix, "routes", len(routes))
}

func (r *Runtime) guardHandler(rec *registeredModule, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.mu.RLock()
		available := rec.loaded
		r.mu.RUnlock()
		if !available {
			http.Error(w, "module unavailable", http.StatusServiceUnavailable)
			return
		}
		next(w, req)
	}
}

// Enable marks a module as operator-enabled. Enabling an already loaded
// module is a no-op. When a router is attached, enabling re-triggers the
// load path so the module comes back up immediately.
func (r *Runtime) Enable(ctx context.Context, id string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	rec, ok := r.modules[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	if rec.enabled && rec.loaded {
		r.mu.Unlock()
		return nil
	}
	rec.enabled = true
	r.mu.Unlock()

	r.logger.Info("Module enabled", "module", id)
	r.bus.Emit(ctx, NewPlatformEvent(EventTypeModuleEnabled, EventSourceRuntime,
		map[string]string{"module": id}, nil))

	if r.router != nil {
		return r.loadOne(ctx, id, make(map[string]bool))
	}
	return nil
}

// Disable stops and unloads a module. Core modules refuse with
// ErrCoreModuleDisable and keep their state unchanged. Stop errors are
// logged, not returned; the module still transitions to disabled.
func (r *Runtime) Disable(ctx context.Context, id string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.RLock()
	rec, ok := r.modules[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	if rec.def.Descriptor.Core {
		return fmt.Errorf("%w: %s", ErrCoreModuleDisable, id)
	}

	r.mu.RLock()
	instance, loaded := rec.instance, rec.loaded
	r.mu.RUnlock()
	if loaded {
		if stoppable, ok := instance.(Stoppable); ok {
			if err := r.callHook(ctx, "stop", id, stoppable.Stop); err != nil {
				r.logger.Error("Module stop failed during disable", "module", id, "error", err)
			}
		}
		r.services.Unregister(id)
	}

	r.mu.Lock()
	rec.loaded = false
	rec.healthy = false
	rec.enabled = false
	rec.instance = nil
	rec.handle = nil
	r.mu.Unlock()

	r.logger.Info("Module disabled", "module", id)
	r.bus.Emit(ctx, NewPlatformEvent(EventTypeModuleDisabled, EventSourceRuntime,
		map[string]string{"module": id}, nil))
	return nil
}

// Status returns the per-module runtime state snapshot.
func (r *Runtime) Status() map[string]ModuleStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ModuleStatus, len(r.modules))
	for id, rec := range r.modules {
		out[id] = ModuleStatus{
			Enabled:         rec.enabled,
			Loaded:          rec.loaded,
			Healthy:         rec.healthy,
			LastHealthCheck: rec.lastHealthCheck,
			LastError:       rec.lastErr,
		}
	}
	return out
}

// ModuleState returns the state of one module and whether it is known.
func (r *Runtime) ModuleState(id string) (ModuleStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.modules[id]
	if !ok {
		return ModuleStatus{}, false
	}
	return ModuleStatus{
		Enabled:         rec.enabled,
		Loaded:          rec.loaded,
		Healthy:         rec.healthy,
		LastHealthCheck: rec.lastHealthCheck,
		LastError:       rec.lastErr,
	}, true
}

// ModuleIDs returns the IDs of all discovered modules, sorted.
func (r *Runtime) ModuleIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Descriptor returns the descriptor of a discovered module.
func (r *Runtime) Descriptor(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.modules[id]
	if !ok {
		return Descriptor{}, false
	}
	return rec.def.Descriptor, true
}
