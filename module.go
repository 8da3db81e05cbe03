// Package platform provides the module runtime for the stackward admin
// platform. The backend is organized as independently loadable modules
// (user management, admin settings, add-ons) and this package contains the
// machinery that ties them together: descriptor discovery, dependency-ordered
// loading, lifecycle management, health aggregation, a service registry for
// cross-module calls, a bounded-history event bus for decoupled notification,
// and the layered access-control resolver every module consults before
// serving a request.
//
// Basic usage:
//
//	bus := platform.NewBus(256, logger)
//	services := platform.NewServiceRegistry(bus, logger)
//	rt := platform.NewRuntime(logger, bus, services,
//		platform.WithRouter(platform.NewChiRouter()))
//	rt.Register(identity.Definition())
//	rt.Register(settings.Definition())
//	rt.Discover()
//	report := rt.LoadAll(ctx)
package platform

import (
	"context"
	"net/http"
)

// Module is the live instance a bootstrap procedure returns. Init is the
// only mandatory lifecycle hook; everything else is declared through the
// optional capability interfaces below, in the same way a module opts into
// routes or a service handle.
type Module interface {
	// Init prepares the module for use. It is called exactly once per
	// successful load, after the module's dependencies are loaded and its
	// service handle has been registered. Returning an error fails the
	// load and leaves sibling modules untouched.
	Init(ctx context.Context) error
}

// Startable is implemented by modules that need a startup phase after the
// whole batch has loaded. Start is invoked by LoadAll once every enabled
// module has had its load attempt.
type Startable interface {
	Start(ctx context.Context) error
}

// Stoppable is implemented by modules that hold resources needing release
// on disable or shutdown. Stop errors are logged, never propagated.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// HealthReporter is implemented by modules that can assess their own
// health. A module without this interface is treated as healthy while
// loaded. A returned error (or a panic) marks the module unhealthy for
// that sweep only.
type HealthReporter interface {
	HealthCheck(ctx context.Context) error
}

// Destroyable is implemented by modules that need a final teardown beyond
// Stop, invoked once during process shutdown.
type Destroyable interface {
	Destroy(ctx context.Context) error
}

// RouteProvider is implemented by modules that expose HTTP endpoints. The
// runtime mounts the returned routes under the descriptor's APIPrefix on
// the configured router.
type RouteProvider interface {
	Routes() []Route
}

// HandleProvider lets a module choose the value registered as its service
// handle. Without it, the module instance itself is registered.
type HandleProvider interface {
	ServiceHandle() any
}

// Route is one HTTP endpoint in a module's route table. Pattern is
// relative to the module's APIPrefix and uses chi syntax ("/users/{id}").
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Environment is the explicit context handed to every bootstrap procedure.
// It is constructed once at process start and injected; there are no
// package-level singletons to reach for.
type Environment struct {
	Logger   Logger
	Bus      *Bus
	Services *ServiceRegistry
}

// Bootstrap builds a module's live instance. It runs under the runtime's
// hook timeout; a panic or error marks the module load as failed without
// affecting other modules.
type Bootstrap func(ctx context.Context, env *Environment) (Module, error)

// Definition pairs an immutable descriptor with the bootstrap that brings
// the module to life. Definitions are registered explicitly at startup,
// keyed by descriptor ID; there is no runtime string-to-code lookup.
type Definition struct {
	Descriptor Descriptor
	Bootstrap  Bootstrap
}
