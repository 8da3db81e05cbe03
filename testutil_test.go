package platform

import (
	"context"
	"sync"
	"time"
)

// testLogger discards output; tests assert on behavior, not log text.
type testLogger struct{}

func (testLogger) Info(msg string, args ...any)  {}
func (testLogger) Error(msg string, args ...any) {}
func (testLogger) Warn(msg string, args ...any)  {}
func (testLogger) Debug(msg string, args ...any) {}

func newTestRuntime(opts ...RuntimeOption) (*Runtime, *Bus, *ServiceRegistry) {
	logger := testLogger{}
	bus := NewBus(16, logger)
	services := NewServiceRegistry(bus, logger)
	return NewRuntime(logger, bus, services, opts...), bus, services
}

// testModule implements every lifecycle interface with behavior driven by
// its fields, so one type covers most runtime scenarios.
type testModule struct {
	mu        sync.Mutex
	initCount int
	started   bool
	stopped   bool
	destroyed bool

	initErr     error
	initPanic   bool
	initDelay   time.Duration
	startErr    error
	stopErr     error
	healthErr   error
	healthDelay time.Duration

	routes []Route
	handle any
}

func (m *testModule) Init(ctx context.Context) error {
	if m.initPanic {
		panic("init blew up")
	}
	if m.initDelay > 0 {
		// Deliberately ignores ctx so timeout tests hit the hook deadline.
		time.Sleep(m.initDelay)
	}
	m.mu.Lock()
	m.initCount++
	m.mu.Unlock()
	return m.initErr
}

func (m *testModule) Start(ctx context.Context) error {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	return m.startErr
}

func (m *testModule) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	return m.stopErr
}

func (m *testModule) Destroy(ctx context.Context) error {
	m.mu.Lock()
	m.destroyed = true
	m.mu.Unlock()
	return nil
}

func (m *testModule) HealthCheck(ctx context.Context) error {
	if m.healthDelay > 0 {
		time.Sleep(m.healthDelay)
	}
	return m.healthErr
}

func (m *testModule) Routes() []Route { return m.routes }

func (m *testModule) ServiceHandle() any {
	if m.handle != nil {
		return m.handle
	}
	return m
}

func (m *testModule) inits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initCount
}

func (m *testModule) wasStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *testModule) wasStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// plainModule implements only Init; no optional interfaces. Used to test
// default behavior for absent hooks.
type plainModule struct{}

func (plainModule) Init(ctx context.Context) error { return nil }

// testDef builds a definition whose bootstrap returns mod.
func testDef(id string, deps []string, mod Module) Definition {
	return Definition{
		Descriptor: Descriptor{
			ID:           id,
			Name:         id,
			Version:      "1.0.0",
			Dependencies: deps,
		},
		Bootstrap: func(ctx context.Context, env *Environment) (Module, error) {
			return mod, nil
		},
	}
}

// coreDef builds a core-flagged definition.
func coreDef(id string, mod Module) Definition {
	def := testDef(id, nil, mod)
	def.Descriptor.Core = true
	return def
}
