package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverSkipsInvalidAndDuplicate(t *testing.T) {
	rt, _, _ := newTestRuntime()

	rt.Register(testDef("users", nil, &testModule{}))
	rt.Register(testDef("users", nil, &testModule{})) // duplicate
	rt.Register(Definition{Descriptor: Descriptor{ID: ""}, Bootstrap: nil})
	rt.Register(Definition{
		Descriptor: Descriptor{ID: "nobootstrap", Name: "No Bootstrap", Version: "1.0.0"},
	})

	discovered := rt.Discover()
	assert.Equal(t, 1, discovered)
	assert.Equal(t, []string{"users"}, rt.ModuleIDs())
}

func TestDiscoverHonorsModuleSettings(t *testing.T) {
	rt, _, _ := newTestRuntime(WithModuleSettings(map[string]bool{
		"reports": false,
		"core":    false, // ignored for core modules
	}))
	rt.Register(testDef("reports", nil, &testModule{}))
	rt.Register(coreDef("core", &testModule{}))
	rt.Discover()

	state, ok := rt.ModuleState("reports")
	require.True(t, ok)
	assert.False(t, state.Enabled)

	state, ok = rt.ModuleState("core")
	require.True(t, ok)
	assert.True(t, state.Enabled, "core modules cannot start disabled")
}

func TestLoadIsIdempotent(t *testing.T) {
	rt, _, _ := newTestRuntime()
	mod := &testModule{}
	rt.Register(testDef("users", nil, mod))
	rt.Discover()

	require.NoError(t, rt.Load(context.Background(), "users"))
	require.NoError(t, rt.Load(context.Background(), "users"))
	assert.Equal(t, 1, mod.inits())
}

func TestLoadUnknownModule(t *testing.T) {
	rt, _, _ := newTestRuntime()
	err := rt.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestLoadPullsInDependencies(t *testing.T) {
	rt, _, _ := newTestRuntime()
	users := &testModule{}
	reports := &testModule{}
	rt.Register(testDef("users", nil, users))
	rt.Register(testDef("reports", []string{"users"}, reports))
	rt.Discover()

	require.NoError(t, rt.Load(context.Background(), "reports"))

	state, _ := rt.ModuleState("users")
	assert.True(t, state.Loaded, "dependency must be loaded first")
	state, _ = rt.ModuleState("reports")
	assert.True(t, state.Loaded)
}

func TestLoadFailsOnMissingDependency(t *testing.T) {
	rt, _, _ := newTestRuntime()
	rt.Register(testDef("reports", []string{"users"}, &testModule{}))
	rt.Discover()

	err := rt.Load(context.Background(), "reports")
	require.ErrorIs(t, err, ErrDependencyMissing)

	state, _ := rt.ModuleState("reports")
	assert.False(t, state.Loaded)
	assert.NotEmpty(t, state.LastError)
}

func TestLoadFailsOnDisabledDependency(t *testing.T) {
	rt, _, _ := newTestRuntime(WithModuleSettings(map[string]bool{"users": false}))
	rt.Register(testDef("users", nil, &testModule{}))
	rt.Register(testDef("reports", []string{"users"}, &testModule{}))
	rt.Discover()

	err := rt.Load(context.Background(), "reports")
	require.ErrorIs(t, err, ErrDependencyDisabled)

	// The disabled dependency is untouched.
	state, _ := rt.ModuleState("users")
	assert.False(t, state.Loaded)
	assert.False(t, state.Enabled)
}

func TestLoadNeverCompletesUnlessDependencyLoaded(t *testing.T) {
	// A depends on B; B's bootstrap fails, so A must not end up loaded.
	rt, _, _ := newTestRuntime()
	rt.Register(Definition{
		Descriptor: Descriptor{ID: "b", Name: "b", Version: "1.0.0"},
		Bootstrap: func(ctx context.Context, env *Environment) (Module, error) {
			return nil, errors.New("bootstrap exploded")
		},
	})
	rt.Register(testDef("a", []string{"b"}, &testModule{}))
	rt.Discover()

	err := rt.Load(context.Background(), "a")
	require.ErrorIs(t, err, ErrDependencyFailed)

	state, _ := rt.ModuleState("a")
	assert.False(t, state.Loaded)
	state, _ = rt.ModuleState("b")
	assert.False(t, state.Loaded)
}

func TestLoadDisabledModule(t *testing.T) {
	rt, _, _ := newTestRuntime(WithModuleSettings(map[string]bool{"users": false}))
	rt.Register(testDef("users", nil, &testModule{}))
	rt.Discover()

	err := rt.Load(context.Background(), "users")
	assert.ErrorIs(t, err, ErrModuleDisabled)
}

func TestLoadRegistersServiceHandle(t *testing.T) {
	rt, _, services := newTestRuntime()
	mod := &testModule{handle: "the-handle"}
	rt.Register(testDef("users", nil, mod))
	rt.Discover()

	require.NoError(t, rt.Load(context.Background(), "users"))

	handle, ok := services.Get("users")
	require.True(t, ok)
	assert.Equal(t, "the-handle", handle)
}

func TestFailedInitUnregistersHandle(t *testing.T) {
	// The service registry must never hold an entry for an unloaded
	// module, including after a failed init.
	rt, _, services := newTestRuntime()
	mod := &testModule{initErr: errors.New("init exploded")}
	rt.Register(testDef("users", nil, mod))
	rt.Discover()

	err := rt.Load(context.Background(), "users")
	require.Error(t, err)

	_, ok := services.Get("users")
	assert.False(t, ok)
	state, _ := rt.ModuleState("users")
	assert.False(t, state.Loaded)
	assert.Contains(t, state.LastError, "init exploded")
}

func TestLoadBootstrapPanicIsContained(t *testing.T) {
	rt, _, _ := newTestRuntime()
	rt.Register(Definition{
		Descriptor: Descriptor{ID: "boom", Name: "boom", Version: "1.0.0"},
		Bootstrap: func(ctx context.Context, env *Environment) (Module, error) {
			panic("bootstrap blew up")
		},
	})
	rt.Register(testDef("calm", nil, &testModule{}))
	rt.Discover()

	err := rt.Load(context.Background(), "boom")
	require.ErrorIs(t, err, ErrBootstrapFailed)

	// Sibling is unaffected.
	require.NoError(t, rt.Load(context.Background(), "calm"))
}

func TestLoadDirectCycleFails(t *testing.T) {
	rt, _, _ := newTestRuntime()
	rt.Register(testDef("a", []string{"b"}, &testModule{}))
	rt.Register(testDef("b", []string{"a"}, &testModule{}))
	rt.Discover()

	err := rt.Load(context.Background(), "a")
	require.Error(t, err)

	for _, id := range []string{"a", "b"} {
		state, _ := rt.ModuleState(id)
		assert.False(t, state.Loaded, "cycle member %s must not load", id)
	}
}

func TestLoadAllScenarioUsersAdminReports(t *testing.T) {
	rt, _, _ := newTestRuntime()
	users := &testModule{}
	admin := &testModule{}
	reports := &testModule{}
	rt.Register(testDef("users", nil, users))
	rt.Register(testDef("admin", nil, admin))
	rt.Register(testDef("reports", []string{"users"}, reports))
	rt.Discover()

	report := rt.LoadAll(context.Background())

	assert.Empty(t, report.Failed)
	assert.ElementsMatch(t, []string{"users", "admin", "reports"}, report.Loaded)
	for _, id := range []string{"users", "admin", "reports"} {
		state, _ := rt.ModuleState(id)
		assert.True(t, state.Loaded, "%s must be loaded", id)
	}
	// reports cannot precede users in confirmation order.
	usersIdx, reportsIdx := -1, -1
	for i, id := range report.Loaded {
		switch id {
		case "users":
			usersIdx = i
		case "reports":
			reportsIdx = i
		}
	}
	assert.Less(t, usersIdx, reportsIdx)
	// Start ran on every loaded module.
	assert.True(t, users.wasStarted())
	assert.True(t, admin.wasStarted())
	assert.True(t, reports.wasStarted())
}

func TestLoadAllIsolatesFailures(t *testing.T) {
	rt, _, _ := newTestRuntime()
	good1 := &testModule{}
	good2 := &testModule{}
	bad := &testModule{initErr: errors.New("init exploded")}
	rt.Register(testDef("good1", nil, good1))
	rt.Register(testDef("good2", nil, good2))
	rt.Register(testDef("bad", nil, bad))
	rt.Discover()

	report := rt.LoadAll(context.Background())

	assert.ElementsMatch(t, []string{"good1", "good2"}, report.Loaded)
	require.Contains(t, report.Failed, "bad")
	for _, id := range []string{"good1", "good2"} {
		state, _ := rt.ModuleState(id)
		assert.True(t, state.Loaded)
	}
}

func TestLoadAllFailsCycleMembersOnly(t *testing.T) {
	rt, _, _ := newTestRuntime()
	rt.Register(testDef("a", []string{"b"}, &testModule{}))
	rt.Register(testDef("b", []string{"a"}, &testModule{}))
	rt.Register(testDef("free", nil, &testModule{}))
	rt.Discover()

	report := rt.LoadAll(context.Background())

	assert.ElementsMatch(t, []string{"free"}, report.Loaded)
	require.Contains(t, report.Failed, "a")
	require.Contains(t, report.Failed, "b")
	assert.ErrorIs(t, report.Failed["a"], ErrCircularDependency)
	assert.ErrorIs(t, report.Failed["b"], ErrCircularDependency)
}

func TestLoadAllReportsCycleDependentsAsDependencyFailures(t *testing.T) {
	// A module downstream of a cycle is failed for its dependency, not
	// blamed as a cycle member.
	rt, _, _ := newTestRuntime()
	rt.Register(testDef("a", []string{"b"}, &testModule{}))
	rt.Register(testDef("b", []string{"a"}, &testModule{}))
	rt.Register(testDef("c", []string{"a"}, &testModule{}))
	rt.Discover()

	report := rt.LoadAll(context.Background())

	assert.Empty(t, report.Loaded)
	require.Contains(t, report.Failed, "c")
	assert.ErrorIs(t, report.Failed["c"], ErrDependencyFailed)
	assert.NotErrorIs(t, report.Failed["c"], ErrCircularDependency)
	assert.ErrorIs(t, report.Failed["a"], ErrCircularDependency)
	assert.ErrorIs(t, report.Failed["b"], ErrCircularDependency)
}

func TestLoadAllSkipsDisabledModules(t *testing.T) {
	rt, _, _ := newTestRuntime(WithModuleSettings(map[string]bool{"extra": false}))
	rt.Register(testDef("extra", nil, &testModule{}))
	rt.Register(testDef("users", nil, &testModule{}))
	rt.Discover()

	report := rt.LoadAll(context.Background())

	assert.ElementsMatch(t, []string{"users"}, report.Loaded)
	assert.NotContains(t, report.Failed, "extra")
}

func TestDisableRefusesCoreModule(t *testing.T) {
	rt, _, _ := newTestRuntime()
	rt.Register(coreDef("settings", &testModule{}))
	rt.Discover()
	require.NoError(t, rt.Load(context.Background(), "settings"))

	err := rt.Disable(context.Background(), "settings")
	require.ErrorIs(t, err, ErrCoreModuleDisable)

	// State unchanged.
	state, _ := rt.ModuleState("settings")
	assert.True(t, state.Enabled)
	assert.True(t, state.Loaded)
}

func TestDisableStopsAndUnregisters(t *testing.T) {
	rt, _, services := newTestRuntime()
	mod := &testModule{}
	rt.Register(testDef("reports", nil, mod))
	rt.Discover()
	require.NoError(t, rt.Load(context.Background(), "reports"))

	require.NoError(t, rt.Disable(context.Background(), "reports"))

	assert.True(t, mod.wasStopped())
	state, _ := rt.ModuleState("reports")
	assert.False(t, state.Enabled)
	assert.False(t, state.Loaded)
	assert.False(t, state.Healthy)
	_, ok := services.Get("reports")
	assert.False(t, ok)
}

func TestDisableSwallowsStopError(t *testing.T) {
	rt, _, _ := newTestRuntime()
	mod := &testModule{stopErr: errors.New("stop exploded")}
	rt.Register(testDef("reports", nil, mod))
	rt.Discover()
	require.NoError(t, rt.Load(context.Background(), "reports"))

	// Stop errors are logged, not returned; the module still disables.
	require.NoError(t, rt.Disable(context.Background(), "reports"))
	state, _ := rt.ModuleState("reports")
	assert.False(t, state.Loaded)
}

func TestEnableAfterDisableAllowsReload(t *testing.T) {
	rt, _, _ := newTestRuntime()
	mod := &testModule{}
	rt.Register(testDef("reports", nil, mod))
	rt.Discover()
	require.NoError(t, rt.Load(context.Background(), "reports"))
	require.NoError(t, rt.Disable(context.Background(), "reports"))

	require.NoError(t, rt.Enable(context.Background(), "reports"))
	// Without a router Enable only flips intent; reload is explicit.
	require.NoError(t, rt.Load(context.Background(), "reports"))

	state, _ := rt.ModuleState("reports")
	assert.True(t, state.Loaded)
	assert.Equal(t, 2, mod.inits())
}

func TestEnableUnknownModule(t *testing.T) {
	rt, _, _ := newTestRuntime()
	assert.ErrorIs(t, rt.Enable(context.Background(), "ghost"), ErrModuleNotFound)
	assert.ErrorIs(t, rt.Disable(context.Background(), "ghost"), ErrModuleNotFound)
}

func TestStopAllStopsEveryLoadedModule(t *testing.T) {
	rt, _, services := newTestRuntime()
	users := &testModule{}
	reports := &testModule{stopErr: errors.New("stop exploded")}
	rt.Register(testDef("users", nil, users))
	rt.Register(testDef("reports", []string{"users"}, reports))
	rt.Discover()
	rt.LoadAll(context.Background())

	rt.StopAll(context.Background())

	assert.True(t, users.wasStopped())
	assert.True(t, reports.wasStopped(), "one stop failure must not block others")
	for _, id := range []string{"users", "reports"} {
		state, _ := rt.ModuleState(id)
		assert.False(t, state.Loaded)
		assert.True(t, state.Enabled, "StopAll keeps operator intent")
		_, ok := services.Get(id)
		assert.False(t, ok)
	}
}

func TestShutdownDestroysAndReleases(t *testing.T) {
	rt, bus, services := newTestRuntime()
	mod := &testModule{}
	rt.Register(testDef("users", nil, mod))
	rt.Discover()
	rt.LoadAll(context.Background())
	bus.On("x", func(ctx context.Context, event cloudevents.Event) error { return nil })
	require.Equal(t, 1, bus.SubscriberCount("x"))

	rt.Shutdown(context.Background())

	assert.True(t, mod.wasStopped())
	mod.mu.Lock()
	destroyed := mod.destroyed
	mod.mu.Unlock()
	assert.True(t, destroyed)
	_, ok := services.Get("users")
	assert.False(t, ok)
	// Close cancelled every subscription.
	assert.Zero(t, bus.SubscriberCount("x"))
}

func TestHookTimeoutFailsLoad(t *testing.T) {
	rt, _, _ := newTestRuntime(WithHookTimeout(30 * time.Millisecond))
	mod := &testModule{initDelay: 500 * time.Millisecond}
	rt.Register(testDef("slow", nil, mod))
	rt.Discover()

	err := rt.Load(context.Background(), "slow")
	require.ErrorIs(t, err, ErrHookTimeout)

	state, _ := rt.ModuleState("slow")
	assert.False(t, state.Loaded)
}

func TestStatusSnapshot(t *testing.T) {
	rt, _, _ := newTestRuntime()
	rt.Register(testDef("users", nil, &testModule{}))
	rt.Register(testDef("broken", nil, &testModule{initErr: errors.New("nope")}))
	rt.Discover()
	rt.LoadAll(context.Background())

	status := rt.Status()
	require.Len(t, status, 2)
	assert.True(t, status["users"].Loaded)
	assert.True(t, status["users"].Healthy)
	assert.False(t, status["broken"].Loaded)
	assert.Contains(t, status["broken"].LastError, "nope")
}

func TestLoadEmitsLifecycleEvents(t *testing.T) {
	rt, bus, _ := newTestRuntime()
	rt.Register(testDef("users", nil, &testModule{}))
	rt.Discover()
	require.NoError(t, rt.Load(context.Background(), "users"))

	discovered := bus.History(HistoryFilter{Type: EventTypeModuleDiscovered})
	assert.Len(t, discovered, 1)
	loaded := bus.History(HistoryFilter{Type: EventTypeModuleLoaded})
	require.Len(t, loaded, 1)
	assert.Equal(t, EventSourceRuntime, loaded[0].Source())
}
