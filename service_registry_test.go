package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct{ name string }

func TestServiceRegistryRegisterGetUnregister(t *testing.T) {
	logger := testLogger{}
	bus := NewBus(16, logger)
	reg := NewServiceRegistry(bus, logger)

	reg.Register("identity", &fakeDirectory{name: "first"})

	handle, ok := reg.Get("identity")
	require.True(t, ok)
	assert.Equal(t, "first", handle.(*fakeDirectory).name)

	// Overwrite semantics.
	reg.Register("identity", &fakeDirectory{name: "second"})
	handle, ok = reg.Get("identity")
	require.True(t, ok)
	assert.Equal(t, "second", handle.(*fakeDirectory).name)

	reg.Unregister("identity")
	_, ok = reg.Get("identity")
	assert.False(t, ok)

	// Unregistering an absent entry is a no-op and emits nothing.
	before := len(bus.History(HistoryFilter{Type: EventTypeServiceUnregistered}))
	reg.Unregister("identity")
	assert.Len(t, bus.History(HistoryFilter{Type: EventTypeServiceUnregistered}), before)
}

func TestServiceRegistryEmitsEvents(t *testing.T) {
	logger := testLogger{}
	bus := NewBus(16, logger)
	reg := NewServiceRegistry(bus, logger)

	reg.Register("settings", &fakeDirectory{})
	reg.Unregister("settings")

	registered := bus.History(HistoryFilter{Type: EventTypeServiceRegistered})
	require.Len(t, registered, 1)
	unregistered := bus.History(HistoryFilter{Type: EventTypeServiceUnregistered})
	require.Len(t, unregistered, 1)
}

func TestServiceAsTypeAssertion(t *testing.T) {
	logger := testLogger{}
	reg := NewServiceRegistry(NewBus(16, logger), logger)
	reg.Register("identity", &fakeDirectory{name: "dir"})

	dir, ok := ServiceAs[*fakeDirectory](reg, "identity")
	require.True(t, ok)
	assert.Equal(t, "dir", dir.name)

	_, ok = ServiceAs[*testModule](reg, "identity")
	assert.False(t, ok, "wrong type must not assert")

	_, ok = ServiceAs[*fakeDirectory](reg, "missing")
	assert.False(t, ok)
}

func TestServiceRegistryClear(t *testing.T) {
	logger := testLogger{}
	reg := NewServiceRegistry(NewBus(16, logger), logger)
	reg.Register("a", 1)
	reg.Register("b", 2)

	reg.Clear()

	_, ok := reg.Get("a")
	assert.False(t, ok)
	_, ok = reg.Get("b")
	assert.False(t, ok)
}
