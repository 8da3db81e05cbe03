package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stackward/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Debug(msg string, args ...any) {}

func newService(t *testing.T) (*Service, *platform.Bus) {
	t.Helper()
	bus := platform.NewBus(16, nopLogger{})
	return NewService(NewMemoryUserStore(), bus, nopLogger{}), bus
}

func TestMemoryUserStoreCRUD(t *testing.T) {
	store := NewMemoryUserStore()
	ctx := context.Background()

	user := &User{ID: "u1", Email: "u1@example.com", Name: "One", Role: platform.RoleViewer}
	require.NoError(t, store.CreateUser(ctx, user))
	assert.False(t, user.CreatedAt.IsZero())

	got, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", got.Email)

	// Returned values are copies; mutating them must not leak into the store.
	got.Email = "tampered@example.com"
	again, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", again.Email)

	byEmail, err := store.GetUserByEmail(ctx, "u1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	// Duplicate ID and duplicate email both conflict.
	err = store.CreateUser(ctx, &User{ID: "u1", Email: "other@example.com"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
	err = store.CreateUser(ctx, &User{ID: "u2", Email: "u1@example.com"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	got.ID = "u1"
	got.Email = "new@example.com"
	require.NoError(t, store.UpdateUser(ctx, got))
	updated, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", updated.Email)

	require.NoError(t, store.DeleteUser(ctx, "u1"))
	_, err = store.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, store.DeleteUser(ctx, "u1"), ErrUserNotFound)
}

func TestMemoryUserStoreListSorted(t *testing.T) {
	store := NewMemoryUserStore()
	ctx := context.Background()
	for _, id := range []string{"charlie", "alice", "bob"} {
		require.NoError(t, store.CreateUser(ctx, &User{ID: id, Email: id + "@example.com"}))
	}

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].ID)
	assert.Equal(t, "bob", users[1].ID)
	assert.Equal(t, "charlie", users[2].ID)
}

func TestServiceCreateUserDefaultsAndEvents(t *testing.T) {
	service, bus := newService(t)
	ctx := context.Background()

	require.NoError(t, service.CreateUser(ctx, &User{ID: "u1", Email: "u1@example.com"}))

	role, err := service.UserRole(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, platform.RoleViewer, role, "role defaults to viewer")

	events := bus.History(platform.HistoryFilter{Type: EventTypeUserCreated})
	require.Len(t, events, 1)
	assert.Equal(t, ModuleID, events[0].Source())
}

func TestServiceRejectsInvalidUser(t *testing.T) {
	service, _ := newService(t)
	ctx := context.Background()

	assert.ErrorIs(t, service.CreateUser(ctx, nil), ErrInvalidUser)
	assert.ErrorIs(t, service.CreateUser(ctx, &User{Email: "no-id@example.com"}), ErrInvalidUser)
	assert.ErrorIs(t, service.CreateUser(ctx, &User{ID: "no-email"}), ErrInvalidUser)
	assert.ErrorIs(t, service.UpdateUser(ctx, &User{}), ErrInvalidUser)
}

func TestServiceUserName(t *testing.T) {
	service, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, service.CreateUser(ctx, &User{ID: "u1", Email: "u1@example.com", Name: "Ada Lovelace"}))

	name, err := service.UserName(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", name)

	_, err = service.UserName(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestServiceUserExists(t *testing.T) {
	service, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, service.CreateUser(ctx, &User{ID: "u1", Email: "u1@example.com"}))

	exists, err := service.UserExists(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = service.UserExists(ctx, "ghost")
	require.NoError(t, err, "a missing user is not an error")
	assert.False(t, exists)
}

func TestServiceDeleteEmitsEvent(t *testing.T) {
	service, bus := newService(t)
	ctx := context.Background()
	require.NoError(t, service.CreateUser(ctx, &User{ID: "u1", Email: "u1@example.com"}))

	require.NoError(t, service.DeleteUser(ctx, "u1"))
	assert.Len(t, bus.History(platform.HistoryFilter{Type: EventTypeUserDeleted}), 1)

	assert.ErrorIs(t, service.DeleteUser(ctx, "u1"), ErrUserNotFound)
	assert.Len(t, bus.History(platform.HistoryFilter{Type: EventTypeUserDeleted}), 1)
}

// bootModule runs the module's bootstrap and Init the way the runtime does,
// returning it mounted on a chi router.
func bootModule(t *testing.T) (*IdentityModule, *chi.Mux) {
	t.Helper()
	logger := nopLogger{}
	bus := platform.NewBus(16, logger)
	env := &platform.Environment{
		Logger:   logger,
		Bus:      bus,
		Services: platform.NewServiceRegistry(bus, logger),
	}

	def := Definition()
	require.NoError(t, def.Descriptor.Validate())
	instance, err := def.Bootstrap(context.Background(), env)
	require.NoError(t, err)
	module := instance.(*IdentityModule)
	require.NoError(t, module.Init(context.Background()))

	mux := chi.NewRouter()
	for _, route := range module.Routes() {
		mux.MethodFunc(route.Method, route.Pattern, route.Handler)
	}
	return module, mux
}

func TestModuleSeedsAdminUser(t *testing.T) {
	module, _ := bootModule(t)

	admin, err := module.service.User(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, platform.RoleAdmin, admin.Role)

	require.NoError(t, module.HealthCheck(context.Background()))

	dir, ok := module.ServiceHandle().(Directory)
	require.True(t, ok, "service handle exposes the Directory interface")
	exists, err := dir.UserExists(context.Background(), "admin")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUserEndpoints(t *testing.T) {
	_, mux := bootModule(t)

	body, _ := json.Marshal(User{ID: "u1", Email: "u1@example.com", Name: "One"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	// Duplicate create conflicts.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Invalid body is a 400.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "u1@example.com", got.Email)
	assert.Equal(t, platform.RoleViewer, got.Role)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var users []User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 2) // seeded admin + u1

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/users/u1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
