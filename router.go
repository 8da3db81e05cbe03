package platform

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router is the abstraction the runtime mounts module route tables on.
// The surrounding application owns the listener; the runtime only mounts.
type Router interface {
	Mount(prefix string, handler http.Handler)
}

// ChiRouter adapts a chi mux to the Router interface and serves as the
// application's root handler.
type ChiRouter struct {
	mux *chi.Mux
}

// NewChiRouter builds a chi-backed router with request ID and recoverer
// middleware installed.
func NewChiRouter() *ChiRouter {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	return &ChiRouter{mux: mux}
}

// Mount attaches handler under prefix.
func (c *ChiRouter) Mount(prefix string, handler http.Handler) {
	c.mux.Mount(prefix, handler)
}

// Mux exposes the underlying chi mux so the application can add its own
// routes (status endpoints, middleware) next to the module trees.
func (c *ChiRouter) Mux() *chi.Mux { return c.mux }

// ServeHTTP implements http.Handler.
func (c *ChiRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mux.ServeHTTP(w, r)
}

// RoleExtractor reads the requesting principal's role from a request. The
// surrounding application decides where the role comes from (session,
// token, header behind a trusted proxy).
type RoleExtractor func(r *http.Request) string

// Role names understood by the default rank table, weakest first.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// roleRank orders roles for minimum-role comparison. Unknown roles rank
// below viewer.
var roleRank = map[string]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// RoleAtLeast reports whether role meets the minimum requirement.
func RoleAtLeast(role, minimum string) bool {
	return roleRank[role] >= roleRank[minimum]
}

// RequireRole gates a route subtree by minimum role. Requests whose
// extracted role ranks below the minimum are rejected with 403 before
// they reach module handlers.
func RequireRole(minimum string, extract RoleExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !RoleAtLeast(extract(r), minimum) {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
