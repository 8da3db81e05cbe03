// Command admind runs the stackward admin platform daemon: it constructs
// the module runtime, loads the built-in modules, and serves the platform
// status and policy APIs over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stackward/platform"
	"github.com/stackward/platform/modules/accesscontrol"
	"github.com/stackward/platform/modules/audit"
	"github.com/stackward/platform/modules/identity"
	"github.com/stackward/platform/modules/settings"
)

func main() {
	configPath := flag.String("config", "", "path to config file (.yaml or .toml)")
	flag.Parse()

	logger := platform.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err := run(*configPath, logger); err != nil {
		logger.Error("admind exited with error", "error", err)
		os.Exit(1)
	}
}

// roleFromHeader trusts the X-Platform-Role header. admind is meant to
// run behind the session-terminating proxy that sets it; do not expose it
// directly.
func roleFromHeader(r *http.Request) string {
	return r.Header.Get("X-Platform-Role")
}

func run(configPath string, logger platform.Logger) error {
	cfg, err := platform.LoadConfig(configPath)
	if err != nil {
		return err
	}

	bus := platform.NewBus(cfg.EventHistorySize, logger)
	services := platform.NewServiceRegistry(bus, logger)
	router := platform.NewChiRouter()
	rt := platform.NewRuntime(logger, bus, services,
		platform.WithRouter(router),
		platform.WithHookTimeout(cfg.HookTimeout()),
		platform.WithModuleSettings(cfg.ModuleSettings()),
		platform.WithRoleExtractor(roleFromHeader),
	)

	rt.Register(settings.Definition())
	rt.Register(identity.Definition())
	rt.Register(accesscontrol.Definition(cfg.AccessDBPath))
	rt.Register(audit.Definition())
	rt.Discover()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report := rt.LoadAll(ctx)
	for id, loadErr := range report.Failed {
		logger.Error("Module failed to load", "module", id, "error", loadErr)
	}

	resolver := platform.NewAccessResolver(rt,
		platform.StoreFromRegistry(services, accesscontrol.ModuleID), logger)
	mountPlatformAPI(router.Mux(), rt, resolver)

	sweeper := platform.NewSweeper(rt, cfg.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	if configPath != "" {
		watcher := platform.NewConfigWatcher(rt, bus, configPath, logger)
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("admind listening", "addr", cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	rt.Shutdown(shutdownCtx)
	return nil
}

// mountPlatformAPI exposes the runtime's operator surface: status,
// aggregate health, enable/disable, and access queries. Mutating
// endpoints require the admin role.
func mountPlatformAPI(mux *chi.Mux, rt *platform.Runtime, resolver *platform.AccessResolver) {
	mux.Route("/api/platform", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, rt.Status())
		})
		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			report := rt.HealthSweep(req.Context())
			status := http.StatusOK
			if report.Unhealthy > 0 {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, report)
		})
		r.Get("/access", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			decision := resolver.CheckAccess(req.Context(), q.Get("user"), q.Get("module"), q.Get("role"))
			writeJSON(w, http.StatusOK, decision)
		})
		r.Get("/accessible", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			modules := resolver.AccessibleModules(req.Context(), q.Get("user"), q.Get("role"))
			writeJSON(w, http.StatusOK, modules)
		})

		r.Group(func(r chi.Router) {
			r.Use(platform.RequireRole(platform.RoleAdmin, roleFromHeader))
			r.Post("/modules/{id}/enable", func(w http.ResponseWriter, req *http.Request) {
				toggleModule(w, req, rt.Enable)
			})
			r.Post("/modules/{id}/disable", func(w http.ResponseWriter, req *http.Request) {
				toggleModule(w, req, rt.Disable)
			})
		})
	})
}

func toggleModule(w http.ResponseWriter, req *http.Request, op func(context.Context, string) error) {
	id := chi.URLParam(req, "id")
	if err := op(req.Context(), id); err != nil {
		switch {
		case errors.Is(err, platform.ErrModuleNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, platform.ErrCoreModuleDisable):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"module": id, "result": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "encode response:", err)
	}
}
