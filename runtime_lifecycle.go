package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LoadReport collects the per-module outcomes of one LoadAll batch. One
// module's failure never aborts the batch, so both maps can be populated
// at once.
type LoadReport struct {
	// Loaded lists the modules that completed the load path, in the
	// order they were confirmed.
	Loaded []string

	// Failed maps each failing module to its load error, including
	// members of a dependency cycle.
	Failed map[string]error
}

// LoadAll loads every enabled module in true topological order, loading
// independent modules concurrently within each dependency level. Members
// of a dependency cycle fail fast with a circular-dependency error, their
// downstream dependents with a dependency error, while unrelated modules
// load normally. After all load attempts, Start is invoked on every
// module that loaded and implements Startable.
func (r *Runtime) LoadAll(ctx context.Context) *LoadReport {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	report := &LoadReport{Failed: make(map[string]error)}

	r.mu.RLock()
	graph := make(map[string][]string)
	for id, rec := range r.modules {
		if rec.enabled {
			graph[id] = rec.def.Descriptor.Dependencies
		}
	}
	r.mu.RUnlock()

	levels, stuck := topoLevels(graph)
	if len(stuck) > 0 {
		members, dependents := splitStuck(graph, stuck)
		err := cycleError(members)
		for _, id := range members {
			r.mu.RLock()
			rec := r.modules[id]
			r.mu.RUnlock()
			report.Failed[id] = r.failLoad(ctx, rec, err)
		}
		for _, id := range dependents {
			r.mu.RLock()
			rec := r.modules[id]
			r.mu.RUnlock()
			report.Failed[id] = r.failLoad(ctx, rec, cycleDependentError(id, members))
		}
	}

	var reportMu sync.Mutex
	for _, level := range levels {
		var wg sync.WaitGroup
		for _, id := range level {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				err := r.loadOne(ctx, id, make(map[string]bool))
				reportMu.Lock()
				defer reportMu.Unlock()
				if err != nil {
					report.Failed[id] = err
					return
				}
				report.Loaded = append(report.Loaded, id)
			}(id)
		}
		wg.Wait()
	}

	r.startAll(ctx, levels)

	r.logger.Info("Module load batch complete",
		"loaded", len(report.Loaded), "failed", len(report.Failed))
	r.bus.Emit(ctx, NewPlatformEvent(EventTypeRuntimeStarted, EventSourceRuntime,
		map[string]int{"loaded": len(report.Loaded), "failed": len(report.Failed)}, nil))
	return report
}

// startAll runs the Start hook on every loaded Startable module in
// dependency order. A start error is logged and recorded on the module
// but does not unload it; the next health sweep decides its fate.
func (r *Runtime) startAll(ctx context.Context, levels [][]string) {
	for _, level := range levels {
		for _, id := range level {
			r.mu.RLock()
			rec := r.modules[id]
			loaded := rec != nil && rec.loaded
			var instance Module
			if loaded {
				instance = rec.instance
			}
			r.mu.RUnlock()
			if !loaded {
				continue
			}
			startable, ok := instance.(Startable)
			if !ok {
				continue
			}
			if err := r.callHook(ctx, "start", id, startable.Start); err != nil {
				r.logger.Error("Module start failed", "module", id, "error", err)
				r.mu.Lock()
				rec.lastErr = err.Error()
				r.mu.Unlock()
				continue
			}
			r.bus.Emit(ctx, NewPlatformEvent(EventTypeModuleStarted, EventSourceRuntime,
				map[string]string{"module": id}, nil))
		}
	}
}

// HealthSweep checks every module and records status and timestamp on
// each record. Loaded modules without a HealthCheck hook are healthy by
// default; modules that are not loaded always count unhealthy. A hook
// error, panic or timeout marks that module only.
func (r *Runtime) HealthSweep(ctx context.Context) HealthReport {
	type target struct {
		id       string
		rec      *registeredModule
		loaded   bool
		instance Module
		lastErr  string
	}

	r.mu.RLock()
	targets := make([]target, 0, len(r.modules))
	for id, rec := range r.modules {
		targets = append(targets, target{
			id: id, rec: rec, loaded: rec.loaded, instance: rec.instance, lastErr: rec.lastErr,
		})
	}
	r.mu.RUnlock()

	now := time.Now()
	results := make([]ModuleHealth, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		if !t.loaded {
			errText := t.lastErr
			if errText == "" {
				errText = "module not loaded"
			}
			results[i] = ModuleHealth{ModuleID: t.id, Healthy: false, CheckedAt: now, Error: errText}
			continue
		}
		reporter, ok := t.instance.(HealthReporter)
		if !ok {
			results[i] = ModuleHealth{ModuleID: t.id, Healthy: true, CheckedAt: now}
			continue
		}
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			if err := r.callHook(ctx, "healthcheck", t.id, reporter.HealthCheck); err != nil {
				results[i] = ModuleHealth{ModuleID: t.id, Healthy: false, CheckedAt: now, Error: err.Error()}
				return
			}
			results[i] = ModuleHealth{ModuleID: t.id, Healthy: true, CheckedAt: now}
		}(i, t)
	}
	wg.Wait()

	report := HealthReport{Modules: make(map[string]ModuleHealth, len(results))}
	r.mu.Lock()
	for i, t := range targets {
		res := results[i]
		t.rec.healthy = res.Healthy
		t.rec.lastHealthCheck = res.CheckedAt
		report.Modules[t.id] = res
		report.Total++
		if res.Healthy {
			report.Healthy++
		} else {
			report.Unhealthy++
		}
	}
	r.mu.Unlock()

	r.logger.Debug("Health sweep complete",
		"healthy", report.Healthy, "unhealthy", report.Unhealthy, "total", report.Total)
	r.bus.Emit(ctx, NewPlatformEvent(EventTypeHealthSweep, EventSourceRuntime,
		map[string]int{"healthy": report.Healthy, "unhealthy": report.Unhealthy, "total": report.Total}, nil))
	return report
}

// StopAll invokes Stop on every loaded module in reverse dependency
// order, independently: one failure is logged and does not block the
// others. Every stopped module transitions to loaded=false and its
// service handle is released. Operator enablement is unchanged.
func (r *Runtime) StopAll(ctx context.Context) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	r.stopAllLocked(ctx)
}

func (r *Runtime) stopAllLocked(ctx context.Context) {
	r.mu.RLock()
	graph := make(map[string][]string)
	for id, rec := range r.modules {
		if rec.loaded {
			graph[id] = rec.def.Descriptor.Dependencies
		}
	}
	r.mu.RUnlock()

	levels, stuck := topoLevels(graph)
	order := append(flattenReverse(levels), stuck...)

	for _, id := range order {
		r.mu.RLock()
		rec := r.modules[id]
		instance, loaded := rec.instance, rec.loaded
		r.mu.RUnlock()
		if !loaded {
			continue
		}
		if stoppable, ok := instance.(Stoppable); ok {
			if err := r.callHook(ctx, "stop", id, stoppable.Stop); err != nil {
				r.logger.Error("Module stop failed", "module", id, "error", err)
			}
		}
		r.services.Unregister(id)

		r.mu.Lock()
		rec.loaded = false
		rec.healthy = false
		r.mu.Unlock()

		r.bus.Emit(ctx, NewPlatformEvent(EventTypeModuleStopped, EventSourceRuntime,
			map[string]string{"module": id}, nil))
	}
}

// Shutdown stops every loaded module, runs Destroy hooks, then releases
// all event bus subscriptions and service registry entries. Best-effort
// and sequential per module; partially stopped modules are not rolled
// back.
func (r *Runtime) Shutdown(ctx context.Context) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.stopAllLocked(ctx)

	r.mu.RLock()
	instances := make(map[string]Module, len(r.modules))
	for id, rec := range r.modules {
		if rec.instance != nil {
			instances[id] = rec.instance
		}
	}
	r.mu.RUnlock()

	for id, instance := range instances {
		if destroyable, ok := instance.(Destroyable); ok {
			if err := r.callHook(ctx, "destroy", id, destroyable.Destroy); err != nil {
				r.logger.Error("Module destroy failed", "module", id, "error", err)
			}
		}
		r.mu.Lock()
		r.modules[id].instance = nil
		r.modules[id].handle = nil
		r.mu.Unlock()
	}

	r.bus.Emit(ctx, NewPlatformEvent(EventTypeRuntimeStopped, EventSourceRuntime, nil, nil))
	r.services.Clear()
	r.bus.Close()
	r.logger.Info("Runtime shut down")
}

// callHook runs one lifecycle hook under the runtime's hook deadline,
// converting panics into errors. On timeout the hook goroutine is
// abandoned with its context cancelled; the runtime moves on.
func (r *Runtime) callHook(ctx context.Context, hook, moduleID string, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	hctx, cancel := context.WithTimeout(ctx, r.hookTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("%w: %v", ErrHookPanic, rec)
			}
		}()
		done <- fn(hctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s hook of module %s: %w", hook, moduleID, err)
		}
		return nil
	case <-hctx.Done():
		return fmt.Errorf("%w: %s hook of module %s", ErrHookTimeout, hook, moduleID)
	}
}
