package platform

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches the runtime config file and applies per-module
// enable/disable deltas at runtime, so operators can toggle modules by
// editing configuration without restarting the daemon. Only the module
// flags are applied live; other fields take effect on restart.
type ConfigWatcher struct {
	path    string
	runtime *Runtime
	bus     *Bus
	logger  Logger
	fw      *fsnotify.Watcher
	done    chan struct{}
}

// NewConfigWatcher creates a watcher for the config file at path.
func NewConfigWatcher(runtime *Runtime, bus *Bus, path string, logger Logger) *ConfigWatcher {
	return &ConfigWatcher{path: path, runtime: runtime, bus: bus, logger: logger}
}

// Start begins watching. The parent directory is watched rather than the
// file itself so editors that replace the file (rename + create) keep
// triggering reloads.
func (w *ConfigWatcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	w.fw = fw
	w.done = make(chan struct{})

	go w.loop()
	w.logger.Info("Config watcher started", "path", w.path)
	return nil
}

func (w *ConfigWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.apply()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Config watcher error", "error", err)
		}
	}
}

// apply re-reads the config and reconciles module enablement with the
// runtime's current state.
func (w *ConfigWatcher) apply() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("Config reload failed", "path", w.path, "error", err)
		return
	}

	ctx := context.Background()
	changed := 0
	for id, enabled := range cfg.ModuleSettings() {
		state, known := w.runtime.ModuleState(id)
		if !known || state.Enabled == enabled {
			continue
		}
		var applyErr error
		if enabled {
			applyErr = w.runtime.Enable(ctx, id)
		} else {
			applyErr = w.runtime.Disable(ctx, id)
		}
		if applyErr != nil {
			if errors.Is(applyErr, ErrCoreModuleDisable) {
				w.logger.Warn("Config tried to disable core module", "module", id)
				continue
			}
			w.logger.Error("Config reload could not toggle module", "module", id, "error", applyErr)
			continue
		}
		changed++
	}

	w.logger.Info("Config reloaded", "path", w.path, "modulesChanged", changed)
	w.bus.Emit(ctx, NewPlatformEvent(EventTypeConfigReloaded, EventSourceRuntime,
		map[string]int{"modulesChanged": changed}, nil))
}

// Stop ends watching and waits for the event loop to exit.
func (w *ConfigWatcher) Stop() {
	if w.fw == nil {
		return
	}
	w.fw.Close()
	<-w.done
	w.fw = nil
}
