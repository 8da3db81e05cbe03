package platform

// All cross-module notification uses the CloudEvents format so events keep
// a standard envelope whether they stay in-process or are forwarded to an
// external collector.

import (
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event type constants emitted by the runtime itself. Following the
// CloudEvents specification these use reverse domain notation. Modules
// define their own constants in the same style (see modules/identity).
const (
	// Module lifecycle events
	EventTypeModuleDiscovered = "com.stackward.platform.module.discovered"
	EventTypeModuleLoaded     = "com.stackward.platform.module.loaded"
	EventTypeModuleLoadFailed = "com.stackward.platform.module.load_failed"
	EventTypeModuleStarted    = "com.stackward.platform.module.started"
	EventTypeModuleStopped    = "com.stackward.platform.module.stopped"
	EventTypeModuleEnabled    = "com.stackward.platform.module.enabled"
	EventTypeModuleDisabled   = "com.stackward.platform.module.disabled"

	// Service registry events
	EventTypeServiceRegistered   = "com.stackward.platform.service.registered"
	EventTypeServiceUnregistered = "com.stackward.platform.service.unregistered"

	// Health events
	EventTypeHealthSweep = "com.stackward.platform.health.sweep"

	// Runtime lifecycle events
	EventTypeRuntimeStarted = "com.stackward.platform.runtime.started"
	EventTypeRuntimeStopped = "com.stackward.platform.runtime.stopped"

	// Configuration events
	EventTypeConfigReloaded = "com.stackward.platform.config.reloaded"
)

// EventSourceRuntime is the CloudEvents source used for events originating
// from the runtime rather than from a module.
const EventSourceRuntime = "platform.runtime"

// NewPlatformEvent creates a CloudEvent with the required attributes set.
// source is the originating module ID (or EventSourceRuntime), data is
// attached as JSON, and metadata entries become CloudEvents extensions.
func NewPlatformEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		event.SetExtension(key, value)
	}
	return event
}

// newEventID generates a UUIDv7 identifier so event IDs sort by time.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
