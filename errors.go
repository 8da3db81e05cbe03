package platform

import (
	"errors"
)

// Runtime errors
var (
	// Descriptor and discovery errors
	ErrDescriptorInvalid = errors.New("module descriptor is invalid")
	ErrDuplicateModule   = errors.New("module ID already registered")
	ErrModuleNotFound    = errors.New("module not found")

	// Load errors
	ErrModuleDisabled     = errors.New("module is disabled")
	ErrDependencyMissing  = errors.New("module depends on non-existent module")
	ErrDependencyDisabled = errors.New("module depends on disabled module")
	ErrDependencyFailed   = errors.New("module dependency failed to load")
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrBootstrapFailed    = errors.New("module bootstrap failed")
	ErrBootstrapNil       = errors.New("module bootstrap returned nil instance")

	// Lifecycle hook errors
	ErrHookTimeout = errors.New("lifecycle hook exceeded deadline")
	ErrHookPanic   = errors.New("lifecycle hook panicked")

	// Enable/disable errors
	ErrCoreModuleDisable = errors.New("core module cannot be disabled")

	// Configuration errors
	ErrConfigFormatUnknown = errors.New("unsupported config file format")
	ErrConfigInvalid       = errors.New("config validation failed")

	// Access resolution errors
	ErrAccessStoreUnavailable = errors.New("access store unavailable")
)
