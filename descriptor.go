package platform

import (
	"fmt"
	"strings"
)

// Capability is an informational declaration of one thing a module can do.
// Capabilities are surfaced through the status API so operators can see
// what a module offers without reading its code; the runtime attaches no
// behavior to them.
type Capability struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Endpoints   []string `json:"endpoints,omitempty"`
}

// Descriptor is the immutable declaration of a module's identity, API
// surface and dependencies. Descriptors are authored per module,
// independently of the runtime, and are the only place dependency edges
// are declared.
type Descriptor struct {
	// ID uniquely identifies the module and keys every runtime map.
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Version is the module's semantic version.
	Version string `json:"version"`

	// APIPrefix is where the module's route table is mounted, e.g.
	// "/api/identity".
	APIPrefix string `json:"apiPrefix,omitempty"`

	// StorageNamespace prefixes every table or key the module owns in
	// the persistence layer. The runtime never touches storage itself.
	StorageNamespace string `json:"storageNamespace,omitempty"`

	// Dependencies lists the IDs of modules that must be enabled and
	// loaded before this one.
	Dependencies []string `json:"dependencies,omitempty"`

	// MinimumRole, when set, gates the module's routes behind the given
	// role before requests reach its handlers.
	MinimumRole string `json:"minimumRole,omitempty"`

	// Core marks modules that can never be disabled.
	Core bool `json:"core"`

	// Capabilities is informational only.
	Capabilities []Capability `json:"capabilities,omitempty"`
}

// Validate checks the descriptor for authoring mistakes that would corrupt
// the registry: a missing ID, a self-dependency, or a malformed API prefix.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: descriptor has empty ID", ErrDescriptorInvalid)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: module %q has empty name", ErrDescriptorInvalid, d.ID)
	}
	if d.APIPrefix != "" && !strings.HasPrefix(d.APIPrefix, "/") {
		return fmt.Errorf("%w: module %q API prefix %q must start with /", ErrDescriptorInvalid, d.ID, d.APIPrefix)
	}
	for _, dep := range d.Dependencies {
		if dep == d.ID {
			return fmt.Errorf("%w: module %q depends on itself", ErrDescriptorInvalid, d.ID)
		}
		if dep == "" {
			return fmt.Errorf("%w: module %q has empty dependency ID", ErrDescriptorInvalid, d.ID)
		}
	}
	return nil
}
