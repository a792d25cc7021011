package component

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
)

// Info holds metadata about an available component type
type Info struct {
	MainType    element.MainType     `json:"main_type"`
	SubType     element.Role         `json:"sub_type"`
	MediaType   capability.MediaType `json:"media_type"`
	Description string               `json:"description"`
	Version     string               `json:"version"`
}

// Factory creates an uninitialized element. Pins are created later by Init, so
// factories do no I/O.
type Factory func(deps Dependencies) (element.Element, error)

// Registration holds factory and metadata for a component type
type Registration struct {
	Name        string               `json:"name"`
	MainType    element.MainType     `json:"main_type"`
	SubType     element.Role         `json:"sub_type"`
	MediaType   capability.MediaType `json:"media_type"`
	Description string               `json:"description"`
	Version     string               `json:"version"`
	Factory     Factory              `json:"-"`
}

// RegistrationConfig provides a clean API for component registration.
// It maps 1:1 to Registration struct fields.
type RegistrationConfig struct {
	Name        string // Component ID (e.g., "video-converter")
	Factory     Factory
	MainType    element.MainType
	SubType     element.Role
	MediaType   capability.MediaType
	Description string
	Version     string
}

// Registry manages component factories and the element instances created from them.
// Instances are grouped by owner tag.
type Registry struct {
	factories map[string]*Registration
	instances map[string]map[string]element.Element // owner -> element name -> element
	mu        sync.RWMutex
}

// NewRegistry creates a new empty component registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
		instances: make(map[string]map[string]element.Element),
	}
}

// RegisterFactory registers a component factory with the given name.
// Returns an error if a factory with the same name is already registered.
func (r *Registry) RegisterFactory(name string, registration *Registration) error {
	if err := ValidateComponentName(name); err != nil {
		return errors.Wrap(err, "Registry", "RegisterFactory", "factory name validation")
	}
	if registration == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "registration validation")
	}
	if registration.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory function validation")
	}
	switch registration.MainType {
	case element.MainTypeSrc, element.MainTypeFilter, element.MainTypeSink:
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "main type validation")
	}
	if registration.SubType == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "role validation")
	}
	if !registration.MediaType.Valid() {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "media type validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		msg := fmt.Errorf("factory '%s' is already registered", name)
		return errors.WrapInvalid(msg, "Registry", "RegisterFactory", "duplicate factory check")
	}

	registration.Name = name
	r.factories[name] = registration
	return nil
}

// RegisterWithConfig registers a component using a configuration struct.
//
//	registry.RegisterWithConfig(component.RegistrationConfig{
//	    Name:      "test-source",
//	    Factory:   testsrc.New,
//	    MainType:  element.MainTypeSrc,
//	    SubType:   element.RoleTester,
//	    MediaType: capability.MediaTypeVideo,
//	})
func (r *Registry) RegisterWithConfig(config RegistrationConfig) error {
	return r.RegisterFactory(config.Name, &Registration{
		Name:        config.Name,
		MainType:    config.MainType,
		SubType:     config.SubType,
		MediaType:   config.MediaType,
		Description: config.Description,
		Version:     config.Version,
		Factory:     config.Factory,
	})
}

// CreateComponent creates an element from the factory registered as componentID.
// ownerTag names the requester in diagnostics; the instance is not registered until
// RegisterInstance, since its name is only known after Init.
func (r *Registry) CreateComponent(componentID, ownerTag string, deps Dependencies) (element.Element, error) {
	if componentID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidParam, "Registry", "CreateComponent", "component ID validation")
	}

	r.mu.RLock()
	registration, exists := r.factories[componentID]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Wrap(fmt.Errorf("%w: %q", errors.ErrComponentNotFound, componentID),
			"Registry", "CreateComponent", "factory lookup")
	}

	if deps.Logger != nil {
		deps.Logger = deps.Logger.With("owner", ownerTag)
	}
	e, err := registration.Factory(deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "factory execution")
	}
	if e == nil {
		return nil, errors.Wrap(fmt.Errorf("%w: factory %q returned nil", errors.ErrFailed, componentID),
			"Registry", "CreateComponent", "factory execution")
	}
	return e, nil
}

// RegisterInstance registers an initialized element under its name within owner.
// Returns an error if the name is already taken within owner.
func (r *Registry) RegisterInstance(owner string, e element.Element) error {
	if owner == "" || e == nil {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Registry", "RegisterInstance", "argument validation")
	}
	name := e.Name()
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Registry", "RegisterInstance", "instance name validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	scope, ok := r.instances[owner]
	if !ok {
		scope = make(map[string]element.Element)
		r.instances[owner] = scope
	}
	if _, exists := scope[name]; exists {
		return errors.Wrap(fmt.Errorf("%w: %q", errors.ErrElementExists, name),
			"Registry", "RegisterInstance", "duplicate instance check")
	}
	scope[name] = e
	return nil
}

// UnregisterInstance removes an element instance from the registry
func (r *Registry) UnregisterInstance(owner, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	scope, ok := r.instances[owner]
	if !ok {
		return
	}
	delete(scope, name)
	if len(scope) == 0 {
		delete(r.instances, owner)
	}
}

// Instance returns a registered element, or nil
func (r *Registry) Instance(owner, name string) element.Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[owner][name]
}

// GetElements returns the registered elements of owner with the given media type and
// role, ordered by name.
func (r *Registry) GetElements(owner string, mediaType capability.MediaType, role element.Role) []element.Element {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []element.Element
	for _, e := range r.instances[owner] {
		if e.MediaType() == mediaType && e.SubType() == role {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b element.Element) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

// QueryInterface looks up an element instance and returns it as T. A missing
// instance is errors.ErrElementNotFound; an instance not implementing T is
// errors.ErrFailed.
func QueryInterface[T any](r *Registry, owner, name string) (T, error) {
	var zero T
	e := r.Instance(owner, name)
	if e == nil {
		return zero, errors.Wrap(fmt.Errorf("%w: %q", errors.ErrElementNotFound, name),
			"Registry", "QueryInterface", "instance lookup")
	}
	t, ok := element.TryAs[T](e)
	if !ok {
		return zero, errors.Wrap(fmt.Errorf("%w: %q does not implement %T", errors.ErrFailed, name, (*T)(nil)),
			"Registry", "QueryInterface", "interface check")
	}
	return t, nil
}

// Registrations returns the registrations matching media type and role, ordered by
// component ID. The returned values carry no factory.
func (r *Registry) Registrations(mediaType capability.MediaType, role element.Role) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Registration
	for _, reg := range r.factories {
		if reg.MediaType == mediaType && reg.SubType == role {
			cp := *reg
			cp.Factory = nil
			out = append(out, cp)
		}
	}
	slices.SortFunc(out, func(a, b Registration) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// ListComponentTypes returns all registered component IDs, sorted
func (r *Registry) ListComponentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListAvailable returns information about all available component types
func (r *Registry) ListAvailable() map[string]Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]Info, len(r.factories))
	for name, reg := range r.factories {
		result[name] = Info{
			MainType:    reg.MainType,
			SubType:     reg.SubType,
			MediaType:   reg.MediaType,
			Description: reg.Description,
			Version:     reg.Version,
		}
	}
	return result
}

// MaxNameLength bounds component IDs
const MaxNameLength = 128

// ValidateComponentName validates component IDs: alphanumerics, dash, underscore and dot
func ValidateComponentName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "empty name")
	}
	if len(name) > MaxNameLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "name too long")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(
				errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName",
				"invalid name characters")
		}
	}
	return nil
}
