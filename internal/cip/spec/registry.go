package spec

import (
	"fmt"
	"sync"

	"github.com/tturner/cipstack/internal/cip/protocol"
)

// Rule defines a strict validation rule that can be applied to service shapes.
type Rule interface {
	Name() string
	CheckRequest(payload []byte) error
	CheckResponse(payload []byte) error
}

// ServiceDef describes a CIP service definition and shape rules.
type ServiceDef struct {
	Class          uint32
	Service        protocol.ServiceCode
	Name           string
	MinRequestLen  int
	MinResponseLen int
	StrictRules    []Rule
}

type serviceKey struct {
	class   uint32
	service protocol.ServiceCode
}

// Registry holds service definitions keyed by class and service.
type Registry struct {
	services map[serviceKey]ServiceDef
}

// NewRegistry returns an empty service registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[serviceKey]ServiceDef)}
}

// RegisterService registers a service definition.
func (r *Registry) RegisterService(def ServiceDef) {
	r.services[serviceKey{class: def.Class, service: def.Service}] = def
}

// LookupService finds a matching service definition, falling back to class-agnostic entries.
func (r *Registry) LookupService(class uint32, service protocol.ServiceCode) (ServiceDef, bool) {
	if def, ok := r.services[serviceKey{class: class, service: service}]; ok {
		return def, true
	}
	def, ok := r.services[serviceKey{class: 0, service: service}]
	return def, ok
}

// CheckRequest validates a request body against its service definition.
// Services without a definition pass.
func (r *Registry) CheckRequest(class uint32, service protocol.ServiceCode, data []byte) error {
	def, ok := r.LookupService(class, service)
	if !ok {
		return nil
	}
	if len(data) < def.MinRequestLen {
		return fmt.Errorf("%s request body of %d bytes, want at least %d", def.Name, len(data), def.MinRequestLen)
	}
	for _, rule := range def.StrictRules {
		if err := rule.CheckRequest(data); err != nil {
			return fmt.Errorf("%s: %s: %w", def.Name, rule.Name(), err)
		}
	}
	return nil
}

// CheckResponse validates successful reply data against its service definition.
func (r *Registry) CheckResponse(class uint32, service protocol.ServiceCode, data []byte) error {
	def, ok := r.LookupService(class, service)
	if !ok {
		return nil
	}
	if len(data) < def.MinResponseLen {
		return fmt.Errorf("%s reply data of %d bytes, want at least %d", def.Name, len(data), def.MinResponseLen)
	}
	for _, rule := range def.StrictRules {
		if err := rule.CheckResponse(data); err != nil {
			return fmt.Errorf("%s: %s: %w", def.Name, rule.Name(), err)
		}
	}
	return nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the shared CIP service registry.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		registry := NewRegistry()
		for code, name := range serviceNames {
			registry.RegisterService(ServiceDef{Service: code, Name: name})
		}
		registerDefaultServices(registry)
		defaultRegistry = registry
	})
	return defaultRegistry
}
