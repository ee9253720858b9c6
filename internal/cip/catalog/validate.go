package catalog

import (
	"fmt"

	"github.com/tturner/cipstack/internal/cip/spec"
)

// ValidationError represents a catalog validation finding.
type ValidationError struct {
	Key     string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Key, e.Field, e.Message)
}

// ValidationResult holds results from catalog validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if no errors were found.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ValidateAgainstRegistry checks each entry's request body against the
// service registry. Unknown services and classes are warnings.
func ValidateAgainstRegistry(c *Catalog, registry *spec.Registry) *ValidationResult {
	if registry == nil {
		registry = spec.DefaultRegistry()
	}
	result := &ValidationResult{}
	for _, e := range c.ListAll() {
		validateEntry(e, registry, result)
	}
	return result
}

func validateEntry(e *Entry, registry *spec.Registry, result *ValidationResult) {
	if !spec.IsKnownService(e.Service) {
		result.Warnings = append(result.Warnings, ValidationError{
			Key:     e.Key,
			Field:   "service",
			Message: fmt.Sprintf("unknown service code 0x%02X", uint8(e.Service)),
		})
	}

	if e.Path.Tag == "" && !spec.IsKnownClass(e.Path.Class) {
		result.Warnings = append(result.Warnings, ValidationError{
			Key:     e.Key,
			Field:   "path.class",
			Message: fmt.Sprintf("unknown class code 0x%02X", e.Path.Class),
		})
	}

	if _, err := e.Request(); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Key:     e.Key,
			Field:   "request",
			Message: err.Error(),
		})
		return
	}

	if err := registry.CheckRequest(e.Path.Class, e.Service, e.Data); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Key:     e.Key,
			Field:   "data",
			Message: err.Error(),
		})
	}
}
