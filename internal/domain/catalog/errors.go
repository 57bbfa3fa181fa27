package catalog

import "errors"

var (
	// ErrUnknownConcept is returned when a code or component does not match
	// any catalog entry.
	ErrUnknownConcept = errors.New("unknown concept")

	// ErrAmbiguousConcept is returned when a component name matches more
	// than one concept and no tie-breaker applies.
	ErrAmbiguousConcept = errors.New("ambiguous concept")

	// ErrValueNotAllowed is returned when a value falls outside a concept's
	// allowed-values list.
	ErrValueNotAllowed = errors.New("value not allowed for concept")
)
