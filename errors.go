package mesgraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for common ontology error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrMaterialNotFound indicates the referenced material does not exist in the graph.
	ErrMaterialNotFound = errors.New("material not found")

	// ErrBatchNotFound indicates the referenced batch does not exist in the graph.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrCCPNotFound indicates the referenced critical control point does not exist in the graph.
	ErrCCPNotFound = errors.New("ccp not found")

	// ErrTargetNotFound indicates the node a deviation should attach to does not exist.
	ErrTargetNotFound = errors.New("deviation target not found")

	// ErrInvalidTransition indicates an illegal batch status change.
	// The wrapping error names the current and attempted states.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateToolName indicates two tools were registered under the same
	// name. This is a configuration error raised at registration time, never
	// at call time.
	ErrDuplicateToolName = errors.New("duplicate tool name")
)

// Error kinds categorize errors by their type.
const (
	// KindValidation represents malformed entity fields. The caller must fix
	// the input; validation failures are never retried automatically.
	KindValidation = "validation"

	// KindInvalidTransition represents an illegal batch status change.
	KindInvalidTransition = "invalid_transition"

	// KindNotFound represents errors where a referenced entity was absent
	// when an edge or context build required it.
	KindNotFound = "not_found"

	// KindDuplicateTool represents a tool registry configuration error.
	KindDuplicateTool = "duplicate_tool"

	// KindStorage represents failures propagated from the graph-access
	// collaborator. No retry logic is applied on this side.
	KindStorage = "storage"

	// KindInternal represents internal extension errors.
	KindInternal = "internal"
)

// OntologyError is a structured error type that wraps underlying errors with
// the operation that failed and the category of error.
//
// OntologyError implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
type OntologyError struct {
	// Op is the operation that failed (e.g., "Extension.UpsertBatch").
	Op string

	// Kind categorizes the error (e.g., KindNotFound, KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional detail about the error (optional),
	// such as entity identifiers or attempted parameter values.
	Context map[string]any
}

// Error implements the error interface, returning a formatted message that
// includes the operation, kind, and underlying error.
func (e *OntologyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mesgraph: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("mesgraph: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("mesgraph: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *OntologyError) Unwrap() error {
	return e.Err
}

// Is implements error matching for OntologyError, allowing comparison based
// on the underlying error or on another OntologyError's kind.
func (e *OntologyError) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*OntologyError); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with the provided context merged in.
func (e *OntologyError) WithContext(ctx map[string]any) *OntologyError {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any)
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewValidationError creates a new OntologyError with KindValidation.
func NewValidationError(op string, err error) *OntologyError {
	return &OntologyError{Op: op, Kind: KindValidation, Err: err}
}

// NewInvalidTransitionError creates a new OntologyError with
// KindInvalidTransition wrapping ErrInvalidTransition. The current and
// attempted states are recorded in the error context.
func NewInvalidTransitionError(op, current, attempted string) *OntologyError {
	return &OntologyError{
		Op:   op,
		Kind: KindInvalidTransition,
		Err:  fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, attempted),
		Context: map[string]any{
			"current":   current,
			"attempted": attempted,
		},
	}
}

// NewNotFoundError creates a new OntologyError with KindNotFound.
func NewNotFoundError(op string, err error) *OntologyError {
	return &OntologyError{Op: op, Kind: KindNotFound, Err: err}
}

// NewDuplicateToolError creates a new OntologyError with KindDuplicateTool
// wrapping ErrDuplicateToolName.
func NewDuplicateToolError(op, name string) *OntologyError {
	return &OntologyError{
		Op:      op,
		Kind:    KindDuplicateTool,
		Err:     fmt.Errorf("%w: %q", ErrDuplicateToolName, name),
		Context: map[string]any{"tool": name},
	}
}

// NewStorageError creates a new OntologyError with KindStorage.
func NewStorageError(op string, err error) *OntologyError {
	return &OntologyError{Op: op, Kind: KindStorage, Err: err}
}

// NewInternalError creates a new OntologyError with KindInternal.
func NewInternalError(op string, err error) *OntologyError {
	return &OntologyError{Op: op, Kind: KindInternal, Err: err}
}
