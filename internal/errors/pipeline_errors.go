package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory represents the category of error
type ErrorCategory string

const (
	// ErrorCategoryStructural represents a module that violates the task module rules
	ErrorCategoryStructural ErrorCategory = "STRUCTURAL"
	// ErrorCategoryCycle represents a dependency cycle between modules
	ErrorCategoryCycle ErrorCategory = "CYCLE"
	// ErrorCategorySyntax represents unparseable source or malformed target expressions
	ErrorCategorySyntax ErrorCategory = "SYNTAX"
	// ErrorCategoryRuntime represents failures raised by task code through the domain error path
	ErrorCategoryRuntime ErrorCategory = "RUNTIME"
	// ErrorCategoryConfiguration represents project configuration errors
	ErrorCategoryConfiguration ErrorCategory = "CONFIGURATION"
	// ErrorCategoryTarget represents target write, load or verification errors
	ErrorCategoryTarget ErrorCategory = "TARGET"
)

// PipelineError represents a structured error with context and troubleshooting information
type PipelineError struct {
	Category        ErrorCategory
	Code            string
	Message         string
	Module          string
	Operation       string
	Context         map[string]interface{}
	Troubleshooting []string
	OriginalError   error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s-%s: %s", e.Category, e.Code, e.Message))

	if e.OriginalError != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.OriginalError))
	}

	return sb.String()
}

// Unwrap returns the original error for error chain compatibility
func (e *PipelineError) Unwrap() error {
	return e.OriginalError
}

// NewPipelineError creates a new pipeline error with the specified parameters
func NewPipelineError(category ErrorCategory, code, message, operation string) *PipelineError {
	return &PipelineError{
		Category:        category,
		Code:            code,
		Message:         message,
		Operation:       operation,
		Context:         make(map[string]interface{}),
		Troubleshooting: []string{},
	}
}

// WithModule records the module the error belongs to
func (e *PipelineError) WithModule(path string) *PipelineError {
	e.Module = path
	if path != "" {
		e.Context["module"] = path
	}
	return e
}

// WithContext adds context information to the error
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	e.Context[key] = value
	return e
}

// WithTroubleshooting adds troubleshooting steps to the error
func (e *PipelineError) WithTroubleshooting(steps ...string) *PipelineError {
	e.Troubleshooting = append(e.Troubleshooting, steps...)
	return e
}

// WithOriginalError adds the original error to the pipeline error
func (e *PipelineError) WithOriginalError(err error) *PipelineError {
	e.OriginalError = err
	return e
}

// ContextKeys returns the context keys in a stable order
func (e *PipelineError) ContextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// As returns the first PipelineError in err's chain.
func As(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsCategory reports whether err carries a PipelineError of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	pe, ok := As(err)
	return ok && pe.Category == category
}

// IsSyntax reports whether err is a syntax error.
func IsSyntax(err error) bool {
	return IsCategory(err, ErrorCategorySyntax)
}

// IsDomain reports whether err was raised through the domain error path.
// Syntax errors are classified separately even though they share the type.
func IsDomain(err error) bool {
	pe, ok := As(err)
	return ok && pe.Category != ErrorCategorySyntax
}
