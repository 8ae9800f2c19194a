package errors

import (
	"fmt"
	"strings"
)

// Common error codes
const (
	// Structural error codes
	CodeEntryGuard       = "001"
	CodeNoTask           = "002"
	CodeMultipleTasks    = "003"
	CodeMissingRun       = "004"
	CodeRunSignature     = "005"
	CodeSelfReference    = "006"
	CodeReferenceArgs    = "007"
	CodeInvalidTarget    = "008"
	CodeModuleNotFound   = "009"
	CodeModuleUnreadable = "010"

	// Cycle error codes
	CodeCycleDetected = "001"

	// Syntax error codes
	CodeSourceSyntax   = "001"
	CodeTargetLocation = "002"
	CodeTargetType     = "003"

	// Runtime error codes
	CodeTaskFailed      = "001"
	CodeUpstreamMissing = "002"
	CodeUndeclaredRef   = "003"
	CodeOutputPublished = "004"

	// Configuration error codes
	CodeConfigInvalid       = "001"
	CodeConfigUnreadable    = "002"
	CodeTaskNotRegistered   = "003"
	CodeUnknownConnector    = "004"
	CodeConnectorOpen       = "005"
	CodeDuplicateRegistered = "006"

	// Target error codes
	CodeTargetWrite   = "001"
	CodeTargetMissing = "002"
	CodeTargetShape   = "003"
	CodeTargetLoad    = "004"
)

// NewStructuralError creates a new structural error
func NewStructuralError(code, message, module string) *PipelineError {
	return NewPipelineError(ErrorCategoryStructural, code, message, "Manifest extraction").
		WithModule(module)
}

// NewSyntaxError creates a new syntax error
func NewSyntaxError(code, message, module string) *PipelineError {
	return NewPipelineError(ErrorCategorySyntax, code, message, "Source parsing").
		WithModule(module)
}

// NewRuntimeError creates a new runtime error
func NewRuntimeError(code, message, module string) *PipelineError {
	return NewPipelineError(ErrorCategoryRuntime, code, message, "Task execution").
		WithModule(module)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(code, message, operation string) *PipelineError {
	return NewPipelineError(ErrorCategoryConfiguration, code, message, operation)
}

// NewTargetError creates a new target error
func NewTargetError(code, message, module string) *PipelineError {
	return NewPipelineError(ErrorCategoryTarget, code, message, "Target materialization").
		WithModule(module)
}

// NewEntryGuardError reports a module carrying a main function
func NewEntryGuardError(module string) *PipelineError {
	return NewStructuralError(CodeEntryGuard,
		fmt.Sprintf("module %s declares func main", module), module).
		WithTroubleshooting(
			"Task modules are loaded by the pipeline and must not be programs",
			"Move the main function into a separate command package",
		)
}

// NewNoTaskError reports a module without a task type
func NewNoTaskError(module string) *PipelineError {
	return NewStructuralError(CodeNoTask,
		fmt.Sprintf("module %s does not declare a task type", module), module).
		WithTroubleshooting("Declare a struct that embeds task.Task")
}

// NewMultipleTasksError reports a module with more than one task type
func NewMultipleTasksError(module string, names []string) *PipelineError {
	return NewStructuralError(CodeMultipleTasks,
		fmt.Sprintf("module %s declares %d task types (%s)", module, len(names), strings.Join(names, ", ")), module).
		WithContext("tasks", names).
		WithTroubleshooting("Split the task types into separate modules")
}

// NewMissingRunError reports a task type without a Run method
func NewMissingRunError(module, taskName string) *PipelineError {
	return NewStructuralError(CodeMissingRun,
		fmt.Sprintf("task %s in %s has no Run method", taskName, module), module).
		WithContext("task", taskName)
}

// NewRunSignatureError reports a Run method with the wrong parameter names
func NewRunSignatureError(module, taskName string, params []string) *PipelineError {
	return NewStructuralError(CodeRunSignature,
		fmt.Sprintf("Run method of %s in %s must take exactly (tasks, hooks), got (%s)",
			taskName, module, strings.Join(params, ", ")), module).
		WithContext("task", taskName).
		WithContext("params", params)
}

// NewSelfReferenceError reports a module referencing itself
func NewSelfReferenceError(module string) *PipelineError {
	return NewStructuralError(CodeSelfReference,
		fmt.Sprintf("module %s references itself", module), module)
}

// NewReferenceArgsError reports a reference call with more than one argument
func NewReferenceArgsError(module string, count int) *PipelineError {
	return NewStructuralError(CodeReferenceArgs,
		fmt.Sprintf("too many arguments in reference call in %s: got %d, want 1", module, count), module)
}

// NewInvalidTargetError reports a target directive that is not a call
func NewInvalidTargetError(module, directive string) *PipelineError {
	return NewStructuralError(CodeInvalidTarget,
		fmt.Sprintf("invalid target declaration in %s: %q", module, directive), module).
		WithTroubleshooting(`Targets are written as //task:Target(TYPE, "location")`)
}

// NewModuleNotFoundError reports a reference that no search path resolves
func NewModuleNotFoundError(ref string, searched []string) *PipelineError {
	return NewStructuralError(CodeModuleNotFound,
		fmt.Sprintf("module %s not found", ref), ref).
		WithContext("search_paths", searched).
		WithTroubleshooting(
			"Check the path passed to tasks.Ref",
			"Add the directory holding the module to search_paths in project.toml",
		)
}

// NewCycleError reports a dependency cycle. The path starts and ends with the same module.
func NewCycleError(path []string) *PipelineError {
	return NewPipelineError(ErrorCategoryCycle, CodeCycleDetected,
		fmt.Sprintf("cycle detected: %s", strings.Join(path, " -> ")), "Graph assembly").
		WithContext("cycle", path).
		WithTroubleshooting("Remove one of the tasks.Ref calls along the cycle")
}

// NewSourceSyntaxError reports a module that does not parse
func NewSourceSyntaxError(module string, err error) *PipelineError {
	return NewSyntaxError(CodeSourceSyntax,
		fmt.Sprintf("cannot parse %s", module), module).
		WithOriginalError(err)
}

// NewTaskNotRegisteredError reports a graph node with no registered runner
func NewTaskNotRegisteredError(module string) *PipelineError {
	return NewConfigurationError(CodeTaskNotRegistered,
		fmt.Sprintf("no task registered for %s", module), "Task lookup").
		WithModule(module).
		WithTroubleshooting(
			"Call task.Register from an init function in the module",
			"Blank-import the package holding the modules from your main package",
		)
}

// NewUpstreamMissingError reports a reference to an output that has not been published
func NewUpstreamMissingError(module, ref string) *PipelineError {
	return NewRuntimeError(CodeUpstreamMissing,
		fmt.Sprintf("output of %s is not available to %s", ref, module), module).
		WithContext("reference", ref)
}
