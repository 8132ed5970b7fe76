// Package opsierr provides the error types shared across the OpenSight runtime.
package opsierr

import "errors"

// Sentinel errors for fixed conditions raised by the manager, pipeline, and
// importer. Callers should use errors.Is against these rather than comparing
// messages.
var (
	// ErrFunctionNotFound is returned when a nodetree references a function
	// type that is not registered with the Manager.
	ErrFunctionNotFound = errors.New("function type not registered")

	// ErrModuleNotFound is returned when a module package name is unknown.
	ErrModuleNotFound = errors.New("module not found")

	// ErrCycleDetected is returned by the importer when the proposed
	// nodetree contains a cycle in its link graph.
	ErrCycleDetected = errors.New("cycle detected in nodetree")

	// ErrDanglingLink is returned when a NodeLink references a node or
	// output name that does not exist in the proposed nodetree.
	ErrDanglingLink = errors.New("link references a nonexistent node or output")

	// ErrPipelineBroken names the state a failed import leaves the pipeline
	// in. Pipeline.Run does not return it: while Pipeline.Broken is true,
	// Run returns nil without evaluating any node.
	ErrPipelineBroken = errors.New("pipeline is broken, last import failed")

	// ErrSettingsRequired is returned when a Function's setting has no
	// provided value, no declared field default, and its widget type has
	// no zero-value construction.
	ErrSettingsRequired = errors.New("setting has no value and no usable default")

	// ErrNodeNotFound is returned when an operation references a node id
	// that is not present in the pipeline.
	ErrNodeNotFound = errors.New("node not found")
)

// ImportError is returned by Importer.Apply when a proposed nodetree is
// rejected. It carries enough context for an HTTP handler to build the
// 400 response shape described in SPEC_FULL.md: node id, function type,
// and a human-readable message.
type ImportError struct {
	// Message is the human-readable description of the failure.
	Message string

	// NodeID identifies the offending node, empty for graph-structural
	// errors that are not attributable to one node (e.g. a cycle spanning
	// several nodes).
	NodeID string

	// FuncType is the function type name of the offending node, if known.
	FuncType string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ImportError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + " (" + e.FuncType + "): " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/errors.As support.
func (e *ImportError) Unwrap() error {
	return e.Cause
}

// FunctionError wraps an error raised by a Function's own lifecycle method
// (construct, run, dispose, validate_settings) with the function's node and
// type context, mirroring graph.NodeError's shape.
type FunctionError struct {
	Message  string
	NodeID   string
	FuncType string
	Cause    error
}

// Error implements the error interface.
func (e *FunctionError) Error() string {
	if e.NodeID != "" {
		return "function " + e.FuncType + " on node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/errors.As support.
func (e *FunctionError) Unwrap() error {
	return e.Cause
}
