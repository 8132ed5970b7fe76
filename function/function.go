// Package function defines the Function contract: the registration
// descriptor every pluggable node type supplies at module init, and the
// live Instance interface produced by construction.
//
// spec.md §9 replaces the original's runtime reflection over dataclasses
// with an explicit descriptor: schemas are values, not language-level
// types.
package function

import (
	"context"

	"github.com/opensight-project/opensight/widget"
)

// Field is one entry of a Settings schema: a name, a widget type, and an
// optional declared default. Default is nil when the field has none.
type Field struct {
	Name    string
	Type    widget.Type
	Default interface{}
}

// Settings describes the ordered list of a Function's settings fields,
// mirroring SettingTypes (a list, preserving declaration order, unlike a
// map) since the Importer must report field errors predictably.
type Settings []Field

// IOSchema describes a Function's Inputs or Outputs: name to widget type.
// Unlike Settings, the original's InputTypes/OutputTypes carry no
// defaults, so a plain map is sufficient.
type IOSchema map[string]widget.Type

// Values is a set of named values flowing through Inputs, Outputs, or
// Settings at runtime. Keys match the corresponding schema's field names.
//
// Values is a type alias (not a defined type) so that it is identical to
// map[string]interface{} for interface-satisfaction purposes: pipeline.Node
// implements link.Runnable's Run() (map[string]interface{}, error) while
// still being written and read as function.Values throughout this package.
type Values = map[string]interface{}

// Instance is a live Function instance, produced by a Descriptor's New
// constructor and bound to one Node for its lifetime until disposed.
type Instance interface {
	// Run executes one evaluation, called at most once per pass per Node.
	Run(ctx context.Context, inputs Values) (Values, error)

	// Dispose idempotently tears down the instance. After Dispose returns,
	// Run must not be called again.
	Dispose()
}

// Starter is implemented by instances with start-up side effects beyond
// construction; OnStart is called once, immediately after New succeeds.
// Failure disposes the instance and propagates, per spec.md §4.1.
type Starter interface {
	OnStart() error
}

// Descriptor is the registration-level metadata a module supplies for one
// Function type, assembled once at module init and never mutated
// afterward. The Manager assigns Type at registration time.
type Descriptor struct {
	// Name is the unqualified Go-level name, e.g. "Sum".
	Name string

	// Type is "package/Name", assigned by the Manager at registration.
	Type string

	SettingsSchema Settings
	InputsSchema   IOSchema
	OutputsSchema  IOSchema

	// HasSideEffect marks this Function as an evaluation root whose
	// subgraph the Importer's pruning pass must never drop.
	HasSideEffect bool

	// RequireRestart, when true, forces dispose+reconstruct whenever
	// settings change. When false, settings are replaced in place.
	RequireRestart bool

	// AlwaysRestart forces dispose+reconstruct on every settings import,
	// regardless of whether settings actually changed.
	AlwaysRestart bool

	// Disabled excludes this Function from registration entirely.
	Disabled bool

	// ForceEnabled includes this Function even when the Manager is
	// filtering registration to functions declared in the module under
	// load (used by modules that re-export functions from elsewhere).
	ForceEnabled bool

	// New constructs a live Instance from validated settings. Construction
	// failure must leave no partially initialized state visible: callers
	// should make New either fully succeed or return a non-nil error with
	// a nil instance.
	New func(settings Values) (Instance, error)

	// ValidateSettings performs cross-field validation beyond per-field
	// widget range checks, returning the (possibly coerced) settings or a
	// domain error. A nil ValidateSettings is treated as the identity
	// function.
	ValidateSettings func(settings Values) (Values, error)
}

// Validate enforces the registration-time invariants from spec.md §4.1:
// Settings/Inputs/Outputs schemas exist (may be empty), and a function with
// RequireRestart must be well-formed regardless of Inputs shape — Go's
// descriptor has no field-name-matching requirement the way the original's
// "require_restart names only fields of Inputs" check did, since in this
// design RequireRestart is a Node-level restart policy keyed on settings
// equality, not a per-field list.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return errDescriptor("descriptor has no Name")
	}
	if d.New == nil {
		return errDescriptor("descriptor " + d.Name + " has no New constructor")
	}
	return nil
}

type descriptorError string

func (e descriptorError) Error() string { return string(e) }

func errDescriptor(msg string) error { return descriptorError(msg) }
