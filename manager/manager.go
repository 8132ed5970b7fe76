// Package manager implements the module registry described in
// manager.py's Manager class: a place for modules to register their
// Function descriptors and, optionally, a hook.Bus, and for the runtime
// to look up a Function by its qualified type ("package/Name") when
// building nodes.
//
// Go has no equivalent of manager.py's import_module (importing an
// arbitrary file path at runtime by name): modules here are ordinary Go
// packages that expose a Descriptors function returning
// []*function.Descriptor (demo's takes the module's *hook.Bus),
// and the caller (typically cmd/opensight/main.go) registers each one
// explicitly. What survives from the original is the registration
// behavior itself: one bad Function must never abort the whole module's
// registration, and at most one Bus may be bound per module.
package manager

import (
	"fmt"

	"github.com/opensight-project/opensight/emit"
	"github.com/opensight-project/opensight/function"
	"github.com/opensight-project/opensight/hook"
)

// ModuleInfo carries metadata about a registered module, mirroring
// manager_schema.py's ModuleInfo.
type ModuleInfo struct {
	Package string
	Version string
}

// ModuleItem is one entry in a Manager's Modules map: the module's info
// plus its registered Functions, keyed by unqualified name.
type ModuleItem struct {
	Info  ModuleInfo
	Funcs map[string]*function.Descriptor
}

type managerConfig struct {
	emitter emit.Emitter
}

// Option configures a Manager at construction.
type Option func(*managerConfig)

// WithEmitter sets the Emitter used for registration diagnostics. Defaults
// to emit.NullEmitter{} if unset.
func WithEmitter(e emit.Emitter) Option {
	return func(c *managerConfig) { c.emitter = e }
}

// Manager is the module and Function registry shared by one Pipeline.
type Manager struct {
	pipelineView hook.PipelineView
	emitter      emit.Emitter

	modules map[string]*ModuleItem
	funcs   map[string]*function.Descriptor
	hooks   map[string]*hook.Bus
}

// New constructs a Manager bound to pipelineView, the PipelineView every
// registered module's Bus (if any) is bound against.
func New(pipelineView hook.PipelineView, opts ...Option) *Manager {
	cfg := managerConfig{emitter: emit.NullEmitter{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{
		pipelineView: pipelineView,
		emitter:      cfg.emitter,
		modules:      map[string]*ModuleItem{},
		funcs:        map[string]*function.Descriptor{},
		hooks:        map[string]*hook.Bus{},
	}
}

// RegisterModule registers one module's Function descriptors and, if
// bus is non-nil, its hook.Bus. A descriptor that fails validation or is
// marked Disabled is skipped and logged; it never aborts registration of
// the module's other descriptors, mirroring is_valid_function's per-
// function filtering in manager.py.
//
// A Function whose qualified type collides with an already-registered one
// is a registration error for that item alone (spec.md §4.2: "Duplicate
// qualified names across modules are rejected"): the first registration
// wins, the duplicate is logged and dropped, and the rest of the module's
// descriptors still register normally.
func (m *Manager) RegisterModule(info ModuleInfo, descriptors []*function.Descriptor, bus *hook.Bus) error {
	if _, exists := m.modules[info.Package]; exists {
		return fmt.Errorf("manager: module %q already registered", info.Package)
	}

	funcs := map[string]*function.Descriptor{}

	for _, d := range descriptors {
		if d == nil {
			continue
		}
		if d.Disabled {
			m.emit("module %s: function %s is disabled, skipping", info.Package, d.Name)
			continue
		}
		if err := d.Validate(); err != nil {
			m.emit("module %s: function %s failed validation (%s), skipping", info.Package, d.Name, err)
			continue
		}

		qualified := info.Package + "/" + d.Name
		if _, collision := m.funcs[qualified]; collision {
			m.emit("module %s: function %s duplicates an existing qualified name, dropping", info.Package, d.Name)
			continue
		}
		d.Type = qualified

		funcs[d.Name] = d
		m.funcs[qualified] = d
	}

	m.modules[info.Package] = &ModuleItem{Info: info, Funcs: funcs}

	if bus != nil {
		m.hooks[info.Package] = bus
		bus.BindPipeline(m.pipelineView)
		bus.Startup()
	}

	return nil
}

// Lookup returns the Descriptor registered under qualified type
// "package/Name", or (nil, false) if none exists.
func (m *Manager) Lookup(funcType string) (*function.Descriptor, bool) {
	d, ok := m.funcs[funcType]
	return d, ok
}

// Modules returns the registered modules, keyed by package name. Callers
// must not mutate the returned map.
func (m *Manager) Modules() map[string]*ModuleItem {
	return m.modules
}

// Hooks returns the registered module hook.Bus values, keyed by package
// name, for the HTTP layer to mount any sub-applications they expose
// under /hooks/<package> per spec.md §4.5. Callers must not mutate the
// returned map.
func (m *Manager) Hooks() map[string]*hook.Bus {
	return m.hooks
}

// PipelineUpdate notifies every registered module's Bus that the pipeline
// changed shape, called once per successful nodetree import.
func (m *Manager) PipelineUpdate() {
	for _, bus := range m.hooks {
		bus.PipelineUpdate()
	}
}

// Shutdown notifies every registered module's Bus that the runtime is
// shutting down.
func (m *Manager) Shutdown() {
	for _, bus := range m.hooks {
		bus.Shutdown()
	}
}

func (m *Manager) emit(format string, args ...interface{}) {
	m.emitter.Emit(emit.Event{
		Msg:  fmt.Sprintf(format, args...),
		Meta: nil,
	})
}
