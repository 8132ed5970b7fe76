// Package hook provides the per-module event bus described in
// manager_schema.py's Hook class: startup/shutdown/pipeline_update
// listeners, and the cancellation entry points (cancel_node,
// cancel_current, cancel_output) a Function uses to skip its own
// downstream consumers.
//
// Bus depends on the pipeline only through the narrow PipelineView
// interface below, so this package never imports pipeline — pipeline
// imports hook and passes itself in, satisfying PipelineView
// structurally.
package hook

import (
	"net/http"
	"sync"
)

// PipelineView is the subset of Pipeline behavior a Bus needs: computing a
// node's downstream dependents, finding consumers of one named output,
// applying a skip set, reading the current node, and reading FPS.
type PipelineView interface {
	// Current returns the id of the node presently executing, or "" if
	// none (evaluation not in progress).
	Current() string

	// Dependents returns the full transitive closure of nodes that
	// consume, directly or indirectly, the output of node. Per spec.md
	// §9's resolved Open Question, this must be the full closure, not a
	// single path.
	Dependents(nodeID string) []string

	// OutputConsumers returns the ids of nodes with an input link bound
	// to node's named output.
	OutputConsumers(nodeID, output string) []string

	// CancelNodes marks every node in ids to be skipped on its next run
	// this pass.
	CancelNodes(ids []string)

	// FPS returns the pipeline's current instantaneous frames-per-second
	// reading.
	FPS() float64

	// Snapshot returns a value that changes whenever the node set changes,
	// used to invalidate the Bus's dependency caches the same way the
	// original compares lastPipeline against pipeline.nodes.
	Snapshot() interface{}
}

// Listener is a zero-argument callback registered against a lifecycle
// event.
type Listener func()

// Event names a lifecycle event a Listener may subscribe to.
type Event string

const (
	EventStartup        Event = "startup"
	EventShutdown        Event = "shutdown"
	EventPipelineUpdate Event = "pipeline_update"
)

// Bus is one module's hook: lifecycle listeners plus cancellation helpers
// bound to a Pipeline once that Pipeline is available.
type Bus struct {
	mu sync.Mutex

	pipeline PipelineView

	listeners map[Event][]Listener

	lastSnapshot interface{}
	skipCache    map[string][]string
	depsCache    map[string]map[string][]string

	subApp http.Handler
}

// NewBus constructs an unbound Bus; call BindPipeline before using the
// cancellation methods.
func NewBus() *Bus {
	return &Bus{
		listeners: map[Event][]Listener{
			EventStartup:        nil,
			EventShutdown:        nil,
			EventPipelineUpdate: nil,
		},
		skipCache: map[string][]string{},
		depsCache: map[string]map[string][]string{},
	}
}

// BindPipeline attaches the live Pipeline this Bus caches against. Modules
// register their Bus before the pipeline exists, so binding happens during
// manager.RegisterModule.
func (b *Bus) BindPipeline(p PipelineView) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pipeline = p
}

func (b *Bus) updateCacheLocked() {
	snap := b.pipeline.Snapshot()
	if b.lastSnapshot != snap {
		b.skipCache = map[string][]string{}
		b.depsCache = map[string]map[string][]string{}
	}
	b.lastSnapshot = snap
}

// GetSkips returns (and caches) the full set of nodes that must be skipped
// when nodeID is cancelled.
func (b *Bus) GetSkips(nodeID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updateCacheLocked()

	if skip, ok := b.skipCache[nodeID]; ok {
		return skip
	}
	skip := b.pipeline.Dependents(nodeID)
	b.skipCache[nodeID] = skip
	return skip
}

// GetOutputDeps returns (and caches) the nodes directly consuming nodeID's
// named output.
func (b *Bus) GetOutputDeps(nodeID, output string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updateCacheLocked()

	byOutput, ok := b.depsCache[nodeID]
	if !ok {
		byOutput = map[string][]string{}
		b.depsCache[nodeID] = byOutput
	}
	if deps, ok := byOutput[output]; ok {
		return deps
	}
	deps := b.pipeline.OutputConsumers(nodeID, output)
	byOutput[output] = deps
	return deps
}

// CancelNode cancels nodeID's full downstream closure.
func (b *Bus) CancelNode(nodeID string) {
	skip := b.GetSkips(nodeID)
	b.mu.Lock()
	p := b.pipeline
	b.mu.Unlock()
	p.CancelNodes(skip)
}

// CancelCurrent cancels the downstream closure of the node presently
// executing, per Function.run calling ctx hooks mid-execution.
func (b *Bus) CancelCurrent() {
	b.mu.Lock()
	p := b.pipeline
	b.mu.Unlock()
	b.CancelNode(p.Current())
}

// CancelOutput cancels every direct consumer of the current node's named
// output, and, transitively, each one's own downstream closure. Unlike
// CancelCurrent (which skips only what's downstream of an already-running
// node), the direct consumers here are themselves downstream of the
// cancelled output and must be skipped too — spec.md §8's Switch/Sum
// scenario requires the immediate consumer on the unchosen branch to have
// skip=true, not just its further dependents.
func (b *Bus) CancelOutput(output string) {
	b.mu.Lock()
	p := b.pipeline
	b.mu.Unlock()
	current := p.Current()

	var skip []string
	for _, dep := range b.GetOutputDeps(current, output) {
		skip = append(skip, dep)
		skip = append(skip, b.GetSkips(dep)...)
	}
	p.CancelNodes(skip)
}

// AddListener subscribes fn to event.
func (b *Bus) AddListener(event Event, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[event] = append(b.listeners[event], fn)
}

// Startup invokes every startup listener, in registration order.
func (b *Bus) Startup() { b.fire(EventStartup) }

// Shutdown invokes every shutdown listener, in registration order.
func (b *Bus) Shutdown() { b.fire(EventShutdown) }

// PipelineUpdate invokes every pipeline_update listener, in registration
// order, called once per successful nodetree import.
func (b *Bus) PipelineUpdate() { b.fire(EventPipelineUpdate) }

func (b *Bus) fire(event Event) {
	b.mu.Lock()
	fns := append([]Listener(nil), b.listeners[event]...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// SetSubApp registers an HTTP handler this module wants mounted under
// /hooks/<package> by the external HTTP layer, per spec.md §4.5. The core
// itself never interprets the handler; it is only carried for the caller
// (httpapi) to mount.
func (b *Bus) SetSubApp(h http.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subApp = h
}

// SubApp returns the registered sub-application handler, or nil if this
// module does not expose one.
func (b *Bus) SubApp() http.Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subApp
}

// FPS returns the bound pipeline's current instantaneous FPS.
func (b *Bus) FPS() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pipeline == nil {
		return 0
	}
	return b.pipeline.FPS()
}
