package importer

import (
	"context"
	"fmt"
	"reflect"

	"github.com/opensight-project/opensight/concurrency"
	"github.com/opensight-project/opensight/emit"
	"github.com/opensight-project/opensight/function"
	"github.com/opensight-project/opensight/manager"
	"github.com/opensight-project/opensight/metrics"
	"github.com/opensight-project/opensight/opsierr"
	"github.com/opensight-project/opensight/pipeline"
	"github.com/opensight-project/opensight/widget"
)

// Importer applies proposed nodetrees to a live Pipeline under the FIFO
// lock, mirroring import_nodetree's pruning, settings/inputs processing,
// restart policy, and dry-run-then-commit transaction.
type Importer struct {
	manager  *manager.Manager
	pipeline *pipeline.Pipeline
	lock     *concurrency.FifoLock
	emitter  emit.Emitter
	metrics  *metrics.PrometheusMetrics
}

// Option configures an Importer.
type Option func(*Importer)

// WithEmitter sets the Emitter used for import diagnostics.
func WithEmitter(e emit.Emitter) Option { return func(i *Importer) { i.emitter = e } }

// WithMetrics sets the metrics sink used to record import outcomes.
func WithMetrics(m *metrics.PrometheusMetrics) Option { return func(i *Importer) { i.metrics = m } }

// New constructs an Importer bound to the given registry, pipeline, and
// FIFO lock.
func New(mgr *manager.Manager, p *pipeline.Pipeline, lock *concurrency.FifoLock, opts ...Option) *Importer {
	imp := &Importer{manager: mgr, pipeline: p, lock: lock, emitter: emit.NullEmitter{}}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// Apply validates and applies tree to the pipeline, returning tree itself
// (the original proposal, not the pruned one — per the original, the
// *original* tree is what the caller persists) on success, or an
// *opsierr.ImportError on failure. Apply does not persist anything.
//
// When forceSave is true, per-node errors (bad settings, a Function
// constructor failure) are tolerated rather than aborting the whole
// import: a node whose settings or inputs fail to process stays in the
// pipeline as far as it got configured, and a node whose constructor
// fails is removed from the pipeline; structural errors (an unknown
// function type, a dangling link, a cycle) always abort regardless of
// forceSave, per SPEC_FULL.md §5.1's resolved force_save scope.
func (imp *Importer) Apply(ctx context.Context, tree NodeTreeSpec, forceSave bool) (NodeTreeSpec, error) {
	// Structural validation (spec.md §4.4 Algorithm step 1): reject a
	// dangling link or a cycle before touching the live pipeline at all, so
	// that on rejection the prior graph is left running untouched rather
	// than cleared and marked broken (Testable Property #4). This check
	// looks only at the proposed tree's own edges, independent of function
	// type resolution or side-effect reachability.
	if err := validateGraphShape(tree); err != nil {
		imp.recordOutcome("rejected")
		return NodeTreeSpec{}, err
	}

	pruned, err := imp.removeUnneededNodes(tree)
	if err != nil {
		imp.recordOutcome("rejected")
		return NodeTreeSpec{}, err
	}

	keepIDs := map[string]bool{}
	for _, n := range pruned.Nodes {
		keepIDs[n.ID] = true
	}

	release, err := imp.lock.Lock(ctx)
	if err != nil {
		return NodeTreeSpec{}, err
	}
	defer release()

	imp.pipeline.PruneNodetree(keepIDs)

	for _, spec := range pruned.Nodes {
		if _, exists := imp.pipeline.Node(spec.ID); exists {
			continue
		}
		descriptor, ok := imp.manager.Lookup(spec.Type)
		if !ok {
			imp.recordOutcome("rejected")
			return NodeTreeSpec{}, &opsierr.ImportError{
				Message:  "unknown function type",
				NodeID:   spec.ID,
				FuncType: spec.Type,
				Cause:    opsierr.ErrFunctionNotFound,
			}
		}
		imp.pipeline.CreateNode(descriptor, spec.ID)
	}

	for _, spec := range pruned.Nodes {
		if err := imp.processNodeSettings(spec); err != nil {
			if !forceSave {
				imp.markBroken()
				imp.recordOutcome("rejected")
				return NodeTreeSpec{}, err
			}
			continue
		}
		if err := imp.processNodeInputs(spec, keepIDs); err != nil {
			if !forceSave {
				imp.markBroken()
				imp.recordOutcome("rejected")
				return NodeTreeSpec{}, err
			}
			continue
		}
	}

	for _, spec := range pruned.Nodes {
		n, ok := imp.pipeline.Node(spec.ID)
		if !ok {
			continue
		}
		if err := n.EnsureInit(); err != nil {
			imp.pipeline.RemoveNode(spec.ID)
			keepIDs = removeID(keepIDs, spec.ID)
			if !forceSave {
				imp.markBroken()
				imp.recordOutcome("rejected")
				return NodeTreeSpec{}, &opsierr.ImportError{
					Message:  "error creating function",
					NodeID:   spec.ID,
					FuncType: spec.Type,
					Cause:    err,
				}
			}
		}
	}

	cancelCurrent := func() {
		current := imp.pipeline.Current()
		if current == "" {
			return
		}
		imp.pipeline.CancelNodes(imp.pipeline.Dependents(current))
	}

	var runErr error
	onNodeError := func(nodeID string, err error) {
		imp.emitter.Emit(emit.Event{NodeID: nodeID, Msg: fmt.Sprintf("dry-run node error: %s", err)})
	}

	if err := imp.pipeline.Run(cancelCurrent, onNodeError); err != nil {
		runErr = err
	}

	if runErr != nil {
		imp.markBroken()
		imp.recordOutcome("rejected")
		if forceSave {
			return tree, &opsierr.ImportError{
				Message: "failed test run due to structural error, saved anyway under force_save",
				Cause:   runErr,
			}
		}
		return NodeTreeSpec{}, &opsierr.ImportError{
			Message: "failed test run",
			NodeID:  imp.pipeline.Current(),
			Cause:   runErr,
		}
	}

	imp.manager.PipelineUpdate()
	imp.pipeline.SetBroken(false)
	imp.recordOutcome("accepted")
	return tree, nil
}

func removeID(ids map[string]bool, id string) map[string]bool {
	next := map[string]bool{}
	for k, v := range ids {
		if k != id {
			next[k] = v
		}
	}
	return next
}

// markBroken clears the live pipeline's link wiring and marks it broken,
// mirroring NodeTreeImportError.__init__'s pipeline.clear() + broken=True:
// any import error from settings/input processing, function construction,
// or the dry-run pass onward (spec.md §4.4 step 7) must leave the
// evaluator no-oping on a cleared graph, never running the half-built one
// PruneNodetree/CreateNode already installed under the lock.
func (imp *Importer) markBroken() {
	imp.pipeline.Clear()
	imp.pipeline.SetBroken(true)
}

func (imp *Importer) recordOutcome(result string) {
	if imp.metrics != nil {
		imp.metrics.IncrementImports(result)
	}
}

// validateGraphShape rejects a proposed tree whose input links reference a
// node id outside the tree, or whose link graph contains a cycle, mirroring
// _build_nodetree_graph's construction in webserver/nodetree.py. It runs
// before any other step, purely against the proposed NodeSpecs — no
// function-type lookup, no pipeline access — so a rejection here never
// touches the live pipeline.
func validateGraphShape(tree NodeTreeSpec) error {
	byID := map[string]NodeSpec{}
	for _, n := range tree.Nodes {
		byID[n.ID] = n
	}

	for _, n := range tree.Nodes {
		for name, input := range n.Inputs {
			if input.Link == nil {
				continue
			}
			if _, ok := byID[input.Link.NodeID]; !ok {
				return &opsierr.ImportError{
					Message:  fmt.Sprintf("input %q references nonexistent node %q", name, input.Link.NodeID),
					NodeID:   n.ID,
					FuncType: n.Type,
					Cause:    opsierr.ErrDanglingLink,
				}
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := map[string]int{}

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return &opsierr.ImportError{
				Message: "cycle detected in nodetree",
				NodeID:  id,
				Cause:   opsierr.ErrCycleDetected,
			}
		}
		state[id] = visiting
		for _, input := range byID[id].Inputs {
			if input.Link == nil {
				continue
			}
			if err := visit(input.Link.NodeID); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for _, n := range tree.Nodes {
		if state[n.ID] == unvisited {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}

	return nil
}

// removeUnneededNodes prunes nodes unreachable, by input links, from any
// has_sideeffect node, mirroring _remove_unneeded_nodes. It runs before any
// settings validation and always aborts (regardless of forceSave) on an
// unknown function type, matching the original's unconditional raise.
func (imp *Importer) removeUnneededNodes(tree NodeTreeSpec) (NodeTreeSpec, error) {
	byID := map[string]NodeSpec{}
	var roots []string

	for _, n := range tree.Nodes {
		byID[n.ID] = n
		descriptor, ok := imp.manager.Lookup(n.Type)
		if !ok {
			return NodeTreeSpec{}, &opsierr.ImportError{
				Message:  "unknown function",
				NodeID:   n.ID,
				FuncType: n.Type,
				Cause:    opsierr.ErrFunctionNotFound,
			}
		}
		if descriptor.HasSideEffect {
			roots = append(roots, n.ID)
		}
	}

	visited := map[string]bool{}
	queue := append([]string(nil), roots...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		spec, ok := byID[id]
		if !ok {
			continue
		}
		for _, input := range spec.Inputs {
			if input.Link == nil {
				continue
			}
			queue = append(queue, input.Link.NodeID)
		}
	}

	var kept []NodeSpec
	for _, n := range tree.Nodes {
		if visited[n.ID] {
			kept = append(kept, n)
		}
	}

	return NodeTreeSpec{Nodes: kept}, nil
}

// processNodeSettings resolves each settings field (provided value → field
// default → widget zero value → error, per spec.md §4.4 step 4), applies
// Descriptor.ValidateSettings, and decides whether the restart policy
// requires disposing the node's live instance.
func (imp *Importer) processNodeSettings(spec NodeSpec) error {
	n, ok := imp.pipeline.Node(spec.ID)
	if !ok {
		return &opsierr.ImportError{Message: "internal error: node vanished mid-import", NodeID: spec.ID}
	}

	for _, v := range spec.Settings {
		if v == nil {
			return &opsierr.ImportError{Message: "settings cannot contain a None value", NodeID: spec.ID, FuncType: spec.Type}
		}
	}

	resolved := function.Values{}
	for _, field := range n.FuncType.SettingsSchema {
		provided, has := spec.Settings[field.Name]
		var value interface{}

		switch {
		case has:
			converted, err := applyWidget(field.Type, provided)
			if err != nil {
				return &opsierr.ImportError{Message: fmt.Sprintf("invalid setting %q: %s", field.Name, err), NodeID: spec.ID, FuncType: spec.Type, Cause: err}
			}
			value = converted
		case field.Default != nil:
			value = field.Default
		default:
			def, ok := field.Type.DefaultValue()
			if !ok {
				return &opsierr.ImportError{Message: fmt.Sprintf("missing required setting %q", field.Name), NodeID: spec.ID, FuncType: spec.Type, Cause: opsierr.ErrSettingsRequired}
			}
			value = def
		}

		resolved[field.Name] = value
	}

	if n.FuncType.ValidateSettings != nil {
		validated, err := n.FuncType.ValidateSettings(resolved)
		if err != nil {
			return &opsierr.ImportError{Message: "settings failed validation", NodeID: spec.ID, FuncType: spec.Type, Cause: err}
		}
		resolved = validated
	}

	needsRestart := n.FuncType.AlwaysRestart ||
		(n.FuncType.RequireRestart && n.Settings() != nil && !reflect.DeepEqual(n.Settings(), resolved))

	if needsRestart {
		_ = n.Dispose()
	}

	n.SetSettings(resolved)
	return nil
}

// applyWidget coerces/validates a raw provided value against its widget
// type. Range and Slide require coercion/validation; every other kind
// passes its value through unchanged, mirroring _process_widget.
func applyWidget(t widget.Type, val interface{}) (interface{}, error) {
	switch t.Kind {
	case widget.KindRange:
		m, ok := val.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a {min,max} range value, got %T", val)
		}
		lo, okLo := toFloat(m["min"])
		hi, okHi := toFloat(m["max"])
		if !okLo || !okHi {
			return nil, fmt.Errorf("range value missing numeric min/max")
		}
		return t.Create(lo, hi)
	case widget.KindSlide:
		f, ok := toFloat(val)
		if !ok {
			return nil, fmt.Errorf("expected a numeric slide value, got %T", val)
		}
		return t.CreateSlide(f)
	default:
		return val, nil
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// processNodeInputs wires each of the node's inputs: a link to another
// kept node, or a static value, mirroring _process_node_links and
// _process_node_inputs. A link to a pruned/unknown node, or a missing
// static value, is a hard import error.
func (imp *Importer) processNodeInputs(spec NodeSpec, keepIDs map[string]bool) error {
	n, ok := imp.pipeline.Node(spec.ID)
	if !ok {
		return &opsierr.ImportError{Message: "internal error: node vanished mid-import", NodeID: spec.ID}
	}

	for name := range n.FuncType.InputsSchema {
		input, has := spec.Inputs[name]

		if has && input.Link != nil && keepIDs[input.Link.NodeID] {
			if err := imp.pipeline.CreateLink(spec.ID, name, input.Link.NodeID, input.Link.Output); err != nil {
				return &opsierr.ImportError{Message: "unknown error, please try again", NodeID: spec.ID, FuncType: spec.Type, Cause: err}
			}
			continue
		}

		if !has || input.Value == nil {
			return &opsierr.ImportError{Message: fmt.Sprintf("missing input %q", name), NodeID: spec.ID, FuncType: spec.Type, Cause: opsierr.ErrDanglingLink}
		}

		fieldType := n.FuncType.InputsSchema[name]
		converted, err := applyWidget(fieldType, input.Value)
		if err != nil {
			return &opsierr.ImportError{Message: fmt.Sprintf("invalid input %q: %s", name, err), NodeID: spec.ID, FuncType: spec.Type, Cause: err}
		}
		n.SetStaticLink(name, converted)
	}

	return nil
}
