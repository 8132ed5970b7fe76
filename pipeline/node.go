// Package pipeline implements the DAG scheduler and per-frame evaluator
// described in pipeline.py: a set of Nodes wired by link.Link values,
// evaluated once per frame in topological order with per-pass
// memoization, skip propagation, and optional benchmarking.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/opensight-project/opensight/function"
	"github.com/opensight-project/opensight/link"
)

// PerfCallback is notified of a node's execution duration, once per run,
// only meaningful while the owning Pipeline is benchmarking.
type PerfCallback func(nodeID string, d time.Duration)

// Node is one instantiated Function bound into a Pipeline: its descriptor,
// live instance (constructed lazily), input wiring, and per-pass state.
type Node struct {
	ID       string
	FuncType *function.Descriptor

	inputLinks map[string]link.Link
	instance   function.Instance
	settings   function.Values

	results function.Values
	hasRun  bool
	skip    bool

	perfCallback PerfCallback
}

// NewNode constructs a Node bound to funcType, not yet instantiated.
// Callers must set Settings, then wire inputs via SetStaticLink/SetLink
// before the first Run.
func NewNode(funcType *function.Descriptor, id string, perfCallback PerfCallback) *Node {
	if perfCallback == nil {
		perfCallback = func(string, time.Duration) {}
	}
	return &Node{
		ID:           id,
		FuncType:     funcType,
		inputLinks:   map[string]link.Link{},
		perfCallback: perfCallback,
	}
}

// NodeID returns the node's id, satisfying link.Runnable.
func (n *Node) NodeID() string { return n.ID }

// Settings returns the node's current settings values.
func (n *Node) Settings() function.Values { return n.settings }

// SetSettings replaces the node's settings. Callers decide separately
// whether this requires disposing and reconstructing the live instance
// (the importer's restart policy, per spec.md §4.2).
func (n *Node) SetSettings(s function.Values) { n.settings = s }

// NextFrame resets the per-pass memoization, called once per node at the
// start of every pipeline pass, before skip/run decisions are made.
func (n *Node) NextFrame() {
	n.results = nil
	n.hasRun = false
}

// ResetLinks clears all input wiring, preserving node identity. Used when
// rebuilding a pipeline's links during import, mirroring reset_links.
func (n *Node) ResetLinks() {
	n.inputLinks = map[string]link.Link{}
}

// SetStaticLink binds input name to a constant value.
func (n *Node) SetStaticLink(name string, value interface{}) {
	n.inputLinks[name] = link.NewStaticLink(value)
}

// SetLink binds input name to an upstream node's named output.
func (n *Node) SetLink(name string, upstream *Node, output string) {
	n.inputLinks[name] = link.NewNodeLink(upstream, output)
}

// InputLinks returns the node's current input wiring. Callers must not
// mutate the returned map.
func (n *Node) InputLinks() map[string]link.Link { return n.inputLinks }

// Skip reports whether this node will no-op on its next Run within the
// current pass.
func (n *Node) Skip() bool { return n.skip }

// SetSkip marks this node to no-op on its next Run this pass. Reset to
// false unconditionally at the end of every Pipeline.Run pass.
func (n *Node) SetSkip(v bool) { n.skip = v }

// EnsureInit lazily constructs the live Function instance from the node's
// current settings, a no-op if already constructed.
func (n *Node) EnsureInit() error {
	if n.instance != nil {
		return nil
	}
	instance, err := n.FuncType.New(n.settings)
	if err != nil {
		return fmt.Errorf("pipeline: constructing node %s (%s): %w", n.ID, n.FuncType.Type, err)
	}
	if starter, ok := instance.(function.Starter); ok {
		if err := starter.OnStart(); err != nil {
			instance.Dispose()
			return fmt.Errorf("pipeline: starting node %s (%s): %w", n.ID, n.FuncType.Type, err)
		}
	}
	n.instance = instance
	return nil
}

// Dispose tears down the live instance, if any, and clears it. A disposal
// error is swallowed (the original only logs it) since dispose must never
// block shutdown or re-import.
func (n *Node) Dispose() error {
	if n.instance == nil {
		return nil
	}
	n.instance.Dispose()
	n.instance = nil
	return nil
}

// Run executes the node's Function once per pass: memoized by hasRun,
// lazily constructing the instance, gathering inputs from inputLinks, and
// recording duration via perfCallback. If fewer inputs are wired than the
// descriptor's InputsSchema declares, the node no-ops for this pass
// (results nil) exactly as the original's arity check does — distinct
// from an explicit cancellation skip.
//
// Run satisfies link.Runnable so other nodes may depend on this one's
// output.
func (n *Node) Run() (function.Values, error) {
	return n.RunContext(context.Background())
}

// RunContext is Run with an explicit context, threaded to the underlying
// Function's Run.
func (n *Node) RunContext(ctx context.Context) (function.Values, error) {
	if n.hasRun {
		return n.results, nil
	}

	if err := n.EnsureInit(); err != nil {
		n.hasRun = true
		n.results = nil
		return nil, err
	}

	inputs := function.Values{}
	for name, l := range n.inputLinks {
		v, err := l.Get()
		if err != nil {
			n.hasRun = true
			n.results = nil
			return nil, err
		}
		inputs[name] = v
	}

	if len(inputs) < len(n.FuncType.InputsSchema) {
		n.results = nil
		n.hasRun = true
		return nil, nil
	}

	start := time.Now()
	results, err := n.instance.Run(ctx, inputs)
	elapsed := time.Since(start)
	n.perfCallback(n.ID, elapsed)

	if err != nil {
		n.hasRun = true
		n.results = nil
		return nil, err
	}

	if results == nil {
		results = function.Values{}
	}

	n.results = results
	n.hasRun = true
	return n.results, nil
}
