package pipeline

import (
	"time"

	"github.com/opensight-project/opensight/function"
	"github.com/opensight-project/opensight/opsierr"
)

// Pipeline holds the DAG of Nodes, their dependency adjacency, a cached
// topological run order, and the per-frame evaluator, mirroring
// pipeline.py's Pipeline class. It satisfies hook.PipelineView so a
// hook.Bus can be bound against it without creating an import cycle.
type Pipeline struct {
	nodes     map[string]*Node
	adjacency map[string]map[string]bool // id -> set of ids it depends on

	runOrder []string
	current  string
	broken   bool

	fps         *fpsCounter
	benchmarking bool
	perf        *Performance

	generation int // bumped on any structural change, backs Snapshot()
}

// New constructs an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{
		nodes:     map[string]*Node{},
		adjacency: map[string]map[string]bool{},
		fps:       newFPSCounter(time.Now()),
	}
}

// Broken reports whether the pipeline is in the broken state set by a
// failed dry-run import; Run no-ops while broken.
func (p *Pipeline) Broken() bool { return p.broken }

// SetBroken sets or clears the broken flag, used by the importer to mark
// a pipeline unusable after a failed dry run, and to clear it again after
// a successful one.
func (p *Pipeline) SetBroken(v bool) { p.broken = v }

// Nodes returns the pipeline's current node set. Callers must not mutate
// the returned map.
func (p *Pipeline) Nodes() map[string]*Node { return p.nodes }

// Node looks up a node by id.
func (p *Pipeline) Node(id string) (*Node, bool) {
	n, ok := p.nodes[id]
	return n, ok
}

// CreateNode instantiates a new Node of funcType under id and registers it
// in the pipeline's node set and adjacency, invalidating the cached run
// order. The caller is responsible for wiring links and settings
// afterward, mirroring create_node's contract.
func (p *Pipeline) CreateNode(funcType *function.Descriptor, id string) *Node {
	p.runOrder = nil
	n := NewNode(funcType, id, p.perfCallback)
	p.nodes[id] = n
	p.adjacency[id] = map[string]bool{}
	p.generation++
	return n
}

// CreateLink wires inputNodeID's input named inputName to outputNodeID's
// named output, updating adjacency and invalidating the cached run order.
func (p *Pipeline) CreateLink(inputNodeID, inputName, outputNodeID, outputName string) error {
	inputNode, ok := p.nodes[inputNodeID]
	if !ok {
		return &unknownNodeError{id: inputNodeID}
	}
	outputNode, ok := p.nodes[outputNodeID]
	if !ok {
		return &unknownNodeError{id: outputNodeID}
	}

	p.runOrder = nil
	p.adjacency[inputNodeID][outputNodeID] = true
	inputNode.SetLink(inputName, outputNode, outputName)
	p.generation++
	return nil
}

type unknownNodeError struct{ id string }

func (e *unknownNodeError) Error() string { return "pipeline: unknown node id " + e.id }

func (e *unknownNodeError) Unwrap() error { return opsierr.ErrNodeNotFound }

// Clear disables benchmarking, invalidates the cached run order, and
// resets every node's input wiring while preserving node identity,
// mirroring Pipeline.clear.
func (p *Pipeline) Clear() {
	p.SetBenchmarking(false)
	p.runOrder = nil
	for _, n := range p.nodes {
		n.ResetLinks()
	}
	p.adjacency = map[string]map[string]bool{}
	for id := range p.nodes {
		p.adjacency[id] = map[string]bool{}
	}
	p.generation++
}

// RemoveNode disposes and deletes a single node, without touching any
// other node's wiring. Used by the importer when one node fails
// construction mid-import and must be dropped without re-clearing every
// other node's already-processed links, unlike the bulk PruneNodetree.
func (p *Pipeline) RemoveNode(id string) {
	n, ok := p.nodes[id]
	if !ok {
		return
	}
	_ = n.Dispose()
	delete(p.nodes, id)
	delete(p.adjacency, id)
	p.runOrder = nil
	p.generation++
}

// DisposeAll disposes every node's live Function instance.
func (p *Pipeline) DisposeAll() {
	for _, n := range p.nodes {
		_ = n.Dispose()
	}
}

// PruneNodetree clears all link wiring, then disposes and removes every
// node whose id is not in keepIDs, mirroring prune_nodetree: clear()
// happens first so stale links never dangle onto a soon-to-be-deleted
// node.
func (p *Pipeline) PruneNodetree(keepIDs map[string]bool) {
	p.Clear()

	for id, n := range p.nodes {
		if keepIDs[id] {
			continue
		}
		_ = n.Dispose()
		delete(p.nodes, id)
		delete(p.adjacency, id)
	}
	p.generation++
}

// Run evaluates one frame: if broken, no-ops; otherwise computes (and
// caches) the topological run order, then runs each node in order unless
// skipped, resetting each node's skip flag after the attempt regardless of
// outcome (this is what makes a cancellation apply for exactly one pass).
// A panic-free Function error cancels the failing node's downstream
// closure via cancelCurrent and turns benchmarking off; it stays off until
// SetBenchmarking(true) is called again, mirroring pipeline.py's run().
func (p *Pipeline) Run(cancelCurrent func(), onNodeError func(nodeID string, err error)) error {
	if p.broken {
		return nil
	}

	if p.runOrder == nil {
		order, err := topoSort(p.adjacency)
		if err != nil {
			return err
		}
		p.runOrder = order
	}

	var start time.Time
	if p.benchmarking {
		p.perf.NewRun()
		start = time.Now()
	}

	for _, id := range p.runOrder {
		n := p.nodes[id]
		if n == nil {
			continue
		}
		n.NextFrame()
		p.current = id

		if !n.Skip() {
			if _, err := n.Run(); err != nil {
				if cancelCurrent != nil {
					cancelCurrent()
				}
				p.benchmarking = false
				if onNodeError != nil {
					onNodeError(id, err)
				}
			}
		}

		n.SetSkip(false)
	}
	p.current = ""

	if p.benchmarking {
		p.perf.FinalizeRun(time.Since(start).Seconds())
	}

	now := time.Now()
	p.fps.update(now)

	return nil
}

// Current returns the id of the node presently executing within Run, or
// "" outside of a Run call. Satisfies hook.PipelineView.
func (p *Pipeline) Current() string { return p.current }

// FPS returns the pipeline's current instantaneous frame rate. Satisfies
// hook.PipelineView.
func (p *Pipeline) FPS() float64 { return p.fps.fps }

// Snapshot returns a value that changes whenever the node/link structure
// changes, for hook.Bus's cache invalidation. Satisfies hook.PipelineView.
func (p *Pipeline) Snapshot() interface{} { return p.generation }

// Dependents returns the full transitive closure of nodes that consume,
// directly or indirectly, nodeID's output — corrected from
// get_dependents's single-path bug per spec.md §9's resolved Open
// Question: the original builds a "path" map via a single DFS from every
// has_sideeffect root and so records only one predecessor per node,
// silently dropping fan-out. This walks the reverse-adjacency graph
// instead, which captures every downstream path.
func (p *Pipeline) Dependents(nodeID string) []string {
	consumers := map[string][]string{} // id -> ids that depend on it
	for id, deps := range p.adjacency {
		for dep := range deps {
			consumers[dep] = append(consumers[dep], id)
		}
	}

	visited := map[string]bool{}
	var queue []string
	queue = append(queue, consumers[nodeID]...)

	var result []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		result = append(result, id)
		queue = append(queue, consumers[id]...)
	}
	return result
}

// OutputConsumers returns the ids of nodes with an input link bound
// directly to nodeID's named output. Satisfies hook.PipelineView.
func (p *Pipeline) OutputConsumers(nodeID, output string) []string {
	var result []string
	for id, n := range p.nodes {
		for _, l := range n.InputLinks() {
			nl, ok := l.(interface {
				UpstreamID() string
				OutputName() string
			})
			if ok && nl.UpstreamID() == nodeID && nl.OutputName() == output {
				result = append(result, id)
			}
		}
	}
	return result
}

// CancelNodes marks every listed node id to be skipped on its next Run
// this pass. Unknown ids are ignored. Satisfies hook.PipelineView.
func (p *Pipeline) CancelNodes(ids []string) {
	for _, id := range ids {
		if n, ok := p.nodes[id]; ok {
			n.SetSkip(true)
		}
	}
}

// SetBenchmarking enables or disables per-node/per-pass timing collection.
// Enabling allocates a fresh Performance history sized to the current node
// set — callers must not change the node set while benchmarking, mirroring
// the original's own assumption ("the nodes of pipeline will never change"
// while benchmarking).
func (p *Pipeline) SetBenchmarking(v bool) {
	if v && !p.benchmarking {
		p.perf = NewPerformance(p.nodes)
	}
	if !v {
		p.perf = nil
	}
	p.benchmarking = v
}

// Benchmarking reports whether benchmarking is currently enabled.
func (p *Pipeline) Benchmarking() bool { return p.benchmarking }

func (p *Pipeline) perfCallback(nodeID string, d time.Duration) {
	if !p.benchmarking {
		return
	}
	p.perf.LogNodeRun(nodeID, d.Seconds())
}

// GetBenchmarkStats summarizes the accumulated benchmarking history.
// Callers must hold the pipeline's FIFO lock before calling this, the same
// way get_benchmark_stats acquires self.lock, so every node has run an
// equal number of times.
func (p *Pipeline) GetBenchmarkStats() (CalculatedPerformance, error) {
	if !p.benchmarking {
		return CalculatedPerformance{}, errNotBenchmarking
	}
	return p.perf.Calculate()
}

var errNotBenchmarking = benchmarkError("pipeline: not currently benchmarking")

type benchmarkError string

func (e benchmarkError) Error() string { return string(e) }
