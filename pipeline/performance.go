package pipeline

import (
	"fmt"
	"sort"
)

// singleRunPerformance accumulates one pass's per-node durations before
// they're folded into Performance's running history.
type singleRunPerformance struct {
	nodes map[string]*float64 // nil entry means the node didn't run this pass
}

// Performance accumulates per-node and per-pass execution durations across
// many passes, while benchmarking is enabled, mirroring pipeline.py's
// Performance class.
type Performance struct {
	nodes     map[string][]float64
	nodeTypes map[string]string

	passes   []float64
	sumNodes []float64

	current *singleRunPerformance
}

// NewPerformance builds an empty history for the given set of nodes.
func NewPerformance(nodes map[string]*Node) *Performance {
	p := &Performance{
		nodes:     map[string][]float64{},
		nodeTypes: map[string]string{},
	}
	for id, n := range nodes {
		p.nodes[id] = nil
		p.nodeTypes[id] = n.FuncType.Type
	}
	return p
}

// NewRun starts accumulating a new pass.
func (p *Performance) NewRun() {
	p.current = &singleRunPerformance{nodes: map[string]*float64{}}
}

// LogNodeRun records nodeID's duration (in seconds) for the current pass.
func (p *Performance) LogNodeRun(nodeID string, seconds float64) {
	v := seconds
	p.current.nodes[nodeID] = &v
}

// FinalizeRun closes out the current pass, recording its total wall-clock
// duration (passSeconds) and folding per-node durations into history.
// Nodes that didn't run this pass (skipped) contribute no data point,
// matching the original's filter(None, ...).
func (p *Performance) FinalizeRun(passSeconds float64) {
	var nodeDurations []float64
	for _, v := range p.current.nodes {
		if v != nil {
			nodeDurations = append(nodeDurations, *v)
		}
	}
	p.sumNodes = append(p.sumNodes, fsum(nodeDurations))

	for id := range p.nodes {
		if v := p.current.nodes[id]; v != nil {
			p.nodes[id] = append(p.nodes[id], *v)
		}
	}

	p.passes = append(p.passes, passSeconds)
	p.current = nil
}

func fsum(vals []float64) float64 {
	var total float64
	for _, v := range vals {
		total += v
	}
	return total
}

// CalculatedItemPerformance summarizes a series of durations.
type CalculatedItemPerformance struct {
	Average float64
	Median  float64
	Min     float64
	Max     float64
}

func calculateItem(data []float64) (CalculatedItemPerformance, error) {
	if len(data) == 0 {
		return CalculatedItemPerformance{}, fmt.Errorf("pipeline: cannot summarize an empty performance series")
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	sum := fsum(sorted)
	avg := sum / float64(len(sorted))

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	return CalculatedItemPerformance{
		Average: avg,
		Median:  median,
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
	}, nil
}

// CalculatedPerformance is the finalized, queryable summary of a
// Performance's history: per-node, pipeline-total, and overhead (time
// spent in the pass that wasn't spent inside any node) breakdowns.
type CalculatedPerformance struct {
	Nodes     map[string]CalculatedItemPerformance
	NodeTypes map[string]string
	Pipeline  CalculatedItemPerformance
	Overhead  CalculatedItemPerformance
}

// Calculate summarizes the accumulated history. It errors if the history's
// series lengths are inconsistent, mirroring ensure_consistency.
func (p *Performance) Calculate() (CalculatedPerformance, error) {
	wanted := len(p.passes)
	if wanted != len(p.sumNodes) {
		return CalculatedPerformance{}, fmt.Errorf("pipeline: pass length %d does not match sum_nodes length %d", wanted, len(p.sumNodes))
	}

	nodePerf := map[string]CalculatedItemPerformance{}
	for id, data := range p.nodes {
		calc, err := calculateItem(data)
		if err != nil {
			return CalculatedPerformance{}, fmt.Errorf("pipeline: node %s: %w", id, err)
		}
		nodePerf[id] = calc
	}

	pipelinePerf, err := calculateItem(p.passes)
	if err != nil {
		return CalculatedPerformance{}, err
	}

	overhead := make([]float64, len(p.passes))
	for i := range p.passes {
		overhead[i] = p.passes[i] - p.sumNodes[i]
	}
	overheadPerf, err := calculateItem(overhead)
	if err != nil {
		return CalculatedPerformance{}, err
	}

	return CalculatedPerformance{
		Nodes:     nodePerf,
		NodeTypes: p.nodeTypes,
		Pipeline:  pipelinePerf,
		Overhead:  overheadPerf,
	}, nil
}
