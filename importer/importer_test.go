package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opensight-project/opensight/concurrency"
	"github.com/opensight-project/opensight/function"
	"github.com/opensight-project/opensight/manager"
	"github.com/opensight-project/opensight/pipeline"
	"github.com/opensight-project/opensight/widget"
)

type constInstance struct{ value int }

func (c *constInstance) Run(context.Context, function.Values) (function.Values, error) {
	return function.Values{"out": c.value}, nil
}
func (c *constInstance) Dispose() {}

type sinkInstance struct{ lastSum int }

func (s *sinkInstance) Run(ctx context.Context, inputs function.Values) (function.Values, error) {
	a, _ := inputs["a"].(int)
	b, _ := inputs["b"].(int)
	s.lastSum = a + b
	return function.Values{}, nil
}
func (s *sinkInstance) Dispose() {}

func newTestManager(t *testing.T) (*manager.Manager, *pipeline.Pipeline) {
	t.Helper()
	p := pipeline.New()
	mgr := manager.New(p)

	constDesc := &function.Descriptor{
		Name:          "Const",
		OutputsSchema: function.IOSchema{"out": widget.Int()},
		New:           func(function.Values) (function.Instance, error) { return &constInstance{value: 5}, nil },
	}
	sinkDesc := &function.Descriptor{
		Name:          "Sink",
		HasSideEffect: true,
		InputsSchema:  function.IOSchema{"a": widget.Int(), "b": widget.Int()},
		New:           func(function.Values) (function.Instance, error) { return &sinkInstance{}, nil },
	}

	require.NoError(t, mgr.RegisterModule(manager.ModuleInfo{Package: "demo"}, []*function.Descriptor{constDesc, sinkDesc}, nil))
	return mgr, p
}

func TestApplyAcceptsValidTreeWithLinksAndStatics(t *testing.T) {
	mgr, p := newTestManager(t)
	imp := New(mgr, p, concurrency.NewFifoLock())

	tree := NodeTreeSpec{Nodes: []NodeSpec{
		{ID: "const1", Type: "demo/Const"},
		{ID: "sink1", Type: "demo/Sink", Inputs: map[string]NodeInput{
			"a": {Link: &Link{NodeID: "const1", Output: "out"}},
			"b": {Value: 3},
		}},
	}}

	accepted, err := imp.Apply(context.Background(), tree, false)
	require.NoError(t, err)
	require.Len(t, accepted.Nodes, 2)
}

func TestApplyRejectsUnknownFunctionType(t *testing.T) {
	mgr, p := newTestManager(t)
	imp := New(mgr, p, concurrency.NewFifoLock())

	tree := NodeTreeSpec{Nodes: []NodeSpec{
		{ID: "sink1", Type: "demo/DoesNotExist"},
	}}

	_, err := imp.Apply(context.Background(), tree, false)
	require.Error(t, err)
}

func TestApplyRejectsMissingInput(t *testing.T) {
	mgr, p := newTestManager(t)
	imp := New(mgr, p, concurrency.NewFifoLock())

	tree := NodeTreeSpec{Nodes: []NodeSpec{
		{ID: "sink1", Type: "demo/Sink", Inputs: map[string]NodeInput{
			"a": {Value: 1},
			// "b" intentionally missing
		}},
	}}

	_, err := imp.Apply(context.Background(), tree, false)
	require.Error(t, err)
}

func TestApplyMarksPipelineBrokenOnNodeLevelFailureWithoutForceSave(t *testing.T) {
	mgr, p := newTestManager(t)
	imp := New(mgr, p, concurrency.NewFifoLock())

	tree := NodeTreeSpec{Nodes: []NodeSpec{
		{ID: "sink1", Type: "demo/Sink", Inputs: map[string]NodeInput{
			"a": {Value: 1},
			// "b" intentionally missing: a node-level input error, not a
			// structural one, so it must still leave the pipeline broken
			// (spec.md §4.4 step 7) even though PruneNodetree/CreateNode
			// already ran under the lock before the error surfaced.
		}},
	}}

	_, err := imp.Apply(context.Background(), tree, false)
	require.Error(t, err)
	require.True(t, p.Broken())
}

func TestApplyPrunesNodesUnreachableFromSideEffectRoots(t *testing.T) {
	mgr, p := newTestManager(t)
	imp := New(mgr, p, concurrency.NewFifoLock())

	tree := NodeTreeSpec{Nodes: []NodeSpec{
		{ID: "orphan", Type: "demo/Const"}, // not wired to anything, no side effect
		{ID: "sink1", Type: "demo/Sink", Inputs: map[string]NodeInput{
			"a": {Value: 1},
			"b": {Value: 2},
		}},
	}}

	accepted, err := imp.Apply(context.Background(), tree, false)
	require.NoError(t, err)

	var ids []string
	for _, n := range accepted.Nodes {
		ids = append(ids, n.ID)
	}
	require.NotContains(t, ids, "orphan")
	require.Contains(t, ids, "sink1")

	_, stillThere := p.Node("orphan")
	require.False(t, stillThere)
}

func TestApplyForceSaveToleratesNodeLevelError(t *testing.T) {
	mgr, p := newTestManager(t)
	imp := New(mgr, p, concurrency.NewFifoLock())

	treeReal := NodeTreeSpec{Nodes: []NodeSpec{
		{ID: "sink1", Type: "demo/Sink", Inputs: map[string]NodeInput{
			"a": {Value: 1},
		}},
	}}

	_, err := imp.Apply(context.Background(), treeReal, true)
	require.NoError(t, err)
}

func TestApplyRejectsCycleEvenUnderForceSave(t *testing.T) {
	p := pipeline.New()
	mgr := manager.New(p)

	echoDesc := &function.Descriptor{
		Name:          "Echo",
		HasSideEffect: true,
		InputsSchema:  function.IOSchema{"in": widget.Int()},
		OutputsSchema: function.IOSchema{"out": widget.Int()},
		New:           func(function.Values) (function.Instance, error) { return &constInstance{value: 1}, nil },
	}
	require.NoError(t, mgr.RegisterModule(manager.ModuleInfo{Package: "demo"}, []*function.Descriptor{echoDesc}, nil))

	imp := New(mgr, p, concurrency.NewFifoLock())

	tree := NodeTreeSpec{Nodes: []NodeSpec{
		{ID: "a", Type: "demo/Echo", Inputs: map[string]NodeInput{"in": {Link: &Link{NodeID: "b", Output: "out"}}}},
		{ID: "b", Type: "demo/Echo", Inputs: map[string]NodeInput{"in": {Link: &Link{NodeID: "a", Output: "out"}}}},
	}}

	_, err := imp.Apply(context.Background(), tree, false)
	require.Error(t, err)

	_, err = imp.Apply(context.Background(), tree, true)
	require.Error(t, err)
}

func TestApplyRejectsCycleWithoutTouchingPipeline(t *testing.T) {
	mgr, p := newTestManager(t)
	imp := New(mgr, p, concurrency.NewFifoLock())

	good := NodeTreeSpec{Nodes: []NodeSpec{
		{ID: "const1", Type: "demo/Const"},
		{ID: "sink1", Type: "demo/Sink", Inputs: map[string]NodeInput{
			"a": {Link: &Link{NodeID: "const1", Output: "out"}},
			"b": {Value: 3},
		}},
	}}
	_, err := imp.Apply(context.Background(), good, false)
	require.NoError(t, err)
	require.False(t, p.Broken())
	_, stillThere := p.Node("sink1")
	require.True(t, stillThere)

	cyclic := NodeTreeSpec{Nodes: []NodeSpec{
		{ID: "x", Type: "demo/Sink", Inputs: map[string]NodeInput{
			"a": {Link: &Link{NodeID: "y", Output: "out"}},
			"b": {Value: 1},
		}},
		{ID: "y", Type: "demo/Sink", Inputs: map[string]NodeInput{
			"a": {Link: &Link{NodeID: "x", Output: "out"}},
			"b": {Value: 1},
		}},
	}}
	_, err = imp.Apply(context.Background(), cyclic, false)
	require.Error(t, err)

	// The prior graph must be left exactly as it was: not broken, the old
	// nodes still present, and the rejected cyclic nodes never created.
	require.False(t, p.Broken())
	_, stillThereAfter := p.Node("sink1")
	require.True(t, stillThereAfter)
	_, xCreated := p.Node("x")
	require.False(t, xCreated)
}

func TestApplyRestartsNodeWhenRequireRestartSettingsChange(t *testing.T) {
	p := pipeline.New()
	mgr := manager.New(p)

	var constructCount int
	desc := &function.Descriptor{
		Name:           "Scaler",
		RequireRestart: true,
		HasSideEffect:  true,
		SettingsSchema: function.Settings{{Name: "factor", Type: widget.Float(), Default: 1.0}},
		New: func(function.Values) (function.Instance, error) {
			constructCount++
			return &constInstance{value: 1}, nil
		},
	}
	require.NoError(t, mgr.RegisterModule(manager.ModuleInfo{Package: "demo"}, []*function.Descriptor{desc}, nil))

	imp := New(mgr, p, concurrency.NewFifoLock())

	tree := NodeTreeSpec{Nodes: []NodeSpec{
		{ID: "n1", Type: "demo/Scaler", Settings: map[string]interface{}{"factor": 2.0}},
	}}
	_, err := imp.Apply(context.Background(), tree, false)
	require.NoError(t, err)
	require.Equal(t, 1, constructCount)

	tree2 := NodeTreeSpec{Nodes: []NodeSpec{
		{ID: "n1", Type: "demo/Scaler", Settings: map[string]interface{}{"factor": 9.0}},
	}}
	_, err = imp.Apply(context.Background(), tree2, false)
	require.NoError(t, err)
	require.Equal(t, 2, constructCount)
}
