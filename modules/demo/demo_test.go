package demo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opensight-project/opensight/function"
	"github.com/opensight-project/opensight/hook"
	"github.com/opensight-project/opensight/widget"
)

func lookup(t *testing.T, bus *hook.Bus, name string) *function.Descriptor {
	t.Helper()
	for _, d := range Descriptors(bus) {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("no descriptor named %q", name)
	return nil
}

func TestFiveOutputsConstant(t *testing.T) {
	d := lookup(t, nil, "Five")
	inst, err := d.New(nil)
	require.NoError(t, err)
	out, err := inst.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, int64(5), out["five"])
}

func TestSumAddsInputs(t *testing.T) {
	d := lookup(t, nil, "Sum")
	inst, err := d.New(nil)
	require.NoError(t, err)
	out, err := inst.Run(context.Background(), function.Values{"num1": int64(5), "num2": int64(10)})
	require.NoError(t, err)
	require.Equal(t, int64(15), out["out"])
}

func TestMultiplyMultipliesInputs(t *testing.T) {
	d := lookup(t, nil, "Multiply")
	inst, err := d.New(nil)
	require.NoError(t, err)
	out, err := inst.Run(context.Background(), function.Values{"num1": int64(3), "num2": int64(4)})
	require.NoError(t, err)
	require.Equal(t, int64(12), out["product"])
}

func TestPrintCallsSink(t *testing.T) {
	var captured interface{}
	old := DefaultPrinter
	DefaultPrinter = printerFunc(func(v interface{}) { captured = v })
	defer func() { DefaultPrinter = old }()

	d := lookup(t, nil, "Print")
	inst, err := d.New(nil)
	require.NoError(t, err)
	_, err = inst.Run(context.Background(), function.Values{"val": int64(15)})
	require.NoError(t, err)
	require.Equal(t, int64(15), captured)
}

type printerFunc func(interface{})

func (f printerFunc) Print(v interface{}) { f(v) }

func TestIsInRangeValidatesSettingsBounds(t *testing.T) {
	d := lookup(t, nil, "IsInRange")

	within, err := widget.RangeOf(0, 100, true).Create(10, 70)
	require.NoError(t, err)
	validated, err := d.ValidateSettings(function.Values{"range": within})
	require.NoError(t, err)

	inst, err := d.New(validated)
	require.NoError(t, err)
	out, err := inst.Run(context.Background(), function.Values{"num": 20.0})
	require.NoError(t, err)
	require.Equal(t, true, out["in_range"])

	out, err = inst.Run(context.Background(), function.Values{"num": 95.0})
	require.NoError(t, err)
	require.Equal(t, false, out["in_range"])
}

func TestIsInRangeRejectsOutOfRangeSettings(t *testing.T) {
	d := lookup(t, nil, "IsInRange")
	outOfBounds := widget.RangeValue{Min: -5, Max: 70}
	_, err := d.ValidateSettings(function.Values{"range": outOfBounds})
	require.Error(t, err)
}

type fakePipelineView struct {
	current       string
	outputDeps    map[string]map[string][]string
	cancelledIDs  []string
}

func (f *fakePipelineView) Current() string                  { return f.current }
func (f *fakePipelineView) Dependents(string) []string        { return nil }
func (f *fakePipelineView) OutputConsumers(node, out string) []string {
	return f.outputDeps[node][out]
}
func (f *fakePipelineView) CancelNodes(ids []string) { f.cancelledIDs = append(f.cancelledIDs, ids...) }
func (f *fakePipelineView) FPS() float64             { return 0 }
func (f *fakePipelineView) Snapshot() interface{}    { return 1 }

func TestSwitchCancelsUnchosenBranch(t *testing.T) {
	bus := hook.NewBus()
	view := &fakePipelineView{
		current:    "switch1",
		outputDeps: map[string]map[string][]string{"switch1": {"off": {"sum_off"}}},
	}
	bus.BindPipeline(view)

	d := lookup(t, bus, "Switch")
	inst, err := d.New(nil)
	require.NoError(t, err)

	out, err := inst.Run(context.Background(), function.Values{"thru": int64(7), "state": true})
	require.NoError(t, err)
	require.Equal(t, int64(7), out["on"])
	require.Contains(t, view.cancelledIDs, "sum_off")
}
