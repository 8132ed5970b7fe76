package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opensight-project/opensight/function"
	"github.com/opensight-project/opensight/hook"
	"github.com/opensight-project/opensight/widget"
)

type fakePipelineView struct{}

func (fakePipelineView) Current() string                                { return "" }
func (fakePipelineView) Dependents(string) []string                     { return nil }
func (fakePipelineView) OutputConsumers(string, string) []string        { return nil }
func (fakePipelineView) CancelNodes([]string)                           {}
func (fakePipelineView) FPS() float64                                   { return 0 }
func (fakePipelineView) Snapshot() interface{}                          { return 0 }

type fakeInstance struct{}

func (fakeInstance) Run(context.Context, function.Values) (function.Values, error) {
	return function.Values{}, nil
}
func (fakeInstance) Dispose() {}

func newDescriptor(name string) *function.Descriptor {
	return &function.Descriptor{
		Name: name,
		New:  func(function.Values) (function.Instance, error) { return fakeInstance{}, nil },
	}
}

func TestRegisterModuleAssignsQualifiedType(t *testing.T) {
	m := New(fakePipelineView{})
	sum := newDescriptor("Sum")

	err := m.RegisterModule(ModuleInfo{Package: "demo", Version: "1.0"}, []*function.Descriptor{sum}, nil)
	require.NoError(t, err)

	require.Equal(t, "demo/Sum", sum.Type)
	d, ok := m.Lookup("demo/Sum")
	require.True(t, ok)
	require.Same(t, sum, d)
}

func TestRegisterModuleSkipsDisabledWithoutAbortingOthers(t *testing.T) {
	m := New(fakePipelineView{})
	disabled := newDescriptor("Broken")
	disabled.Disabled = true
	ok := newDescriptor("Fine")

	err := m.RegisterModule(ModuleInfo{Package: "demo"}, []*function.Descriptor{disabled, ok}, nil)
	require.NoError(t, err)

	_, found := m.Lookup("demo/Broken")
	require.False(t, found)
	_, found = m.Lookup("demo/Fine")
	require.True(t, found)
}

func TestRegisterModuleSkipsInvalidDescriptor(t *testing.T) {
	m := New(fakePipelineView{})
	invalid := &function.Descriptor{Name: "NoConstructor"}
	ok := newDescriptor("Fine")

	err := m.RegisterModule(ModuleInfo{Package: "demo"}, []*function.Descriptor{invalid, ok}, nil)
	require.NoError(t, err)

	_, found := m.Lookup("demo/NoConstructor")
	require.False(t, found)
	_, found = m.Lookup("demo/Fine")
	require.True(t, found)
}

func TestRegisterModuleRejectsDuplicatePackage(t *testing.T) {
	m := New(fakePipelineView{})
	require.NoError(t, m.RegisterModule(ModuleInfo{Package: "demo"}, nil, nil))

	err := m.RegisterModule(ModuleInfo{Package: "demo"}, nil, nil)
	require.Error(t, err)
}

func TestRegisterModuleDropsDuplicateQualifiedNameKeepingFirst(t *testing.T) {
	m := New(fakePipelineView{})
	first := newDescriptor("Sum")
	first.SettingsSchema = function.Settings{{Name: "tag", Type: widget.Str(), Default: "first"}}
	second := newDescriptor("Sum")
	second.SettingsSchema = function.Settings{{Name: "tag", Type: widget.Str(), Default: "second"}}

	err := m.RegisterModule(ModuleInfo{Package: "demo"}, []*function.Descriptor{first, second}, nil)
	require.NoError(t, err)

	got, found := m.Lookup("demo/Sum")
	require.True(t, found)
	require.Equal(t, "first", got.SettingsSchema[0].Default)
}

func TestRegisterModuleBindsAndStartsBus(t *testing.T) {
	m := New(fakePipelineView{})
	bus := hook.NewBus()

	var started bool
	bus.AddListener(hook.EventStartup, func() { started = true })

	err := m.RegisterModule(ModuleInfo{Package: "demo"}, nil, bus)
	require.NoError(t, err)
	require.True(t, started)
}

func TestRegistrationSurvivesSettingsWithWidgetTypes(t *testing.T) {
	m := New(fakePipelineView{})
	d := newDescriptor("Scale")
	d.SettingsSchema = function.Settings{{Name: "factor", Type: widget.Float(), Default: 1.0}}

	require.NoError(t, m.RegisterModule(ModuleInfo{Package: "demo"}, []*function.Descriptor{d}, nil))
	got, _ := m.Lookup("demo/Scale")
	require.Equal(t, widget.KindFloat, got.SettingsSchema[0].Type.Kind)
}
