// Package demo is a reference module exercising the Function contract end
// to end, grounded in modules/five.py and modules/seven.py: a constant
// source, arithmetic nodes, a side-effecting sink, a range check, and a
// branch-cancelling switch, matching the literal scenarios named in
// spec.md §8.
package demo

import (
	"context"
	"fmt"

	"github.com/opensight-project/opensight/function"
	"github.com/opensight-project/opensight/hook"
	"github.com/opensight-project/opensight/widget"
)

// Info is this module's registration metadata.
var Info = struct {
	Package string
	Version string
}{Package: "demo", Version: "0.1.0"}

// Descriptors returns every Function this module contributes, for
// manager.Manager.RegisterModule. bus is this module's own hook.Bus (pass
// the same one given to RegisterModule) so Switch can call CancelOutput;
// it may be nil, in which case Switch's routing still works but never
// cancels the unchosen branch.
func Descriptors(bus *hook.Bus) []*function.Descriptor {
	return []*function.Descriptor{
		fiveDescriptor(),
		sumDescriptor(),
		multiplyDescriptor(),
		printDescriptor(),
		isInRangeDescriptor(),
		switchDescriptor(bus)(),
	}
}

// --- Five -------------------------------------------------------------

type fiveInstance struct{}

func fiveDescriptor() *function.Descriptor {
	return &function.Descriptor{
		Name:          "Five",
		OutputsSchema: function.IOSchema{"five": widget.Int()},
		New:           func(function.Values) (function.Instance, error) { return &fiveInstance{}, nil },
	}
}

func (f *fiveInstance) Run(context.Context, function.Values) (function.Values, error) {
	return function.Values{"five": int64(5)}, nil
}
func (f *fiveInstance) Dispose() {}

// --- Sum ----------------------------------------------------------------

type sumInstance struct{}

func sumDescriptor() *function.Descriptor {
	return &function.Descriptor{
		Name:          "Sum",
		InputsSchema:  function.IOSchema{"num1": widget.Int(), "num2": widget.Int()},
		OutputsSchema: function.IOSchema{"out": widget.Int()},
		New:           func(function.Values) (function.Instance, error) { return &sumInstance{}, nil },
	}
}

func (s *sumInstance) Run(_ context.Context, inputs function.Values) (function.Values, error) {
	return function.Values{"out": toInt(inputs["num1"]) + toInt(inputs["num2"])}, nil
}
func (s *sumInstance) Dispose() {}

// --- Multiply -------------------------------------------------------------

type multiplyInstance struct{}

func multiplyDescriptor() *function.Descriptor {
	return &function.Descriptor{
		Name:          "Multiply",
		InputsSchema:  function.IOSchema{"num1": widget.Int(), "num2": widget.Int()},
		OutputsSchema: function.IOSchema{"product": widget.Int()},
		New:           func(function.Values) (function.Instance, error) { return &multiplyInstance{}, nil },
	}
}

func (m *multiplyInstance) Run(_ context.Context, inputs function.Values) (function.Values, error) {
	return function.Values{"product": toInt(inputs["num1"]) * toInt(inputs["num2"])}, nil
}
func (m *multiplyInstance) Dispose() {}

// --- Print ----------------------------------------------------------------

// Printer receives every value a Print node runs on, in place of stdout, so
// the runtime embedding this module can observe it (tests, a log sink).
type Printer interface {
	Print(val interface{})
}

type stdoutPrinter struct{}

func (stdoutPrinter) Print(val interface{}) { fmt.Printf("Print node: %v\n", val) }

// DefaultPrinter writes to stdout, matching five.py's plain print(...).
var DefaultPrinter Printer = stdoutPrinter{}

type printInstance struct{ sink Printer }

func printDescriptor() *function.Descriptor {
	return &function.Descriptor{
		Name:          "Print",
		HasSideEffect: true,
		InputsSchema:  function.IOSchema{"val": widget.Any()},
		New: func(function.Values) (function.Instance, error) {
			return &printInstance{sink: DefaultPrinter}, nil
		},
	}
}

func (p *printInstance) Run(_ context.Context, inputs function.Values) (function.Values, error) {
	p.sink.Print(inputs["val"])
	return function.Values{}, nil
}
func (p *printInstance) Dispose() {}

// --- IsInRange --------------------------------------------------------

var rangeWidget = widget.RangeOf(0, 100, true)

type isInRangeInstance struct {
	lo, hi float64
}

func isInRangeDescriptor() *function.Descriptor {
	return &function.Descriptor{
		Name:           "IsInRange",
		SettingsSchema: function.Settings{{Name: "range", Type: rangeWidget}},
		InputsSchema:   function.IOSchema{"num": widget.Float()},
		OutputsSchema:  function.IOSchema{"in_range": widget.Bool()},
		New: func(settings function.Values) (function.Instance, error) {
			rv, ok := settings["range"].(widget.RangeValue)
			if !ok {
				return nil, fmt.Errorf("demo.IsInRange: settings.range is not a Range value")
			}
			return &isInRangeInstance{lo: rv.Min, hi: rv.Max}, nil
		},
		ValidateSettings: func(settings function.Values) (function.Values, error) {
			rv, ok := settings["range"].(widget.RangeValue)
			if !ok {
				return nil, fmt.Errorf("demo.IsInRange: settings.range is not a Range value")
			}
			if rv.Min < rangeWidget.Min || rv.Max > rangeWidget.Max || rv.Min > rv.Max {
				return nil, fmt.Errorf("demo.IsInRange: range %v..%v is out of range [%v,%v]", rv.Min, rv.Max, rangeWidget.Min, rangeWidget.Max)
			}
			return settings, nil
		},
	}
}

func (r *isInRangeInstance) Run(_ context.Context, inputs function.Values) (function.Values, error) {
	num := toFloat(inputs["num"])
	return function.Values{"in_range": num >= r.lo && num <= r.hi}, nil
}
func (r *isInRangeInstance) Dispose() {}

// --- Switch -------------------------------------------------------------

// switchInstance routes thru to exactly one of "on"/"off" based on state,
// cancelling the other branch's downstream consumers via the module's
// Bus, matching spec.md §8's literal cancellation scenario.
type switchInstance struct {
	bus *hook.Bus
}

func switchDescriptor(bus *hook.Bus) func() *function.Descriptor {
	return func() *function.Descriptor {
		return &function.Descriptor{
			Name:          "Switch",
			InputsSchema:  function.IOSchema{"thru": widget.Any(), "state": widget.Bool()},
			OutputsSchema: function.IOSchema{"on": widget.Any(), "off": widget.Any()},
			New: func(function.Values) (function.Instance, error) {
				return &switchInstance{bus: bus}, nil
			},
		}
	}
}

func (s *switchInstance) Run(_ context.Context, inputs function.Values) (function.Values, error) {
	state, _ := inputs["state"].(bool)
	thru := inputs["thru"]

	if state {
		if s.bus != nil {
			s.bus.CancelOutput("off")
		}
		return function.Values{"on": thru}, nil
	}

	if s.bus != nil {
		s.bus.CancelOutput("on")
	}
	return function.Values{"off": thru}, nil
}
func (s *switchInstance) Dispose() {}

func toInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
