// Package widget defines the closed set of field types a Function's
// Settings, Inputs, and Outputs records may use, and their wire
// serialization as described in SPEC_FULL.md/spec.md §4.1 and §6.
//
// Go has no runtime type reflection over dataclass-like records the way the
// original does, so field types here are values (a tagged union), per
// spec.md §9's registration-descriptor design note, not Go types.
package widget

import "fmt"

// Kind discriminates the closed set of field types.
type Kind string

const (
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindBool     Kind = "bool"
	KindStr      Kind = "str"
	KindAny      Kind = "Any"
	KindRange    Kind = "Range"
	KindSlide    Kind = "Slide"
	KindEnum     Kind = "Enum"
	KindPoint    Kind = "Point"
	KindColor    Kind = "Color"
	KindMat      Kind = "Mat"
	KindMatBW    Kind = "MatBW"
	KindContours Kind = "Contours"
	KindCircles  Kind = "Circles"
	KindSegments Kind = "Segments"
	KindCorners  Kind = "Corners"
	KindPose3D   Kind = "Pose3D"
)

// Type describes one field's wire type: the discriminator plus any
// parameters the discriminator requires (Range/Slide min-max-decimal,
// Enum's item list). The core never inspects the payload of opaque vector
// kinds; it only carries them between nodes.
type Type struct {
	Kind   Kind
	Min    float64
	Max    float64
	Decimal bool
	Items  []string
}

// Int, Float, Bool, Str, and Any are the primitive field type constructors.
func Int() Type   { return Type{Kind: KindInt} }
func Float() Type { return Type{Kind: KindFloat} }
func Bool() Type  { return Type{Kind: KindBool} }
func Str() Type   { return Type{Kind: KindStr} }
func Any() Type   { return Type{Kind: KindAny} }

// RangeOf builds a Range widget type: settings of this type hold a pair
// {min, max} chosen by the user within [lo, hi].
func RangeOf(lo, hi float64, decimal bool) Type {
	return Type{Kind: KindRange, Min: lo, Max: hi, Decimal: decimal}
}

// SlideOf builds a Slide widget type: settings of this type hold a single
// scalar chosen by the user within [lo, hi].
func SlideOf(lo, hi float64, decimal bool) Type {
	return Type{Kind: KindSlide, Min: lo, Max: hi, Decimal: decimal}
}

// EnumOf builds an Enum widget type over a fixed set of string options.
func EnumOf(items ...string) Type {
	return Type{Kind: KindEnum, Items: items}
}

// Opaque vector types the core passes between nodes without interpreting.
func Mat() Type      { return Type{Kind: KindMat} }
func MatBW() Type    { return Type{Kind: KindMatBW} }
func Contours() Type { return Type{Kind: KindContours} }
func Circles() Type  { return Type{Kind: KindCircles} }
func Segments() Type { return Type{Kind: KindSegments} }
func Point() Type    { return Type{Kind: KindPoint} }
func Color() Type    { return Type{Kind: KindColor} }
func Corners() Type  { return Type{Kind: KindCorners} }
func Pose3D() Type   { return Type{Kind: KindPose3D} }

// Params returns the wire serialization of this type's parameters, per
// spec.md §6: Range/Slide carry {min,max,decimal}, Enum carries {items},
// all others carry an empty object.
func (t Type) Params() map[string]interface{} {
	switch t.Kind {
	case KindRange, KindSlide:
		return map[string]interface{}{"min": t.Min, "max": t.Max, "decimal": t.Decimal}
	case KindEnum:
		items := make([]string, len(t.Items))
		copy(items, t.Items)
		return map[string]interface{}{"items": items}
	default:
		return map[string]interface{}{}
	}
}

// RangeValue is the value produced by a Range-typed field: a user-chosen
// [Min, Max] pair, validated against the field type's bounds.
type RangeValue struct {
	Min float64
	Max float64
}

// Create validates and coerces a candidate Range value against t, mirroring
// RangeType.create in the original: both endpoints must lie within
// [t.Min, t.Max], and are rounded to integers when Decimal is false.
func (t Type) Create(lo, hi float64) (RangeValue, error) {
	if t.Kind != KindRange {
		return RangeValue{}, fmt.Errorf("widget: Create(Range) called on %s type", t.Kind)
	}
	clo, err := t.ensureInRange(lo, "min")
	if err != nil {
		return RangeValue{}, err
	}
	chi, err := t.ensureInRange(hi, "max")
	if err != nil {
		return RangeValue{}, err
	}
	return RangeValue{Min: clo, Max: chi}, nil
}

// CreateSlide validates and coerces a candidate Slide scalar against t.
func (t Type) CreateSlide(val float64) (float64, error) {
	if t.Kind != KindSlide {
		return 0, fmt.Errorf("widget: CreateSlide called on %s type", t.Kind)
	}
	return t.ensureInRange(val, "value")
}

func (t Type) ensureInRange(val float64, name string) (float64, error) {
	converted := t.convert(val)
	if converted < t.Min || converted > t.Max {
		return 0, fmt.Errorf("widget: parameter %s is out of range (%v, %v) with value %v", name, t.Min, t.Max, val)
	}
	return converted, nil
}

func (t Type) convert(val float64) float64 {
	if t.Decimal {
		return val
	}
	return float64(int64(val + 0.5))
}

// DefaultValue constructs the zero value of t, used as the last fallback in
// the Importer's settings default resolution (spec.md §4.4 step 4) when
// neither a provided value nor a field default is available.
func (t Type) DefaultValue() (interface{}, bool) {
	switch t.Kind {
	case KindInt:
		return int64(0), true
	case KindFloat:
		return float64(0), true
	case KindBool:
		return false, true
	case KindStr:
		return "", true
	case KindAny:
		return nil, true
	case KindRange:
		return RangeValue{Min: t.Min, Max: t.Min}, true
	case KindSlide:
		return t.Min, true
	case KindEnum:
		if len(t.Items) == 0 {
			return nil, false
		}
		return t.Items[0], true
	default:
		// Opaque vector types have no meaningful zero value; the Importer
		// must treat this as "no usable default".
		return nil, false
	}
}
