// Package clinical defines the patient attributes the simulation engine works
// with: the immutable baseline profile and the table of simulateable fields
// with their offset bounds.
package clinical

import (
	"fmt"
	"math"
)

// Field names a simulateable attribute. Values match the scoring backend's
// wire names.
type Field string

const (
	FieldBMI     Field = "bmi"
	FieldHbA1c   Field = "HbA1c_level"
	FieldGlucose Field = "blood_glucose_level"
)

// NumFields is the number of simulateable fields.
const NumFields = 3

// Fields lists the simulateable fields in display order.
var Fields = [NumFields]Field{FieldBMI, FieldHbA1c, FieldGlucose}

// Index returns the display position of f, or -1 if f is not simulateable.
func (f Field) Index() int {
	for i, known := range Fields {
		if f == known {
			return i
		}
	}
	return -1
}

// Valid reports whether f is one of the simulateable fields.
func (f Field) Valid() bool {
	return f.Index() >= 0
}

// Values holds absolute clinical values keyed by field.
type Values map[Field]float64

// ParseField resolves a field from its wire name.
func ParseField(s string) (Field, error) {
	f := Field(s)
	if !f.Valid() {
		return "", fmt.Errorf("unknown field %q", s)
	}
	return f, nil
}

// Bounds is the allowed offset range for one field.
type Bounds struct {
	Field Field   `yaml:"field" json:"field"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
	Step  float64 `yaml:"step" json:"step"`
	Label string  `yaml:"label" json:"label"`
	Unit  string  `yaml:"unit,omitempty" json:"unit,omitempty"`
}

// Clamp pins v into [Min, Max]. NaN is treated as no offset.
func (b Bounds) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		v = 0
	}
	return math.Max(b.Min, math.Min(b.Max, v))
}

// Validate checks that the range is well formed and admits a zero offset.
func (b Bounds) Validate() error {
	if !b.Field.Valid() {
		return fmt.Errorf("bounds: unknown field %q", b.Field)
	}
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || b.Min > b.Max {
		return fmt.Errorf("bounds %s: invalid range [%v, %v]", b.Field, b.Min, b.Max)
	}
	if b.Min > 0 || b.Max < 0 {
		return fmt.Errorf("bounds %s: range [%v, %v] excludes the zero offset", b.Field, b.Min, b.Max)
	}
	if b.Step < 0 {
		return fmt.Errorf("bounds %s: negative step %v", b.Field, b.Step)
	}
	return nil
}

// Table maps every simulateable field to its bounds.
type Table map[Field]Bounds

// DefaultTable returns the slider ranges used by the dashboard.
func DefaultTable() Table {
	return Table{
		FieldBMI:     {Field: FieldBMI, Min: -10, Max: 0, Step: 0.5, Label: "Reduce BMI"},
		FieldHbA1c:   {Field: FieldHbA1c, Min: -3, Max: 0, Step: 0.1, Label: "Lower HbA1c", Unit: "%"},
		FieldGlucose: {Field: FieldGlucose, Min: -50, Max: 0, Step: 5, Label: "Lower Blood Glucose", Unit: "mg/dL"},
	}
}

// WithOverrides returns a copy of t with the given bounds replacing the
// defaults for their fields.
func (t Table) WithOverrides(overrides []Bounds) (Table, error) {
	out := make(Table, len(t))
	for f, b := range t {
		out[f] = b
	}
	for _, o := range overrides {
		if err := o.Validate(); err != nil {
			return nil, err
		}
		base := out[o.Field]
		if o.Label == "" {
			o.Label = base.Label
		}
		if o.Unit == "" {
			o.Unit = base.Unit
		}
		if o.Step == 0 {
			o.Step = base.Step
		}
		out[o.Field] = o
	}
	return out, nil
}

// Sorted returns the bounds in display order.
func (t Table) Sorted() []Bounds {
	out := make([]Bounds, 0, len(t))
	for _, f := range Fields {
		if b, ok := t[f]; ok {
			out = append(out, b)
		}
	}
	return out
}
