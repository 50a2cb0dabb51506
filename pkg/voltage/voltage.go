// Package voltage models the value carried by a single search target: either a
// real voltage or one of the two reserved markers used when a target is held
// off or never found a passing point.
package voltage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind distinguishes real voltages from the reserved markers.
type Kind uint8

const (
	KindValue Kind = iota
	KindNotDriven
	KindNotFound
)

var kindNames = map[Kind]string{
	KindValue:     "value",
	KindNotDriven: "not-driven",
	KindNotFound:  "not-found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Literal encodings of the markers on the datalog wire.
const (
	NotDrivenLiteral = "-8888"
	NotFoundLiteral  = "-9999"
)

// DefaultDecimals is the number of decimal places used when rendering values.
const DefaultDecimals = 3

// resolution bounds the precision kept for computed voltages.
const resolution = 1e9

// Voltage is a tagged value. The zero value is a real 0V.
type Voltage struct {
	kind  Kind
	value float64
}

// Of returns a real voltage rounded to the engine resolution.
func Of(v float64) Voltage {
	return Voltage{kind: KindValue, value: Round(v)}
}

// NotDriven marks a target that is masked and held off.
func NotDriven() Voltage {
	return Voltage{kind: KindNotDriven}
}

// NotFound marks a target that exhausted its range without passing.
func NotFound() Voltage {
	return Voltage{kind: KindNotFound}
}

// Kind reports which variant v holds.
func (v Voltage) Kind() Kind {
	return v.kind
}

// Value returns the real voltage and true, or 0 and false for a marker.
func (v Voltage) Value() (float64, bool) {
	if v.kind != KindValue {
		return 0, false
	}
	return v.value, true
}

// IsValue reports whether v holds a real voltage.
func (v Voltage) IsValue() bool { return v.kind == KindValue }

// IsNotDriven reports whether v is the not-driven marker.
func (v Voltage) IsNotDriven() bool { return v.kind == KindNotDriven }

// IsNotFound reports whether v is the not-found marker.
func (v Voltage) IsNotFound() bool { return v.kind == KindNotFound }

// Equal compares kind and, for real voltages, value within resolution.
func (v Voltage) Equal(o Voltage) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind != KindValue {
		return true
	}
	return math.Abs(v.value-o.value) < 1/resolution
}

// Format renders v with a fixed number of decimals. Markers are rendered as
// their integer literal regardless of decimals.
func (v Voltage) Format(decimals int) string {
	switch v.kind {
	case KindNotDriven:
		return NotDrivenLiteral
	case KindNotFound:
		return NotFoundLiteral
	}
	if decimals < 0 {
		decimals = DefaultDecimals
	}
	return strconv.FormatFloat(v.value, 'f', decimals, 64)
}

func (v Voltage) String() string {
	return v.Format(DefaultDecimals)
}

// Parse decodes a rendered voltage. The marker literals may carry trailing
// decimals ("-8888.000").
func Parse(s string) (Voltage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Voltage{}, fmt.Errorf("voltage: empty value")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Voltage{}, fmt.Errorf("voltage: invalid value %q: %w", s, err)
	}
	switch f {
	case -8888:
		return NotDriven(), nil
	case -9999:
		return NotFound(), nil
	}
	return Of(f), nil
}

// Round trims floating error accumulated by stepping.
func Round(v float64) float64 {
	return math.Round(v*resolution) / resolution
}

// FormatVector renders each voltage and joins them with sep.
func FormatVector(vs []Voltage, decimals int, sep string) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.Format(decimals)
	}
	return strings.Join(parts, sep)
}
