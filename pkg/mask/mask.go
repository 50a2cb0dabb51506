// Package mask provides the immutable per-target mask used by the search
// engine. A set bit means the target is held off: not driven and not
// evaluated.
package mask

import (
	"fmt"
	"strings"
)

// Mask is an immutable bit vector. Operations that change bits return a new
// Mask, so a value handed to one pass can never be altered by another.
type Mask struct {
	bits []bool
}

// New returns a mask of n clear bits.
func New(n int) Mask {
	return Mask{bits: make([]bool, n)}
}

// FromBools copies bits into a new mask.
func FromBools(bits []bool) Mask {
	return Mask{bits: append([]bool(nil), bits...)}
}

// Parse decodes a bit string where '1' marks a masked target. The first
// character maps to target 0.
func Parse(s string) (Mask, error) {
	s = strings.TrimSpace(s)
	bits := make([]bool, len(s))
	for i, c := range s {
		switch c {
		case '0':
		case '1':
			bits[i] = true
		default:
			return Mask{}, fmt.Errorf("mask: invalid character %q at position %d in %q", c, i, s)
		}
	}
	return Mask{bits: bits}, nil
}

// ParseList splits a comma separated list of bit strings. Empty entries are
// ignored; length checks against the target count are left to the caller.
func ParseList(s string) ([]Mask, error) {
	var masks []Mask
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		m, err := Parse(field)
		if err != nil {
			return nil, err
		}
		masks = append(masks, m)
	}
	return masks, nil
}

// Len returns the number of targets covered by the mask.
func (m Mask) Len() int {
	return len(m.bits)
}

// IsSet reports whether target i is masked. Out of range indices are
// reported as masked.
func (m Mask) IsSet(i int) bool {
	if i < 0 || i >= len(m.bits) {
		return true
	}
	return m.bits[i]
}

// Count returns the number of masked targets.
func (m Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// All reports whether every target is masked. An empty mask is all-masked.
func (m Mask) All() bool {
	return m.Count() == len(m.bits)
}

// None reports whether no target is masked.
func (m Mask) None() bool {
	return m.Count() == 0
}

// With returns a copy of m with target i masked.
func (m Mask) With(i int) Mask {
	next := FromBools(m.bits)
	if i >= 0 && i < len(next.bits) {
		next.bits[i] = true
	}
	return next
}

// Merge returns the union of m and other. Bits beyond the shorter mask are
// taken from the longer one.
func (m Mask) Merge(other Mask) Mask {
	n := len(m.bits)
	if len(other.bits) > n {
		n = len(other.bits)
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = (i < len(m.bits) && m.bits[i]) || (i < len(other.bits) && other.bits[i])
	}
	return Mask{bits: out}
}

// Intersect returns the bits set in both m and other.
func (m Mask) Intersect(other Mask) Mask {
	n := len(m.bits)
	if len(other.bits) < n {
		n = len(other.bits)
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = m.bits[i] && other.bits[i]
	}
	return Mask{bits: out}
}

// Bools returns a copy of the underlying bits.
func (m Mask) Bools() []bool {
	return append([]bool(nil), m.bits...)
}

// String renders the mask in the same form Parse accepts.
func (m Mask) String() string {
	var sb strings.Builder
	sb.Grow(len(m.bits))
	for _, b := range m.bits {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
