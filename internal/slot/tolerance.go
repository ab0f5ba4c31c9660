package slot

import "math"

// Comparison selects how a probed value is checked against its
// expected value (§4.2): Equal requires exact equality after fuzzy
// tolerance is applied; the other comparisons back the relational
// operators of the script language's "probe ssbo" command.
type Comparison int

const (
	CmpEqual Comparison = iota
	CmpNotEqual
	CmpLess
	CmpGreaterEqual
	CmpGreater
	CmpLessEqual
)

// Tolerance is a per-component fuzz margin applied when comparing
// observed vs expected values, grounded on vkrunner's tolerance.rs.
// The default tolerance is 0.01 absolute in every component.
type Tolerance struct {
	value     [4]float64
	isPercent bool
}

// DefaultTolerance returns the tolerance used when a test script does
// not specify one: 0.01 absolute in all four components.
func DefaultTolerance() Tolerance {
	return Tolerance{value: [4]float64{0.01, 0.01, 0.01, 0.01}, isPercent: false}
}

// NewTolerance builds a Tolerance from four per-component values,
// interpreted as percentages of the expected value when isPercent is
// true, or as an absolute margin otherwise.
func NewTolerance(values [4]float64, isPercent bool) Tolerance {
	return Tolerance{value: values, isPercent: isPercent}
}

// Equal reports whether a and b are within tolerance on the given
// component (0=R/X, 1=G/Y, 2=B/Z, 3=A/W). In percent mode the margin
// is abs(tolerance%/100 * b); otherwise it is the component's
// absolute tolerance value.
func (t Tolerance) Equal(component int, a, b float64) bool {
	diff := math.Abs(a - b)
	if t.isPercent {
		margin := math.Abs(t.value[component] / 100.0 * b)
		return diff <= margin
	}
	return diff <= t.value[component]
}

// Compare applies cmp to a vs b, using t to fuzz equality/inequality
// comparisons and exact ordering for the relational comparisons.
func (t Tolerance) Compare(cmp Comparison, component int, a, b float64) bool {
	switch cmp {
	case CmpEqual:
		return t.Equal(component, a, b)
	case CmpNotEqual:
		return !t.Equal(component, a, b)
	case CmpLess:
		return a < b
	case CmpGreaterEqual:
		return a >= b
	case CmpGreater:
		return a > b
	case CmpLessEqual:
		return a <= b
	default:
		return false
	}
}
