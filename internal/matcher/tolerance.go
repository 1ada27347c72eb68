package matcher

import (
	"github.com/shopspring/decimal"
)

// Comparator decides monetary equality under a fixed tolerance.
// The tolerance only absorbs parsing residue; it is not a business tolerance.
type Comparator struct {
	epsilon decimal.Decimal
}

// NewComparator creates a comparator; a non-positive epsilon falls back to DefaultEpsilon
func NewComparator(epsilon decimal.Decimal) Comparator {
	if !epsilon.IsPositive() {
		epsilon = DefaultEpsilon
	}
	return Comparator{epsilon: epsilon}
}

// Epsilon returns the tolerance in use
func (c Comparator) Epsilon() decimal.Decimal {
	return c.epsilon
}

// Equal reports whether |a - b| < epsilon. The bound is exclusive.
func (c Comparator) Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(c.epsilon)
}

// SameSign reports whether a and b are both non-negative or both negative.
// No tolerance applies: debit and credit are never conflated.
func SameSign(a, b decimal.Decimal) bool {
	return a.IsNegative() == b.IsNegative()
}
