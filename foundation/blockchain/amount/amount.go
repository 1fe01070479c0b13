// Package amount provides a fixed-point decimal type for representing
// monetary values on the chain. Balances, transaction amounts and fees all
// use this type so arithmetic never drifts the way floating point would.
package amount

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Scale is the number of fractional digits carried by every Amount, per the
// network's "8 fractional digits" requirement.
const Scale = 8

// scaleFactor is 10^Scale, the number of base units in one whole coin.
const scaleFactor = 100_000_000

// Amount is a non-negative fixed-point value stored as an integer count of
// 1e-8 units. The zero value is zero coins.
type Amount int64

// Zero is the additive identity.
const Zero Amount = 0

// FromUnits constructs an Amount directly from base units (1e-8 coins).
func FromUnits(units int64) Amount {
	return Amount(units)
}

// FromWhole constructs an Amount representing a whole number of coins, e.g.
// FromWhole(50) is the block 1 coinbase reward before halving.
func FromWhole(whole int64) Amount {
	return Amount(whole * scaleFactor)
}

// Parse converts a decimal string such as "12.50000000" into an Amount.
// At most Scale fractional digits are accepted.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("amount: empty string")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac {
		if len(frac) > Scale {
			return 0, fmt.Errorf("amount: too many fractional digits in %q", s)
		}
		frac = frac + strings.Repeat("0", Scale-len(frac))
	} else {
		frac = strings.Repeat("0", Scale)
	}

	wholeUnits, err := strconv.ParseInt(whole, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("amount: invalid whole part in %q: %w", s, err)
	}
	fracUnits, err := strconv.ParseInt(frac, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("amount: invalid fractional part in %q: %w", s, err)
	}

	units := wholeUnits*scaleFactor + fracUnits
	if neg {
		units = -units
	}

	return Amount(units), nil
}

// Int64 returns the raw base-unit representation.
func (a Amount) Int64() int64 {
	return int64(a)
}

// IsNegative reports whether the amount is below zero. Negative amounts are
// never valid on the wire but arithmetic can produce them transiently.
func (a Amount) IsNegative() bool {
	return a < 0
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return a + b
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return a - b
}

// Cmp returns -1, 0 or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool {
	return a < b
}

// String renders the amount with Scale fractional digits.
func (a Amount) String() string {
	units := int64(a)
	neg := units < 0
	if neg {
		units = -units
	}

	whole := units / scaleFactor
	frac := units % scaleFactor

	s := fmt.Sprintf("%d.%08d", whole, frac)
	if neg {
		s = "-" + s
	}
	return s
}

// MarshalJSON encodes the amount as a JSON string so precision survives
// round trips through languages whose numbers are IEEE-754 doubles.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes either a JSON string or a JSON number into an Amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)

	if !strings.Contains(s, ".") && !strings.Contains(s, `"`) {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil {
			if f != math.Trunc(f*scaleFactor)/scaleFactor {
				return fmt.Errorf("amount: %q cannot be represented exactly", s)
			}
			*a = Amount(math.Round(f * scaleFactor))
			return nil
		}
	}

	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
