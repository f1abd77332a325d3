// Package core holds the settlement engine: exact money arithmetic,
// split calculation and pairwise balance folding.
//
// All monetary amounts are integer counts of minor currency units (cents).
// No computation in this package touches floating point; every reported sum
// is re-derivable from adding stored cent values.
package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// BasisPointsTotal is the weight sum representing 100.00%.
const BasisPointsTotal int64 = 10000

// Money is a signed amount of minor currency units.
// Equality and ordering are plain integer comparisons; no epsilon anywhere.
type Money struct {
	Cents int64
}

var ErrAmountOverflow = errors.New("amount overflow")

// Add returns m+o, failing with ErrAmountOverflow instead of wrapping.
func (m Money) Add(o Money) (Money, error) {
	if (o.Cents > 0 && m.Cents > math.MaxInt64-o.Cents) ||
		(o.Cents < 0 && m.Cents < math.MinInt64-o.Cents) {
		return Money{}, fmt.Errorf("add %d + %d: %w", m.Cents, o.Cents, ErrAmountOverflow)
	}
	return Money{Cents: m.Cents + o.Cents}, nil
}

// Sub returns m-o with the same overflow guarantee as Add.
func (m Money) Sub(o Money) (Money, error) {
	if o.Cents == math.MinInt64 {
		if m.Cents >= 0 {
			return Money{}, fmt.Errorf("sub %d - %d: %w", m.Cents, o.Cents, ErrAmountOverflow)
		}
		return Money{Cents: m.Cents - o.Cents}, nil
	}
	return m.Add(Money{Cents: -o.Cents})
}

// Neg returns -m. MinInt64 has no positive counterpart.
func (m Money) Neg() (Money, error) {
	if m.Cents == math.MinInt64 {
		return Money{}, fmt.Errorf("negate %d: %w", m.Cents, ErrAmountOverflow)
	}
	return Money{Cents: -m.Cents}, nil
}

// Abs returns |m|.
func (m Money) Abs() (Money, error) {
	if m.Cents < 0 {
		return m.Neg()
	}
	return m, nil
}

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsPositive() bool { return m.Cents > 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

// ScaleHalfUp multiplies m by the rational num/den, rounding half up to the
// nearest cent. den must be positive and num non-negative.
func (m Money) ScaleHalfUp(num, den int64) (Money, error) {
	if den <= 0 || num < 0 {
		return Money{}, fmt.Errorf("scale by %d/%d: %w", num, den, ErrInvalidAmount)
	}
	prod, err := mulChecked(m.Cents, num)
	if err != nil {
		return Money{}, err
	}
	q := prod / den
	r := prod % den
	if r < 0 {
		r = -r
	}
	if 2*r >= den {
		if prod >= 0 {
			q++
		} else {
			q--
		}
	}
	return Money{Cents: q}, nil
}

// scaleFloor multiplies m by num/den rounding toward zero, and returns the
// remainder prod%den alongside. Split calculation uses the remainder to rank
// participants for leftover-cent distribution.
func (m Money) scaleFloor(num, den int64) (share Money, remainder int64, err error) {
	prod, err := mulChecked(m.Cents, num)
	if err != nil {
		return Money{}, 0, err
	}
	return Money{Cents: prod / den}, prod % den, nil
}

func mulChecked(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	prod := a * b
	if prod/b != a {
		return 0, fmt.Errorf("multiply %d * %d: %w", a, b, ErrAmountOverflow)
	}
	return prod, nil
}

// ParseDecimalToCents converts a decimal string to cents with half-up
// rounding on the third decimal place. It accepts both dot (12.34) and comma
// (12,34) separators. The result is always positive cents; invalid formats,
// negative values and zero amounts are rejected.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1234, nil (rounds down)
//	ParseDecimalToCents("12.346") -> 1235, nil (rounds up)
func ParseDecimalToCents(s string) (int64, error) {
	cents, err := parseScaled(s, 2)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParsePercentToBasisPoints converts a percentage string ("33.33") to basis
// points (3333). Percentages must be positive and at most 100%.
func ParsePercentToBasisPoints(s string) (int64, error) {
	bps, err := parseScaled(s, 2)
	if err != nil {
		return 0, err
	}
	if bps <= 0 || bps > BasisPointsTotal {
		return 0, ErrInvalidAmount
	}
	return bps, nil
}

// parseScaled parses a non-negative decimal string into an integer scaled by
// 10^decimals, rounding half up on the first dropped digit.
func parseScaled(s string, decimals int) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot.
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	if intPart == "0" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	scale := int64(1)
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	if iv > math.MaxInt64/scale {
		return 0, ErrInvalidAmount
	}
	var frac int64
	mult := scale / 10
	for i := 0; i < len(fracPart) && mult > 0; i, mult = i+1, mult/10 {
		frac += int64(fracPart[i]-'0') * mult
	}
	// Half-up on the first dropped digit.
	if len(fracPart) > decimals && fracPart[decimals] >= '5' {
		frac++
	}
	return iv*scale + frac, nil
}

// FormatCents renders cents as an exact decimal string, e.g. 1234 -> "12.34"
// and -5 -> "-0.05". The API layer serializes Money through this; a float
// never crosses the wire.
func FormatCents(cents int64) string {
	neg := cents < 0
	u := uint64(cents)
	if neg {
		u = uint64(-(cents + 1)) + 1 // safe for MinInt64
	}
	whole := u / 100
	rem := u % 100
	s := strconv.FormatUint(whole, 10) + "." + fmt.Sprintf("%02d", rem)
	if neg {
		return "-" + s
	}
	return s
}

// String implements fmt.Stringer using FormatCents.
func (m Money) String() string {
	return FormatCents(m.Cents)
}
