// Package money holds the integer minor-unit arithmetic used for discounts,
// commissions and customer credit. Amounts are pence; rates are percentages
// stored as basis points so no float ever touches a stored amount.
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Rate is a percentage expressed in basis points (10.00% == 1000).
type Rate int64

const (
	basisPointsPerPercent = 100
	basisPointsWhole      = 100 * basisPointsPerPercent

	// MaxRate is 100%.
	MaxRate Rate = basisPointsWhole

	// MaxAmount caps any single order or credit amount (£10bn in pence) so
	// that amount × MaxRate stays well inside int64.
	MaxAmount int64 = 1_000_000_000_000
)

// ValidAmount reports whether amount is between zero and MaxAmount.
func ValidAmount(amount int64) bool {
	return amount >= 0 && amount <= MaxAmount
}

// ErrInvalidRate is returned for rates that are negative, above 100% or
// carry more than two decimal places.
var ErrInvalidRate = errors.New("invalid rate")

// RateFromPercent builds a Rate from a whole percentage.
func RateFromPercent(percent int64) Rate {
	return Rate(percent * basisPointsPerPercent)
}

// ParseRate parses decimal percentage text such as "10", "10.5" or "12.25".
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	s = strings.TrimPrefix(s, "+")

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (hasFrac && !isDigits(frac)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}

	// Extra precision is only tolerated when it is all zeros ("10.500").
	if len(frac) > 2 {
		if strings.Trim(frac[2:], "0") != "" {
			return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidRate, s)
		}
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	f, _ := strconv.ParseInt(frac, 10, 64)
	if w > 100 {
		return 0, fmt.Errorf("%w: %q exceeds 100%%", ErrInvalidRate, s)
	}

	r := Rate(w*basisPointsPerPercent + f)
	if err := r.Validate(); err != nil {
		return 0, err
	}
	return r, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Validate reports whether r lies within [0, 100%].
func (r Rate) Validate() error {
	if r < 0 || r > MaxRate {
		return fmt.Errorf("%w: %s", ErrInvalidRate, r)
	}
	return nil
}

// BasisPoints returns the raw basis point value.
func (r Rate) BasisPoints() int64 {
	return int64(r)
}

// String renders the rate as a two-decimal percentage, e.g. "10.00".
func (r Rate) String() string {
	sign := ""
	v := int64(r)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/basisPointsPerPercent, v%basisPointsPerPercent)
}

// MarshalJSON encodes the rate as a JSON number (10.00).
func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (r *Rate) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	parsed, err := ParseRate(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Percent returns round(amount × rate / 100) in minor units, rounding halves
// away from zero.
func Percent(amount int64, rate Rate) int64 {
	if amount < 0 {
		return -Percent(-amount, rate)
	}
	return (amount*int64(rate) + basisPointsWhole/2) / basisPointsWhole
}

// Format renders pence as pounds, e.g. 1050 -> "£10.50".
func Format(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s£%d.%02d", sign, amount/100, amount%100)
}
