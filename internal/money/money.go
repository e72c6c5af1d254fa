// Package money converts gateway amounts into integer cents.
//
// Gateways report amounts either as minor units ("250") or as major units
// with a decimal point ("2.50"). Unknown amounts are nil, never zero.
package money

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	centsPattern = regexp.MustCompile(`^\d+$`)
	majorPattern = regexp.MustCompile(`^\d+\.\d{1,2}$`)

	hundred = decimal.NewFromInt(100)
)

// Normalize returns the amount in cents, or nil when raw is empty or malformed.
func Normalize(raw string) *int64 {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return nil
	case centsPattern.MatchString(s):
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil
		}
		return &v
	case majorPattern.MatchString(s):
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil
		}
		cents := d.Mul(hundred).Round(0)
		if !cents.IsInteger() || cents.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
			return nil
		}
		v := cents.IntPart()
		return &v
	}
	return nil
}

// FormatCents renders cents as a major-unit string with two decimals.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// FormatCentsPtr returns "" for an unknown amount.
func FormatCentsPtr(cents *int64) string {
	if cents == nil {
		return ""
	}
	return FormatCents(*cents)
}
