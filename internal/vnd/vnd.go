// Package vnd provides helpers for Vietnamese đồng amounts.
//
// All balances, fees and transaction amounts on the platform are integral
// VND (there is no sub-đồng denomination), so amounts travel through the
// system as int64 and this package only handles parsing and display.
package vnd

import (
	"errors"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid VND amount")

// Parse converts a string like "1000000" or "1.000.000" (Vietnamese digit
// grouping) into an int64 amount. Negative amounts are rejected.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, ErrInvalidAmount
	}
	return n, nil
}

// Format renders an amount with Vietnamese digit grouping, e.g. 1012000
// becomes "1.012.000₫". Used in log lines and customer-facing messages.
func Format(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)

	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}

	out := b.String() + "₫"
	if neg {
		out = "-" + out
	}
	return out
}
