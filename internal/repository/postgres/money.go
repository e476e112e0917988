package postgres

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// numericToMinor converts a NUMERIC(12,2) column value to minor units. Values
// with more than two decimal places are rejected rather than rounded.
func numericToMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty numeric string")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}

	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("numeric %q has sub-minor precision", s)
	}
	return minor.IntPart(), nil
}

func minorToNumeric(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
