// Package validation collects field-level violations as a map of field path to
// error code, so callers can report every problem of an input at once.
package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Add records code for field unless the field already has a violation.
// The first violation found for a field wins.
func (v Violations) Add(field, code string) {
	if _, ok := v[field]; !ok {
		v[field] = code
	}
}

// Merge copies other into v, prefixing every field with prefix when non-empty.
func (v Violations) Merge(prefix string, other Violations) {
	for field, code := range other {
		if prefix != "" {
			field = prefix + "." + field
		}
		v.Add(field, code)
	}
}

// Index builds the path of a slice element, e.g. Index("lines", 2) = "lines[2]".
func Index(field string, i int) string {
	return fmt.Sprintf("%s[%d]", field, i)
}

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "required")
	}
}

func RequiredID(field string, id uint, v Violations) {
	if id == 0 {
		v.Add(field, "required")
	}
}

func RequiredDate(field string, t time.Time, v Violations) {
	if t.IsZero() {
		v.Add(field, "required")
	}
}

func PositiveDecimal(field string, val decimal.Decimal, v Violations) {
	if !val.IsPositive() {
		v.Add(field, "must_be_positive")
	}
}

func NonNegativeDecimal(field string, val decimal.Decimal, v Violations) {
	if val.IsNegative() {
		v.Add(field, "must_not_be_negative")
	}
}

func RangeDecimal(field string, val, minVal, maxVal decimal.Decimal, v Violations) {
	if val.LessThan(minVal) || val.GreaterThan(maxVal) {
		v.Add(field, "out_of_range")
	}
}

// MaxScale reports too_precise when val carries more than scale significant
// decimals. Trailing zeros do not count.
func MaxScale(field string, val decimal.Decimal, scale int32, v Violations) {
	if !val.Equal(val.Truncate(scale)) {
		v.Add(field, "too_precise")
	}
}

// MaxDecimal reports out_of_range when |val| exceeds max.
func MaxDecimal(field string, val, max decimal.Decimal, v Violations) {
	if val.Abs().GreaterThan(max) {
		v.Add(field, "out_of_range")
	}
}

// ColumnMax is the largest value a numeric(precision, scale) column holds,
// e.g. ColumnMax(5, 2) = 999.99.
func ColumnMax(precision, scale int32) decimal.Decimal {
	return decimal.New(1, precision-scale).Sub(decimal.New(1, -scale))
}

// Numeric checks val against a numeric(precision, scale) column.
func Numeric(field string, val decimal.Decimal, precision, scale int32, v Violations) {
	MaxScale(field, val, scale, v)
	MaxDecimal(field, val, ColumnMax(precision, scale), v)
}

// MaxLen counts runes, not bytes.
func MaxLen(field, value string, max int, v Violations) {
	if utf8.RuneCountInString(value) > max {
		v.Add(field, "too_long")
	}
}

// NotBefore reports field with code when t is strictly before ref. Zero values
// are skipped; use RequiredDate for presence.
func NotBefore(field, code string, t, ref time.Time, v Violations) {
	if t.IsZero() || ref.IsZero() {
		return
	}
	if t.Before(ref) {
		v.Add(field, code)
	}
}
