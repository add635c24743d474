package billing

import "fmt"

// NumberPrefix starts every invoice number.
const NumberPrefix = "FAC"

const sequenceWidth = 6

// FormatNumber renders FAC-YYYY-NNNNNN. Sequences wider than six digits are
// printed in full.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("%s-%04d-%0*d", NumberPrefix, year, sequenceWidth, seq)
}

// Numberer hands out the next number for an emission year. Implementations
// must never return the same number twice.
type Numberer interface {
	Next(year int) (string, error)
}

// NumbererFunc adapts a function to Numberer.
type NumbererFunc func(year int) (string, error)

func (f NumbererFunc) Next(year int) (string, error) { return f(year) }
