package search

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Page is a 1-based page request.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"size"`
}

// NewPage normalizes a page request: number below 1 becomes 1, size
// defaults to DefaultPageSize and is capped at MaxPageSize.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// Scope applies LIMIT/OFFSET.
func (p Page) Scope() Scope {
	p = NewPage(p.Number, p.Size)
	return func(db *gorm.DB) *gorm.DB { return db.Offset(p.Offset()).Limit(p.Size) }
}

// Sort names an API field and a direction.
type Sort struct {
	Field string
	Desc  bool
}

// ParseSort reads "field" or "-field" (descending).
func ParseSort(s string) Sort {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return Sort{Field: strings.TrimPrefix(s, "-"), Desc: true}
	}
	return Sort{Field: s}
}

// Sorter maps API sort fields to columns.
type Sorter struct {
	Columns  map[string]string
	Default  Sort
	Tiebreak string
}

// Allowed reports whether s can be ordered on. An empty field is allowed and
// falls back to the default.
func (o Sorter) Allowed(s Sort) bool {
	if s.Field == "" {
		return true
	}
	_, ok := o.Columns[s.Field]
	return ok
}

// Scope orders by s, then by the tiebreak column so pages are stable.
// Unknown fields fall back to the default.
func (o Sorter) Scope(s Sort) Scope {
	col, ok := o.Columns[s.Field]
	if !ok {
		s = o.Default
		col = o.Columns[s.Field]
	}
	return func(db *gorm.DB) *gorm.DB {
		if col != "" {
			db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: col, Raw: true}, Desc: s.Desc})
		}
		if o.Tiebreak != "" && o.Tiebreak != col {
			db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Tiebreak, Raw: true}, Desc: s.Desc})
		}
		return db
	}
}
