// Package search composes optional filter fields into GORM scopes.
//
// Every combinator returns nil when its input is absent, and a Builder skips
// nil scopes, so an empty filter yields an open query. Scopes are AND-ed.
package search

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Scope is a GORM scope function.
type Scope = func(*gorm.DB) *gorm.DB

// Builder accumulates scopes for one table.
type Builder struct {
	table  string
	scopes []Scope
}

// New starts a builder for table. Columns passed to combinators should be
// qualified with it when joins are involved.
func New(table string) *Builder {
	return &Builder{table: table}
}

// Where appends the non-nil scopes.
func (b *Builder) Where(scopes ...Scope) *Builder {
	for _, s := range scopes {
		if s != nil {
			b.scopes = append(b.scopes, s)
		}
	}
	return b
}

// Apply adds every scope to db.
func (b *Builder) Apply(db *gorm.DB) *gorm.DB {
	return db.Scopes(b.scopes...)
}

// Find counts the matching rows of model, then loads one page into dest,
// ordered by order. extra scopes (preloads) apply to the page query only.
func (b *Builder) Find(db *gorm.DB, model any, p Page, order Scope, dest any, extra ...Scope) (int64, error) {
	var total int64
	if err := b.Apply(db.Model(model)).Count(&total).Error; err != nil {
		return 0, err
	}
	q := b.Apply(db.Model(model)).Select(b.table + ".*")
	if order != nil {
		q = q.Scopes(order)
	}
	q = q.Scopes(extra...).Scopes(p.Scope())
	if err := q.Find(dest).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Join adds a raw join clause, e.g. "LEFT JOIN ships ON ships.id = invoices.ship_id".
func Join(clause string) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Joins(clause) }
}

// Eq matches column = *v.
func Eq[T any](column string, v *T) Scope {
	if v == nil {
		return nil
	}
	val := *v
	return func(db *gorm.DB) *gorm.DB { return db.Where(column+" = ?", val) }
}

// In matches column IN values; an empty slice adds nothing.
func In[T any](column string, values []T) Scope {
	if len(values) == 0 {
		return nil
	}
	return func(db *gorm.DB) *gorm.DB { return db.Where(column+" IN ?", values) }
}

// Range is inclusive on both bounds; a single bound gives a half-open
// constraint.
func Range[T any](column string, from, to *T) Scope {
	if from == nil && to == nil {
		return nil
	}
	return func(db *gorm.DB) *gorm.DB {
		if from != nil {
			db = db.Where(column+" >= ?", *from)
		}
		if to != nil {
			db = db.Where(column+" <= ?", *to)
		}
		return db
	}
}

// Between matches from <= column < to.
func Between(column string, from, to time.Time) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(column+" >= ? AND "+column+" < ?", from, to)
	}
}

// Text matches q case-insensitively as a substring of any of columns.
// Blank terms add nothing.
func Text(q *string, columns ...string) Scope {
	if q == nil || len(columns) == 0 {
		return nil
	}
	term := strings.TrimSpace(*q)
	if term == "" {
		return nil
	}
	like := "%" + escapeLike(strings.ToLower(term)) + "%"
	parts := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		parts[i] = "LOWER(" + c + `) LIKE ? ESCAPE '\'`
		args[i] = like
	}
	expr := "(" + strings.Join(parts, " OR ") + ")"
	return func(db *gorm.DB) *gorm.DB { return db.Where(expr, args...) }
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// Active filters on an active flag, defaulting to active rows when v is nil.
func Active(column string, v *bool) Scope {
	want := true
	if v != nil {
		want = *v
	}
	return func(db *gorm.DB) *gorm.DB { return db.Where(column+" = ?", want) }
}

// MonthYear turns a year, or a month of a year, into a date range on column.
// A month without a year adds nothing; callers validate that combination.
func MonthYear(column string, month, year *int) Scope {
	if year == nil {
		return nil
	}
	if month == nil {
		from := time.Date(*year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return Between(column, from, from.AddDate(1, 0, 0))
	}
	from := time.Date(*year, time.Month(*month), 1, 0, 0, 0, 0, time.UTC)
	return Between(column, from, from.AddDate(0, 1, 0))
}
