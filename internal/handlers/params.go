package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/search"
	"github.com/diewo77/maritime-billing/validation"
)

// queryParams reads optional query string values, collecting malformed ones.
type queryParams struct {
	vals url.Values
	v    validation.Violations
}

func newQueryParams(r *http.Request) *queryParams {
	return &queryParams{vals: r.URL.Query(), v: make(validation.Violations)}
}

func (q *queryParams) raw(key string) (string, bool) {
	s := strings.TrimSpace(q.vals.Get(key))
	return s, s != ""
}

func (q *queryParams) text(key string) *string {
	s, ok := q.raw(key)
	if !ok {
		return nil
	}
	return &s
}

func (q *queryParams) id(key string) *uint {
	s, ok := q.raw(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		q.v.Add(key, "invalid_number")
		return nil
	}
	id := uint(n)
	return &id
}

func (q *queryParams) number(key string) *int {
	s, ok := q.raw(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		q.v.Add(key, "invalid_number")
		return nil
	}
	return &n
}

func (q *queryParams) flag(key string) *bool {
	s, ok := q.raw(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		q.v.Add(key, "invalid_boolean")
		return nil
	}
	return &b
}

func (q *queryParams) amount(key string) *decimal.Decimal {
	s, ok := q.raw(key)
	if !ok {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		q.v.Add(key, "invalid_number")
		return nil
	}
	return &d
}

func (q *queryParams) status(key string) *billing.Status {
	s, ok := q.raw(key)
	if !ok {
		return nil
	}
	st, ok := parseStatus(key, s, q.v)
	if !ok {
		return nil
	}
	return &st
}

func (q *queryParams) day(key string) *time.Time {
	s, ok := q.raw(key)
	if !ok {
		return nil
	}
	t := parseDate(key, s, q.v)
	if t.IsZero() {
		return nil
	}
	return &t
}

// page reads page and page_size; search.NewPage normalizes them later.
func (q *queryParams) page() search.Page {
	p := search.Page{}
	if n := q.number("page"); n != nil {
		p.Number = *n
	}
	if n := q.number("page_size"); n != nil {
		p.Size = *n
	}
	return p
}

func (q *queryParams) sort() search.Sort {
	s, _ := q.raw("sort")
	return search.ParseSort(s)
}

// pathID parses the {id} wildcard.
func pathID(r *http.Request) (uint, bool) {
	n, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
