package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/models"
	"github.com/diewo77/maritime-billing/internal/search"
	"github.com/diewo77/maritime-billing/validation"
)

// StatsFilter narrows the statistics. Only active invoices are counted.
type StatsFilter struct {
	Year      *int
	CompanyID *uint
}

type StatusStat struct {
	Status billing.Status
	Count  int64
	Total  decimal.Decimal
}

type CompanyStat struct {
	CompanyID   uint
	CompanyName string
	Count       int64
	Total       decimal.Decimal
}

type MonthStat struct {
	Year  int
	Month time.Month
	Count int64
	Total decimal.Decimal
}

// Stats groups invoice counts and totals. Revenue sums PAYEE invoices,
// Outstanding sums EMISE and EN_RETARD ones.
type Stats struct {
	Count       int64
	Revenue     decimal.Decimal
	Outstanding decimal.Decimal
	ByStatus    []StatusStat
	ByCompany   []CompanyStat
	ByMonth     []MonthStat
}

type monthRow struct {
	IssueDate time.Time
	Total     decimal.Decimal
}

func (f StatsFilter) builder() *search.Builder {
	return search.New("invoices").Where(
		search.Active("invoices.active", nil),
		search.MonthYear("invoices.issue_date", nil, f.Year),
		search.Eq("invoices.company_id", f.CompanyID),
	)
}

// Stats computes read-only projections over active invoices.
func (s *InvoiceService) Stats(ctx context.Context, f StatsFilter) (Stats, error) {
	v := make(validation.Violations)
	validatePeriod(nil, f.Year, v)
	if err := billing.NewValidationError(v); err != nil {
		return Stats{}, err
	}
	db := s.db.WithContext(ctx)
	out := Stats{Revenue: decimal.Zero, Outstanding: decimal.Zero}

	err := f.builder().Apply(db.Model(&models.Invoice{})).
		Select("invoices.status AS status, COUNT(*) AS count, COALESCE(SUM(invoices.total), 0) AS total").
		Group("invoices.status").
		Scan(&out.ByStatus).Error
	if err != nil {
		return Stats{}, fmt.Errorf("stats by status: %w", err)
	}
	sort.Slice(out.ByStatus, func(i, j int) bool {
		return out.ByStatus[i].Status.Rank() < out.ByStatus[j].Status.Rank()
	})
	for i := range out.ByStatus {
		st := &out.ByStatus[i]
		st.Total = billing.RoundMoney(st.Total)
		out.Count += st.Count
		switch st.Status {
		case billing.StatusPaid:
			out.Revenue = out.Revenue.Add(st.Total)
		case billing.StatusIssued, billing.StatusOverdue:
			out.Outstanding = out.Outstanding.Add(st.Total)
		}
	}

	err = f.builder().Apply(db.Model(&models.Invoice{})).
		Joins("LEFT JOIN companies ON companies.id = invoices.company_id").
		Select("invoices.company_id AS company_id, COALESCE(companies.name, '') AS company_name, " +
			"COUNT(*) AS count, COALESCE(SUM(invoices.total), 0) AS total").
		Group("invoices.company_id, companies.name").
		Order("invoices.company_id").
		Scan(&out.ByCompany).Error
	if err != nil {
		return Stats{}, fmt.Errorf("stats by company: %w", err)
	}
	for i := range out.ByCompany {
		out.ByCompany[i].Total = billing.RoundMoney(out.ByCompany[i].Total)
	}

	// grouped in Go: month extraction differs between postgres and sqlite
	var rows []monthRow
	err = f.builder().Apply(db.Model(&models.Invoice{})).
		Select("invoices.issue_date AS issue_date, invoices.total AS total").
		Scan(&rows).Error
	if err != nil {
		return Stats{}, fmt.Errorf("stats by month: %w", err)
	}
	type key struct {
		y int
		m time.Month
	}
	months := make(map[key]*MonthStat)
	for _, r := range rows {
		k := key{r.IssueDate.Year(), r.IssueDate.Month()}
		ms, ok := months[k]
		if !ok {
			ms = &MonthStat{Year: k.y, Month: k.m, Total: decimal.Zero}
			months[k] = ms
		}
		ms.Count++
		ms.Total = ms.Total.Add(r.Total)
	}
	out.ByMonth = make([]MonthStat, 0, len(months))
	for _, ms := range months {
		ms.Total = billing.RoundMoney(ms.Total)
		out.ByMonth = append(out.ByMonth, *ms)
	}
	sort.Slice(out.ByMonth, func(i, j int) bool {
		a, b := out.ByMonth[i], out.ByMonth[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})
	return out, nil
}
