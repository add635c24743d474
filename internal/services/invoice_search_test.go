package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/search"
)

type searchFixture struct {
	svc                    *InvoiceService
	issued, small, paid    uint
	deleted, lastYearDraft uint
}

// seedSearch stores five invoices:
//
//	issued   2024-01-01 company 1 ship 1  413000 EMISE      FAC-2024-000001
//	small    2024-03-05 company 2 ship 2   59000 BROUILLON
//	paid     2024-03-20 company 1 ship 1  885000 PAYEE      FAC-2024-000002
//	deleted  2024-01-15 company 1 ship 1  413000 ANNULEE    inactive
//	lastYear 2023-12-10 company 2 ship 2   59000 BROUILLON
func seedSearch(t *testing.T) searchFixture {
	t.Helper()
	svc, _ := newInvoiceService(t)
	ctx := context.Background()
	atlantic := func(issue time.Time) func(*billing.Draft) {
		return func(d *billing.Draft) {
			d.CompanyID, d.ShipID = 2, 2
			d.IssueDate, d.DueDate = issue, issue.AddDate(0, 1, 0)
			d.Lines = []billing.LineItem{{OperationID: 2, Quantity: dec("1"), UnitPrice: dec("50000")}}
			d.Notes = ""
		}
	}

	f := searchFixture{svc: svc}
	f.issued = createInvoice(t, svc).ID()
	emit(t, svc, f.issued)

	f.small = createInvoice(t, svc, atlantic(day(2024, 3, 5))).ID()

	f.paid = createInvoice(t, svc, func(d *billing.Draft) {
		d.IssueDate, d.DueDate = day(2024, 3, 20), day(2024, 4, 20)
		d.Lines = []billing.LineItem{{OperationID: 1, Quantity: dec("5"), UnitPrice: dec("150000")}}
	}).ID()
	emit(t, svc, f.paid)
	_, err := svc.ChangeStatus(ctx, testActor, f.paid, billing.StatusPaid, "")
	require.NoError(t, err)

	f.deleted = createInvoice(t, svc, func(d *billing.Draft) {
		d.IssueDate, d.DueDate = day(2024, 1, 15), day(2024, 2, 15)
	}).ID()
	_, err = svc.ChangeStatus(ctx, testActor, f.deleted, billing.StatusCancelled, "")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, testActor, f.deleted))

	f.lastYearDraft = createInvoice(t, svc, atlantic(day(2023, 12, 10))).ID()
	return f
}

func ids(p InvoicePage) []uint {
	out := make([]uint, len(p.Items))
	for i, inv := range p.Items {
		out[i] = inv.ID()
	}
	return out
}

func TestSearch_AmountRange(t *testing.T) {
	// Scenario E
	f := seedSearch(t)
	page, err := f.svc.Search(context.Background(), InvoiceFilter{
		MinAmount: ptr(dec("100000")),
		MaxAmount: ptr(dec("500000")),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, []uint{f.issued}, ids(page))
	assert.Len(t, page.Items[0].Lines(), 2, "lines are preloaded")
}

func TestSearch_Filters(t *testing.T) {
	f := seedSearch(t)
	cases := []struct {
		name   string
		filter InvoiceFilter
		want   []uint
	}{
		{"company name", InvoiceFilter{Query: ptr("atlantic")}, []uint{f.small, f.lastYearDraft}},
		{"ship name", InvoiceFilter{Query: ptr("GOREE")}, []uint{f.small, f.lastYearDraft}},
		{"number", InvoiceFilter{Query: ptr("fac-2024-000001")}, []uint{f.issued}},
		{"status", InvoiceFilter{Status: ptr(billing.StatusIssued)}, []uint{f.issued}},
		{"company and ship", InvoiceFilter{CompanyID: ptr(uint(1)), ShipID: ptr(uint(1))}, []uint{f.paid, f.issued}},
		{"month", InvoiceFilter{Month: ptr(3), Year: ptr(2024), Sort: search.Sort{Field: "total"}}, []uint{f.small, f.paid}},
		{"year", InvoiceFilter{Year: ptr(2023)}, []uint{f.lastYearDraft}},
		{"issue range", InvoiceFilter{IssueFrom: ptr(day(2024, 1, 1)), IssueTo: ptr(day(2024, 3, 5))}, []uint{f.small, f.issued}},
		{"inactive", InvoiceFilter{Active: ptr(false)}, []uint{f.deleted}},
		{"no match", InvoiceFilter{Query: ptr("%")}, []uint{}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			page, err := f.svc.Search(context.Background(), tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(page))
			assert.Equal(t, int64(len(tc.want)), page.Total)
		})
	}
}

func TestSearch_Pagination(t *testing.T) {
	f := seedSearch(t)
	page, err := f.svc.Search(context.Background(), InvoiceFilter{Page: search.Page{Number: 2, Size: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Equal(t, 2, page.Page.Number)
	// default order is issue date, newest first
	assert.Equal(t, []uint{f.issued, f.lastYearDraft}, ids(page))
}

func TestSearch_InvalidFilter(t *testing.T) {
	svc, _ := newInvoiceService(t)
	_, err := svc.Search(context.Background(), InvoiceFilter{
		Month:     ptr(3),
		MinAmount: ptr(dec("10")),
		MaxAmount: ptr(dec("5")),
		Sort:      search.Sort{Field: "password"},
	})
	var ve *billing.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "requires_year", ve.Fields["month"])
	assert.Equal(t, "below_min_amount", ve.Fields["max_amount"])
	assert.Equal(t, "unsupported", ve.Fields["sort"])
}

func TestStats(t *testing.T) {
	f := seedSearch(t)
	st, err := f.svc.Stats(context.Background(), StatsFilter{})
	require.NoError(t, err)

	assert.Equal(t, int64(4), st.Count)
	assert.True(t, st.Revenue.Equal(dec("885000")), st.Revenue.String())
	assert.True(t, st.Outstanding.Equal(dec("413000")), st.Outstanding.String())

	require.Len(t, st.ByStatus, 3)
	assert.Equal(t, billing.StatusDraft, st.ByStatus[0].Status)
	assert.Equal(t, int64(2), st.ByStatus[0].Count)
	assert.True(t, st.ByStatus[0].Total.Equal(dec("118000")))
	assert.Equal(t, billing.StatusIssued, st.ByStatus[1].Status, "lifecycle order")
	assert.Equal(t, billing.StatusPaid, st.ByStatus[2].Status)

	require.Len(t, st.ByCompany, 2)
	assert.Equal(t, "Dakar Shipping", st.ByCompany[0].CompanyName)
	assert.True(t, st.ByCompany[0].Total.Equal(dec("1298000")))
	assert.Equal(t, "Atlantic Lines", st.ByCompany[1].CompanyName)

	require.Len(t, st.ByMonth, 3)
	assert.Equal(t, 2023, st.ByMonth[0].Year)
	assert.Equal(t, time.December, st.ByMonth[0].Month)
	assert.True(t, st.ByMonth[0].Total.Equal(dec("59000")))
	assert.Equal(t, time.March, st.ByMonth[2].Month)
	assert.Equal(t, int64(2), st.ByMonth[2].Count)
	assert.True(t, st.ByMonth[2].Total.Equal(dec("944000")))

	st, err = f.svc.Stats(context.Background(), StatsFilter{Year: ptr(2024), CompanyID: ptr(uint(2))})
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Count)
	assert.True(t, st.Revenue.IsZero())
}
