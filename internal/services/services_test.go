package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/models"
)

const testActor uint = 7

var testNow = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	seedFixtures(t, db)
	return db
}

func seedFixtures(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&[]models.Company{
		{ID: 1, Name: "Dakar Shipping", Active: true},
		{ID: 2, Name: "Atlantic Lines", Active: true},
		{ID: 3, Name: "Closed Co", Active: true},
	}).Error)
	require.NoError(t, db.Model(&models.Company{}).Where("id = ?", 3).Update("active", false).Error)
	require.NoError(t, db.Create(&[]models.Ship{
		{ID: 1, Name: "Aminata", IMONumber: "9074729", CompanyID: 1, Active: true},
		{ID: 2, Name: "Goree", IMONumber: "9321483", CompanyID: 2, Active: true},
	}).Error)
	require.NoError(t, db.Create(&[]models.Operation{
		{ID: 1, Code: "PIL", Label: "Pilotage", DefaultUnitPrice: decimal.NewFromInt(150000), Active: true},
		{ID: 2, Code: "REM", Label: "Remorquage", DefaultUnitPrice: decimal.NewFromInt(50000), Active: true},
	}).Error)
	require.NoError(t, db.Create(&models.Supplier{ID: 1, Name: "Total Energies Marine", Active: true}).Error)
}

func newInvoiceService(t *testing.T) (*InvoiceService, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	svc := NewInvoiceService(db, NewGormLookup(db), NewNumberGenerator(3),
		WithClock(func() time.Time { return testNow }))
	return svc, db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

// scenarioDraft totals 350000 + 18% = 413000.
func scenarioDraft() billing.Draft {
	return billing.Draft{
		CompanyID: 1,
		ShipID:    1,
		IssueDate: day(2024, 1, 1),
		DueDate:   day(2024, 1, 10),
		TaxRate:   dec("18"),
		Lines: []billing.LineItem{
			{OperationID: 1, Description: "Pilotage", Quantity: dec("2"), UnitPrice: dec("150000")},
			{OperationID: 2, Description: "Remorquage", Quantity: dec("1"), UnitPrice: dec("50000")},
		},
		Notes: "escale Dakar",
	}
}

func createInvoice(t *testing.T, svc *InvoiceService, mutate ...func(*billing.Draft)) *billing.Invoice {
	t.Helper()
	d := scenarioDraft()
	for _, m := range mutate {
		m(&d)
	}
	inv, err := svc.Create(context.Background(), testActor, d)
	require.NoError(t, err)
	return inv
}

func emit(t *testing.T, svc *InvoiceService, id uint) *billing.Invoice {
	t.Helper()
	inv, err := svc.ChangeStatus(context.Background(), testActor, id, billing.StatusIssued, "")
	require.NoError(t, err)
	return inv
}
