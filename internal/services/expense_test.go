package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/models"
)

func newExpenseService(t *testing.T) (*ExpenseService, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	return NewExpenseService(db, NewGormLookup(db)), db
}

func fuelExpense() ExpenseInput {
	return ExpenseInput{
		Reference:   " BL-2024-118 ",
		SupplierID:  1,
		ShipID:      ptr(uint(1)),
		Category:    "CARBURANT",
		Description: "gasoil soute",
		ExpenseDate: day(2024, 2, 3),
		Amount:      dec("1250000.456"),
		Currency:    "",
	}
}

func TestExpenseCreate(t *testing.T) {
	svc, db := newExpenseService(t)
	exp, err := svc.Create(context.Background(), testActor, fuelExpense())
	require.NoError(t, err)

	assert.Equal(t, "BL-2024-118", exp.Reference)
	assert.Equal(t, DefaultCurrency, exp.Currency)
	assert.True(t, exp.Amount.Equal(dec("1250000.46")), exp.Amount.String())
	assert.Equal(t, testActor, exp.CreatedBy)

	var logs []models.AuditLog
	require.NoError(t, db.Where("entity_type = ?", "expense").Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, exp.ID, logs[0].EntityID)
}

func TestExpenseCreate_Validation(t *testing.T) {
	svc, _ := newExpenseService(t)
	in := fuelExpense()
	in.Reference = "  "
	in.Category = "LOISIRS"
	in.Amount = dec("0")
	in.Currency = "euro"
	_, err := svc.Create(context.Background(), testActor, in)

	var ve *billing.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "reference")
	assert.Equal(t, "invalid", ve.Fields["category"])
	assert.Contains(t, ve.Fields, "amount")
	assert.Equal(t, "invalid", ve.Fields["currency"])
}

func TestExpenseCreate_AmountOverflow(t *testing.T) {
	svc, _ := newExpenseService(t)
	in := fuelExpense()
	in.Amount = dec("10000000000000000")
	_, err := svc.Create(context.Background(), testActor, in)

	var ve *billing.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "out_of_range", ve.Fields["amount"])
}

func TestExpenseCreate_MissingReferences(t *testing.T) {
	svc, _ := newExpenseService(t)
	in := fuelExpense()
	in.SupplierID = 9
	in.ShipID = ptr(uint(99))
	_, err := svc.Create(context.Background(), testActor, in)

	var rnf *billing.ReferenceNotFoundError
	require.ErrorAs(t, err, &rnf)
	assert.Equal(t, []billing.Reference{
		{Kind: "supplier", Field: "supplier_id", ID: 9},
		{Kind: "ship", Field: "ship_id", ID: 99},
	}, rnf.Missing)
}

func TestExpenseSearchAndDelete(t *testing.T) {
	svc, _ := newExpenseService(t)
	ctx := context.Background()
	fuel, err := svc.Create(ctx, testActor, fuelExpense())
	require.NoError(t, err)
	port := fuelExpense()
	port.Reference = "PAD-0042"
	port.Category = "FRAIS_PORTUAIRES"
	port.ShipID = nil
	port.Amount = dec("75000")
	port.ExpenseDate = day(2024, 3, 1)
	harbour, err := svc.Create(ctx, testActor, port)
	require.NoError(t, err)

	page, err := svc.Search(ctx, ExpenseFilter{Query: ptr("energies")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total, "matches supplier name")
	assert.Equal(t, harbour.ID, page.Items[0].ID, "newest first")

	page, err = svc.Search(ctx, ExpenseFilter{MaxAmount: ptr(dec("100000"))})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "PAD-0042", page.Items[0].Reference)

	page, err = svc.Search(ctx, ExpenseFilter{Month: ptr(2), Year: ptr(2024), Category: ptr("CARBURANT")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	_, err = svc.Search(ctx, ExpenseFilter{Category: ptr("LOISIRS")})
	assert.ErrorIs(t, err, billing.ErrValidation)

	require.NoError(t, svc.Delete(ctx, testActor, fuel.ID))
	_, err = svc.Get(ctx, fuel.ID, false)
	assert.ErrorIs(t, err, billing.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, testActor, fuel.ID), billing.ErrNotFound)

	page, err = svc.Search(ctx, ExpenseFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}
