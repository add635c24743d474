package services

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/models"
)

// NumberGenerator draws invoice numbers from the per-year counter in
// invoice_sequences. The counter row is incremented in place, so concurrent
// transactions serialize on it and never read the same value.
type NumberGenerator struct {
	retries int
}

// NewNumberGenerator skips at most retries numbers already present on an
// invoice before giving up with a UniquenessError.
func NewNumberGenerator(retries int) *NumberGenerator {
	if retries < 1 {
		retries = 1
	}
	return &NumberGenerator{retries: retries}
}

// Next must run inside the transaction that persists the number.
func (g *NumberGenerator) Next(tx *gorm.DB, year int) (string, error) {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.InvoiceSequence{Year: year}).Error
	if err != nil {
		return "", fmt.Errorf("init sequence %d: %w", year, err)
	}
	var number string
	for attempt := 1; attempt <= g.retries; attempt++ {
		res := tx.Model(&models.InvoiceSequence{}).
			Where("year = ?", year).
			UpdateColumn("last_value", gorm.Expr("last_value + 1"))
		if res.Error != nil {
			return "", fmt.Errorf("increment sequence %d: %w", year, res.Error)
		}
		var seq models.InvoiceSequence
		if err := tx.Where("year = ?", year).First(&seq).Error; err != nil {
			return "", fmt.Errorf("read sequence %d: %w", year, err)
		}
		number = billing.FormatNumber(year, seq.LastValue)

		var taken int64
		if err := tx.Model(&models.Invoice{}).Where("number = ?", number).Count(&taken).Error; err != nil {
			return "", fmt.Errorf("check number %s: %w", number, err)
		}
		if taken == 0 {
			return number, nil
		}
	}
	return "", &billing.UniquenessError{Number: number, Attempts: g.retries}
}

// For binds the generator to tx for the aggregate.
func (g *NumberGenerator) For(tx *gorm.DB) billing.Numberer {
	return billing.NumbererFunc(func(year int) (string, error) {
		return g.Next(tx, year)
	})
}
