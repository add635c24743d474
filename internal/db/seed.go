package db

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/maritime-billing/internal/logger"
	"github.com/diewo77/maritime-billing/internal/models"
)

// Seed inserts the reference catalogue (operations, a demo company with its
// ships, suppliers). Existing rows are left alone so it can run on every boot.
func Seed(db *gorm.DB) error {
	log := logger.WithComponent("seed")

	// Operations
	baseOperations := []models.Operation{
		{Code: "PIL", Label: "Pilotage", DefaultUnitPrice: decimal.NewFromInt(150000)},
		{Code: "REM", Label: "Remorquage", DefaultUnitPrice: decimal.NewFromInt(250000)},
		{Code: "LAM", Label: "Lamanage", DefaultUnitPrice: decimal.NewFromInt(50000)},
		{Code: "QUAI", Label: "Droits de quai", DefaultUnitPrice: decimal.NewFromInt(75000)},
		{Code: "AVT", Label: "Avitaillement", DefaultUnitPrice: decimal.Zero},
	}
	for _, op := range baseOperations {
		var existing models.Operation
		created, err := firstOrCreate(db, &existing, &op, "code = ?", op.Code)
		if err != nil {
			return fmt.Errorf("seed operation %s: %w", op.Code, err)
		}
		if created {
			log.Debug().Str("code", op.Code).Msg("operation created")
		}
	}

	// Compagnie de démo et ses navires
	demo := models.Company{Name: "Compagnie Maritime de Dakar", Email: "compta@cmd.sn", Country: "SN", Active: true}
	var company models.Company
	if _, err := firstOrCreate(db, &company, &demo, "name = ?", demo.Name); err != nil {
		return fmt.Errorf("seed company: %w", err)
	}
	if company.ID == 0 {
		company = demo
	}
	for _, s := range []models.Ship{
		{Name: "Aline Sitoe Diatta", IMONumber: "9176187", CompanyID: company.ID, Active: true},
		{Name: "Diambogne", IMONumber: "9268813", CompanyID: company.ID, Active: true},
	} {
		var existing models.Ship
		if _, err := firstOrCreate(db, &existing, &s, "imo_number = ?", s.IMONumber); err != nil {
			return fmt.Errorf("seed ship %s: %w", s.Name, err)
		}
	}

	// Fournisseurs
	for _, s := range []models.Supplier{
		{Name: "Total Energies Marine", Active: true},
		{Name: "Port Autonome de Dakar", Active: true},
	} {
		var existing models.Supplier
		if _, err := firstOrCreate(db, &existing, &s, "name = ?", s.Name); err != nil {
			return fmt.Errorf("seed supplier %s: %w", s.Name, err)
		}
	}
	log.Info().Msg("reference data seeded")
	return nil
}

// firstOrCreate loads into existing or inserts value when no row matches.
// When it inserts, existing stays zero and value carries the new id.
func firstOrCreate[T any](db *gorm.DB, existing *T, value *T, query string, args ...any) (bool, error) {
	err := db.Where(query, args...).First(existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if err := db.Create(value).Error; err != nil {
		return false, err
	}
	return true, nil
}
