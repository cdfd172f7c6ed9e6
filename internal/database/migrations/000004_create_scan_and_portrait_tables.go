package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/pawtraits/backend/internal/models"
	"gorm.io/gorm"
)

func createScanAndPortraitTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_scan_and_portrait_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.Migrator().CreateTable(&models.ReferralScan{}, &models.PortraitVariation{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("portrait_variations", "referral_scans")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createScanAndPortraitTables())
}
