package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/pawtraits/backend/internal/models"
	"gorm.io/gorm"
)

func addOrderReferralError() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_add_order_referral_error",
		Migrate: func(tx *gorm.DB) error {
			// Tables created from the current model already carry the column.
			if tx.Migrator().HasColumn(&models.Order{}, "ReferralError") {
				return nil
			}
			return tx.Migrator().AddColumn(&models.Order{}, "ReferralError")
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropColumn(&models.Order{}, "ReferralError")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, addOrderReferralError())
}
