package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/pawtraits/backend/internal/models"
	"gorm.io/gorm"
)

func createCommissionTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_commission_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Migrator().CreateTable(&models.Commission{}, &models.CreditRedemption{}); err != nil {
				return err
			}
			return execPostgres(tx,
				`ALTER TABLE commissions ADD CONSTRAINT chk_commissions_status CHECK (status IN ('pending', 'approved', 'paid', 'redeemed'))`,
				`ALTER TABLE commissions ADD CONSTRAINT chk_commissions_recipient CHECK (recipient_type IN ('partner', 'customer'))`,
				`ALTER TABLE commissions ADD CONSTRAINT chk_commissions_amount CHECK (commission_amount >= 0)`,
				`ALTER TABLE credit_redemptions ADD CONSTRAINT chk_credit_redemptions_amount CHECK (amount > 0)`,
				`CREATE INDEX IF NOT EXISTS idx_commissions_unapplied ON commissions (created_at) WHERE recipient_type = 'customer' AND balance_applied_at IS NULL`,
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("credit_redemptions", "commissions")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createCommissionTables())
}
