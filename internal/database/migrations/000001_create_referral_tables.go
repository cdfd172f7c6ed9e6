package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/pawtraits/backend/internal/models"
	"gorm.io/gorm"
)

// createReferralTables creates customers, partners and partner codes
func createReferralTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_referral_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Migrator().CreateTable(&models.Customer{}, &models.Partner{}, &models.PartnerReferral{}); err != nil {
				return err
			}
			return execPostgres(tx,
				`ALTER TABLE customers ADD CONSTRAINT chk_customers_credit_balance CHECK (credit_balance >= 0)`,
				`ALTER TABLE partners ADD CONSTRAINT chk_partners_type CHECK (partner_type IN ('partner', 'influencer'))`,
				`ALTER TABLE partners ADD CONSTRAINT chk_partners_rate CHECK (commission_rate_bps BETWEEN 0 AND 10000)`,
				`ALTER TABLE partner_referrals ADD CONSTRAINT fk_partner_referrals_partner FOREIGN KEY (partner_id) REFERENCES partners(id)`,
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("partner_referrals", "partners", "customers")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createReferralTables())
}
