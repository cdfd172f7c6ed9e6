package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/pawtraits/backend/internal/models"
	"gorm.io/gorm"
)

func createOrdersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_orders_table",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Migrator().CreateTable(&models.Order{}); err != nil {
				return err
			}
			return execPostgres(tx,
				`ALTER TABLE orders ADD CONSTRAINT chk_orders_status CHECK (status IN ('pending', 'confirmed', 'processing', 'shipped', 'delivered', 'completed', 'cancelled', 'refunded'))`,
				`ALTER TABLE orders ADD CONSTRAINT chk_orders_amounts CHECK (subtotal_amount >= 0 AND discount_amount >= 0 AND credit_applied >= 0 AND total_amount >= 0)`,
				// Eligibility checks look up revenue orders by email and code.
				`CREATE INDEX IF NOT EXISTS idx_orders_referral_usage ON orders (LOWER(customer_email), status) WHERE referral_code IS NOT NULL`,
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("orders")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createOrdersTable())
}
