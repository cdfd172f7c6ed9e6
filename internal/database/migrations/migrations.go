package migrations

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// migrationsList holds all migrations in registration order
var migrationsList []*gormigrate.Migration

// List returns the registered migrations.
func List() []*gormigrate.Migration {
	return migrationsList
}

// RunMigrations runs all database migrations
func RunMigrations(db *gorm.DB, logger *zap.Logger) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrationsList)

	if err := m.Migrate(); err != nil {
		logger.Error("Could not migrate", zap.Error(err))
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("Migrations ran successfully", zap.Int("count", len(migrationsList)))
	return nil
}

func isPostgres(tx *gorm.DB) bool {
	return tx.Dialector.Name() == "postgres"
}

// execPostgres runs statements that only make sense on the production
// database; other dialects skip them.
func execPostgres(tx *gorm.DB, statements ...string) error {
	if !isPostgres(tx) {
		return nil
	}
	for _, stmt := range statements {
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
