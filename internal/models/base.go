package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base contains common columns for all tables
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate will set a UUID rather than numeric ID
func (base *Base) BeforeCreate(tx *gorm.DB) error {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	return nil
}

// All returns every persisted model, in dependency order.
func All() []interface{} {
	return []interface{}{
		&Customer{},
		&Partner{},
		&PartnerReferral{},
		&Order{},
		&Commission{},
		&CreditRedemption{},
		&ReferralScan{},
		&PortraitVariation{},
	}
}
