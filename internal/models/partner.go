package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/money"
	"gorm.io/gorm"
)

// PartnerType distinguishes business partners from influencers. Both earn
// commission the same way; analytics views are scoped per type.
type PartnerType string

const (
	PartnerTypePartner    PartnerType = "partner"
	PartnerTypeInfluencer PartnerType = "influencer"
)

// Valid reports whether t is a known partner type.
func (t PartnerType) Valid() bool {
	return t == PartnerTypePartner || t == PartnerTypeInfluencer
}

// Partner is a referring business (groomer, vet, shop) or influencer.
type Partner struct {
	Base
	Email          string            `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	BusinessName   string            `gorm:"type:varchar(255);not null" json:"business_name"`
	ContactName    string            `gorm:"type:varchar(255)" json:"contact_name"`
	PartnerType    PartnerType       `gorm:"type:varchar(20);not null" json:"partner_type"`
	CommissionRate money.Rate        `gorm:"column:commission_rate_bps;not null" json:"commission_rate"`
	PasswordHash   string            `gorm:"type:varchar(255)" json:"-"`
	Active         bool              `gorm:"not null" json:"active"`
	Referrals      []PartnerReferral `gorm:"foreignKey:PartnerID" json:"referrals,omitempty"`
	DeletedAt      gorm.DeletedAt    `gorm:"index" json:"-"`
}

// PartnerReferral is an expiring referral code issued to a partner.
type PartnerReferral struct {
	Base
	PartnerID uuid.UUID  `gorm:"type:uuid;not null;index" json:"partner_id"`
	Partner   *Partner   `gorm:"foreignKey:PartnerID" json:"-"`
	Code      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `gorm:"not null" json:"active"`
	ScanCount int64      `gorm:"not null;default:0" json:"scan_count"`
}

// Expired reports whether the code has passed its expiry at now.
func (r *PartnerReferral) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}
