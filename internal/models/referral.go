package models

import "github.com/google/uuid"

// ReferralScan is one visit through a referral link or QR code.
type ReferralScan struct {
	Base
	Code         string        `gorm:"type:varchar(64);not null;index" json:"code"`
	ReferralType RecipientType `gorm:"type:varchar(20);not null" json:"referral_type"`
	OwnerID      uuid.UUID     `gorm:"type:uuid;not null;index" json:"owner_id"`
	IPHash       string        `gorm:"type:varchar(64)" json:"-"`
	UserAgent    string        `gorm:"type:text" json:"-"`
}
