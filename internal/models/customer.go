package models

import "gorm.io/gorm"

// Customer is a storefront customer. PersonalCode is the non-expiring
// referral code assigned on signup; CreditBalance is the spendable credit in
// pence earned through that code.
type Customer struct {
	Base
	Email          string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FirstName      string         `gorm:"type:varchar(100)" json:"first_name"`
	LastName       string         `gorm:"type:varchar(100)" json:"last_name"`
	PersonalCode   *string        `gorm:"type:varchar(32);uniqueIndex" json:"personal_code,omitempty"`
	ReferredByCode *string        `gorm:"type:varchar(64);index" json:"referred_by_code,omitempty"`
	CreditBalance  int64          `gorm:"not null;default:0" json:"credit_balance"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}
