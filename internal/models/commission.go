package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/money"
)

// RecipientType is who a commission is owed to, and equally which kind of
// referral code attributed the order.
type RecipientType string

const (
	RecipientPartner  RecipientType = "partner"
	RecipientCustomer RecipientType = "customer"
)

// CommissionStatus is the commission lifecycle.
type CommissionStatus string

const (
	CommissionStatusPending  CommissionStatus = "pending"
	CommissionStatusApproved CommissionStatus = "approved"
	CommissionStatusPaid     CommissionStatus = "paid"
	CommissionStatusRedeemed CommissionStatus = "redeemed"
)

// Commission is the ledger row for one referral-attributed order. There is at
// most one per (order, recipient type).
type Commission struct {
	Base
	OrderID          uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_commissions_order_recipient" json:"order_id"`
	OrderAmount      int64            `gorm:"not null" json:"order_amount"`
	RecipientType    RecipientType    `gorm:"type:varchar(20);not null;uniqueIndex:idx_commissions_order_recipient" json:"recipient_type"`
	RecipientID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"recipient_id"`
	CommissionRate   money.Rate       `gorm:"column:commission_rate_bps;not null" json:"commission_rate"`
	CommissionAmount int64            `gorm:"not null" json:"commission_amount"`
	Status           CommissionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Metadata         JSON             `gorm:"type:jsonb" json:"metadata,omitempty"`
	BalanceAppliedAt *time.Time       `json:"balance_applied_at,omitempty"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
	RedeemedAt       *time.Time       `json:"redeemed_at,omitempty"`
}

// CreditRedemption records credit spent by a customer against an order.
type CreditRedemption struct {
	Base
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`
	OrderID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	Amount     int64     `gorm:"not null" json:"amount"`
}
