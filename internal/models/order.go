package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/money"
)

// OrderStatus is the storefront order lifecycle.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// RevenueStatuses are the statuses in which an order counts as a sale.
var RevenueStatuses = []OrderStatus{
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCompleted,
}

// RecognizesRevenue reports whether s is one of RevenueStatuses.
func (s OrderStatus) RecognizesRevenue() bool {
	for _, rs := range RevenueStatuses {
		if s == rs {
			return true
		}
	}
	return false
}

// Order is a storefront order. The referral attribution (type, referrer and
// commission rate) is captured at checkout so completion never re-derives it.
type Order struct {
	Base
	CustomerID      *uuid.UUID     `gorm:"type:uuid;index" json:"customer_id,omitempty"`
	CustomerEmail   string         `gorm:"type:varchar(255);not null;index" json:"customer_email"`
	SubtotalAmount  int64          `gorm:"not null" json:"subtotal_amount"`
	DiscountAmount  int64          `gorm:"not null;default:0" json:"discount_amount"`
	CreditApplied   int64          `gorm:"not null;default:0" json:"credit_applied"`
	TotalAmount     int64          `gorm:"not null" json:"total_amount"`
	Currency        string         `gorm:"type:varchar(3);not null;default:'GBP'" json:"currency"`
	ReferralCode    *string        `gorm:"type:varchar(64);index" json:"referral_code,omitempty"`
	ReferralType    *RecipientType `gorm:"type:varchar(20)" json:"referral_type,omitempty"`
	ReferrerID      *uuid.UUID     `gorm:"type:uuid;index" json:"referrer_id,omitempty"`
	CommissionRate  money.Rate     `gorm:"column:commission_rate_bps;not null;default:0" json:"commission_rate"`
	Status          OrderStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentIntentID string         `gorm:"type:varchar(255);index" json:"payment_intent_id,omitempty"`
	ReferralError   string         `gorm:"type:varchar(64);not null;default:''" json:"referral_error,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}
