// Package orders captures referral attribution at checkout and settles it
// when the payment completes.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/commission"
	"github.com/pawtraits/backend/internal/models"
	"github.com/pawtraits/backend/internal/money"
	"github.com/pawtraits/backend/internal/referral"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotCompletable = errors.New("order can no longer be completed")
	ErrEmailRequired       = errors.New("customer email is required")
)

// ReferralErrorDiscountUsed marks an order whose referral discount turned out
// to be the customer's second; its referral is not settled.
const ReferralErrorDiscountUsed = "discount_already_used"

// completableStatuses are the statuses a payment can complete from.
var completableStatuses = []models.OrderStatus{
	models.OrderStatusPending,
	models.OrderStatusConfirmed,
	models.OrderStatusProcessing,
	models.OrderStatusShipped,
	models.OrderStatusDelivered,
}

// CreateOrderInput is a checkout request.
type CreateOrderInput struct {
	CustomerEmail string
	Subtotal      int64
	Currency      string
	ReferralCode  string
	ApplyCredit   bool
	// CreditOwnerID is the authenticated customer placing the order. Credit
	// is only applied when it matches the customer owning CustomerEmail.
	CreditOwnerID *uuid.UUID
}

// CreateResult is a new order plus the referral check made for it.
type CreateResult struct {
	Order    *models.Order              `json:"order"`
	Referral *referral.ValidationResult `json:"referral,omitempty"`
}

// CompletionResult reports what completing an order settled.
type CompletionResult struct {
	Order          *models.Order            `json:"order"`
	Commission     *commission.Result       `json:"commission,omitempty"`
	Redemption     *models.CreditRedemption `json:"redemption,omitempty"`
	AlreadyDone    bool                     `json:"already_completed"`
	RedemptionNote string                   `json:"redemption_error,omitempty"`
	ReferralNote   string                   `json:"referral_error,omitempty"`
}

// Service handles order checkout and completion.
type Service struct {
	db        *gorm.DB
	referrals *referral.Service
	recorder  *commission.Recorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new order service
func NewService(db *gorm.DB, referrals *referral.Service, recorder *commission.Recorder, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		referrals: referrals,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// Create prices an order. An eligible referral code takes the discount off
// and the referrer and rate are captured on the order; any other code is
// dropped without failing checkout.
func (s *Service) Create(ctx context.Context, in CreateOrderInput) (*CreateResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.CustomerEmail))
	if email == "" {
		return nil, ErrEmailRequired
	}
	if !money.ValidAmount(in.Subtotal) {
		return nil, referral.ErrInvalidSubtotal
	}

	db := s.db.WithContext(ctx)

	order := &models.Order{
		CustomerEmail:  email,
		SubtotalAmount: in.Subtotal,
		Currency:       "GBP",
		Status:         models.OrderStatusPending,
	}
	if in.Currency != "" {
		order.Currency = strings.ToUpper(in.Currency)
	}

	var customer *models.Customer
	var found models.Customer
	err := db.Where("LOWER(email) = ?", email).First(&found).Error
	switch {
	case err == nil:
		customer = &found
		order.CustomerID = &found.ID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("error finding customer: %w", err)
	}

	result := &CreateResult{Order: order}

	if code := strings.TrimSpace(in.ReferralCode); code != "" {
		v, err := s.referrals.Validate(ctx, code, email, in.Subtotal)
		if err != nil {
			return nil, err
		}
		result.Referral = v
		if v.Eligible {
			refCode := v.Referral.Code
			refType := v.Referral.Type
			refID := v.Referral.OwnerID
			order.ReferralCode = &refCode
			order.ReferralType = &refType
			order.ReferrerID = &refID
			order.CommissionRate = v.Commission.Rate
			order.DiscountAmount = v.Discount.Amount
		} else {
			s.logger.Info("referral code not applied to order",
				zap.String("code", referral.NormalizeCode(code)),
				zap.String("reason", string(v.Reason)),
			)
		}
	}

	remaining := order.SubtotalAmount - order.DiscountAmount
	canSpend := customer != nil && in.CreditOwnerID != nil && *in.CreditOwnerID == customer.ID
	if in.ApplyCredit && !canSpend {
		s.logger.Info("credit not applied to order without the owning customer's token",
			zap.Bool("known_customer", customer != nil),
		)
	}
	if in.ApplyCredit && canSpend && customer.CreditBalance > 0 && remaining > 0 {
		order.CreditApplied = customer.CreditBalance
		if order.CreditApplied > remaining {
			order.CreditApplied = remaining
		}
	}
	order.TotalAmount = remaining - order.CreditApplied

	if err := db.Create(order).Error; err != nil {
		return nil, fmt.Errorf("error creating order: %w", err)
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.Int64("subtotal", order.SubtotalAmount),
		zap.Int64("discount", order.DiscountAmount),
		zap.Int64("credit_applied", order.CreditApplied),
		zap.Bool("referred", order.ReferralCode != nil),
	)
	return result, nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("error finding order: %w", err)
	}
	return &order, nil
}

// FindByPaymentIntent returns the order paid by a payment intent.
func (s *Service) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Where("payment_intent_id = ?", paymentIntentID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error finding order: %w", err)
	}
	return &order, nil
}

// Complete marks an order paid and settles its referral using the rate
// captured at checkout. Completing an order twice settles nothing twice.
func (s *Service) Complete(ctx context.Context, orderID uuid.UUID, paymentIntentID string) (*CompletionResult, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	result := &CompletionResult{Order: order}

	if order.Status == models.OrderStatusCompleted {
		result.AlreadyDone = true
	} else {
		transitioned, err := s.markCompleted(ctx, order, paymentIntentID)
		if err != nil {
			return nil, err
		}
		if !transitioned {
			order, err = s.Get(ctx, orderID)
			if err != nil {
				return nil, err
			}
			result.Order = order
			if order.Status != models.OrderStatusCompleted {
				return nil, ErrOrderNotCompletable
			}
			result.AlreadyDone = true
		}
	}
	result.ReferralNote = order.ReferralError

	// The recorder and redemption are idempotent per order, so a repeated
	// completion also finishes anything an earlier attempt left undone.
	if order.ReferralType != nil && order.ReferrerID != nil && order.ReferralError == "" {
		commissionResult, err := s.settleReferral(ctx, order)
		if err != nil {
			return nil, err
		}
		result.Commission = commissionResult
	}

	if order.CreditApplied > 0 && order.CustomerID != nil {
		redemption, err := s.recorder.RedeemCredit(ctx, *order.CustomerID, order.ID, order.CreditApplied)
		switch {
		case err == nil:
			result.Redemption = redemption
		case errors.Is(err, commission.ErrInsufficientCredit):
			s.logger.Warn("credit applied at checkout no longer available",
				zap.String("order_id", order.ID.String()),
				zap.Int64("credit_applied", order.CreditApplied),
			)
			result.RedemptionNote = err.Error()
		default:
			return nil, err
		}
	}

	s.logger.Info("order completed",
		zap.String("order_id", order.ID.String()),
		zap.Bool("already_completed", result.AlreadyDone),
	)
	return result, nil
}

// markCompleted moves order to completed. In the same transaction it checks
// whether the customer already has another referred sale; if so the discount
// was used twice and the order is flagged instead of earning a commission.
// On postgres the customer's order rows are locked first so two completions
// for the same email cannot both pass the check.
func (s *Service) markCompleted(ctx context.Context, order *models.Order, paymentIntentID string) (bool, error) {
	now := s.now()
	updates := map[string]interface{}{
		"status":       models.OrderStatusCompleted,
		"completed_at": now,
	}
	if paymentIntentID != "" {
		updates["payment_intent_id"] = paymentIntentID
	}

	transitioned := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			var locked []uuid.UUID
			if err := tx.Raw(
				`SELECT id FROM orders WHERE LOWER(customer_email) = ? ORDER BY id FOR UPDATE`,
				order.CustomerEmail,
			).Scan(&locked).Error; err != nil {
				return fmt.Errorf("error locking customer orders: %w", err)
			}
		}

		if order.ReferralCode != nil && order.ReferralError == "" {
			var prior int64
			err := tx.Model(&models.Order{}).
				Where("LOWER(customer_email) = ? AND id <> ?", order.CustomerEmail, order.ID).
				Where("referral_code IS NOT NULL AND referral_code <> ''").
				Where("status IN ?", models.RevenueStatuses).
				Count(&prior).Error
			if err != nil {
				return fmt.Errorf("error checking prior referral orders: %w", err)
			}
			if prior > 0 {
				updates["referral_error"] = ReferralErrorDiscountUsed
			}
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status IN ?", order.ID, completableStatuses).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("error completing order: %w", res.Error)
		}
		transitioned = res.RowsAffected > 0
		return nil
	})
	if err != nil || !transitioned {
		return false, err
	}

	order.Status = models.OrderStatusCompleted
	order.CompletedAt = &now
	if paymentIntentID != "" {
		order.PaymentIntentID = paymentIntentID
	}
	if flag, ok := updates["referral_error"].(string); ok {
		order.ReferralError = flag
		s.logger.Warn("referral discount already used by customer; referral not settled",
			zap.String("order_id", order.ID.String()),
			zap.String("referral_code", derefString(order.ReferralCode)),
		)
	}
	return true, nil
}

func (s *Service) settleReferral(ctx context.Context, order *models.Order) (*commission.Result, error) {
	switch *order.ReferralType {
	case models.RecipientPartner:
		return s.recorder.RecordPartnerCommission(ctx, commission.PartnerCommissionInput{
			OrderID:        order.ID,
			OrderAmount:    order.SubtotalAmount,
			PartnerID:      *order.ReferrerID,
			CommissionRate: order.CommissionRate,
			Metadata: models.JSON{
				"referral_code": derefString(order.ReferralCode),
			},
		})
	case models.RecipientCustomer:
		rate := order.CommissionRate
		return s.recorder.RecordCustomerCredit(ctx, commission.CustomerCreditInput{
			OrderID:     order.ID,
			OrderAmount: order.SubtotalAmount,
			ReferredCustomer: commission.ReferredCustomer{
				ID:    order.CustomerID,
				Email: order.CustomerEmail,
			},
			ReferringCustomerID: *order.ReferrerID,
			CreditRate:          &rate,
		})
	default:
		return nil, fmt.Errorf("unknown referral type %q", *order.ReferralType)
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
