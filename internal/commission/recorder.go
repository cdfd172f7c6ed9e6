// Package commission keeps the referral commission ledger: partner
// commissions, customer credits and the credit balances they feed.
package commission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/models"
	"github.com/pawtraits/backend/internal/money"
	"github.com/pawtraits/backend/internal/monitoring"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrCommissionNotFound = errors.New("commission not found")
	ErrInvalidTransition  = errors.New("invalid commission status transition")
	ErrInsufficientCredit = errors.New("insufficient credit balance")
	ErrInvalidAmount      = errors.New("amount must be between zero and the maximum order amount")
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrPartnerNotFound    = errors.New("partner not found")
	ErrSelfReferral       = errors.New("customer cannot earn credit on their own order")
)

// PartnerCommissionInput is a completed order attributed to a partner code.
// CommissionRate is the rate captured when the code was applied.
type PartnerCommissionInput struct {
	OrderID        uuid.UUID
	OrderAmount    int64
	PartnerID      uuid.UUID
	PartnerEmail   string
	CommissionRate money.Rate
	Metadata       models.JSON
}

// ReferredCustomer identifies the buyer whose order earned the credit.
type ReferredCustomer struct {
	ID    *uuid.UUID `json:"id,omitempty"`
	Email string     `json:"email"`
	Name  string     `json:"name,omitempty"`
}

// CustomerCreditInput is a completed order attributed to a personal code.
// A nil CreditRate uses the configured customer credit rate.
type CustomerCreditInput struct {
	OrderID             uuid.UUID
	OrderAmount         int64
	ReferredCustomer    ReferredCustomer
	ReferringCustomerID uuid.UUID
	CreditRate          *money.Rate
}

// Result is the outcome of a record call. A commission row that was written
// but whose balance update failed comes back with BalanceUpdateError set.
type Result struct {
	Commission         *models.Commission `json:"commission"`
	Duplicate          bool               `json:"duplicate,omitempty"`
	BalanceUpdated     bool               `json:"balance_updated"`
	BalanceUpdateError string             `json:"balance_update_error,omitempty"`
}

// BalanceStore applies an earned credit to a customer balance exactly once
// per commission.
type BalanceStore interface {
	ApplyCredit(ctx context.Context, commissionID, customerID uuid.UUID, amount int64) (bool, error)
}

type gormBalanceStore struct {
	db  *gorm.DB
	now func() time.Time
}

// ApplyCredit marks the commission applied and increments the balance in one
// transaction. It reports false when the commission had already been applied.
func (s *gormBalanceStore) ApplyCredit(ctx context.Context, commissionID, customerID uuid.UUID, amount int64) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Commission{}).
			Where("id = ? AND balance_applied_at IS NULL", commissionID).
			Update("balance_applied_at", s.now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		res = tx.Model(&models.Customer{}).
			Where("id = ?", customerID).
			Update("credit_balance", gorm.Expr("credit_balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCustomerNotFound
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Recorder writes commission and credit records.
type Recorder struct {
	db         *gorm.DB
	balances   BalanceStore
	creditRate money.Rate
	logger     *zap.Logger
	now        func() time.Time
}

// Option customises a Recorder.
type Option func(*Recorder)

// WithBalanceStore replaces the database balance store.
func WithBalanceStore(store BalanceStore) Option {
	return func(r *Recorder) {
		r.balances = store
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a new commission recorder
func NewRecorder(db *gorm.DB, creditRate money.Rate, logger *zap.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		db:         db,
		creditRate: creditRate,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.balances == nil {
		r.balances = &gormBalanceStore{db: db, now: r.now}
	}
	return r
}

// RecordPartnerCommission writes a pending commission for a partner. The rate
// is taken from the input as-is.
func (r *Recorder) RecordPartnerCommission(ctx context.Context, in PartnerCommissionInput) (*Result, error) {
	if !money.ValidAmount(in.OrderAmount) {
		return nil, ErrInvalidAmount
	}
	if err := in.CommissionRate.Validate(); err != nil {
		return nil, err
	}

	var partner models.Partner
	if err := r.db.WithContext(ctx).Select("id", "email").First(&partner, "id = ?", in.PartnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPartnerNotFound
		}
		return nil, fmt.Errorf("error finding partner: %w", err)
	}

	metadata := models.JSON{}
	if in.Metadata != nil {
		metadata = in.Metadata.Clone()
	}
	email := in.PartnerEmail
	if email == "" {
		email = partner.Email
	}
	metadata["partner_email"] = strings.ToLower(email)

	c := &models.Commission{
		OrderID:          in.OrderID,
		OrderAmount:      in.OrderAmount,
		RecipientType:    models.RecipientPartner,
		RecipientID:      in.PartnerID,
		CommissionRate:   in.CommissionRate,
		CommissionAmount: money.Percent(in.OrderAmount, in.CommissionRate),
		Status:           models.CommissionStatusPending,
		Metadata:         metadata,
	}

	existing, err := r.insertOnce(ctx, c)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Result{Commission: existing, Duplicate: true}, nil
	}

	r.observe(c)
	r.logger.Info("partner commission recorded",
		zap.String("commission_id", c.ID.String()),
		zap.String("order_id", c.OrderID.String()),
		zap.String("partner_id", c.RecipientID.String()),
		zap.Int64("amount", c.CommissionAmount),
	)
	return &Result{Commission: c}, nil
}

// RecordCustomerCredit writes an approved credit for the referring customer
// and adds it to their balance. The record survives a failed balance update.
func (r *Recorder) RecordCustomerCredit(ctx context.Context, in CustomerCreditInput) (*Result, error) {
	if !money.ValidAmount(in.OrderAmount) {
		return nil, ErrInvalidAmount
	}
	rate := r.creditRate
	if in.CreditRate != nil {
		rate = *in.CreditRate
	}
	if err := rate.Validate(); err != nil {
		return nil, err
	}

	var referrer models.Customer
	if err := r.db.WithContext(ctx).First(&referrer, "id = ?", in.ReferringCustomerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("error finding referring customer: %w", err)
	}

	referred := in.ReferredCustomer
	if (referred.ID != nil && *referred.ID == referrer.ID) ||
		strings.EqualFold(strings.TrimSpace(referred.Email), referrer.Email) {
		return nil, ErrSelfReferral
	}

	now := r.now()
	metadata := models.JSON{
		"referred_customer_email": strings.ToLower(strings.TrimSpace(referred.Email)),
	}
	if referred.Name != "" {
		metadata["referred_customer_name"] = referred.Name
	}
	if referred.ID != nil {
		metadata["referred_customer_id"] = referred.ID.String()
	}

	c := &models.Commission{
		OrderID:          in.OrderID,
		OrderAmount:      in.OrderAmount,
		RecipientType:    models.RecipientCustomer,
		RecipientID:      referrer.ID,
		CommissionRate:   rate,
		CommissionAmount: money.Percent(in.OrderAmount, rate),
		Status:           models.CommissionStatusApproved,
		Metadata:         metadata,
		ApprovedAt:       &now,
	}

	existing, err := r.insertOnce(ctx, c)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// A retry finishes a balance update the first attempt didn't.
		res := &Result{Commission: existing, Duplicate: true, BalanceUpdated: existing.BalanceAppliedAt != nil}
		if !res.BalanceUpdated {
			r.applyBalance(ctx, existing, res)
		}
		return res, nil
	}

	r.observe(c)
	res := &Result{Commission: c}
	r.applyBalance(ctx, c, res)

	r.logger.Info("customer credit recorded",
		zap.String("commission_id", c.ID.String()),
		zap.String("order_id", c.OrderID.String()),
		zap.String("customer_id", c.RecipientID.String()),
		zap.Int64("amount", c.CommissionAmount),
		zap.Bool("balance_updated", res.BalanceUpdated),
	)
	return res, nil
}

func (r *Recorder) applyBalance(ctx context.Context, c *models.Commission, res *Result) {
	applied, err := r.balances.ApplyCredit(ctx, c.ID, c.RecipientID, c.CommissionAmount)
	if err != nil {
		monitoring.BalanceUpdateFailures.Inc()
		r.logger.Error("customer balance update failed",
			zap.String("commission_id", c.ID.String()),
			zap.String("customer_id", c.RecipientID.String()),
			zap.Error(err),
		)
		res.BalanceUpdateError = err.Error()
		return
	}
	if applied {
		now := r.now()
		c.BalanceAppliedAt = &now
	}
	res.BalanceUpdated = true
}

// insertOnce creates c unless a record for the same order and recipient type
// exists, in which case the existing record is returned.
func (r *Recorder) insertOnce(ctx context.Context, c *models.Commission) (*models.Commission, error) {
	db := r.db.WithContext(ctx)

	existing, err := r.findByOrder(db, c.OrderID, c.RecipientType)
	if err != nil || existing != nil {
		return existing, err
	}

	if err := db.Create(c).Error; err != nil {
		// Lost a race against a concurrent insert for the same order.
		existing, ferr := r.findByOrder(db, c.OrderID, c.RecipientType)
		if ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("error creating commission: %w", err)
	}
	return nil, nil
}

func (r *Recorder) findByOrder(db *gorm.DB, orderID uuid.UUID, recipient models.RecipientType) (*models.Commission, error) {
	var c models.Commission
	err := db.Where("order_id = ? AND recipient_type = ?", orderID, recipient).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error finding commission: %w", err)
	}
	return &c, nil
}

func (r *Recorder) observe(c *models.Commission) {
	monitoring.CommissionsRecorded.WithLabelValues(string(c.RecipientType)).Inc()
	monitoring.CommissionAmountTotal.WithLabelValues(string(c.RecipientType)).Add(float64(c.CommissionAmount))
}

// RetryPendingBalances re-applies customer credits whose balance update never
// landed. It returns how many balances were fixed.
func (r *Recorder) RetryPendingBalances(ctx context.Context) (int, error) {
	var pending []models.Commission
	err := r.db.WithContext(ctx).
		Where("recipient_type = ? AND balance_applied_at IS NULL", models.RecipientCustomer).
		Where("status IN ?", []models.CommissionStatus{models.CommissionStatusApproved, models.CommissionStatusPaid}).
		Order("created_at").
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("error finding unapplied credits: %w", err)
	}

	fixed := 0
	for i := range pending {
		c := &pending[i]
		applied, err := r.balances.ApplyCredit(ctx, c.ID, c.RecipientID, c.CommissionAmount)
		if err != nil {
			r.logger.Warn("retrying balance update failed",
				zap.String("commission_id", c.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if applied {
			fixed++
		}
	}
	return fixed, nil
}

// Get returns a commission by id.
func (r *Recorder) Get(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	var c models.Commission
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommissionNotFound
		}
		return nil, fmt.Errorf("error finding commission: %w", err)
	}
	return &c, nil
}
