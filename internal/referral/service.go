// Package referral resolves referral codes, decides discount eligibility and
// manages the codes themselves (partner-issued and personal customer codes).
package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/models"
	"github.com/pawtraits/backend/internal/money"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrCodeNotFound    = errors.New("referral code not found")
	ErrCodeExpired     = errors.New("referral code has expired")
	ErrCodeInactive    = errors.New("referral code is no longer active")
	ErrInvalidSubtotal = errors.New("order subtotal must be between zero and the maximum order amount")
)

// Settings are the storefront-wide referral terms.
type Settings struct {
	// DiscountRate is applied to the subtotal of an eligible first referred order.
	DiscountRate money.Rate
	// CustomerCreditRate is what a referring customer earns on that order.
	CustomerCreditRate money.Rate
	// PartnerDefaultRate is used for partners created without an explicit rate.
	PartnerDefaultRate money.Rate
}

// DefaultSettings matches the live storefront terms: 10% off, 10% back.
func DefaultSettings() Settings {
	return Settings{
		DiscountRate:       money.RateFromPercent(10),
		CustomerCreditRate: money.RateFromPercent(10),
		PartnerDefaultRate: money.RateFromPercent(10),
	}
}

// Descriptor is a resolved referral code.
type Descriptor struct {
	Code           string               `json:"code"`
	Type           models.RecipientType `json:"type"`
	OwnerID        uuid.UUID            `json:"owner_id"`
	OwnerName      string               `json:"owner_name"`
	OwnerEmail     string               `json:"-"`
	PartnerType    models.PartnerType   `json:"partner_type,omitempty"`
	CommissionRate money.Rate           `json:"commission_rate"`
	ExpiresAt      *time.Time           `json:"expires_at,omitempty"`
}

// Service handles referral code resolution and eligibility.
type Service struct {
	db       *gorm.DB
	settings Settings
	logger   *zap.Logger
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new referral service
func NewService(db *gorm.DB, settings Settings, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:       db,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings returns the configured referral terms.
func (s *Service) Settings() Settings {
	return s.settings
}

// NormalizeCode canonicalises user input for case-insensitive matching.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Resolve looks a code up in the partner codes first and then in the
// customer personal codes. Expired and inactive partner codes return their
// descriptor together with ErrCodeExpired or ErrCodeInactive.
func (s *Service) Resolve(ctx context.Context, code string) (*Descriptor, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, ErrCodeNotFound
	}

	db := s.db.WithContext(ctx)

	var ref models.PartnerReferral
	err := db.Preload("Partner").Where("UPPER(code) = ?", normalized).First(&ref).Error
	switch {
	case err == nil:
		desc := &Descriptor{
			Code:      ref.Code,
			Type:      models.RecipientPartner,
			OwnerID:   ref.PartnerID,
			ExpiresAt: ref.ExpiresAt,
		}
		if ref.Partner == nil || !ref.Partner.Active || !ref.Active {
			return desc, ErrCodeInactive
		}
		desc.OwnerName = ref.Partner.BusinessName
		desc.OwnerEmail = ref.Partner.Email
		desc.PartnerType = ref.Partner.PartnerType
		desc.CommissionRate = ref.Partner.CommissionRate
		if ref.Expired(s.now()) {
			return desc, ErrCodeExpired
		}
		return desc, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("error finding partner referral: %w", err)
	}

	var customer models.Customer
	err = db.Where("UPPER(personal_code) = ?", normalized).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error finding customer code: %w", err)
	}

	return &Descriptor{
		Code:           *customer.PersonalCode,
		Type:           models.RecipientCustomer,
		OwnerID:        customer.ID,
		OwnerName:      customer.FirstName,
		OwnerEmail:     customer.Email,
		CommissionRate: s.settings.CustomerCreditRate,
	}, nil
}

// HasUsedReferralDiscount reports whether the customer already has an order
// that carried a referral code and reached a revenue-recognised status. The
// referral discount is a once-per-lifetime benefit regardless of who referred.
func (s *Service) HasUsedReferralDiscount(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("LOWER(customer_email) = ?", normalizeEmail(email)).
		Where("referral_code IS NOT NULL AND referral_code <> ''").
		Where("status IN ?", models.RevenueStatuses).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("error checking prior referral orders: %w", err)
	}
	return count > 0, nil
}
