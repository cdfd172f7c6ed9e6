package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pawtraits/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterCustomerInput is a storefront signup.
type RegisterCustomerInput struct {
	Email        string
	FirstName    string
	LastName     string
	ReferralCode string
}

// RegisterCustomer creates (or returns) the customer for an email, records
// which live referral code brought them in, and assigns their personal code.
// A bad referral code never blocks signup.
func (s *Service) RegisterCustomer(ctx context.Context, in RegisterCustomerInput) (*models.Customer, error) {
	email := normalizeEmail(in.Email)
	db := s.db.WithContext(ctx)

	var customer models.Customer
	err := db.Where("LOWER(email) = ?", email).First(&customer).Error
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		customer = models.Customer{
			Email:     email,
			FirstName: strings.TrimSpace(in.FirstName),
			LastName:  strings.TrimSpace(in.LastName),
		}
		if in.ReferralCode != "" {
			desc, rerr := s.Resolve(ctx, in.ReferralCode)
			if rerr == nil && normalizeEmail(desc.OwnerEmail) != email {
				code := desc.Code
				customer.ReferredByCode = &code
			} else if rerr != nil && !isBusinessOutcome(rerr) {
				return nil, rerr
			}
		}
		if err := db.Create(&customer).Error; err != nil {
			return nil, fmt.Errorf("error creating customer: %w", err)
		}
		s.logger.Info("customer registered",
			zap.String("customer_id", customer.ID.String()),
			zap.Bool("referred", customer.ReferredByCode != nil),
		)
	default:
		return nil, fmt.Errorf("error finding customer: %w", err)
	}

	code, err := s.EnsurePersonalCode(ctx, customer.ID)
	if err != nil {
		return nil, err
	}
	customer.PersonalCode = &code
	return &customer, nil
}

func isBusinessOutcome(err error) bool {
	return errors.Is(err, ErrCodeNotFound) || errors.Is(err, ErrCodeExpired) || errors.Is(err, ErrCodeInactive)
}
