package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pawtraits/backend/internal/models"
	"github.com/pawtraits/backend/internal/money"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrPartnerExists      = errors.New("a partner with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidPartnerType = errors.New("invalid partner type")
)

// CreatePartnerInput is what an admin supplies to onboard a partner.
type CreatePartnerInput struct {
	Email          string
	BusinessName   string
	ContactName    string
	PartnerType    models.PartnerType
	CommissionRate *money.Rate
	Password       string
	CodeExpiresAt  *time.Time
}

// CreatePartner onboards a partner and issues their first referral code.
func (s *Service) CreatePartner(ctx context.Context, in CreatePartnerInput) (*models.Partner, *models.PartnerReferral, error) {
	email := normalizeEmail(in.Email)
	partnerType := in.PartnerType
	if partnerType == "" {
		partnerType = models.PartnerTypePartner
	}
	if !partnerType.Valid() {
		return nil, nil, ErrInvalidPartnerType
	}

	rate := s.settings.PartnerDefaultRate
	if in.CommissionRate != nil {
		rate = *in.CommissionRate
	}
	if err := rate.Validate(); err != nil {
		return nil, nil, err
	}

	db := s.db.WithContext(ctx)

	var existing int64
	if err := db.Model(&models.Partner{}).Where("LOWER(email) = ?", email).Count(&existing).Error; err != nil {
		return nil, nil, fmt.Errorf("error checking partner email: %w", err)
	}
	if existing > 0 {
		return nil, nil, ErrPartnerExists
	}

	partner := models.Partner{
		Email:          email,
		BusinessName:   strings.TrimSpace(in.BusinessName),
		ContactName:    strings.TrimSpace(in.ContactName),
		PartnerType:    partnerType,
		CommissionRate: rate,
		Active:         true,
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("error hashing password: %w", err)
		}
		partner.PasswordHash = string(hash)
	}

	if err := db.Create(&partner).Error; err != nil {
		return nil, nil, fmt.Errorf("error creating partner: %w", err)
	}

	ref, err := s.IssuePartnerCode(ctx, partner.ID, in.CodeExpiresAt)
	if err != nil {
		return &partner, nil, err
	}

	s.logger.Info("partner created",
		zap.String("partner_id", partner.ID.String()),
		zap.String("partner_type", string(partner.PartnerType)),
		zap.String("commission_rate", rate.String()),
	)
	return &partner, ref, nil
}

// AuthenticatePartner checks partner dashboard credentials.
func (s *Service) AuthenticatePartner(ctx context.Context, email, password string) (*models.Partner, error) {
	var partner models.Partner
	err := s.db.WithContext(ctx).Where("LOWER(email) = ? AND active = ?", normalizeEmail(email), true).First(&partner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("error finding partner: %w", err)
	}
	if partner.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(partner.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &partner, nil
}
