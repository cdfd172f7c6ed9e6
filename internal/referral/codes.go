package referral

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/pawtraits/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Unambiguous characters only: no 0/O or 1/I.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	maxStemLength      = 10
	maxCodeAttempts    = 5
	partnerSuffixLen   = 4
	personalSuffixLen  = 4
	defaultPersonalTag = "PAW"
)

var (
	ErrPartnerNotFound  = errors.New("partner not found")
	ErrCustomerNotFound = errors.New("customer not found")
	errCodeExhausted    = errors.New("could not generate a unique referral code")
)

func randomSuffix(n int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// codeStem turns a display name into the readable part of a code:
// "Happy Paws Grooming Ltd." -> "HAPPYPAWSG".
func codeStem(name, fallback string) string {
	stem := strings.ToUpper(strings.ReplaceAll(slug.Make(name), "-", ""))
	if len(stem) > maxStemLength {
		stem = stem[:maxStemLength]
	}
	if stem == "" {
		return fallback
	}
	return stem
}

func (s *Service) codeTaken(tx *gorm.DB, code string) (bool, error) {
	var n int64
	if err := tx.Model(&models.PartnerReferral{}).Where("UPPER(code) = ?", code).Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if err := tx.Model(&models.Customer{}).Where("UPPER(personal_code) = ?", code).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Service) generateCode(tx *gorm.DB, stem string, suffixLen int) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		suffix, err := randomSuffix(suffixLen)
		if err != nil {
			return "", fmt.Errorf("error generating code suffix: %w", err)
		}
		code := stem + "-" + suffix
		taken, err := s.codeTaken(tx, code)
		if err != nil {
			return "", fmt.Errorf("error checking code uniqueness: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", errCodeExhausted
}

// IssuePartnerCode creates a new code for a partner. A nil expiresAt issues a
// code that never expires.
func (s *Service) IssuePartnerCode(ctx context.Context, partnerID uuid.UUID, expiresAt *time.Time) (*models.PartnerReferral, error) {
	db := s.db.WithContext(ctx)

	var partner models.Partner
	if err := db.First(&partner, "id = ?", partnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPartnerNotFound
		}
		return nil, fmt.Errorf("error finding partner: %w", err)
	}

	code, err := s.generateCode(db, codeStem(partner.BusinessName, "PARTNER"), partnerSuffixLen)
	if err != nil {
		return nil, err
	}

	ref := models.PartnerReferral{
		PartnerID: partner.ID,
		Code:      code,
		ExpiresAt: expiresAt,
		Active:    true,
	}
	if err := db.Create(&ref).Error; err != nil {
		return nil, fmt.Errorf("error creating partner referral: %w", err)
	}

	s.logger.Info("partner referral code issued",
		zap.String("partner_id", partner.ID.String()),
		zap.String("code", code),
	)
	return &ref, nil
}

// EnsurePersonalCode returns the customer's personal code, assigning one the
// first time it is asked for.
func (s *Service) EnsurePersonalCode(ctx context.Context, customerID uuid.UUID) (string, error) {
	db := s.db.WithContext(ctx)

	var customer models.Customer
	if err := db.First(&customer, "id = ?", customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrCustomerNotFound
		}
		return "", fmt.Errorf("error finding customer: %w", err)
	}
	if customer.PersonalCode != nil && *customer.PersonalCode != "" {
		return *customer.PersonalCode, nil
	}

	code, err := s.generateCode(db, codeStem(customer.FirstName, defaultPersonalTag), personalSuffixLen)
	if err != nil {
		return "", err
	}

	res := db.Model(&models.Customer{}).
		Where("id = ? AND personal_code IS NULL", customer.ID).
		Update("personal_code", code)
	if res.Error != nil {
		return "", fmt.Errorf("error assigning personal code: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Someone else assigned one first.
		if err := db.First(&customer, "id = ?", customer.ID).Error; err != nil {
			return "", fmt.Errorf("error reloading customer: %w", err)
		}
		return *customer.PersonalCode, nil
	}
	return code, nil
}

// DeactivateExpiredCodes flips partner codes past their expiry to inactive.
func (s *Service) DeactivateExpiredCodes(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.PartnerReferral{}).
		Where("active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, s.now()).
		Update("active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("error deactivating expired codes: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RecordScan stores a visit through a referral link. Only live codes are
// counted. The client IP is stored hashed.
func (s *Service) RecordScan(ctx context.Context, code, ip, userAgent string) (*Descriptor, error) {
	desc, err := s.Resolve(ctx, code)
	if err != nil {
		return desc, err
	}

	sum := sha256.Sum256([]byte(ip))
	scan := models.ReferralScan{
		Code:         desc.Code,
		ReferralType: desc.Type,
		OwnerID:      desc.OwnerID,
		IPHash:       hex.EncodeToString(sum[:]),
		UserAgent:    userAgent,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&scan).Error; err != nil {
			return err
		}
		if desc.Type == models.RecipientPartner {
			return tx.Model(&models.PartnerReferral{}).
				Where("UPPER(code) = ?", desc.Code).
				Update("scan_count", gorm.Expr("scan_count + ?", 1)).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error recording referral scan: %w", err)
	}
	return desc, nil
}
