package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/models"
	"github.com/pawtraits/backend/internal/money"
	"gorm.io/gorm"
)

// CreateCustomer inserts a customer with an optional personal code.
func CreateCustomer(t *testing.T, db *gorm.DB, email, personalCode string, balance int64) *models.Customer {
	t.Helper()

	c := &models.Customer{
		Email:         strings.ToLower(email),
		FirstName:     strings.Split(email, "@")[0],
		LastName:      "Tester",
		CreditBalance: balance,
	}
	if personalCode != "" {
		code := strings.ToUpper(personalCode)
		c.PersonalCode = &code
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("create customer: %v", err)
	}
	// default:0 columns are skipped when zero, so write the balance explicitly.
	if err := db.Model(c).Update("credit_balance", balance).Error; err != nil {
		t.Fatalf("set customer balance: %v", err)
	}
	return c
}

// CreatePartner inserts an active partner with the given code.
func CreatePartner(t *testing.T, db *gorm.DB, email, code string, rate money.Rate, expiresAt *time.Time) (*models.Partner, *models.PartnerReferral) {
	t.Helper()

	p := &models.Partner{
		Email:          strings.ToLower(email),
		BusinessName:   "Happy Paws Grooming",
		ContactName:    "Sam Groomer",
		PartnerType:    models.PartnerTypePartner,
		CommissionRate: rate,
		Active:         true,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create partner: %v", err)
	}

	ref := &models.PartnerReferral{
		PartnerID: p.ID,
		Code:      strings.ToUpper(code),
		ExpiresAt: expiresAt,
		Active:    true,
	}
	if err := db.Create(ref).Error; err != nil {
		t.Fatalf("create partner referral: %v", err)
	}
	return p, ref
}

// CreateOrder inserts an order in the given status.
func CreateOrder(t *testing.T, db *gorm.DB, email string, subtotal int64, referralCode string, status models.OrderStatus) *models.Order {
	t.Helper()

	o := &models.Order{
		CustomerEmail:  strings.ToLower(email),
		SubtotalAmount: subtotal,
		TotalAmount:    subtotal,
		Currency:       "GBP",
		Status:         status,
	}
	if referralCode != "" {
		code := strings.ToUpper(referralCode)
		o.ReferralCode = &code
	}
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// NewID is a readability helper for tests.
func NewID() uuid.UUID {
	return uuid.New()
}
