package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/commission"
	"github.com/pawtraits/backend/internal/models"
	"github.com/pawtraits/backend/internal/money"
	"github.com/pawtraits/backend/internal/referral"
	"github.com/pawtraits/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	log := zap.NewNop()
	refs := referral.NewService(db, referral.DefaultSettings(), log)
	rec := commission.NewRecorder(db, money.RateFromPercent(10), log)
	return NewService(db, refs, rec, log), db
}

func TestCreate_PartnerReferral(t *testing.T) {
	svc, db := newTestService(t)
	partner, _ := testutil.CreatePartner(t, db, "p@example.com", "HAPPY-AAAA", money.Rate(1500), nil)

	res, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerEmail: "Buyer@Example.com",
		Subtotal:      10000,
		ReferralCode:  "happy-aaaa",
	})
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, "buyer@example.com", o.CustomerEmail)
	assert.Equal(t, int64(1000), o.DiscountAmount)
	assert.Equal(t, int64(9000), o.TotalAmount)
	require.NotNil(t, o.ReferralType)
	assert.Equal(t, models.RecipientPartner, *o.ReferralType)
	assert.Equal(t, partner.ID, *o.ReferrerID)
	assert.Equal(t, money.Rate(1500), o.CommissionRate)
	assert.Equal(t, models.OrderStatusPending, o.Status)
}

func TestCreate_IneligibleCodeDropped(t *testing.T) {
	svc, db := newTestService(t)
	testutil.CreatePartner(t, db, "p@example.com", "HAPPY-AAAA", money.RateFromPercent(10), nil)
	testutil.CreateOrder(t, db, "buyer@example.com", 5000, "HAPPY-AAAA", models.OrderStatusCompleted)

	res, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerEmail: "buyer@example.com",
		Subtotal:      10000,
		ReferralCode:  "HAPPY-AAAA",
	})
	require.NoError(t, err)

	assert.Equal(t, referral.ReasonAlreadyUsed, res.Referral.Reason)
	assert.Nil(t, res.Order.ReferralCode)
	assert.Zero(t, res.Order.DiscountAmount)
	assert.Equal(t, int64(10000), res.Order.TotalAmount)
}

func TestCreate_AppliesCreditUpToRemainingTotal(t *testing.T) {
	svc, db := newTestService(t)
	rich := testutil.CreateCustomer(t, db, "rich@example.com", "RICH-AAAA", 5000)
	poor := testutil.CreateCustomer(t, db, "poor@example.com", "POOR-BBBB", 300)

	res, err := svc.Create(context.Background(), CreateOrderInput{CustomerEmail: "rich@example.com", Subtotal: 2000, ApplyCredit: true, CreditOwnerID: &rich.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), res.Order.CreditApplied)
	assert.Zero(t, res.Order.TotalAmount)

	res, err = svc.Create(context.Background(), CreateOrderInput{CustomerEmail: "poor@example.com", Subtotal: 2000, ApplyCredit: true, CreditOwnerID: &poor.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(300), res.Order.CreditApplied)
	assert.Equal(t, int64(1700), res.Order.TotalAmount)
}

func TestCreate_CreditNeedsOwningCustomer(t *testing.T) {
	svc, db := newTestService(t)
	testutil.CreateCustomer(t, db, "rich@example.com", "RICH-AAAA", 5000)
	other := testutil.CreateCustomer(t, db, "other@example.com", "OTHR-CCCC", 0)

	tests := []struct {
		name  string
		owner *uuid.UUID
	}{
		{"anonymous checkout", nil},
		{"token for a different customer", &other.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Create(context.Background(), CreateOrderInput{
				CustomerEmail: "rich@example.com",
				Subtotal:      2000,
				ApplyCredit:   true,
				CreditOwnerID: tt.owner,
			})
			require.NoError(t, err)
			assert.Zero(t, res.Order.CreditApplied)
			assert.Equal(t, int64(2000), res.Order.TotalAmount)
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateOrderInput{Subtotal: 100})
	assert.ErrorIs(t, err, ErrEmailRequired)

	_, err = svc.Create(context.Background(), CreateOrderInput{CustomerEmail: "a@example.com", Subtotal: -5})
	assert.ErrorIs(t, err, referral.ErrInvalidSubtotal)

	_, err = svc.Create(context.Background(), CreateOrderInput{CustomerEmail: "a@example.com", Subtotal: money.MaxAmount + 1})
	assert.ErrorIs(t, err, referral.ErrInvalidSubtotal)
}

func TestComplete_RecordsPartnerCommissionWithCapturedRate(t *testing.T) {
	svc, db := newTestService(t)
	partner, _ := testutil.CreatePartner(t, db, "p@example.com", "HAPPY-AAAA", money.RateFromPercent(10), nil)

	created, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerEmail: "buyer@example.com",
		Subtotal:      10000,
		ReferralCode:  "HAPPY-AAAA",
	})
	require.NoError(t, err)

	// A rate change between checkout and payment does not affect the order.
	require.NoError(t, db.Model(partner).Update("commission_rate_bps", 2500).Error)

	res, err := svc.Complete(context.Background(), created.Order.ID, "pi_123")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, res.Order.Status)
	assert.Equal(t, "pi_123", res.Order.PaymentIntentID)
	require.NotNil(t, res.Commission)
	assert.Equal(t, int64(1000), res.Commission.Commission.CommissionAmount)
	assert.Equal(t, models.CommissionStatusPending, res.Commission.Commission.Status)

	again, err := svc.Complete(context.Background(), created.Order.ID, "pi_123")
	require.NoError(t, err)
	assert.True(t, again.AlreadyDone)
	assert.True(t, again.Commission.Duplicate)

	var n int64
	require.NoError(t, db.Model(&models.Commission{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestComplete_SecondDiscountedOrderIsNotSettled(t *testing.T) {
	svc, db := newTestService(t)
	testutil.CreatePartner(t, db, "p@example.com", "HAPPY-AAAA", money.RateFromPercent(10), nil)

	// Both orders pass validation while neither has been paid.
	first, err := svc.Create(context.Background(), CreateOrderInput{CustomerEmail: "buyer@example.com", Subtotal: 10000, ReferralCode: "HAPPY-AAAA"})
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), CreateOrderInput{CustomerEmail: "buyer@example.com", Subtotal: 6000, ReferralCode: "HAPPY-AAAA"})
	require.NoError(t, err)
	require.NotNil(t, second.Order.ReferralCode)

	res, err := svc.Complete(context.Background(), first.Order.ID, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, res.Commission)
	assert.Empty(t, res.ReferralNote)

	res, err = svc.Complete(context.Background(), second.Order.ID, "pi_2")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, res.Order.Status)
	assert.Nil(t, res.Commission)
	assert.Equal(t, ReferralErrorDiscountUsed, res.ReferralNote)

	again, err := svc.Complete(context.Background(), second.Order.ID, "pi_2")
	require.NoError(t, err)
	assert.True(t, again.AlreadyDone)
	assert.Nil(t, again.Commission)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", second.Order.ID).Error)
	assert.Equal(t, ReferralErrorDiscountUsed, stored.ReferralError)

	var n int64
	require.NoError(t, db.Model(&models.Commission{}).Where("recipient_type = ?", models.RecipientPartner).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestComplete_CustomerCreditAndRedemption(t *testing.T) {
	svc, db := newTestService(t)
	referrer := testutil.CreateCustomer(t, db, "max@example.com", "MAX-AAAA", 0)
	buyer := testutil.CreateCustomer(t, db, "fern@example.com", "FERN-BBBB", 400)

	created, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerEmail: "fern@example.com",
		Subtotal:      8000,
		ReferralCode:  "MAX-AAAA",
		ApplyCredit:   true,
		CreditOwnerID: &buyer.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(800), created.Order.DiscountAmount)
	assert.Equal(t, int64(400), created.Order.CreditApplied)
	assert.Equal(t, int64(6800), created.Order.TotalAmount)

	res, err := svc.Complete(context.Background(), created.Order.ID, "")
	require.NoError(t, err)
	require.NotNil(t, res.Commission)
	assert.True(t, res.Commission.BalanceUpdated)
	require.NotNil(t, res.Redemption)
	assert.Equal(t, int64(400), res.Redemption.Amount)

	var reloaded models.Customer
	require.NoError(t, db.First(&reloaded, "id = ?", referrer.ID).Error)
	assert.Equal(t, int64(800), reloaded.CreditBalance)
	require.NoError(t, db.First(&reloaded, "id = ?", buyer.ID).Error)
	assert.Zero(t, reloaded.CreditBalance)
}

func TestComplete_InsufficientCreditDoesNotFail(t *testing.T) {
	svc, db := newTestService(t)
	buyer := testutil.CreateCustomer(t, db, "fern@example.com", "FERN-BBBB", 400)

	created, err := svc.Create(context.Background(), CreateOrderInput{CustomerEmail: "fern@example.com", Subtotal: 1000, ApplyCredit: true, CreditOwnerID: &buyer.ID})
	require.NoError(t, err)
	require.NoError(t, db.Model(buyer).Update("credit_balance", 100).Error)

	res, err := svc.Complete(context.Background(), created.Order.ID, "")
	require.NoError(t, err)
	assert.Nil(t, res.Redemption)
	assert.NotEmpty(t, res.RedemptionNote)
}

func TestComplete_Errors(t *testing.T) {
	svc, db := newTestService(t)

	_, err := svc.Complete(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	cancelled := testutil.CreateOrder(t, db, "a@example.com", 1000, "", models.OrderStatusCancelled)
	_, err = svc.Complete(context.Background(), cancelled.ID, "")
	assert.ErrorIs(t, err, ErrOrderNotCompletable)
}

func TestFindByPaymentIntent(t *testing.T) {
	svc, db := newTestService(t)
	o := testutil.CreateOrder(t, db, "a@example.com", 1000, "", models.OrderStatusPending)
	require.NoError(t, db.Model(o).Update("payment_intent_id", "pi_abc").Error)

	found, err := svc.FindByPaymentIntent(context.Background(), "pi_abc")
	require.NoError(t, err)
	assert.Equal(t, o.ID, found.ID)

	_, err = svc.FindByPaymentIntent(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
