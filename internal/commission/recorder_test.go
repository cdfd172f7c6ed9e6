package commission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/models"
	"github.com/pawtraits/backend/internal/money"
	"github.com/pawtraits/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)

func newTestRecorder(t *testing.T, opts ...Option) (*Recorder, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewRecorder(db, money.RateFromPercent(10), zap.NewNop(), opts...), db
}

func balanceOf(t *testing.T, db *gorm.DB, id uuid.UUID) int64 {
	t.Helper()
	var c models.Customer
	require.NoError(t, db.First(&c, "id = ?", id).Error)
	return c.CreditBalance
}

type MockBalanceStore struct {
	mock.Mock
}

func (m *MockBalanceStore) ApplyCredit(ctx context.Context, commissionID, customerID uuid.UUID, amount int64) (bool, error) {
	args := m.Called(ctx, commissionID, customerID, amount)
	return args.Bool(0), args.Error(1)
}

func TestRecordPartnerCommission(t *testing.T) {
	r, db := newTestRecorder(t)
	partner, _ := testutil.CreatePartner(t, db, "groomer@example.com", "HAPPY-AAAA", money.RateFromPercent(10), nil)

	res, err := r.RecordPartnerCommission(context.Background(), PartnerCommissionInput{
		OrderID:        uuid.New(),
		OrderAmount:    10000,
		PartnerID:      partner.ID,
		PartnerEmail:   "Groomer@Example.com",
		CommissionRate: money.RateFromPercent(10),
	})
	require.NoError(t, err)

	c := res.Commission
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(1000), c.CommissionAmount)
	assert.Equal(t, models.CommissionStatusPending, c.Status)
	assert.Equal(t, models.RecipientPartner, c.RecipientType)
	assert.Equal(t, "groomer@example.com", c.Metadata["partner_email"])
}

func TestRecordPartnerCommission_UsesPassedRate(t *testing.T) {
	r, db := newTestRecorder(t)
	partner, _ := testutil.CreatePartner(t, db, "vet@example.com", "VET-BBBB", money.RateFromPercent(10), nil)

	// The partner's stored rate changed after checkout; the captured rate wins.
	require.NoError(t, db.Model(partner).Update("commission_rate_bps", 2000).Error)

	res, err := r.RecordPartnerCommission(context.Background(), PartnerCommissionInput{
		OrderID:        uuid.New(),
		OrderAmount:    3333,
		PartnerID:      partner.ID,
		CommissionRate: money.Rate(1250),
	})
	require.NoError(t, err)
	assert.Equal(t, money.Rate(1250), res.Commission.CommissionRate)
	assert.Equal(t, int64(417), res.Commission.CommissionAmount)
}

func TestRecordPartnerCommission_AmountMatchesRounding(t *testing.T) {
	r, db := newTestRecorder(t)
	partner, _ := testutil.CreatePartner(t, db, "p@example.com", "P-CCCC", money.RateFromPercent(10), nil)

	for _, amount := range []int64{0, 1, 5, 15, 99, 4999, 10000, 123457} {
		for _, rate := range []money.Rate{0, 1, 50, 1000, 1250, 3333, 10000} {
			res, err := r.RecordPartnerCommission(context.Background(), PartnerCommissionInput{
				OrderID:        uuid.New(),
				OrderAmount:    amount,
				PartnerID:      partner.ID,
				CommissionRate: rate,
			})
			require.NoError(t, err)
			want := (amount*int64(rate) + 5000) / 10000
			assert.Equal(t, want, res.Commission.CommissionAmount, "amount=%d rate=%s", amount, rate)
		}
	}
}

func TestRecordPartnerCommission_Validation(t *testing.T) {
	r, db := newTestRecorder(t)
	partner, _ := testutil.CreatePartner(t, db, "p@example.com", "P-DDDD", money.RateFromPercent(10), nil)

	_, err := r.RecordPartnerCommission(context.Background(), PartnerCommissionInput{
		OrderID: uuid.New(), OrderAmount: -1, PartnerID: partner.ID, CommissionRate: 1000,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = r.RecordPartnerCommission(context.Background(), PartnerCommissionInput{
		OrderID: uuid.New(), OrderAmount: money.MaxAmount + 1, PartnerID: partner.ID, CommissionRate: money.MaxRate,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = r.RecordPartnerCommission(context.Background(), PartnerCommissionInput{
		OrderID: uuid.New(), OrderAmount: 100, PartnerID: partner.ID, CommissionRate: 10001,
	})
	assert.ErrorIs(t, err, money.ErrInvalidRate)

	_, err = r.RecordPartnerCommission(context.Background(), PartnerCommissionInput{
		OrderID: uuid.New(), OrderAmount: 100, PartnerID: uuid.New(), CommissionRate: 1000,
	})
	assert.ErrorIs(t, err, ErrPartnerNotFound)
}

func TestRecordPartnerCommission_ExactlyOnce(t *testing.T) {
	r, db := newTestRecorder(t)
	partner, _ := testutil.CreatePartner(t, db, "p@example.com", "P-EEEE", money.RateFromPercent(10), nil)
	in := PartnerCommissionInput{OrderID: uuid.New(), OrderAmount: 10000, PartnerID: partner.ID, CommissionRate: 1000}

	first, err := r.RecordPartnerCommission(context.Background(), in)
	require.NoError(t, err)
	second, err := r.RecordPartnerCommission(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Commission.ID, second.Commission.ID)

	var n int64
	require.NoError(t, db.Model(&models.Commission{}).Where("order_id = ?", in.OrderID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestRecordCustomerCredit(t *testing.T) {
	r, db := newTestRecorder(t)
	referrer := testutil.CreateCustomer(t, db, "max@example.com", "MAX-AAAA", 500)

	res, err := r.RecordCustomerCredit(context.Background(), CustomerCreditInput{
		OrderID:             uuid.New(),
		OrderAmount:         10000,
		ReferredCustomer:    ReferredCustomer{Email: "friend@example.com", Name: "Friend"},
		ReferringCustomerID: referrer.ID,
	})
	require.NoError(t, err)

	assert.True(t, res.BalanceUpdated)
	assert.Empty(t, res.BalanceUpdateError)
	assert.Equal(t, models.CommissionStatusApproved, res.Commission.Status)
	assert.NotNil(t, res.Commission.ApprovedAt)
	assert.Equal(t, int64(1000), res.Commission.CommissionAmount)
	assert.Equal(t, int64(1500), balanceOf(t, db, referrer.ID))
}

func TestRecordCustomerCredit_RetryDoesNotDoubleCredit(t *testing.T) {
	r, db := newTestRecorder(t)
	referrer := testutil.CreateCustomer(t, db, "max@example.com", "MAX-AAAA", 0)
	in := CustomerCreditInput{
		OrderID:             uuid.New(),
		OrderAmount:         2000,
		ReferredCustomer:    ReferredCustomer{Email: "friend@example.com"},
		ReferringCustomerID: referrer.ID,
	}

	_, err := r.RecordCustomerCredit(context.Background(), in)
	require.NoError(t, err)
	res, err := r.RecordCustomerCredit(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, res.Duplicate)
	assert.True(t, res.BalanceUpdated)
	assert.Equal(t, int64(200), balanceOf(t, db, referrer.ID))
}

func TestRecordCustomerCredit_SelfReferral(t *testing.T) {
	r, db := newTestRecorder(t)
	referrer := testutil.CreateCustomer(t, db, "max@example.com", "MAX-AAAA", 0)

	_, err := r.RecordCustomerCredit(context.Background(), CustomerCreditInput{
		OrderID:             uuid.New(),
		OrderAmount:         2000,
		ReferredCustomer:    ReferredCustomer{Email: "MAX@example.com"},
		ReferringCustomerID: referrer.ID,
	})
	assert.ErrorIs(t, err, ErrSelfReferral)
	assert.Zero(t, balanceOf(t, db, referrer.ID))
}

func TestRecordCustomerCredit_BalanceFailureKeepsRecord(t *testing.T) {
	store := new(MockBalanceStore)
	r, db := newTestRecorder(t, WithBalanceStore(store))
	referrer := testutil.CreateCustomer(t, db, "max@example.com", "MAX-AAAA", 0)

	store.On("ApplyCredit", mock.Anything, mock.Anything, referrer.ID, int64(1000)).
		Return(false, errors.New("connection reset")).Once()

	in := CustomerCreditInput{
		OrderID:             uuid.New(),
		OrderAmount:         10000,
		ReferredCustomer:    ReferredCustomer{Email: "friend@example.com"},
		ReferringCustomerID: referrer.ID,
	}
	res, err := r.RecordCustomerCredit(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, res.BalanceUpdated)
	assert.Equal(t, "connection reset", res.BalanceUpdateError)
	require.NotNil(t, res.Commission)

	var stored models.Commission
	require.NoError(t, db.First(&stored, "id = ?", res.Commission.ID).Error)
	assert.Nil(t, stored.BalanceAppliedAt)
	store.AssertExpectations(t)
}

func TestRetryPendingBalances(t *testing.T) {
	store := new(MockBalanceStore)
	r, db := newTestRecorder(t, WithBalanceStore(store))
	referrer := testutil.CreateCustomer(t, db, "max@example.com", "MAX-AAAA", 0)

	store.On("ApplyCredit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, errors.New("db down")).Once()
	_, err := r.RecordCustomerCredit(context.Background(), CustomerCreditInput{
		OrderID:             uuid.New(),
		OrderAmount:         5000,
		ReferredCustomer:    ReferredCustomer{Email: "friend@example.com"},
		ReferringCustomerID: referrer.ID,
	})
	require.NoError(t, err)

	// Same database, real store this time.
	healthy := NewRecorder(db, money.RateFromPercent(10), zap.NewNop(), WithClock(func() time.Time { return fixedNow }))
	fixed, err := healthy.RetryPendingBalances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)
	assert.Equal(t, int64(500), balanceOf(t, db, referrer.ID))

	fixed, err = healthy.RetryPendingBalances(context.Background())
	require.NoError(t, err)
	assert.Zero(t, fixed)
	assert.Equal(t, int64(500), balanceOf(t, db, referrer.ID))
}

func TestRecordCustomerCredit_ConcurrentCreditsAllLand(t *testing.T) {
	r, db := newTestRecorder(t)
	const start = int64(700)
	referrer := testutil.CreateCustomer(t, db, "max@example.com", "MAX-AAAA", start)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.RecordCustomerCredit(context.Background(), CustomerCreditInput{
				OrderID:             uuid.New(),
				OrderAmount:         1000,
				ReferredCustomer:    ReferredCustomer{Email: "friend@example.com"},
				ReferringCustomerID: referrer.ID,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, start+workers*100, balanceOf(t, db, referrer.ID))
}

func TestGormBalanceStore_ApplyOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := testutil.CreateCustomer(t, db, "a@example.com", "", 100)
	c := models.Commission{
		OrderID:          uuid.New(),
		RecipientType:    models.RecipientCustomer,
		RecipientID:      customer.ID,
		CommissionAmount: 40,
		Status:           models.CommissionStatusApproved,
	}
	require.NoError(t, db.Create(&c).Error)

	store := &gormBalanceStore{db: db, now: func() time.Time { return fixedNow }}
	applied, err := store.ApplyCredit(context.Background(), c.ID, customer.ID, 40)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.ApplyCredit(context.Background(), c.ID, customer.ID, 40)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, int64(140), balanceOf(t, db, customer.ID))

	// Missing customer rolls the applied marker back.
	orphan := models.Commission{
		OrderID:       uuid.New(),
		RecipientType: models.RecipientCustomer,
		RecipientID:   uuid.New(),
		Status:        models.CommissionStatusApproved,
	}
	require.NoError(t, db.Create(&orphan).Error)
	_, err = store.ApplyCredit(context.Background(), orphan.ID, orphan.RecipientID, 10)
	assert.ErrorIs(t, err, ErrCustomerNotFound)

	var reloaded models.Commission
	require.NoError(t, db.First(&reloaded, "id = ?", orphan.ID).Error)
	assert.Nil(t, reloaded.BalanceAppliedAt)
}
