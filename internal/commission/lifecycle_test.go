package commission

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/models"
	"github.com/pawtraits/backend/internal/money"
	"github.com/pawtraits/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.CommissionStatus
		want     bool
	}{
		{models.CommissionStatusPending, models.CommissionStatusApproved, true},
		{models.CommissionStatusPending, models.CommissionStatusPaid, true},
		{models.CommissionStatusPending, models.CommissionStatusRedeemed, false},
		{models.CommissionStatusApproved, models.CommissionStatusPaid, true},
		{models.CommissionStatusApproved, models.CommissionStatusRedeemed, true},
		{models.CommissionStatusApproved, models.CommissionStatusPending, false},
		{models.CommissionStatusPaid, models.CommissionStatusRedeemed, true},
		{models.CommissionStatusPaid, models.CommissionStatusApproved, false},
		{models.CommissionStatusRedeemed, models.CommissionStatusPaid, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTransition_PartnerPayoutFlow(t *testing.T) {
	r, db := newTestRecorder(t)
	partner, _ := testutil.CreatePartner(t, db, "p@example.com", "P-AAAA", money.RateFromPercent(10), nil)
	res, err := r.RecordPartnerCommission(context.Background(), PartnerCommissionInput{
		OrderID: uuid.New(), OrderAmount: 10000, PartnerID: partner.ID, CommissionRate: 1000,
	})
	require.NoError(t, err)
	id := res.Commission.ID

	c, err := r.Approve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionStatusApproved, c.Status)
	assert.NotNil(t, c.ApprovedAt)

	_, err = r.Approve(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	c, err = r.MarkPaid(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionStatusPaid, c.Status)
	assert.NotNil(t, c.PaidAt)

	c, err = r.MarkRedeemed(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionStatusRedeemed, c.Status)

	c, err = r.MarkPaid(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.CommissionStatusRedeemed, c.Status)
}

func TestTransition_UnknownCommission(t *testing.T) {
	r, _ := newTestRecorder(t)
	_, err := r.Approve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrCommissionNotFound)
}

func TestTransition_ToPendingIsNeverAllowed(t *testing.T) {
	r, _ := newTestRecorder(t)
	_, err := r.Transition(context.Background(), uuid.New(), models.CommissionStatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
