package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/commission"
	"github.com/pawtraits/backend/internal/jobs"
	"github.com/pawtraits/backend/internal/money"
	"github.com/pawtraits/backend/internal/queue"
	"github.com/pawtraits/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, jobType queue.JobType, payload interface{}, opts ...queue.EnqueueOption) (string, error) {
	args := m.Called(jobType, payload)
	return args.String(0), args.Error(1)
}

type failingBalances struct{}

func (failingBalances) ApplyCredit(context.Context, uuid.UUID, uuid.UUID, int64) (bool, error) {
	return false, errors.New("connection reset")
}

func postJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCustomerCreditBalanceFailureQueuesRetry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewTestDB(t)
	referrer := testutil.CreateCustomer(t, db, "referrer@example.com", "REF-PAW1", 0)

	recorder := commission.NewRecorder(db, money.RateFromPercent(10), zap.NewNop(),
		commission.WithBalanceStore(failingBalances{}))
	jq := new(MockEnqueuer)
	jq.On("Enqueue", queue.JobTypeApplyCredit, mock.AnythingOfType("jobs.ApplyCreditPayload")).Return("job-1", nil).Once()

	h := NewCommissionHandler(recorder, jq, zap.NewNop())
	r := gin.New()
	r.POST("/credit", h.RecordCustomerCredit)

	w := postJSON(r, "/credit", gin.H{
		"orderId":             uuid.New(),
		"orderAmount":         10000,
		"referredCustomer":    gin.H{"email": "friend@example.com"},
		"referringCustomerId": referrer.ID,
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res commission.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.BalanceUpdated)
	assert.Equal(t, "connection reset", res.BalanceUpdateError)
	assert.EqualValues(t, 1000, res.Commission.CommissionAmount)

	jq.AssertExpectations(t)
	payload := jq.Calls[0].Arguments.Get(1).(jobs.ApplyCreditPayload)
	assert.Equal(t, res.Commission.ID, payload.CommissionID)
}

func TestRecordPartnerRejectsBadInput(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewTestDB(t)
	partner, _ := testutil.CreatePartner(t, db, "shop@example.com", "SHOP-AB12", money.RateFromPercent(10), nil)

	h := NewCommissionHandler(commission.NewRecorder(db, money.RateFromPercent(10), zap.NewNop()), nil, zap.NewNop())
	r := gin.New()
	r.POST("/partner", h.RecordPartner)

	// Missing rate.
	w := postJSON(r, "/partner", gin.H{"orderId": uuid.New(), "orderAmount": 100, "partnerId": partner.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Rate above 100%.
	w = postJSON(r, "/partner", gin.H{"orderId": uuid.New(), "orderAmount": 100, "partnerId": partner.ID, "commissionRate": 150})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/partner", gin.H{"orderId": uuid.New(), "orderAmount": -5, "partnerId": partner.ID, "commissionRate": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/partner", gin.H{"orderId": uuid.New(), "orderAmount": 100, "partnerId": uuid.New(), "commissionRate": 10})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
