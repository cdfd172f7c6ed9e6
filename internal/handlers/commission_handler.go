package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/commission"
	"github.com/pawtraits/backend/internal/jobs"
	"github.com/pawtraits/backend/internal/models"
	"github.com/pawtraits/backend/internal/money"
	"github.com/pawtraits/backend/internal/queue"
	"go.uber.org/zap"
)

// balanceRetryDelay is how long a failed balance update waits before the
// worker tries again.
const balanceRetryDelay = 30 * time.Second

// CommissionHandler records commissions and moves them through payout.
type CommissionHandler struct {
	recorder *commission.Recorder
	jobs     queue.Enqueuer
	logger   *zap.Logger
}

// NewCommissionHandler creates a new commission handler
func NewCommissionHandler(recorder *commission.Recorder, jobs queue.Enqueuer, logger *zap.Logger) *CommissionHandler {
	return &CommissionHandler{
		recorder: recorder,
		jobs:     jobs,
		logger:   logger,
	}
}

// PartnerCommissionRequest is sent when a partner-referred order completes.
type PartnerCommissionRequest struct {
	OrderID        uuid.UUID   `json:"orderId" binding:"required"`
	OrderAmount    int64       `json:"orderAmount"`
	PartnerID      uuid.UUID   `json:"partnerId" binding:"required"`
	PartnerEmail   string      `json:"partnerEmail"`
	CommissionRate *money.Rate `json:"commissionRate" binding:"required"`
	ReferralCode   string      `json:"referralCode"`
}

// CustomerCreditRequest is sent when a customer-referred order completes.
type CustomerCreditRequest struct {
	OrderID             uuid.UUID                   `json:"orderId" binding:"required"`
	OrderAmount         int64                       `json:"orderAmount"`
	ReferredCustomer    commission.ReferredCustomer `json:"referredCustomer"`
	ReferringCustomerID uuid.UUID                   `json:"referringCustomerId" binding:"required"`
	CreditRate          *money.Rate                 `json:"creditRate"`
}

func (h *CommissionHandler) recordError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, commission.ErrInvalidAmount), errors.Is(err, money.ErrInvalidRate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, commission.ErrPartnerNotFound), errors.Is(err, commission.ErrCustomerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, commission.ErrSelfReferral):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		internalError(c, h.logger, "Failed to record commission", err)
	}
}

func writeResult(c *gin.Context, res *commission.Result) {
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

// RecordPartner creates the pending commission for a partner order.
func (h *CommissionHandler) RecordPartner(c *gin.Context) {
	var req PartnerCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := commission.PartnerCommissionInput{
		OrderID:        req.OrderID,
		OrderAmount:    req.OrderAmount,
		PartnerID:      req.PartnerID,
		PartnerEmail:   req.PartnerEmail,
		CommissionRate: *req.CommissionRate,
	}
	if req.ReferralCode != "" {
		in.Metadata = models.JSON{"referral_code": req.ReferralCode}
	}

	res, err := h.recorder.RecordPartnerCommission(c.Request.Context(), in)
	if err != nil {
		h.recordError(c, err)
		return
	}
	writeResult(c, res)
}

// RecordCustomerCredit creates an approved credit and bumps the referring
// customer's balance. A failed balance update is still a 201: the record
// exists, the response carries balance_update_error and a retry is queued.
func (h *CommissionHandler) RecordCustomerCredit(c *gin.Context) {
	var req CustomerCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.recorder.RecordCustomerCredit(c.Request.Context(), commission.CustomerCreditInput{
		OrderID:             req.OrderID,
		OrderAmount:         req.OrderAmount,
		ReferredCustomer:    req.ReferredCustomer,
		ReferringCustomerID: req.ReferringCustomerID,
		CreditRate:          req.CreditRate,
	})
	if err != nil {
		h.recordError(c, err)
		return
	}

	if res.BalanceUpdateError != "" {
		h.scheduleBalanceRetry(c, res.Commission.ID)
	}
	writeResult(c, res)
}

func (h *CommissionHandler) scheduleBalanceRetry(c *gin.Context, commissionID uuid.UUID) {
	scheduleBalanceRetry(c, h.jobs, h.logger, commissionID)
}

// scheduleBalanceRetry queues a delayed balance re-apply. Failing to queue
// is only logged; the periodic retry sweep picks the credit up anyway.
func scheduleBalanceRetry(c *gin.Context, jq queue.Enqueuer, logger *zap.Logger, commissionID uuid.UUID) {
	if jq == nil {
		return
	}
	_, err := jq.Enqueue(c.Request.Context(), queue.JobTypeApplyCredit,
		jobs.ApplyCreditPayload{CommissionID: commissionID},
		queue.WithDelay(balanceRetryDelay),
	)
	if err != nil {
		logger.Error("failed to queue balance retry",
			zap.String("commission_id", commissionID.String()),
			zap.Error(err),
		)
	}
}

// Get returns one commission.
func (h *CommissionHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	cm, err := h.recorder.Get(c.Request.Context(), id)
	if errors.Is(err, commission.ErrCommissionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, h.logger, "Failed to load commission", err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

type transitionFunc func(ctx context.Context, id uuid.UUID) (*models.Commission, error)

func (h *CommissionHandler) transition(c *gin.Context, move transitionFunc) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	cm, err := move(c.Request.Context(), id)
	switch {
	case errors.Is(err, commission.ErrCommissionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, commission.ErrInvalidTransition):
		body := gin.H{"error": err.Error()}
		if cm != nil {
			body["status"] = cm.Status
		}
		c.JSON(http.StatusConflict, body)
		return
	case err != nil:
		internalError(c, h.logger, "Failed to update commission", err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

// Approve moves a pending commission to approved.
func (h *CommissionHandler) Approve(c *gin.Context) {
	h.transition(c, h.recorder.Approve)
}

// MarkPaid records a payout.
func (h *CommissionHandler) MarkPaid(c *gin.Context) {
	h.transition(c, h.recorder.MarkPaid)
}

// MarkRedeemed records that a credit was spent.
func (h *CommissionHandler) MarkRedeemed(c *gin.Context) {
	h.transition(c, h.recorder.MarkRedeemed)
}
