package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/orders"
	"github.com/pawtraits/backend/internal/queue"
	"github.com/pawtraits/backend/internal/utils"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 16

// WebhookHandler handles payment provider webhooks
type WebhookHandler struct {
	orders    *orders.Service
	jobs      queue.Enqueuer
	secret    string
	tolerance time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(orders *orders.Service, jobs queue.Enqueuer, secret string, tolerance time.Duration, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		orders:    orders,
		jobs:      jobs,
		secret:    secret,
		tolerance: tolerance,
		logger:    logger,
		now:       time.Now,
	}
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// StripeWebhook completes orders on payment_intent.succeeded. Other events
// are acknowledged and ignored so Stripe stops retrying them.
func (h *WebhookHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	err = utils.VerifyStripeSignature(payload, c.GetHeader("Stripe-Signature"), h.secret, h.tolerance, h.now())
	if err != nil {
		h.logger.Warn("rejected stripe webhook", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	if event.Type != "payment_intent.succeeded" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	intent := event.Data.Object
	orderID, err := uuid.Parse(intent.Metadata["order_id"])
	if err != nil {
		h.logger.Warn("payment intent without order id",
			zap.String("event_id", event.ID),
			zap.String("payment_intent_id", intent.ID),
		)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	res, err := h.orders.Complete(c.Request.Context(), orderID, intent.ID)
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		h.logger.Warn("payment for unknown order",
			zap.String("event_id", event.ID),
			zap.String("order_id", orderID.String()),
		)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	case errors.Is(err, orders.ErrOrderNotCompletable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		// A 5xx makes Stripe redeliver; completion is idempotent.
		internalError(c, h.logger, "Failed to complete order", err)
		return
	}

	if res.Commission != nil && res.Commission.BalanceUpdateError != "" {
		scheduleBalanceRetry(c, h.jobs, h.logger, res.Commission.Commission.ID)
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed", "result": res})
}
