package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/analytics"
	"github.com/pawtraits/backend/internal/middleware"
	"github.com/pawtraits/backend/internal/monitoring"
	"github.com/pawtraits/backend/internal/referral"
	"go.uber.org/zap"
)

// ReferralHandler serves code validation, scan tracking and dashboards.
type ReferralHandler struct {
	referrals *referral.Service
	analytics *analytics.Service
	logger    *zap.Logger
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(referrals *referral.Service, analytics *analytics.Service, logger *zap.Logger) *ReferralHandler {
	return &ReferralHandler{
		referrals: referrals,
		analytics: analytics,
		logger:    logger,
	}
}

// ValidateRequest is the storefront's check before showing a discount.
type ValidateRequest struct {
	ReferralCode  string `json:"referralCode" binding:"required"`
	CustomerEmail string `json:"customerEmail"`
	OrderTotal    int64  `json:"orderTotal"`
}

func validationOutcome(res *referral.ValidationResult) string {
	if res.Eligible {
		return "eligible"
	}
	return string(res.Reason)
}

// Validate checks a code for an order. Unknown, expired and inactive codes
// come back with valid:false and a 404 or 410 status, never a 5xx.
func (h *ReferralHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.referrals.Validate(c.Request.Context(), req.ReferralCode, req.CustomerEmail, req.OrderTotal)
	if errors.Is(err, referral.ErrInvalidSubtotal) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, h.logger, "Failed to validate referral code", err)
		return
	}

	monitoring.ReferralValidations.WithLabelValues(validationOutcome(res)).Inc()

	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

// ScanRequest records a QR or link visit.
type ScanRequest struct {
	Code string `json:"code" binding:"required"`
}

// Scan records that a referral link was opened.
func (h *ReferralHandler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	desc, err := h.referrals.RecordScan(c.Request.Context(), req.Code, c.ClientIP(), c.Request.UserAgent())
	switch {
	case errors.Is(err, referral.ErrCodeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"valid": false, "error": err.Error()})
		return
	case errors.Is(err, referral.ErrCodeExpired), errors.Is(err, referral.ErrCodeInactive):
		c.JSON(http.StatusGone, gin.H{"valid": false, "error": err.Error()})
		return
	case err != nil:
		internalError(c, h.logger, "Failed to record scan", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "referral": desc})
}

// Analytics returns the caller's referral dashboard. Admins may look at
// anyone's with ?user_type=&id=.
func (h *ReferralHandler) Analytics(c *gin.Context) {
	id, userType, ok := middleware.Subject(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
		return
	}

	if c.GetBool(middleware.ContextIsAdmin) {
		parsed, err := uuid.Parse(c.Query("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
			return
		}
		id = parsed
		userType = strings.ToLower(c.Query("user_type"))
	}

	summary, err := h.analytics.Summary(c.Request.Context(), analytics.UserType(userType), id)
	switch {
	case errors.Is(err, analytics.ErrUnknownUserType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, analytics.ErrOwnerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		internalError(c, h.logger, "Failed to load analytics", err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
