package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pawtraits/backend/internal/analytics"
	"github.com/pawtraits/backend/internal/models"
	"github.com/pawtraits/backend/internal/money"
	"github.com/pawtraits/backend/internal/referral"
	"go.uber.org/zap"
)

// AdminHandler serves partner onboarding and the operator overview.
type AdminHandler struct {
	referrals *referral.Service
	analytics *analytics.Service
	logger    *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(referrals *referral.Service, analytics *analytics.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		referrals: referrals,
		analytics: analytics,
		logger:    logger,
	}
}

// CreatePartnerRequest onboards a partner or influencer.
type CreatePartnerRequest struct {
	Email          string             `json:"email" binding:"required,email"`
	BusinessName   string             `json:"business_name" binding:"required"`
	ContactName    string             `json:"contact_name"`
	PartnerType    models.PartnerType `json:"partner_type"`
	CommissionRate *money.Rate        `json:"commission_rate"`
	Password       string             `json:"password" binding:"omitempty,min=8"`
	CodeExpiresAt  *time.Time         `json:"code_expires_at"`
}

// CreatePartner onboards a partner and issues their first code.
func (h *AdminHandler) CreatePartner(c *gin.Context) {
	var req CreatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	partner, code, err := h.referrals.CreatePartner(c.Request.Context(), referral.CreatePartnerInput{
		Email:          req.Email,
		BusinessName:   req.BusinessName,
		ContactName:    req.ContactName,
		PartnerType:    req.PartnerType,
		CommissionRate: req.CommissionRate,
		Password:       req.Password,
		CodeExpiresAt:  req.CodeExpiresAt,
	})
	switch {
	case errors.Is(err, referral.ErrPartnerExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, referral.ErrInvalidPartnerType), errors.Is(err, money.ErrInvalidRate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		internalError(c, h.logger, "Failed to create partner", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"partner": partner, "referral": code})
}

// IssueCodeRequest asks for an additional partner code.
type IssueCodeRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
}

// IssueCode creates another referral code for a partner.
func (h *AdminHandler) IssueCode(c *gin.Context) {
	partnerID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req IssueCodeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	code, err := h.referrals.IssuePartnerCode(c.Request.Context(), partnerID, req.ExpiresAt)
	if errors.Is(err, referral.ErrPartnerNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, h.logger, "Failed to issue referral code", err)
		return
	}

	c.JSON(http.StatusCreated, code)
}

// ExpireCodes runs the expiry sweep on demand.
func (h *AdminHandler) ExpireCodes(c *gin.Context) {
	n, err := h.referrals.DeactivateExpiredCodes(c.Request.Context())
	if err != nil {
		internalError(c, h.logger, "Failed to expire referral codes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deactivated": n})
}

// Overview returns storefront-wide referral totals.
func (h *AdminHandler) Overview(c *gin.Context) {
	overview, err := h.analytics.AdminOverview(c.Request.Context())
	if err != nil {
		internalError(c, h.logger, "Failed to load overview", err)
		return
	}
	c.JSON(http.StatusOK, overview)
}
