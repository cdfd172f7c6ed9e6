package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/commission"
	"github.com/pawtraits/backend/internal/middleware"
	"github.com/pawtraits/backend/internal/referral"
	"github.com/pawtraits/backend/internal/utils"
	"go.uber.org/zap"
)

const defaultCreditHistory = 20

// CustomerHandler serves customer signup and store credit.
type CustomerHandler struct {
	referrals *referral.Service
	recorder  *commission.Recorder
	logger    *zap.Logger
}

// NewCustomerHandler creates a new customer handler
func NewCustomerHandler(referrals *referral.Service, recorder *commission.Recorder, logger *zap.Logger) *CustomerHandler {
	return &CustomerHandler{
		referrals: referrals,
		recorder:  recorder,
		logger:    logger,
	}
}

// SignupRequest registers a storefront customer.
type SignupRequest struct {
	Email        string `json:"email" binding:"required,email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	ReferralCode string `json:"referral_code"`
}

// Signup registers a customer and returns their shareable code. Signing up
// twice with one email returns the same customer.
func (h *CustomerHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	customer, err := h.referrals.RegisterCustomer(c.Request.Context(), referral.RegisterCustomerInput{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		internalError(c, h.logger, "Failed to register customer", err)
		return
	}

	// Balance stays out of the public response.
	c.JSON(http.StatusOK, gin.H{
		"id":               customer.ID,
		"email":            customer.Email,
		"first_name":       customer.FirstName,
		"personal_code":    customer.PersonalCode,
		"referred_by_code": customer.ReferredByCode,
	})
}

// authorizeCustomer allows the customer themselves or an admin.
func authorizeCustomer(c *gin.Context, customerID uuid.UUID) bool {
	if c.GetBool(middleware.ContextIsAdmin) {
		return true
	}
	id, userType, ok := middleware.Subject(c)
	if ok && userType == utils.SubjectCustomer && id == customerID {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed to view this customer"})
	return false
}

// Credit returns the customer's balance, ledger totals and recent credits.
func (h *CustomerHandler) Credit(c *gin.Context) {
	customerID, ok := parseID(c, "id")
	if !ok || !authorizeCustomer(c, customerID) {
		return
	}

	limit := defaultCreditHistory
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	summary, err := h.recorder.BalanceSummary(c.Request.Context(), customerID)
	if errors.Is(err, commission.ErrCustomerNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, h.logger, "Failed to load credit balance", err)
		return
	}

	credits, err := h.recorder.ListCredits(c.Request.Context(), customerID, limit)
	if err != nil {
		internalError(c, h.logger, "Failed to load credit history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary, "credits": credits})
}

// RedeemRequest spends credit against an order.
type RedeemRequest struct {
	OrderID uuid.UUID `json:"orderId" binding:"required"`
	Amount  int64     `json:"amount" binding:"required,gt=0,lte=1000000000000"`
}

// Redeem takes credit off the customer's balance for an order.
func (h *CustomerHandler) Redeem(c *gin.Context) {
	customerID, ok := parseID(c, "id")
	if !ok || !authorizeCustomer(c, customerID) {
		return
	}

	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	redemption, err := h.recorder.RedeemCredit(c.Request.Context(), customerID, req.OrderID, req.Amount)
	switch {
	case errors.Is(err, commission.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, commission.ErrInsufficientCredit):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case errors.Is(err, commission.ErrCustomerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		internalError(c, h.logger, "Failed to redeem credit", err)
		return
	}

	c.JSON(http.StatusOK, redemption)
}
