package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/middleware"
	"github.com/pawtraits/backend/internal/orders"
	"github.com/pawtraits/backend/internal/referral"
	"github.com/pawtraits/backend/internal/utils"
	"go.uber.org/zap"
)

// OrderHandler serves checkout.
type OrderHandler struct {
	orders *orders.Service
	logger *zap.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *orders.Service, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// CreateOrderRequest is the storefront's checkout payload.
type CreateOrderRequest struct {
	CustomerEmail string `json:"customerEmail" binding:"required,email"`
	Subtotal      int64  `json:"subtotal" binding:"gte=0,lte=1000000000000"`
	Currency      string `json:"currency" binding:"omitempty,len=3"`
	ReferralCode  string `json:"referralCode"`
	ApplyCredit   bool   `json:"applyCredit"`
}

// Create opens a pending order. A bad referral code is dropped, not fatal;
// the referral check is returned alongside the order. Credit is only spent
// when the caller holds the token of the customer placing the order.
func (h *OrderHandler) Create(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.orders.Create(c.Request.Context(), orders.CreateOrderInput{
		CustomerEmail: req.CustomerEmail,
		Subtotal:      req.Subtotal,
		Currency:      req.Currency,
		ReferralCode:  req.ReferralCode,
		ApplyCredit:   req.ApplyCredit,
		CreditOwnerID: customerSubject(c),
	})
	switch {
	case errors.Is(err, orders.ErrEmailRequired), errors.Is(err, referral.ErrInvalidSubtotal):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		internalError(c, h.logger, "Failed to create order", err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func customerSubject(c *gin.Context) *uuid.UUID {
	id, userType, ok := middleware.Subject(c)
	if !ok || userType != utils.SubjectCustomer {
		return nil
	}
	return &id
}

// Get returns one order to the customer who placed it or an admin.
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), id)
	if errors.Is(err, orders.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, h.logger, "Failed to load order", err)
		return
	}
	if !c.GetBool(middleware.ContextIsAdmin) {
		owner := customerSubject(c)
		if owner == nil || order.CustomerID == nil || *order.CustomerID != *owner {
			c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed to view this order"})
			return
		}
	}
	c.JSON(http.StatusOK, order)
}
