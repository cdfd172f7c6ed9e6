package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/config"
	"github.com/pawtraits/backend/internal/referral"
	"github.com/pawtraits/backend/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// adminSubjectID is the fixed subject for the single operator account.
var adminSubjectID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pawtraits:admin"))

// AuthHandler issues dashboard tokens.
type AuthHandler struct {
	referrals *referral.Service
	issuer    *utils.TokenIssuer
	admin     config.AdminConfig
	logger    *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(referrals *referral.Service, issuer *utils.TokenIssuer, admin config.AdminConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		referrals: referrals,
		issuer:    issuer,
		admin:     admin,
		logger:    logger,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// PartnerLogin exchanges partner credentials for a token. Influencers log in
// here too; their token carries the influencer user type.
func (h *AuthHandler) PartnerLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	partner, err := h.referrals.AuthenticatePartner(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, referral.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	if err != nil {
		internalError(c, h.logger, "Failed to log in", err)
		return
	}

	token, err := h.issuer.Generate(partner.ID, string(partner.PartnerType), partner.Email, false)
	if err != nil {
		internalError(c, h.logger, "Failed to issue token", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "partner": partner})
}

// AdminLogin checks the operator credentials from configuration.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.admin.Email == "" || h.admin.PasswordHash == "" ||
		!strings.EqualFold(strings.TrimSpace(req.Email), h.admin.Email) ||
		bcrypt.CompareHashAndPassword([]byte(h.admin.PasswordHash), []byte(req.Password)) != nil {
		h.logger.Warn("failed admin login", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	token, err := h.issuer.Generate(adminSubjectID, utils.SubjectAdmin, h.admin.Email, true)
	if err != nil {
		internalError(c, h.logger, "Failed to issue token", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
