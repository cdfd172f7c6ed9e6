package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pawtraits/backend/internal/portrait"
	"go.uber.org/zap"
)

// PortraitHandler serves AI portrait variations.
type PortraitHandler struct {
	portraits *portrait.Service
	logger    *zap.Logger
}

// NewPortraitHandler creates a new portrait handler
func NewPortraitHandler(portraits *portrait.Service, logger *zap.Logger) *PortraitHandler {
	return &PortraitHandler{portraits: portraits, logger: logger}
}

// VariationRequest asks for a styled version of an uploaded pet photo.
type VariationRequest struct {
	CustomerEmail  string `json:"customer_email" binding:"omitempty,email"`
	SourceImageURL string `json:"source_image_url" binding:"required"`
	portrait.Request
}

// Styles lists the available presets.
func (h *PortraitHandler) Styles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"styles": portrait.Styles()})
}

// CreateVariation queues a generation. Validation failures answer 4xx so
// the rate limit slot is handed back.
func (h *PortraitHandler) CreateVariation(c *gin.Context) {
	var req VariationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, err := h.portraits.Submit(c.Request.Context(), portrait.SubmitInput{
		CustomerEmail:  req.CustomerEmail,
		SourceImageURL: req.SourceImageURL,
		Request:        req.Request,
	})
	switch {
	case errors.Is(err, portrait.ErrUnknownStyle),
		errors.Is(err, portrait.ErrSourceImageRequired),
		errors.Is(err, portrait.ErrInstructionsTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		internalError(c, h.logger, "Failed to queue portrait variation", err)
		return
	}

	c.JSON(http.StatusAccepted, v)
}

// GetVariation reports a variation's progress.
func (h *PortraitHandler) GetVariation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	v, err := h.portraits.Get(c.Request.Context(), id)
	if errors.Is(err, portrait.ErrVariationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, h.logger, "Failed to load portrait variation", err)
		return
	}
	c.JSON(http.StatusOK, v)
}
