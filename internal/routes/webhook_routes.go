package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/pawtraits/backend/internal/handlers"
)

// RegisterWebhookRoutes configures routes for payment provider webhooks.
// They authenticate by signature, not by token.
func RegisterWebhookRoutes(router *gin.Engine, webhookHandler *handlers.WebhookHandler) {
	webhookGroup := router.Group("/api/webhooks")
	{
		webhookGroup.POST("/stripe", webhookHandler.StripeWebhook)
	}
}
