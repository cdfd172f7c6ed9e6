package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pawtraits/backend/internal/handlers"
	"github.com/pawtraits/backend/internal/middleware"
	"github.com/pawtraits/backend/internal/ratelimit"
	"github.com/pawtraits/backend/internal/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PortraitEndpoint is the rate limit bucket for portrait generation.
const PortraitEndpoint = "portrait-variations"

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Auth       *handlers.AuthHandler
	Referral   *handlers.ReferralHandler
	Commission *handlers.CommissionHandler
	Admin      *handlers.AdminHandler
	Customer   *handlers.CustomerHandler
	Order      *handlers.OrderHandler
	Portrait   *handlers.PortraitHandler
	Webhook    *handlers.WebhookHandler
	Health     *handlers.HealthHandler
}

// Options are the cross-cutting pieces routes need.
type Options struct {
	Issuer          *utils.TokenIssuer
	RateLimiter     *middleware.RateLimiter
	PortraitLimiter *ratelimit.Limiter
	Logger          *zap.Logger
	Production      bool
}

// NewRouter builds the gin engine with global middleware and every route.
func NewRouter(h Handlers, opts Options, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger(opts.Logger))
	router.Use(middleware.SecureHeadersMiddleware(middleware.DefaultSecureHeadersConfig(opts.Production)))
	router.Use(extra...)
	if opts.RateLimiter != nil {
		router.Use(opts.RateLimiter.IPRateLimiterMiddleware())
	}

	router.GET("/health", h.Health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	RegisterAuthRoutes(router, h.Auth, opts.RateLimiter)
	RegisterReferralRoutes(router, h.Referral, opts.Issuer)
	RegisterCustomerRoutes(router, h.Customer, opts.Issuer)
	RegisterOrderRoutes(router, h.Order, opts.Issuer)
	RegisterPortraitRoutes(router, h.Portrait, opts.PortraitLimiter)
	RegisterCommissionRoutes(router, h.Commission, opts.Issuer)
	RegisterAdminRoutes(router, h.Admin, h.Commission, opts.Issuer)
	RegisterWebhookRoutes(router, h.Webhook)

	return router
}

// RegisterAuthRoutes registers dashboard login routes
func RegisterAuthRoutes(router *gin.Engine, authHandler *handlers.AuthHandler, rateLimiter *middleware.RateLimiter) {
	authGroup := router.Group("/api/auth")
	if rateLimiter != nil {
		authGroup.Use(rateLimiter.AuthRateLimiterMiddleware())
	}
	{
		authGroup.POST("/partner/login", authHandler.PartnerLogin)
		authGroup.POST("/admin/login", authHandler.AdminLogin)
	}
}

// RegisterReferralRoutes registers storefront referral routes
func RegisterReferralRoutes(router *gin.Engine, referralHandler *handlers.ReferralHandler, issuer *utils.TokenIssuer) {
	referralGroup := router.Group("/api/referrals")
	{
		referralGroup.POST("/validate", referralHandler.Validate)
		referralGroup.POST("/scan", referralHandler.Scan)
		referralGroup.GET("/analytics",
			middleware.AuthMiddleware(issuer),
			middleware.RequireUserType(utils.SubjectPartner, utils.SubjectInfluencer, utils.SubjectCustomer),
			referralHandler.Analytics,
		)
	}
}

// RegisterCustomerRoutes registers customer signup and credit routes
func RegisterCustomerRoutes(router *gin.Engine, customerHandler *handlers.CustomerHandler, issuer *utils.TokenIssuer) {
	router.POST("/api/customers", customerHandler.Signup)

	customerGroup := router.Group("/api/customers/:id")
	customerGroup.Use(middleware.AuthMiddleware(issuer))
	{
		customerGroup.GET("/credit", customerHandler.Credit)
		customerGroup.POST("/credit/redeem", customerHandler.Redeem)
	}
}

// RegisterOrderRoutes registers checkout routes
func RegisterOrderRoutes(router *gin.Engine, orderHandler *handlers.OrderHandler, issuer *utils.TokenIssuer) {
	orderGroup := router.Group("/api/orders")
	{
		orderGroup.POST("", middleware.OptionalAuthMiddleware(issuer), orderHandler.Create)
		orderGroup.GET("/:id", middleware.AuthMiddleware(issuer), orderHandler.Get)
	}
}

// RegisterPortraitRoutes registers portrait generation routes. Creating a
// variation is held to the fixed-window allowance per client IP.
func RegisterPortraitRoutes(router *gin.Engine, portraitHandler *handlers.PortraitHandler, limiter *ratelimit.Limiter) {
	portraitGroup := router.Group("/api/portraits")
	{
		portraitGroup.GET("/styles", portraitHandler.Styles)
		if limiter != nil {
			portraitGroup.POST("/variations", middleware.WindowLimit(limiter, PortraitEndpoint), portraitHandler.CreateVariation)
		} else {
			portraitGroup.POST("/variations", portraitHandler.CreateVariation)
		}
		portraitGroup.GET("/variations/:id", portraitHandler.GetVariation)
	}
}

// RegisterCommissionRoutes registers commission recording routes. They are
// called by trusted back-office services holding an admin token.
func RegisterCommissionRoutes(router *gin.Engine, commissionHandler *handlers.CommissionHandler, issuer *utils.TokenIssuer) {
	commissionGroup := router.Group("/api/commissions")
	commissionGroup.Use(middleware.AuthMiddleware(issuer), middleware.AdminMiddleware())
	{
		commissionGroup.POST("/partner", commissionHandler.RecordPartner)
		commissionGroup.POST("/customer-credit", commissionHandler.RecordCustomerCredit)
	}
}

// RegisterAdminRoutes registers operator routes
func RegisterAdminRoutes(router *gin.Engine, adminHandler *handlers.AdminHandler, commissionHandler *handlers.CommissionHandler, issuer *utils.TokenIssuer) {
	adminGroup := router.Group("/api/admin")
	adminGroup.Use(middleware.AuthMiddleware(issuer), middleware.AdminMiddleware())
	{
		adminGroup.GET("/analytics/overview", adminHandler.Overview)

		adminGroup.POST("/partners", adminHandler.CreatePartner)
		adminGroup.POST("/partners/:id/codes", adminHandler.IssueCode)
		adminGroup.POST("/referral-codes/expire", adminHandler.ExpireCodes)

		adminGroup.GET("/commissions/:id", commissionHandler.Get)
		adminGroup.POST("/commissions/:id/approve", commissionHandler.Approve)
		adminGroup.POST("/commissions/:id/paid", commissionHandler.MarkPaid)
		adminGroup.POST("/commissions/:id/redeemed", commissionHandler.MarkRedeemed)
	}
}
