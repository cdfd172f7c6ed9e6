package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/utils"
)

// Context keys set by AuthMiddleware.
const (
	ContextSubjectID = "subject_id"
	ContextUserType  = "user_type"
	ContextEmail     = "email"
	ContextIsAdmin   = "is_admin"
)

// AuthMiddleware verifies JWT tokens and adds the subject to the context
func AuthMiddleware(issuer *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			return
		}

		claims, err := issuer.Validate(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextSubjectID, claims.SubjectID)
		c.Set(ContextUserType, claims.UserType)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextIsAdmin, claims.IsAdmin)

		c.Next()
	}
}

// OptionalAuthMiddleware sets the subject when a valid token is sent and lets
// anonymous requests through. A token that fails validation is rejected.
func OptionalAuthMiddleware(issuer *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.Next()
			return
		}

		claims, err := issuer.Validate(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextSubjectID, claims.SubjectID)
		c.Set(ContextUserType, claims.UserType)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextIsAdmin, claims.IsAdmin)

		c.Next()
	}
}

// AdminMiddleware ensures the caller has admin privileges
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// RequireUserType admits only the listed token subject types. Admins pass
// every check.
func RequireUserType(types ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ContextIsAdmin) {
			c.Next()
			return
		}
		userType := c.GetString(ContextUserType)
		for _, t := range types {
			if t == userType {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not allowed for this account type"})
	}
}

// Subject returns the authenticated subject set by AuthMiddleware.
func Subject(c *gin.Context) (uuid.UUID, string, bool) {
	v, ok := c.Get(ContextSubjectID)
	if !ok {
		return uuid.Nil, "", false
	}
	id, ok := v.(uuid.UUID)
	return id, c.GetString(ContextUserType), ok
}

// extractToken gets the token from the Authorization header
func extractToken(c *gin.Context) string {
	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
