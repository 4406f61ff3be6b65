package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyAPIKey is the key for storing API key in gin context
	ContextKeyAPIKey = "apiKey"
	// ContextKeyCustomerID is the key for storing the authenticated customer ID
	ContextKeyCustomerID = "authCustomerID"
	// ContextKeyAdmin marks requests authenticated via admin secret
	ContextKeyAdmin = "authAdmin"
)

// Middleware extracts and validates API key from request
// Sets apiKey and authCustomerID in context if valid
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get API key from header
		apiKey := c.GetHeader("Authorization")
		if apiKey == "" {
			apiKey = c.GetHeader("X-API-Key")
		}

		if apiKey != "" {
			key, err := m.ValidateKey(c.Request.Context(), apiKey)
			if err == nil {
				c.Set(ContextKeyAPIKey, key)
				c.Set(ContextKeyCustomerID, key.CustomerID)
			}
		}

		c.Next()
	}
}

// RequireAuth middleware rejects requests without valid auth
func RequireAuth(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyAPIKey); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required. Include 'Authorization: Bearer sk_...' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireOwnership middleware requires auth AND that the authenticated
// customer matches the URL param (e.g. /customers/:id/transactions)
func RequireOwnership(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := GetAPIKey(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required.",
			})
			return
		}

		if key.CustomerID != c.Param(paramName) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Bạn không có quyền truy cập tài khoản này",
			})
			return
		}

		c.Next()
	}
}

// RequireAdmin middleware checks the X-Admin-Secret header against the
// configured secret. An empty configured secret disables admin endpoints.
func RequireAdmin(adminSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Admin-Secret")
		if adminSecret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(adminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required",
			})
			return
		}
		c.Set(ContextKeyAdmin, true)
		c.Next()
	}
}

// GetAPIKey returns the API key from context (if authenticated)
func GetAPIKey(c *gin.Context) (*APIKey, bool) {
	key, exists := c.Get(ContextKeyAPIKey)
	if !exists {
		return nil, false
	}
	return key.(*APIKey), true
}

// GetCustomerID returns the authenticated customer's ID
func GetCustomerID(c *gin.Context) string {
	id, exists := c.Get(ContextKeyCustomerID)
	if !exists {
		return ""
	}
	return id.(string)
}

// IsAdmin returns true if the request was authenticated via admin secret
func IsAdmin(c *gin.Context) bool {
	admin, exists := c.Get(ContextKeyAdmin)
	return exists && admin == true
}
