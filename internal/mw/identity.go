package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Identity headers, set by the upstream gateway.
const (
	UserIDHeader     = "X-User-ID"
	OperatorIDHeader = "X-Operator-ID"
)

const (
	userIDKey     = "user_id"
	operatorIDKey = "operator_id"
)

// Identity copies the caller's user and operator IDs from the request header into the context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(UserIDHeader)); id != "" {
			c.Set(userIDKey, id)
		}
		if id := strings.TrimSpace(c.GetHeader(OperatorIDHeader)); id != "" {
			c.Set(operatorIDKey, id)
		}
		c.Next()
	}
}

// UserID returns the caller's ID, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// RequireUser rejects anonymous requests.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + UserIDHeader + " header"})
			return
		}
		c.Next()
	}
}

// OperatorID returns the staff member's ID, or "" when the caller is not staff.
func OperatorID(c *gin.Context) string {
	return c.GetString(operatorIDKey)
}

// RequireOperator rejects requests that do not come from staff.
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if OperatorID(c) == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator access required"})
			return
		}
		c.Next()
	}
}
