package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/socdo/notifyd/internal/auth"
	"github.com/socdo/notifyd/pkg/errors"
	"github.com/socdo/notifyd/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)

		c.Next()
	}
}

// UserID extracts the authenticated user id from the request context.
func UserID(c *gin.Context) string {
	value, ok := c.Get(CtxUserIDKey)
	if !ok {
		return ""
	}
	userID, _ := value.(string)
	return userID
}
