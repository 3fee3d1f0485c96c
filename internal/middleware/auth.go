package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tasktimer/internal/authz"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/internal/utils"
	"github.com/huangang/tasktimer/pkg/response"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
)

// AuthRequired verifies the bearer token and stores the caller identity on
// the request context.
func AuthRequired() gin.HandlerFunc {
	return authenticate(false)
}

// AuthRequiredAllowQuery also accepts the token in the "token" query
// parameter, for EventSource clients that cannot set headers.
func AuthRequiredAllowQuery() gin.HandlerFunc {
	return authenticate(true)
}

func authenticate(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok && allowQuery {
			tokenString = c.Query("token")
			ok = tokenString != ""
		}
		if !ok {
			response.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		role, err := models.ParseRole(claims.Role)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, role)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// AdminRequired rejects callers ranked below admin.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetRole(c).AtLeast(models.RoleAdmin) {
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetIdentity returns the authenticated caller of this request.
func GetIdentity(c *gin.Context) authz.Identity {
	return authz.Identity{UserID: GetUserID(c), Role: GetRole(c)}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func GetUsername(c *gin.Context) string {
	return c.GetString(ContextUsername)
}

func GetRole(c *gin.Context) models.Role {
	if role, exists := c.Get(ContextRole); exists {
		if r, ok := role.(models.Role); ok {
			return r
		}
	}
	return ""
}
