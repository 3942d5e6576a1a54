package middleware

import (
	"net/http"

	"legal-doc-intelligence/internal/auth"
	"legal-doc-intelligence/models"
	"legal-doc-intelligence/utils"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware adapts an auth.Authorizer to Gin: it never parses a
// token itself, it only asks the contract to authenticate it.
type AuthMiddleware struct {
	authorizer auth.Authorizer
}

func NewAuthMiddleware(authorizer auth.Authorizer) *AuthMiddleware {
	return &AuthMiddleware{authorizer: authorizer}
}

// RequireAuth rejects the request unless it carries a valid access token,
// via header or cookie, and stores the resolved user id in context.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			if cookie, err := c.Cookie("access_token"); err == nil {
				tokenString = cookie
			}
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Authentication token is required",
			})
			c.Abort()
			return
		}

		claims, err := a.authorizer.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

// RequireMatterRole rejects the request unless the authenticated user
// holds one of roles on the :matter_id path parameter.
func (a *AuthMiddleware) RequireMatterRole(roles ...models.MemberRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		matterID := c.Param("matter_id")
		ok, err := a.authorizer.Authorize(c.Request.Context(), userID, matterID, roles...)
		if err != nil || !ok {
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "forbidden",
				"message":    "Insufficient permissions on this matter",
			})
			c.Abort()
			return
		}
		c.Set("matter_id", matterID)
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}
