package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"legal-doc-intelligence/internal/auth"
	"legal-doc-intelligence/utils"
)

// AuthHandlers issues and revokes the access/refresh token pair. Who a
// caller claims to be is established upstream of this system — these
// endpoints are mechanism, not policy: given a user id already vouched
// for, mint or revoke the tokens internal/auth.JWTAuthorizer validates.
type AuthHandlers struct {
	rdb *redis.Client
}

func NewAuthHandlers(rdb *redis.Client) *AuthHandlers {
	return &AuthHandlers{rdb: rdb}
}

type issueTokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// IssueToken handles POST /auth/tokens.
func (h *AuthHandlers) IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "user_id is required", nil)
		return
	}

	pair, err := auth.IssueTokenPair(c.Request.Context(), req.UserID, h.rdb)
	if err != nil {
		utils.RespondWithInternalError(c, "failed to issue tokens", nil)
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshToken handles POST /auth/refresh.
func (h *AuthHandlers) RefreshToken(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "refresh_token is required", nil)
		return
	}

	claims, err := auth.ValidateRefreshToken(c.Request.Context(), req.RefreshToken, h.rdb)
	if err != nil {
		utils.RespondWithUnauthorized(c, "invalid or expired refresh token")
		return
	}
	if err := auth.RevokeToken(c.Request.Context(), claims.ID, true, h.rdb); err != nil {
		utils.RespondWithInternalError(c, "failed to rotate refresh token", nil)
		return
	}

	pair, err := auth.IssueTokenPair(c.Request.Context(), claims.UserID, h.rdb)
	if err != nil {
		utils.RespondWithInternalError(c, "failed to issue tokens", nil)
		return
	}
	c.JSON(http.StatusOK, pair)
}
