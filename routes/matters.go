package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"legal-doc-intelligence/internal/store"
	"legal-doc-intelligence/middleware"
	"legal-doc-intelligence/models"
	"legal-doc-intelligence/utils"
)

type MatterHandlers struct {
	store *store.Store
}

func NewMatterHandlers(st *store.Store) *MatterHandlers {
	return &MatterHandlers{store: st}
}

type createMatterRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateMatter handles POST /matters. The caller becomes the matter's
// first owner; no route in this module grants further memberships.
func (h *MatterHandlers) CreateMatter(c *gin.Context) {
	var req createMatterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "name is required", nil)
		return
	}

	userID := middleware.GetUserID(c)
	matter := &models.Matter{
		Name:    req.Name,
		Members: map[string]models.MemberRole{userID: models.RoleOwner},
	}
	if err := h.store.CreateMatter(c.Request.Context(), matter); err != nil {
		utils.RespondWithInternalError(c, "failed to create matter", nil)
		return
	}
	c.JSON(http.StatusCreated, matter)
}

// GetMatter handles GET /matters/:matter_id.
func (h *MatterHandlers) GetMatter(c *gin.Context) {
	matter, err := h.store.GetMatter(c.Request.Context(), middleware.GetMatterID(c))
	if err != nil {
		utils.RespondWithNotFound(c, "matter not found")
		return
	}
	c.JSON(http.StatusOK, matter)
}
