package group

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wavelink-backend/internal/service/group"
	"wavelink-backend/pkg/response"
)

// Handler handles group mutation HTTP requests
type Handler struct {
	groupService *group.Service
}

// NewHandler creates a new group handler
func NewHandler(groupService *group.Service) *Handler {
	return &Handler{
		groupService: groupService,
	}
}

// RegisterRoutes mounts the group endpoints under the given router group
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	groups := r.Group("/groups")
	{
		groups.GET("/:group_id", h.GetGroup)
		groups.POST("/:group_id/members", h.AddMember)
		groups.DELETE("/:group_id/members/:user_id", h.RemoveMember)
		groups.POST("/:group_id/admins/:user_id", h.PromoteAdmin)
		groups.PUT("/:group_id/name", h.Rename)
		groups.PUT("/:group_id/icon", h.UpdateIcon)
	}
}

// AddMemberRequest represents add member request
type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// RenameRequest represents rename request
type RenameRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// UpdateIconRequest represents icon update request
type UpdateIconRequest struct {
	Icon string `json:"icon" binding:"required,max=2048"`
}

// GetGroup handles retrieving a group document
// GET /v1/groups/:group_id
func (h *Handler) GetGroup(c *gin.Context) {
	groupID, ok := parseParamID(c, "group_id")
	if !ok {
		return
	}

	g, err := h.groupService.Get(c.Request.Context(), groupID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OKWithData(c, "OK", g)
}

// AddMember handles adding a member to a group
// POST /v1/groups/:group_id/members
func (h *Handler) AddMember(c *gin.Context) {
	groupID, ok := parseParamID(c, "group_id")
	if !ok {
		return
	}
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	g, err := h.groupService.AddMember(c.Request.Context(), actorID, groupID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OKWithData(c, "Member added", g)
}

// RemoveMember handles removing a member from a group
// DELETE /v1/groups/:group_id/members/:user_id
func (h *Handler) RemoveMember(c *gin.Context) {
	groupID, ok := parseParamID(c, "group_id")
	if !ok {
		return
	}
	userID, ok := parseParamID(c, "user_id")
	if !ok {
		return
	}
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	g, err := h.groupService.RemoveMember(c.Request.Context(), actorID, groupID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OKWithData(c, "Member removed", g)
}

// PromoteAdmin handles promoting a member to admin
// POST /v1/groups/:group_id/admins/:user_id
func (h *Handler) PromoteAdmin(c *gin.Context) {
	groupID, ok := parseParamID(c, "group_id")
	if !ok {
		return
	}
	userID, ok := parseParamID(c, "user_id")
	if !ok {
		return
	}
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	g, err := h.groupService.PromoteAdmin(c.Request.Context(), actorID, groupID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OKWithData(c, "Admin promoted", g)
}

// Rename handles renaming a group
// PUT /v1/groups/:group_id/name
func (h *Handler) Rename(c *gin.Context) {
	groupID, ok := parseParamID(c, "group_id")
	if !ok {
		return
	}
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	g, err := h.groupService.Rename(c.Request.Context(), actorID, groupID, req.Name)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OKWithData(c, "Group renamed", g)
}

// UpdateIcon handles changing a group's icon
// PUT /v1/groups/:group_id/icon
func (h *Handler) UpdateIcon(c *gin.Context) {
	groupID, ok := parseParamID(c, "group_id")
	if !ok {
		return
	}
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req UpdateIconRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	g, err := h.groupService.UpdateIcon(c.Request.Context(), actorID, groupID, req.Icon)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OKWithData(c, "Icon updated", g)
}

func parseParamID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// actorFromContext reads the authenticated user set by the auth middleware
func actorFromContext(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		response.Fail(c, http.StatusUnauthorized, "Not authenticated")
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	if !ok {
		response.Fail(c, http.StatusInternalServerError, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}
