package call

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wavelink-backend/internal/service/call"
	"wavelink-backend/pkg/response"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler handles call history HTTP requests
type Handler struct {
	callService *call.Service
}

// NewHandler creates a new call handler
func NewHandler(callService *call.Service) *Handler {
	return &Handler{
		callService: callService,
	}
}

// RegisterRoutes mounts the call endpoints under the given router group
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	calls := r.Group("/calls")
	{
		calls.GET("/history", h.History)
		calls.GET("/missed", h.Missed)
	}
}

// History handles retrieving the authenticated user's call history
// GET /v1/calls/history
func (h *Handler) History(c *gin.Context) {
	userID, ok := actorFromContext(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)

	calls, err := h.callService.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OKWithData(c, "OK", calls)
}

// Missed handles retrieving the authenticated user's missed calls
// GET /v1/calls/missed
func (h *Handler) Missed(c *gin.Context) {
	userID, ok := actorFromContext(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)

	calls, err := h.callService.MissedCalls(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OKWithData(c, "OK", calls)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

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
