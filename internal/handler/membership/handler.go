package membership

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leavehub/leave-api/internal/handler"
	"github.com/leavehub/leave-api/internal/middleware"
	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/service/membership"
)

type Handler struct {
	service membership.Servicer
	logger  zerolog.Logger
}

func NewHandler(service membership.Servicer, logger zerolog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	members := r.Group("/organizations/:id/members")
	{
		members.GET("", h.ListMembers)
		members.GET("/:userID", h.GetMember)
		members.POST("/:userID/remove", h.RemoveMember)
		members.POST("/:userID/reactivate", h.ReactivateMember)
	}
}

func (h *Handler) ListMembers(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid organization ID"))
		return
	}

	filters := &model.MembershipFilters{OrganizationID: orgID}
	if status := c.Query("status"); status != "" {
		filters.Status = model.MembershipStatus(status)
	}

	members, err := h.service.ListMembers(c.Request.Context(), filters)
	if err != nil {
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(members))
}

func (h *Handler) GetMember(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid organization ID"))
		return
	}
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
		return
	}

	member, err := h.service.GetMember(c.Request.Context(), userID, orgID)
	if err != nil {
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(member))
}

// RemoveMember schedules removal at the next renewal; the seat is not
// released until then.
func (h *Handler) RemoveMember(c *gin.Context) {
	requesterID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid organization ID"))
		return
	}
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
		return
	}

	member, err := h.service.RemoveMember(c.Request.Context(), requesterID, userID, orgID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to remove member")
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(member))
}

func (h *Handler) ReactivateMember(c *gin.Context) {
	requesterID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid organization ID"))
		return
	}
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
		return
	}

	result, err := h.service.ReactivateMember(c.Request.Context(), requesterID, userID, orgID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to reactivate member")
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}
