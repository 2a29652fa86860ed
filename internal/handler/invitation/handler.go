package invitation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leavehub/leave-api/internal/handler"
	"github.com/leavehub/leave-api/internal/middleware"
	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/service/invitation"
)

type Handler struct {
	service invitation.Servicer
	logger  zerolog.Logger
}

func NewHandler(service invitation.Servicer, logger zerolog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/organizations/:id/invitations", h.InviteMember)
	r.POST("/invitations/accept", h.AcceptInvitation)
	r.POST("/invitations/:id/cancel", h.CancelInvitation)
}

type inviteRequest struct {
	Email string     `json:"email" binding:"required,email"`
	Role  model.Role `json:"role" binding:"required,role"`
}

func (h *Handler) InviteMember(c *gin.Context) {
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

	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	inv, err := h.service.InviteMember(c.Request.Context(), requesterID, orgID, req.Email, req.Role)
	if err != nil {
		h.logger.Error().Err(err).Str("organization_id", orgID.String()).Msg("failed to invite member")
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(inv))
}

type acceptRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *Handler) AcceptInvitation(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	member, err := h.service.AcceptInvitation(c.Request.Context(), req.Token, userID)
	if err != nil {
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(member))
}

func (h *Handler) CancelInvitation(c *gin.Context) {
	requesterID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	invID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid invitation ID"))
		return
	}

	inv, err := h.service.CancelInvitation(c.Request.Context(), requesterID, invID)
	if err != nil {
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(inv))
}
