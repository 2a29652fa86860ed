package organization

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leavehub/leave-api/internal/handler"
	"github.com/leavehub/leave-api/internal/middleware"
	"github.com/leavehub/leave-api/internal/service/organization"
)

type Handler struct {
	service organization.Servicer
	logger  zerolog.Logger
}

func NewHandler(service organization.Servicer, logger zerolog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orgs := r.Group("/organizations")
	{
		orgs.POST("", h.CreateOrganization)
		orgs.GET("/:id", h.GetOrganization)
		orgs.GET("", h.ListOrganizations)
		orgs.PUT("/:id/billing-override", h.SetBillingOverride)
	}
}

type createOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) CreateOrganization(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	org, err := h.service.CreateOrganization(c.Request.Context(), req.Name, userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create organization")
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(org))
}

func (h *Handler) GetOrganization(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid organization ID"))
		return
	}

	org, err := h.service.GetOrganization(c.Request.Context(), id)
	if err != nil {
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(org))
}

func (h *Handler) ListOrganizations(c *gin.Context) {
	orgs, err := h.service.ListOrganizations(c.Request.Context())
	if err != nil {
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(orgs))
}

type billingOverrideRequest struct {
	Seats     int       `json:"seats" binding:"min=0"`
	ExpiresAt time.Time `json:"expires_at" binding:"required"`
}

func (h *Handler) SetBillingOverride(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid organization ID"))
		return
	}

	var req billingOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	org, err := h.service.SetBillingOverride(c.Request.Context(), userID, orgID, req.Seats, req.ExpiresAt)
	if err != nil {
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(org))
}
