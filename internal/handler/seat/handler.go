package seat

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leavehub/leave-api/internal/handler"
	"github.com/leavehub/leave-api/internal/service/seat"
)

type Handler struct {
	manager      seat.SeatManager
	availability *seat.Calculator
	logger       zerolog.Logger
}

func NewHandler(manager seat.SeatManager, availability *seat.Calculator, logger zerolog.Logger) *Handler {
	return &Handler{manager: manager, availability: availability, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/organizations/:id/seats", h.GetSeatAvailability)

	subs := r.Group("/subscriptions/:id")
	{
		subs.POST("/seats/add", h.AddSeats)
		subs.POST("/seats/remove", h.RemoveSeats)
		subs.GET("/proration", h.CalculateProration)
	}
}

func (h *Handler) GetSeatAvailability(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid organization ID"))
		return
	}

	availability, err := h.availability.ComputeSeatAvailability(c.Request.Context(), orgID)
	if err != nil {
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(availability))
}

type seatChangeRequest struct {
	NewQuantity int `json:"new_quantity" binding:"required,min=0"`
}

func (h *Handler) AddSeats(c *gin.Context) {
	subID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid subscription ID"))
		return
	}

	var req seatChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	result, err := h.manager.AddSeats(c.Request.Context(), subID, req.NewQuantity)
	if err != nil {
		h.logger.Error().Err(err).Str("subscription_id", subID.String()).Msg("failed to add seats")
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) RemoveSeats(c *gin.Context) {
	subID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid subscription ID"))
		return
	}

	var req seatChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	result, err := h.manager.RemoveSeats(c.Request.Context(), subID, req.NewQuantity)
	if err != nil {
		h.logger.Error().Err(err).Str("subscription_id", subID.String()).Msg("failed to remove seats")
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) CalculateProration(c *gin.Context) {
	subID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid subscription ID"))
		return
	}

	newQuantity, err := strconv.Atoi(c.Query("new_quantity"))
	if err != nil || newQuantity < 0 {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid new_quantity"))
		return
	}

	preview, err := h.manager.CalculateProration(c.Request.Context(), subID, newQuantity)
	if err != nil {
		c.JSON(handler.StatusFor(err), handler.ErrorBody(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(preview))
}
