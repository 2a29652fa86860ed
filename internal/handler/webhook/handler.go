package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/leavehub/leave-api/internal/billing/lemonsqueezy"
	"github.com/leavehub/leave-api/internal/handler"
	"github.com/leavehub/leave-api/internal/service/billing"
	"github.com/leavehub/leave-api/pkg/webhook"
)

const (
	signatureHeader = "X-Signature"
	eventIDHeader   = "X-Event-Id"

	// maxBodyBytes caps inbound payloads; provider events are small.
	maxBodyBytes = 1 << 20
)

// Handler terminates the provider webhook endpoint. Signature
// verification runs on the raw body before anything is parsed.
type Handler struct {
	processor     *billing.WebhookProcessor
	signingSecret string
	logger        zerolog.Logger
}

func NewHandler(processor *billing.WebhookProcessor, signingSecret string, logger zerolog.Logger) *Handler {
	return &Handler{
		processor:     processor,
		signingSecret: signingSecret,
		logger:        logger,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/lemonsqueezy", h.HandleWebhook)
}

func (h *Handler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("failed to read request body"))
		return
	}

	if err := webhook.Verify(h.signingSecret, body, c.GetHeader(signatureHeader)); err != nil {
		h.logger.Warn().Err(err).Msg("rejected webhook with bad signature")
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid webhook signature"))
		return
	}

	eventID := c.GetHeader(eventIDHeader)
	if eventID == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("missing event id header"))
		return
	}

	var payload lemonsqueezy.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("malformed webhook payload"))
		return
	}

	result, err := h.processor.ProcessEvent(c.Request.Context(), eventID, &payload, body)
	if err != nil {
		// Infrastructure failure: 500 so the provider redelivers.
		h.logger.Error().Err(err).Str("event_id", eventID).Msg("webhook processing failed")
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("webhook processing failed"))
		return
	}

	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, handler.NewErrorResponse(result.Error))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}
