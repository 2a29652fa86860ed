package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leavehub/leave-api/internal/billing/lemonsqueezy"
	webhookhandler "github.com/leavehub/leave-api/internal/handler/webhook"
	"github.com/leavehub/leave-api/internal/repository/repositorytest"
	"github.com/leavehub/leave-api/internal/service/billing"
	"github.com/leavehub/leave-api/pkg/metrics"
	"github.com/leavehub/leave-api/pkg/webhook"
)

const signingSecret = "test-signing-secret"

func newTestRouter(t *testing.T) (*gin.Engine, *repositorytest.SubscriptionRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	subs := repositorytest.NewSubscriptionRepo()
	processor := billing.NewWebhookProcessor(
		subs,
		repositorytest.NewMembershipRepo(),
		repositorytest.NewWebhookEventRepo(),
		repositorytest.NewOutboxRepo(),
		nilUsageRecorder{},
		billing.VariantConfig{MonthlyVariantID: 111, YearlyVariantID: 222},
		zerolog.Nop(),
		metrics.NewMetrics(prometheus.NewRegistry(), "leavehub", "test"),
	)

	r := gin.New()
	h := webhookhandler.NewHandler(processor, signingSecret, zerolog.Nop())
	h.RegisterRoutes(r.Group("/"))
	return r, subs
}

type nilUsageRecorder struct{}

func (nilUsageRecorder) CreateUsageRecord(_ context.Context, _ string, quantity int) (*lemonsqueezy.UsageRecord, error) {
	return &lemonsqueezy.UsageRecord{ID: "ur-1", Quantity: quantity}, nil
}

func subscriptionCreatedBody(t *testing.T, orgID uuid.UUID, variantID int64) []byte {
	t.Helper()
	renewsAt := time.Now().Add(30 * 24 * time.Hour)
	body, err := json.Marshal(map[string]any{
		"meta": map[string]any{
			"event_name": "subscription_created",
			"custom_data": map[string]any{
				"user_count":      "5",
				"organization_id": orgID.String(),
			},
		},
		"data": map[string]any{
			"id": "ls-sub-1",
			"attributes": map[string]any{
				"status":     "active",
				"variant_id": variantID,
				"renews_at":  renewsAt.Format(time.RFC3339),
				"first_subscription_item": map[string]any{
					"id":       9001,
					"quantity": 5,
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func postWebhook(r *gin.Engine, body []byte, signature, eventID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/lemonsqueezy", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}
	if eventID != "" {
		req.Header.Set("X-Event-Id", eventID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleWebhook(t *testing.T) {
	r, subs := newTestRouter(t)
	body := subscriptionCreatedBody(t, uuid.New(), 111)

	w := postWebhook(r, body, webhook.Sign(signingSecret, body), "evt-1")

	assert.Equal(t, http.StatusOK, w.Code)
	sub, _ := subs.GetByProviderID(context.Background(), "ls-sub-1")
	require.NotNil(t, sub)
	assert.Equal(t, 5, sub.CurrentSeats)
}

func TestHandleWebhookBadSignature(t *testing.T) {
	r, subs := newTestRouter(t)
	body := subscriptionCreatedBody(t, uuid.New(), 111)

	w := postWebhook(r, body, "deadbeef", "evt-1")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	sub, _ := subs.GetByProviderID(context.Background(), "ls-sub-1")
	assert.Nil(t, sub)
}

func TestHandleWebhookMissingSignature(t *testing.T) {
	r, _ := newTestRouter(t)
	body := subscriptionCreatedBody(t, uuid.New(), 111)

	w := postWebhook(r, body, "", "evt-1")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleWebhookMissingEventID(t *testing.T) {
	r, _ := newTestRouter(t)
	body := subscriptionCreatedBody(t, uuid.New(), 111)

	w := postWebhook(r, body, webhook.Sign(signingSecret, body), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleWebhookMalformedPayload(t *testing.T) {
	r, _ := newTestRouter(t)
	body := []byte(`{"meta":`)

	w := postWebhook(r, body, webhook.Sign(signingSecret, body), "evt-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleWebhookUnknownVariant(t *testing.T) {
	r, _ := newTestRouter(t)
	body := subscriptionCreatedBody(t, uuid.New(), 999)

	w := postWebhook(r, body, webhook.Sign(signingSecret, body), "evt-1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleWebhookDuplicateReturnsOK(t *testing.T) {
	r, _ := newTestRouter(t)
	body := subscriptionCreatedBody(t, uuid.New(), 111)
	sig := webhook.Sign(signingSecret, body)

	first := postWebhook(r, body, sig, "evt-1")
	require.Equal(t, http.StatusOK, first.Code)

	second := postWebhook(r, body, sig, "evt-1")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "duplicate")
}
