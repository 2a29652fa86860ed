package lemonsqueezy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/leavehub/leave-api/pkg/circuitbreaker"
	"github.com/leavehub/leave-api/pkg/metrics"
)

const defaultBaseURL = "https://api.lemonsqueezy.com"

// ErrTimeout marks a provider call that hit the request deadline. It is
// retryable, unlike an APIError which is a definitive provider answer.
var ErrTimeout = errors.New("billing provider request timed out")

// APIError is a non-2xx response from the provider. The body is kept so
// operators can see the provider's reason verbatim.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("billing provider returned %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *circuitbreaker.CircuitBreaker
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

func NewClient(cfg Config, logger zerolog.Logger, metrics *metrics.Metrics) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "lemonsqueezy",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
	})

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		cb:         cb,
		logger:     logger.With().Str("component", "lemonsqueezy").Logger(),
		metrics:    metrics,
	}
}

// CreateUsageRecord reports a new seat count for a usage-based
// subscription. The new record supersedes prior ones; the provider
// charges the difference at the end of the period.
func (c *Client) CreateUsageRecord(ctx context.Context, subscriptionItemID string, quantity int) (*UsageRecord, error) {
	body := usageRecordRequest{
		Data: usageRecordData{
			Type:       "usage-records",
			Attributes: usageRecordAttributes{Quantity: quantity},
			Relationships: usageRecordRelationships{
				SubscriptionItem: relationship{
					Data: relationshipData{Type: "subscription-items", ID: subscriptionItemID},
				},
			},
		},
	}

	var resp usageRecordResponse
	if err := c.do(ctx, http.MethodPost, "/v1/usage-records", "create_usage_record", body, &resp); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("subscription_item_id", subscriptionItemID).
		Int("quantity", quantity).
		Str("usage_record_id", resp.Data.ID).
		Msg("created usage record")

	return &UsageRecord{ID: resp.Data.ID, Quantity: resp.Data.Attributes.Quantity}, nil
}

// UpdateSubscriptionItemQuantity sets the line-item quantity for a
// quantity-based subscription. With invoiceImmediately the customer is
// charged the prorated difference now instead of at renewal.
func (c *Client) UpdateSubscriptionItemQuantity(ctx context.Context, subscriptionItemID string, quantity int, invoiceImmediately bool) (*SubscriptionItem, error) {
	body := subscriptionItemRequest{
		Data: subscriptionItemData{
			Type: "subscription-items",
			ID:   subscriptionItemID,
			Attributes: subscriptionItemAttributes{
				Quantity:           quantity,
				InvoiceImmediately: invoiceImmediately,
			},
		},
	}

	var resp subscriptionItemResponse
	path := "/v1/subscription-items/" + subscriptionItemID
	if err := c.do(ctx, http.MethodPatch, path, "update_subscription_item", body, &resp); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("subscription_item_id", subscriptionItemID).
		Int("quantity", resp.Data.Attributes.Quantity).
		Bool("invoice_immediately", invoiceImmediately).
		Msg("updated subscription item quantity")

	return &SubscriptionItem{ID: resp.Data.ID, Quantity: resp.Data.Attributes.Quantity}, nil
}

// GetSubscription fetches the provider's authoritative subscription
// record, including renews_at used for proration.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var resp subscriptionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/subscriptions/"+subscriptionID, "get_subscription", nil, &resp); err != nil {
		return nil, err
	}

	return &Subscription{
		ID:        resp.Data.ID,
		Status:    resp.Data.Attributes.Status,
		VariantID: resp.Data.Attributes.VariantID,
		RenewsAt:  resp.Data.Attributes.RenewsAt,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path, operation string, body, out interface{}) error {
	timer := prometheus.NewTimer(c.metrics.ProviderLatency.WithLabelValues(operation))
	defer timer.ObserveDuration()

	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	err = c.cb.Execute(func() error {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
				return fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
			}
			return fmt.Errorf("billing provider request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read provider response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
		}

		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("failed to decode provider response: %w", err)
			}
		}
		return nil
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.ProviderCalls.WithLabelValues(operation, status).Inc()
	return err
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
