package lemonsqueezy

import (
	"encoding/json"
	"time"
)

// JSON:API request/response shapes for the subset of the Lemon Squeezy
// API this service depends on.

type usageRecordRequest struct {
	Data usageRecordData `json:"data"`
}

type usageRecordData struct {
	Type          string                   `json:"type"`
	Attributes    usageRecordAttributes    `json:"attributes"`
	Relationships usageRecordRelationships `json:"relationships"`
}

type usageRecordAttributes struct {
	Quantity int `json:"quantity"`
}

type usageRecordRelationships struct {
	SubscriptionItem relationship `json:"subscription-item"`
}

type relationship struct {
	Data relationshipData `json:"data"`
}

type relationshipData struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// UsageRecord is a created usage record as returned by the provider.
type UsageRecord struct {
	ID       string
	Quantity int
}

type usageRecordResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Quantity int `json:"quantity"`
		} `json:"attributes"`
	} `json:"data"`
}

type subscriptionItemRequest struct {
	Data subscriptionItemData `json:"data"`
}

type subscriptionItemData struct {
	Type       string                     `json:"type"`
	ID         string                     `json:"id"`
	Attributes subscriptionItemAttributes `json:"attributes"`
}

type subscriptionItemAttributes struct {
	Quantity           int  `json:"quantity"`
	InvoiceImmediately bool `json:"invoice_immediately"`
}

// SubscriptionItem is a subscription line item as returned by the
// provider after a quantity update.
type SubscriptionItem struct {
	ID       string
	Quantity int
}

type subscriptionItemResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Quantity int `json:"quantity"`
		} `json:"attributes"`
	} `json:"data"`
}

// Subscription is the provider's view of a subscription. RenewsAt is
// the authoritative billing-cycle boundary used for proration.
type Subscription struct {
	ID        string
	Status    string
	VariantID int64
	RenewsAt  time.Time
}

type subscriptionResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status    string    `json:"status"`
			VariantID int64     `json:"variant_id"`
			RenewsAt  time.Time `json:"renews_at"`
		} `json:"attributes"`
	} `json:"data"`
}

// WebhookPayload is an inbound webhook event body. The handler must
// only hand payloads to the reconciliation service after the HMAC
// signature over the raw body has been verified.
type WebhookPayload struct {
	Meta WebhookMeta `json:"meta"`
	Data WebhookData `json:"data"`
}

type WebhookMeta struct {
	EventName  string            `json:"event_name"`
	CustomData WebhookCustomData `json:"custom_data"`
}

// WebhookCustomData carries values the checkout flow attached to the
// subscription. Lemon Squeezy serializes custom data values as strings,
// so UserCount is a json.Number to tolerate both encodings.
type WebhookCustomData struct {
	UserCount      json.Number `json:"user_count"`
	OrganizationID string      `json:"organization_id"`
}

type WebhookData struct {
	ID         string            `json:"id"`
	Attributes WebhookAttributes `json:"attributes"`
}

type WebhookAttributes struct {
	Status                string                `json:"status"`
	VariantID             int64                 `json:"variant_id"`
	RenewsAt              *time.Time            `json:"renews_at"`
	FirstSubscriptionItem *FirstSubscriptionItem `json:"first_subscription_item"`
}

type FirstSubscriptionItem struct {
	ID           int64 `json:"id"`
	Quantity     int   `json:"quantity"`
	IsUsageBased bool  `json:"is_usage_based"`
}
