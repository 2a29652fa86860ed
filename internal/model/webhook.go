package model

import (
	"encoding/json"
	"time"
)

// WebhookEvent is the idempotency record for a processed provider
// event. Insert-if-absent on ProviderEventID gates all webhook
// mutations so redeliveries are no-ops.
type WebhookEvent struct {
	ProviderEventID string          `json:"provider_event_id" db:"provider_event_id"`
	EventName       string          `json:"event_name" db:"event_name"`
	Payload         json.RawMessage `json:"payload" db:"payload"`
	ProcessedAt     time.Time       `json:"processed_at" db:"processed_at"`
}

// WebhookResult is the outcome of processing one provider event.
type WebhookResult struct {
	Success   bool     `json:"success"`
	Duplicate bool     `json:"duplicate,omitempty"`
	Error     string   `json:"error,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}
