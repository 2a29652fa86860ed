package model

import (
	"time"

	"github.com/google/uuid"
)

// FreeTierSeats is the number of seats every organization gets without a
// paid subscription.
const FreeTierSeats = 3

// BillingType selects how seat changes are reported to the billing
// provider. It is fixed at subscription creation, derived from the price
// variant, and never changes for the lifetime of the subscription.
type BillingType string

const (
	// BillingTypeUsageBased reports seats through usage records; the
	// provider charges the difference at the end of the period.
	BillingTypeUsageBased BillingType = "usage_based"
	// BillingTypeQuantityBased drives billing through the line-item
	// quantity; changes are invoiced immediately with proration.
	BillingTypeQuantityBased BillingType = "quantity_based"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusOnTrial   SubscriptionStatus = "on_trial"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Subscription is the local seat ledger row for an organization's paid
// relationship with the billing provider. At most one row per
// organization may be active or on_trial at a time.
type Subscription struct {
	ID                         uuid.UUID          `json:"id" db:"id"`
	OrganizationID             uuid.UUID          `json:"organization_id" db:"organization_id"`
	BillingType                BillingType        `json:"billing_type" db:"billing_type"`
	CurrentSeats               int                `json:"current_seats" db:"current_seats"`
	ProviderSubscriptionID     string             `json:"provider_subscription_id" db:"provider_subscription_id"`
	ProviderSubscriptionItemID string             `json:"provider_subscription_item_id" db:"provider_subscription_item_id"`
	ProviderEventID            string             `json:"provider_event_id" db:"provider_event_id"`
	Status                     SubscriptionStatus `json:"status" db:"status"`
	RenewsAt                   *time.Time         `json:"renews_at" db:"renews_at"`
	CreatedAt                  time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt                  time.Time          `json:"updated_at" db:"updated_at"`
}

// IsBillable reports whether the subscription is in a state that counts
// toward seat entitlement.
func (s *Subscription) IsBillable() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusOnTrial
}

// TotalSeats returns the entitled seat count: the free tier plus the
// paid seats currently on the subscription.
func (s *Subscription) TotalSeats() int {
	return FreeTierSeats + s.CurrentSeats
}

// SeatAvailability is the result of the availability calculation for an
// organization. AvailableSeats is floored at zero.
type SeatAvailability struct {
	ActiveSeats        int `json:"active_seats"`
	PendingInvitations int `json:"pending_invitations"`
	TotalOccupied      int `json:"total_occupied"`
	TotalSeats         int `json:"total_seats"`
	AvailableSeats     int `json:"available_seats"`
}

// ChargeTiming tells the caller when the provider will actually charge
// for a seat change.
type ChargeTiming string

const (
	ChargedAtEndOfPeriod ChargeTiming = "end_of_period"
	ChargedImmediately   ChargeTiming = "immediately"
)

// SeatChangeResult reports a completed seat-count change. Warnings carry
// degraded-success conditions (for example a skipped provider call when
// the subscription item id is missing) so callers can tell a full
// success from a local-only one.
type SeatChangeResult struct {
	SubscriptionID  uuid.UUID    `json:"subscription_id"`
	BillingType     BillingType  `json:"billing_type"`
	CurrentSeats    int          `json:"current_seats"`
	PreviousSeats   int          `json:"previous_seats"`
	ChargedAt       ChargeTiming `json:"charged_at"`
	ProrationAmount string       `json:"proration_amount,omitempty"`
	DaysRemaining   int          `json:"days_remaining,omitempty"`
	Warnings        []string     `json:"warnings,omitempty"`
}

// ProrationPreview is a read-only proration calculation for a proposed
// seat change. Amount is a decimal string rounded to two places.
type ProrationPreview struct {
	SubscriptionID uuid.UUID    `json:"subscription_id"`
	BillingType    BillingType  `json:"billing_type"`
	CurrentSeats   int          `json:"current_seats"`
	NewSeats       int          `json:"new_seats"`
	SeatsAdded     int          `json:"seats_added"`
	DaysRemaining  int          `json:"days_remaining"`
	Amount         string       `json:"amount"`
	ChargedAt      ChargeTiming `json:"charged_at"`
	Message        string       `json:"message,omitempty"`
}
