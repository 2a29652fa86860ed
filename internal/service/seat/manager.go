package seat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/leavehub/leave-api/internal/billing/lemonsqueezy"
	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository"
	"github.com/leavehub/leave-api/pkg/metrics"
)

// totalDays is the fixed annual-period assumption used for proration.
// It does not account for leap years or mid-cycle plan changes; the
// approximation is a product decision, do not change it silently.
const totalDays = 365

const warnMissingItemID = "provider call skipped: subscription has no provider_subscription_item_id; seat count updated locally only, no charge generated"

// BillingClient is the provider surface the manager depends on.
type BillingClient interface {
	CreateUsageRecord(ctx context.Context, subscriptionItemID string, quantity int) (*lemonsqueezy.UsageRecord, error)
	UpdateSubscriptionItemQuantity(ctx context.Context, subscriptionItemID string, quantity int, invoiceImmediately bool) (*lemonsqueezy.SubscriptionItem, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*lemonsqueezy.Subscription, error)
}

type SeatManager interface {
	AddSeats(ctx context.Context, subscriptionID uuid.UUID, newQuantity int) (*model.SeatChangeResult, error)
	RemoveSeats(ctx context.Context, subscriptionID uuid.UUID, newQuantity int) (*model.SeatChangeResult, error)
	CalculateProration(ctx context.Context, subscriptionID uuid.UUID, newQuantity int) (*model.ProrationPreview, error)
}

// Manager routes seat-count changes to the billing strategy matching
// the subscription's billing type and keeps the local ledger aligned
// with the provider. The local write always happens strictly after a
// successful provider response.
type Manager struct {
	subscriptionRepo   repository.SubscriptionRepository
	outboxRepo         repository.OutboxRepository
	billing            BillingClient
	yearlyPricePerSeat decimal.Decimal
	renewals           *cache.Cache
	logger             zerolog.Logger
	metrics            *metrics.Metrics
	now                func() time.Time
}

func NewManager(
	subscriptionRepo repository.SubscriptionRepository,
	outboxRepo repository.OutboxRepository,
	billing BillingClient,
	yearlyPricePerSeat float64,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) *Manager {
	return &Manager{
		subscriptionRepo:   subscriptionRepo,
		outboxRepo:         outboxRepo,
		billing:            billing,
		yearlyPricePerSeat: decimal.NewFromFloat(yearlyPricePerSeat),
		renewals:           cache.New(time.Minute, 5*time.Minute),
		logger:             logger.With().Str("component", "seat_manager").Logger(),
		metrics:            metrics,
		now:                time.Now,
	}
}

func (m *Manager) AddSeats(ctx context.Context, subscriptionID uuid.UUID, newQuantity int) (*model.SeatChangeResult, error) {
	sub, err := m.getSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if newQuantity == sub.CurrentSeats {
		return nil, &SameQuantityError{Seats: newQuantity}
	}
	if newQuantity < sub.CurrentSeats {
		return nil, &DirectionMismatchError{Operation: "add_seats", CurrentSeats: sub.CurrentSeats, NewSeats: newQuantity}
	}
	return m.changeSeats(ctx, sub, newQuantity)
}

func (m *Manager) RemoveSeats(ctx context.Context, subscriptionID uuid.UUID, newQuantity int) (*model.SeatChangeResult, error) {
	sub, err := m.getSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if newQuantity == sub.CurrentSeats {
		return nil, &SameQuantityError{Seats: newQuantity}
	}
	if newQuantity > sub.CurrentSeats {
		return nil, &DirectionMismatchError{Operation: "remove_seats", CurrentSeats: sub.CurrentSeats, NewSeats: newQuantity}
	}
	return m.changeSeats(ctx, sub, newQuantity)
}

// changeSeats dispatches on the stored billing type. The switch is
// exhaustive over model.BillingType; anything else is a configuration
// error and fails without a provider call.
func (m *Manager) changeSeats(ctx context.Context, sub *model.Subscription, newQuantity int) (*model.SeatChangeResult, error) {
	direction := "add"
	if newQuantity < sub.CurrentSeats {
		direction = "remove"
	}

	var result *model.SeatChangeResult
	var err error
	switch sub.BillingType {
	case model.BillingTypeUsageBased:
		result, err = m.changeSeatsUsageBased(ctx, sub, newQuantity)
	case model.BillingTypeQuantityBased:
		result, err = m.changeSeatsQuantityBased(ctx, sub, newQuantity)
	default:
		m.metrics.SeatChangeFailures.WithLabelValues(string(sub.BillingType), "unknown_billing_type").Inc()
		return nil, &UnknownBillingTypeError{BillingType: sub.BillingType}
	}

	if err != nil {
		m.metrics.SeatChangeFailures.WithLabelValues(string(sub.BillingType), failureReason(err)).Inc()
		return nil, err
	}
	m.metrics.SeatChanges.WithLabelValues(string(sub.BillingType), direction).Inc()
	return result, nil
}

// failureReason buckets a seat-change error for the failure counter.
func failureReason(err error) string {
	var apiErr *lemonsqueezy.APIError
	switch {
	case errors.Is(err, lemonsqueezy.ErrTimeout):
		return "provider_timeout"
	case errors.As(err, &apiErr):
		return "provider_error"
	default:
		return "internal"
	}
}

// changeSeatsUsageBased reports the new seat count through a usage
// record. The new record supersedes prior ones; the provider charges
// the difference at the end of the period.
func (m *Manager) changeSeatsUsageBased(ctx context.Context, sub *model.Subscription, newQuantity int) (*model.SeatChangeResult, error) {
	result := &model.SeatChangeResult{
		SubscriptionID: sub.ID,
		BillingType:    model.BillingTypeUsageBased,
		PreviousSeats:  sub.CurrentSeats,
		CurrentSeats:   newQuantity,
		ChargedAt:      model.ChargedAtEndOfPeriod,
	}

	if sub.ProviderSubscriptionItemID == "" {
		// Escape hatch for incomplete provider setup: local seats
		// still move, but nothing is billed.
		m.logger.Warn().
			Str("subscription_id", sub.ID.String()).
			Msg("missing provider subscription item id, skipping usage record")
		result.Warnings = append(result.Warnings, warnMissingItemID)
	} else {
		if _, err := m.billing.CreateUsageRecord(ctx, sub.ProviderSubscriptionItemID, newQuantity); err != nil {
			return nil, fmt.Errorf("failed to create usage record: %w", err)
		}
	}

	if err := m.subscriptionRepo.UpdateSeats(ctx, sub.ID, newQuantity); err != nil {
		return nil, err
	}
	m.emitSeatsChanged(ctx, result)
	return result, nil
}

// changeSeatsQuantityBased updates the provider line-item quantity with
// invoice_immediately, so the customer is charged the prorated
// difference now.
func (m *Manager) changeSeatsQuantityBased(ctx context.Context, sub *model.Subscription, newQuantity int) (*model.SeatChangeResult, error) {
	result := &model.SeatChangeResult{
		SubscriptionID: sub.ID,
		BillingType:    model.BillingTypeQuantityBased,
		PreviousSeats:  sub.CurrentSeats,
		CurrentSeats:   newQuantity,
		ChargedAt:      model.ChargedImmediately,
	}

	if sub.ProviderSubscriptionItemID == "" {
		m.logger.Warn().
			Str("subscription_id", sub.ID.String()).
			Msg("missing provider subscription item id, skipping quantity update")
		result.Warnings = append(result.Warnings, warnMissingItemID)
	} else {
		preview, err := m.prorationFor(ctx, sub, newQuantity)
		if err != nil {
			return nil, err
		}
		result.ProrationAmount = preview.Amount
		result.DaysRemaining = preview.DaysRemaining

		if _, err := m.billing.UpdateSubscriptionItemQuantity(ctx, sub.ProviderSubscriptionItemID, newQuantity, true); err != nil {
			return nil, fmt.Errorf("failed to update subscription quantity: %w", err)
		}
	}

	if err := m.subscriptionRepo.UpdateSeats(ctx, sub.ID, newQuantity); err != nil {
		return nil, err
	}
	m.emitSeatsChanged(ctx, result)
	return result, nil
}

// CalculateProration is a read-only preview; it never mutates anything.
func (m *Manager) CalculateProration(ctx context.Context, subscriptionID uuid.UUID, newQuantity int) (*model.ProrationPreview, error) {
	sub, err := m.getSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if sub.BillingType == model.BillingTypeUsageBased {
		return &model.ProrationPreview{
			SubscriptionID: sub.ID,
			BillingType:    sub.BillingType,
			CurrentSeats:   sub.CurrentSeats,
			NewSeats:       newQuantity,
			Amount:         "0.00",
			ChargedAt:      model.ChargedAtEndOfPeriod,
			Message:        "usage-based subscriptions are charged for reported seats at the end of the billing period",
		}, nil
	}

	return m.prorationFor(ctx, sub, newQuantity)
}

// prorationFor computes the immediate charge for a quantity-based seat
// change against the provider's authoritative renews_at, not the
// locally cached one.
func (m *Manager) prorationFor(ctx context.Context, sub *model.Subscription, newQuantity int) (*model.ProrationPreview, error) {
	renewsAt, err := m.providerRenewsAt(ctx, sub)
	if err != nil {
		return nil, err
	}

	now := m.now()
	daysRemaining := int(math.Ceil(renewsAt.Sub(now).Hours() / 24))
	if daysRemaining < 0 {
		daysRemaining = 0
	}

	preview := &model.ProrationPreview{
		SubscriptionID: sub.ID,
		BillingType:    sub.BillingType,
		CurrentSeats:   sub.CurrentSeats,
		NewSeats:       newQuantity,
		DaysRemaining:  daysRemaining,
		ChargedAt:      model.ChargedImmediately,
	}

	if newQuantity <= sub.CurrentSeats {
		// Yearly decreases are not refunded mid-cycle; credit lands at
		// renewal.
		preview.Amount = "0.00"
		preview.Message = "no immediate charge; credit is applied at the next renewal"
		return preview, nil
	}

	seatsAdded := newQuantity - sub.CurrentSeats
	preview.SeatsAdded = seatsAdded
	amount := decimal.NewFromInt(int64(seatsAdded)).
		Mul(m.yearlyPricePerSeat).
		Mul(decimal.NewFromInt(int64(daysRemaining))).
		Div(decimal.NewFromInt(totalDays)).
		Round(2)
	preview.Amount = amount.StringFixed(2)
	return preview, nil
}

// providerRenewsAt fetches renews_at from the provider, with a short
// cache so repeated previews don't hammer the API.
func (m *Manager) providerRenewsAt(ctx context.Context, sub *model.Subscription) (time.Time, error) {
	if cached, ok := m.renewals.Get(sub.ProviderSubscriptionID); ok {
		return cached.(time.Time), nil
	}

	providerSub, err := m.billing.GetSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch subscription from provider: %w", err)
	}

	m.renewals.Set(sub.ProviderSubscriptionID, providerSub.RenewsAt, cache.DefaultExpiration)
	return providerSub.RenewsAt, nil
}

func (m *Manager) getSubscription(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	sub, err := m.subscriptionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

func (m *Manager) emitSeatsChanged(ctx context.Context, result *model.SeatChangeResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to marshal seat change event")
		return
	}
	if err := m.outboxRepo.Create(ctx, &model.OutboxEvent{
		EventType: model.EventSeatsChanged,
		Payload:   payload,
	}); err != nil {
		m.logger.Error().Err(err).Msg("failed to create outbox event")
	}
}
