package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leavehub/leave-api/internal/billing/lemonsqueezy"
	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository"
	"github.com/leavehub/leave-api/pkg/metrics"
)

// Provider webhook event names this service handles.
const (
	EventSubscriptionCreated = "subscription_created"
	EventSubscriptionUpdated = "subscription_updated"
)

// UnknownVariantError means the price variant on the payload matches
// neither configured variant id. Hard fail: no ledger row is written,
// nothing is defaulted.
type UnknownVariantError struct {
	VariantID int64
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown variant %d: matches neither monthly nor yearly variant id", e.VariantID)
}

// VariantConfig maps the provider's price-variant ids onto billing
// types. Fixed per environment.
type VariantConfig struct {
	MonthlyVariantID int64
	YearlyVariantID  int64
}

// UsageRecorder is the slice of the provider client the reconciler
// needs.
type UsageRecorder interface {
	CreateUsageRecord(ctx context.Context, subscriptionItemID string, quantity int) (*lemonsqueezy.UsageRecord, error)
}

// WebhookProcessor reconciles the local seat ledger against provider
// webhook events. The provider is the source of truth at renewal time.
type WebhookProcessor struct {
	subscriptionRepo repository.SubscriptionRepository
	membershipRepo   repository.MembershipRepository
	webhookEvents    repository.WebhookEventRepository
	outboxRepo       repository.OutboxRepository
	usage            UsageRecorder
	variants         VariantConfig
	logger           zerolog.Logger
	metrics          *metrics.Metrics
}

func NewWebhookProcessor(
	subscriptionRepo repository.SubscriptionRepository,
	membershipRepo repository.MembershipRepository,
	webhookEvents repository.WebhookEventRepository,
	outboxRepo repository.OutboxRepository,
	usage UsageRecorder,
	variants VariantConfig,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) *WebhookProcessor {
	return &WebhookProcessor{
		subscriptionRepo: subscriptionRepo,
		membershipRepo:   membershipRepo,
		webhookEvents:    webhookEvents,
		outboxRepo:       outboxRepo,
		usage:            usage,
		variants:         variants,
		logger:           logger.With().Str("component", "webhook_processor").Logger(),
		metrics:          metrics,
	}
}

// ProcessEvent routes a verified webhook payload by event name.
// The returned error is an infrastructure failure the provider should
// retry; a result with Success=false is a definitive rejection.
func (p *WebhookProcessor) ProcessEvent(ctx context.Context, eventID string, payload *lemonsqueezy.WebhookPayload, raw json.RawMessage) (*model.WebhookResult, error) {
	var result *model.WebhookResult
	var err error

	switch payload.Meta.EventName {
	case EventSubscriptionCreated:
		result, err = p.ProcessSubscriptionCreated(ctx, eventID, payload, raw)
	case EventSubscriptionUpdated:
		result, err = p.ProcessSubscriptionUpdated(ctx, eventID, payload, raw)
	default:
		p.logger.Info().Str("event_name", payload.Meta.EventName).Msg("ignoring unhandled webhook event")
		p.metrics.WebhookEvents.WithLabelValues(payload.Meta.EventName, "ignored").Inc()
		return &model.WebhookResult{Success: true}, nil
	}

	p.metrics.WebhookEvents.WithLabelValues(payload.Meta.EventName, webhookOutcome(result, err)).Inc()
	return result, err
}

func webhookOutcome(result *model.WebhookResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case result.Duplicate:
		return "duplicate"
	case !result.Success:
		return "rejected"
	default:
		return "processed"
	}
}

// ProcessSubscriptionCreated creates or updates the local subscription
// row from a subscription_created event. Idempotent per provider event
// id: the insert-if-absent check precedes every mutation.
func (p *WebhookProcessor) ProcessSubscriptionCreated(ctx context.Context, eventID string, payload *lemonsqueezy.WebhookPayload, raw json.RawMessage) (*model.WebhookResult, error) {
	billingType, err := p.detectBillingType(payload.Data.Attributes.VariantID)
	if err != nil {
		p.logger.Error().Err(err).
			Int64("variant_id", payload.Data.Attributes.VariantID).
			Str("event_id", eventID).
			Msg("rejecting webhook: unknown variant")
		return &model.WebhookResult{Success: false, Error: err.Error()}, nil
	}

	orgID, err := uuid.Parse(payload.Meta.CustomData.OrganizationID)
	if err != nil {
		return &model.WebhookResult{Success: false, Error: fmt.Sprintf("invalid organization_id in custom data: %v", err)}, nil
	}

	userCount, err := parseUserCount(payload.Meta.CustomData.UserCount)
	if err != nil {
		return &model.WebhookResult{Success: false, Error: err.Error()}, nil
	}

	if err := p.recordEvent(ctx, eventID, payload.Meta.EventName, raw); err != nil {
		if errors.Is(err, repository.ErrDuplicateEvent) {
			return &model.WebhookResult{Success: true, Duplicate: true}, nil
		}
		return nil, err
	}

	itemID := ""
	if payload.Data.Attributes.FirstSubscriptionItem != nil {
		itemID = strconv.FormatInt(payload.Data.Attributes.FirstSubscriptionItem.ID, 10)
	}

	sub, err := p.subscriptionRepo.GetByProviderID(ctx, payload.Data.ID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		sub = &model.Subscription{
			OrganizationID:             orgID,
			BillingType:                billingType,
			CurrentSeats:               userCount,
			ProviderSubscriptionID:     payload.Data.ID,
			ProviderSubscriptionItemID: itemID,
			ProviderEventID:            eventID,
			Status:                     subscriptionStatus(payload.Data.Attributes.Status),
			RenewsAt:                   payload.Data.Attributes.RenewsAt,
		}
		if err := p.subscriptionRepo.Create(ctx, sub); err != nil {
			return nil, err
		}
	} else {
		// Redelivered creation under a new event id: converge on the
		// payload without changing the stored billing type.
		sub.CurrentSeats = userCount
		sub.ProviderSubscriptionItemID = itemID
		sub.ProviderEventID = eventID
		sub.Status = subscriptionStatus(payload.Data.Attributes.Status)
		sub.RenewsAt = payload.Data.Attributes.RenewsAt
		if err := p.subscriptionRepo.Update(ctx, sub); err != nil {
			return nil, err
		}
	}

	result := &model.WebhookResult{Success: true}

	if billingType == model.BillingTypeUsageBased {
		p.createInitialUsageRecord(ctx, sub, userCount, result)
	}

	p.emitSynced(ctx, sub)
	return result, nil
}

// createInitialUsageRecord seeds the provider's usage timeline for a
// usage-based subscription. Seat counts within the free tier produce a
// record with quantity 0, so free seats are never billed but the
// timeline stays continuous. Failures are logged, not fatal: the
// subscription row stands even when the usage call fails.
func (p *WebhookProcessor) createInitialUsageRecord(ctx context.Context, sub *model.Subscription, userCount int, result *model.WebhookResult) {
	if sub.ProviderSubscriptionItemID == "" {
		p.logger.Warn().
			Str("provider_subscription_id", sub.ProviderSubscriptionID).
			Msg("no subscription item id on payload, skipping initial usage record")
		result.Warnings = append(result.Warnings, "initial usage record skipped: missing subscription item id")
		return
	}

	quantity := userCount
	if userCount <= model.FreeTierSeats {
		quantity = 0
	}

	if _, err := p.usage.CreateUsageRecord(ctx, sub.ProviderSubscriptionItemID, quantity); err != nil {
		p.logger.Error().Err(err).
			Str("provider_subscription_id", sub.ProviderSubscriptionID).
			Int("quantity", quantity).
			Msg("initial usage record creation failed, subscription kept")
		result.Warnings = append(result.Warnings, "initial usage record creation failed: "+err.Error())
	}
}

// ProcessSubscriptionUpdated syncs status, renewal date and (for
// quantity-based subscriptions) the seat count from provider truth,
// then archives memberships whose grace period has run out.
func (p *WebhookProcessor) ProcessSubscriptionUpdated(ctx context.Context, eventID string, payload *lemonsqueezy.WebhookPayload, raw json.RawMessage) (*model.WebhookResult, error) {
	sub, err := p.subscriptionRepo.GetByProviderID(ctx, payload.Data.ID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		// Do not consume the event id here: if the update raced ahead of
		// the matching created event, the provider's redelivery must
		// still be able to apply once the row exists.
		return &model.WebhookResult{
			Success: false,
			Error:   fmt.Sprintf("no local subscription for provider id %s", payload.Data.ID),
		}, nil
	}

	if err := p.recordEvent(ctx, eventID, payload.Meta.EventName, raw); err != nil {
		if errors.Is(err, repository.ErrDuplicateEvent) {
			return &model.WebhookResult{Success: true, Duplicate: true}, nil
		}
		return nil, err
	}

	previousRenewsAt := sub.RenewsAt

	sub.Status = subscriptionStatus(payload.Data.Attributes.Status)
	sub.RenewsAt = payload.Data.Attributes.RenewsAt
	sub.ProviderEventID = eventID
	if sub.BillingType == model.BillingTypeQuantityBased && payload.Data.Attributes.FirstSubscriptionItem != nil {
		sub.CurrentSeats = payload.Data.Attributes.FirstSubscriptionItem.Quantity
	}

	if err := p.subscriptionRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	archived, err := p.archiveDueRemovals(ctx, sub.OrganizationID, previousRenewsAt)
	if err != nil {
		return nil, err
	}
	if archived > 0 {
		p.logger.Info().
			Str("organization_id", sub.OrganizationID.String()).
			Int("archived", archived).
			Msg("archived members past their grace period")
	}

	p.emitSynced(ctx, sub)
	return &model.WebhookResult{Success: true}, nil
}

// archiveDueRemovals completes pending_removal → archived for members
// whose effective date has passed. This is the only archive path in the
// system.
func (p *WebhookProcessor) archiveDueRemovals(ctx context.Context, orgID uuid.UUID, asOf *time.Time) (int, error) {
	cutoff := time.Now()
	if asOf != nil && asOf.Before(cutoff) {
		cutoff = *asOf
	}

	due, err := p.membershipRepo.ListPendingRemovalDue(ctx, orgID, cutoff)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, m := range due {
		m.Status = model.MembershipStatusArchived
		m.RemovalEffectiveDate = nil
		if err := p.membershipRepo.Update(ctx, m); err != nil {
			return archived, err
		}
		archived++

		if payload, err := json.Marshal(m); err == nil {
			if err := p.outboxRepo.Create(ctx, &model.OutboxEvent{
				EventType: model.EventMemberArchived,
				Payload:   payload,
			}); err != nil {
				p.logger.Error().Err(err).Msg("failed to create outbox event")
			}
		}
	}
	return archived, nil
}

func (p *WebhookProcessor) detectBillingType(variantID int64) (model.BillingType, error) {
	switch variantID {
	case p.variants.MonthlyVariantID:
		return model.BillingTypeUsageBased, nil
	case p.variants.YearlyVariantID:
		return model.BillingTypeQuantityBased, nil
	default:
		return "", &UnknownVariantError{VariantID: variantID}
	}
}

func (p *WebhookProcessor) recordEvent(ctx context.Context, eventID, eventName string, raw json.RawMessage) error {
	return p.webhookEvents.InsertIfAbsent(ctx, &model.WebhookEvent{
		ProviderEventID: eventID,
		EventName:       eventName,
		Payload:         raw,
	})
}

func (p *WebhookProcessor) emitSynced(ctx context.Context, sub *model.Subscription) {
	payload, err := json.Marshal(sub)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal subscription event")
		return
	}
	if err := p.outboxRepo.Create(ctx, &model.OutboxEvent{
		EventType: model.EventSubscriptionSynced,
		Payload:   payload,
	}); err != nil {
		p.logger.Error().Err(err).Msg("failed to create outbox event")
	}
}

func parseUserCount(n json.Number) (int, error) {
	if n.String() == "" {
		return 0, fmt.Errorf("missing user_count in custom data")
	}
	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("invalid user_count in custom data: %v", err)
	}
	if v < 0 {
		return 0, fmt.Errorf("user_count cannot be negative: %d", v)
	}
	return int(v), nil
}

func subscriptionStatus(s string) model.SubscriptionStatus {
	switch s {
	case "active":
		return model.SubscriptionStatusActive
	case "on_trial":
		return model.SubscriptionStatusOnTrial
	case "past_due":
		return model.SubscriptionStatusPastDue
	case "cancelled":
		return model.SubscriptionStatusCancelled
	case "paused":
		return model.SubscriptionStatusPaused
	case "expired":
		return model.SubscriptionStatusExpired
	default:
		return model.SubscriptionStatus(s)
	}
}
