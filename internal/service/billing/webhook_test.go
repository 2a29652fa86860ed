package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leavehub/leave-api/internal/billing/lemonsqueezy"
	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository/repositorytest"
	"github.com/leavehub/leave-api/internal/service/billing"
	"github.com/leavehub/leave-api/pkg/metrics"
)

const (
	monthlyVariant int64 = 111
	yearlyVariant  int64 = 222
)

type usageCall struct {
	itemID   string
	quantity int
}

type fakeUsageRecorder struct {
	calls []usageCall
	err   error
}

func (f *fakeUsageRecorder) CreateUsageRecord(_ context.Context, itemID string, quantity int) (*lemonsqueezy.UsageRecord, error) {
	f.calls = append(f.calls, usageCall{itemID: itemID, quantity: quantity})
	if f.err != nil {
		return nil, f.err
	}
	return &lemonsqueezy.UsageRecord{ID: "ur-1", Quantity: quantity}, nil
}

type fixture struct {
	subs        *repositorytest.SubscriptionRepo
	memberships *repositorytest.MembershipRepo
	events      *repositorytest.WebhookEventRepo
	outbox      *repositorytest.OutboxRepo
	usage       *fakeUsageRecorder
	metrics     *metrics.Metrics
	processor   *billing.WebhookProcessor
	orgID       uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		subs:        repositorytest.NewSubscriptionRepo(),
		memberships: repositorytest.NewMembershipRepo(),
		events:      repositorytest.NewWebhookEventRepo(),
		outbox:      repositorytest.NewOutboxRepo(),
		usage:       &fakeUsageRecorder{},
		metrics:     metrics.NewMetrics(prometheus.NewRegistry(), "leavehub", "test"),
		orgID:       uuid.New(),
	}
	f.processor = billing.NewWebhookProcessor(
		f.subs, f.memberships, f.events, f.outbox, f.usage,
		billing.VariantConfig{MonthlyVariantID: monthlyVariant, YearlyVariantID: yearlyVariant},
		zerolog.Nop(),
		f.metrics,
	)
	return f
}

func createdPayload(orgID uuid.UUID, variantID int64, userCount string, itemID int64) *lemonsqueezy.WebhookPayload {
	renewsAt := time.Now().Add(30 * 24 * time.Hour)
	return &lemonsqueezy.WebhookPayload{
		Meta: lemonsqueezy.WebhookMeta{
			EventName: billing.EventSubscriptionCreated,
			CustomData: lemonsqueezy.WebhookCustomData{
				UserCount:      json.Number(userCount),
				OrganizationID: orgID.String(),
			},
		},
		Data: lemonsqueezy.WebhookData{
			ID: "ls-sub-1",
			Attributes: lemonsqueezy.WebhookAttributes{
				Status:    "active",
				VariantID: variantID,
				RenewsAt:  &renewsAt,
				FirstSubscriptionItem: &lemonsqueezy.FirstSubscriptionItem{
					ID:       itemID,
					Quantity: 5,
				},
			},
		},
	}
}

func process(t *testing.T, f *fixture, eventID string, payload *lemonsqueezy.WebhookPayload) (*model.WebhookResult, error) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return f.processor.ProcessEvent(context.Background(), eventID, payload, raw)
}

func TestSubscriptionCreatedMonthly(t *testing.T) {
	f := newFixture(t)
	payload := createdPayload(f.orgID, monthlyVariant, "5", 9001)

	result, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Warnings)

	sub, _ := f.subs.GetByProviderID(context.Background(), "ls-sub-1")
	require.NotNil(t, sub)
	assert.Equal(t, model.BillingTypeUsageBased, sub.BillingType)
	assert.Equal(t, 5, sub.CurrentSeats)
	assert.Equal(t, "9001", sub.ProviderSubscriptionItemID)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)

	// Monthly subscriptions seed the usage timeline immediately.
	require.Len(t, f.usage.calls, 1)
	assert.Equal(t, usageCall{itemID: "9001", quantity: 5}, f.usage.calls[0])

	assert.Contains(t, f.outbox.EventTypes(), model.EventSubscriptionSynced)
}

func TestSubscriptionCreatedYearly(t *testing.T) {
	f := newFixture(t)
	payload := createdPayload(f.orgID, yearlyVariant, "5", 9001)

	result, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)
	assert.True(t, result.Success)

	sub, _ := f.subs.GetByProviderID(context.Background(), "ls-sub-1")
	require.NotNil(t, sub)
	assert.Equal(t, model.BillingTypeQuantityBased, sub.BillingType)

	// Quantity-based billing never touches usage records.
	assert.Empty(t, f.usage.calls)
}

func TestSubscriptionCreatedWithinFreeTierReportsZero(t *testing.T) {
	f := newFixture(t)
	payload := createdPayload(f.orgID, monthlyVariant, "3", 9001)

	result, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)
	assert.True(t, result.Success)

	// Seat count stays at 3 locally, but the initial usage record
	// reports 0 so free-tier seats are never billed.
	sub, _ := f.subs.GetByProviderID(context.Background(), "ls-sub-1")
	assert.Equal(t, 3, sub.CurrentSeats)
	require.Len(t, f.usage.calls, 1)
	assert.Equal(t, 0, f.usage.calls[0].quantity)
}

func TestSubscriptionCreatedUnknownVariant(t *testing.T) {
	f := newFixture(t)
	payload := createdPayload(f.orgID, 999, "5", 9001)

	result, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown variant")

	// Rejected before any write: the event id is not consumed and no
	// ledger row exists.
	sub, _ := f.subs.GetByProviderID(context.Background(), "ls-sub-1")
	assert.Nil(t, sub)
	assert.Empty(t, f.events.Events)
}

func TestSubscriptionCreatedStringUserCount(t *testing.T) {
	f := newFixture(t)
	// Lemon Squeezy serializes custom data values as strings.
	payload := createdPayload(f.orgID, monthlyVariant, "7", 9001)

	result, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)
	assert.True(t, result.Success)

	sub, _ := f.subs.GetByProviderID(context.Background(), "ls-sub-1")
	assert.Equal(t, 7, sub.CurrentSeats)
}

func TestSubscriptionCreatedInvalidOrganizationID(t *testing.T) {
	f := newFixture(t)
	payload := createdPayload(f.orgID, monthlyVariant, "5", 9001)
	payload.Meta.CustomData.OrganizationID = "not-a-uuid"

	result, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestSubscriptionCreatedDuplicateEvent(t *testing.T) {
	f := newFixture(t)
	payload := createdPayload(f.orgID, monthlyVariant, "5", 9001)

	_, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)
	require.Len(t, f.usage.calls, 1)

	result, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Duplicate)

	// Redelivery is a no-op: no second usage record.
	assert.Len(t, f.usage.calls, 1)
}

func TestSubscriptionCreatedUsageFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.usage.err = errors.New("provider unavailable")
	payload := createdPayload(f.orgID, monthlyVariant, "5", 9001)

	result, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)

	// The subscription row stands even when the usage call fails.
	assert.True(t, result.Success)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "usage record")

	sub, _ := f.subs.GetByProviderID(context.Background(), "ls-sub-1")
	require.NotNil(t, sub)
	assert.Equal(t, 5, sub.CurrentSeats)
}

func TestSubscriptionCreatedMissingItemIDWarns(t *testing.T) {
	f := newFixture(t)
	payload := createdPayload(f.orgID, monthlyVariant, "5", 9001)
	payload.Data.Attributes.FirstSubscriptionItem = nil

	result, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Warnings, 1)
	assert.Empty(t, f.usage.calls)
}

func TestSubscriptionCreatedRedeliveryUnderNewEventID(t *testing.T) {
	f := newFixture(t)
	payload := createdPayload(f.orgID, monthlyVariant, "5", 9001)

	_, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)

	payload.Meta.CustomData.UserCount = json.Number("6")
	result, err := process(t, f, "evt-2", payload)
	require.NoError(t, err)
	assert.True(t, result.Success)

	// Converges on the payload without creating a second row.
	sub, _ := f.subs.GetByProviderID(context.Background(), "ls-sub-1")
	assert.Equal(t, 6, sub.CurrentSeats)
	assert.Len(t, f.subs.Subs, 1)
}

func TestSubscriptionUpdatedSyncsFromProvider(t *testing.T) {
	f := newFixture(t)
	created := createdPayload(f.orgID, yearlyVariant, "5", 9001)
	_, err := process(t, f, "evt-1", created)
	require.NoError(t, err)

	updated := createdPayload(f.orgID, yearlyVariant, "5", 9001)
	updated.Meta.EventName = billing.EventSubscriptionUpdated
	updated.Data.Attributes.Status = "past_due"
	updated.Data.Attributes.FirstSubscriptionItem.Quantity = 8
	newRenewal := time.Now().Add(60 * 24 * time.Hour)
	updated.Data.Attributes.RenewsAt = &newRenewal

	result, err := process(t, f, "evt-2", updated)
	require.NoError(t, err)
	assert.True(t, result.Success)

	sub, _ := f.subs.GetByProviderID(context.Background(), "ls-sub-1")
	assert.Equal(t, model.SubscriptionStatusPastDue, sub.Status)
	assert.Equal(t, 8, sub.CurrentSeats)
	require.NotNil(t, sub.RenewsAt)
	assert.True(t, sub.RenewsAt.Equal(newRenewal))
}

func TestSubscriptionUpdatedDoesNotSyncSeatsForUsageBased(t *testing.T) {
	f := newFixture(t)
	created := createdPayload(f.orgID, monthlyVariant, "5", 9001)
	_, err := process(t, f, "evt-1", created)
	require.NoError(t, err)

	updated := createdPayload(f.orgID, monthlyVariant, "5", 9001)
	updated.Meta.EventName = billing.EventSubscriptionUpdated
	updated.Data.Attributes.FirstSubscriptionItem.Quantity = 8

	_, err = process(t, f, "evt-2", updated)
	require.NoError(t, err)

	// Usage-based seat truth lives in usage records, not the line-item
	// quantity.
	sub, _ := f.subs.GetByProviderID(context.Background(), "ls-sub-1")
	assert.Equal(t, 5, sub.CurrentSeats)
}

func TestSubscriptionUpdatedUnknownSubscription(t *testing.T) {
	f := newFixture(t)
	payload := createdPayload(f.orgID, yearlyVariant, "5", 9001)
	payload.Meta.EventName = billing.EventSubscriptionUpdated

	result, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no local subscription")
}

func TestSubscriptionUpdatedBeforeCreatedRedeliveryApplies(t *testing.T) {
	f := newFixture(t)

	// The update races ahead of its matching created event.
	updated := createdPayload(f.orgID, yearlyVariant, "5", 9001)
	updated.Meta.EventName = billing.EventSubscriptionUpdated
	updated.Data.Attributes.Status = "past_due"
	updated.Data.Attributes.FirstSubscriptionItem.Quantity = 9

	result, err := process(t, f, "evt-upd", updated)
	require.NoError(t, err)
	assert.False(t, result.Success)

	// The rejection must not consume the event id, or the provider's
	// redelivery of this same event could never apply.
	assert.Empty(t, f.events.Events)

	created := createdPayload(f.orgID, yearlyVariant, "5", 9001)
	_, err = process(t, f, "evt-created", created)
	require.NoError(t, err)

	result, err = process(t, f, "evt-upd", updated)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Duplicate)

	sub, _ := f.subs.GetByProviderID(context.Background(), "ls-sub-1")
	assert.Equal(t, model.SubscriptionStatusPastDue, sub.Status)
	assert.Equal(t, 9, sub.CurrentSeats)

	// Once applied, further redeliveries are no-ops.
	result, err = process(t, f, "evt-upd", updated)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
}

func TestSubscriptionUpdatedArchivesDueRemovals(t *testing.T) {
	f := newFixture(t)
	created := createdPayload(f.orgID, yearlyVariant, "5", 9001)
	pastRenewal := time.Now().Add(-time.Hour)
	created.Data.Attributes.RenewsAt = &pastRenewal
	_, err := process(t, f, "evt-1", created)
	require.NoError(t, err)

	due := &model.Membership{
		UserID:               uuid.New(),
		OrganizationID:       f.orgID,
		Role:                 model.RoleEmployee,
		Status:               model.MembershipStatusPendingRemoval,
		RemovalEffectiveDate: &pastRenewal,
	}
	require.NoError(t, f.memberships.Create(context.Background(), due))

	notDueDate := time.Now().Add(30 * 24 * time.Hour)
	notDue := &model.Membership{
		UserID:               uuid.New(),
		OrganizationID:       f.orgID,
		Role:                 model.RoleEmployee,
		Status:               model.MembershipStatusPendingRemoval,
		RemovalEffectiveDate: &notDueDate,
	}
	require.NoError(t, f.memberships.Create(context.Background(), notDue))

	updated := createdPayload(f.orgID, yearlyVariant, "5", 9001)
	updated.Meta.EventName = billing.EventSubscriptionUpdated
	result, err := process(t, f, "evt-2", updated)
	require.NoError(t, err)
	assert.True(t, result.Success)

	archived, _ := f.memberships.Get(context.Background(), due.ID)
	assert.Equal(t, model.MembershipStatusArchived, archived.Status)
	assert.Nil(t, archived.RemovalEffectiveDate)

	kept, _ := f.memberships.Get(context.Background(), notDue.ID)
	assert.Equal(t, model.MembershipStatusPendingRemoval, kept.Status)

	assert.Contains(t, f.outbox.EventTypes(), model.EventMemberArchived)
}

func TestUnhandledEventIgnored(t *testing.T) {
	f := newFixture(t)
	payload := createdPayload(f.orgID, monthlyVariant, "5", 9001)
	payload.Meta.EventName = "order_created"

	result, err := process(t, f, "evt-1", payload)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, f.events.Events)
}

func TestWebhookEventOutcomeCounters(t *testing.T) {
	f := newFixture(t)

	_, err := process(t, f, "evt-1", createdPayload(f.orgID, monthlyVariant, "5", 9001))
	require.NoError(t, err)
	_, err = process(t, f, "evt-1", createdPayload(f.orgID, monthlyVariant, "5", 9001))
	require.NoError(t, err)
	_, err = process(t, f, "evt-2", createdPayload(f.orgID, 999, "5", 9001))
	require.NoError(t, err)

	created := billing.EventSubscriptionCreated
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookEvents.WithLabelValues(created, "processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookEvents.WithLabelValues(created, "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookEvents.WithLabelValues(created, "rejected")))
}
