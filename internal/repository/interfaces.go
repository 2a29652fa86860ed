package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/leavehub/leave-api/internal/model"
)

// ErrSeatLimitReached is returned by atomic seat-reserving writes when
// the re-check inside the transaction finds no seat left. The service
// layer translates it into a structured admission error.
var ErrSeatLimitReached = errors.New("seat limit reached")

// ErrDuplicateEvent is returned by the webhook event store when the
// provider event id was already recorded.
var ErrDuplicateEvent = errors.New("webhook event already processed")

// All repository interfaces in one file
type (
	OrganizationRepository interface {
		Create(ctx context.Context, org *model.Organization) error
		Get(ctx context.Context, id uuid.UUID) (*model.Organization, error)
		Update(ctx context.Context, org *model.Organization) error
		List(ctx context.Context) ([]*model.Organization, error)
	}

	// SubscriptionRepository owns the subscription half of the seat
	// ledger. GetBillableByOrganization filters to active/on_trial,
	// which is how the one-billable-row-per-org invariant is enforced.
	SubscriptionRepository interface {
		Create(ctx context.Context, sub *model.Subscription) error
		Get(ctx context.Context, id uuid.UUID) (*model.Subscription, error)
		GetByProviderID(ctx context.Context, providerSubscriptionID string) (*model.Subscription, error)
		GetBillableByOrganization(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error)
		Update(ctx context.Context, sub *model.Subscription) error
		UpdateSeats(ctx context.Context, id uuid.UUID, seats int) error
	}

	MembershipRepository interface {
		Create(ctx context.Context, m *model.Membership) error
		Get(ctx context.Context, id uuid.UUID) (*model.Membership, error)
		GetByUserAndOrganization(ctx context.Context, userID, orgID uuid.UUID) (*model.Membership, error)
		Update(ctx context.Context, m *model.Membership) error
		List(ctx context.Context, filters *model.MembershipFilters) ([]*model.Membership, error)
		CountOccupied(ctx context.Context, orgID uuid.UUID) (int, error)
		ListPendingRemovalDue(ctx context.Context, orgID uuid.UUID, asOf time.Time) ([]*model.Membership, error)
	}

	InvitationRepository interface {
		// CreateReserving inserts the invitation only if the occupied
		// seat count re-checked inside a serializable transaction is
		// still below totalSeats. Returns ErrSeatLimitReached otherwise.
		CreateReserving(ctx context.Context, inv *model.Invitation, totalSeats int) error
		Get(ctx context.Context, id uuid.UUID) (*model.Invitation, error)
		GetByToken(ctx context.Context, token string) (*model.Invitation, error)
		GetPendingByEmail(ctx context.Context, orgID uuid.UUID, email string) (*model.Invitation, error)
		Update(ctx context.Context, inv *model.Invitation) error
		CountPending(ctx context.Context, orgID uuid.UUID, now time.Time) (int, error)
		ExpireBefore(ctx context.Context, now time.Time) (int64, error)
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
	}

	// WebhookEventRepository is the idempotency store for provider
	// events. InsertIfAbsent returns ErrDuplicateEvent on redelivery.
	WebhookEventRepository interface {
		InsertIfAbsent(ctx context.Context, event *model.WebhookEvent) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, err *string) error
		BeginTx(ctx context.Context) (*sql.Tx, error)
		UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status string, errorMessage *string, retryAt *time.Time) error
		MoveToDeadLetter(ctx context.Context, tx *sql.Tx, event *model.OutboxEvent) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
