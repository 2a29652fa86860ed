package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository"
)

type subscriptionRepository struct {
	BaseRepository
}

func NewSubscriptionRepository(base BaseRepository) repository.SubscriptionRepository {
	return &subscriptionRepository{base}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *model.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, organization_id, billing_type, current_seats,
			provider_subscription_id, provider_subscription_item_id,
			provider_event_id, status, renews_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.OrganizationID,
		sub.BillingType,
		sub.CurrentSeats,
		sub.ProviderSubscriptionID,
		sub.ProviderSubscriptionItemID,
		sub.ProviderEventID,
		sub.Status,
		sub.RenewsAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	query := `SELECT * FROM subscriptions WHERE id = $1`

	var sub model.Subscription
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetByProviderID(ctx context.Context, providerSubscriptionID string) (*model.Subscription, error) {
	query := `SELECT * FROM subscriptions WHERE provider_subscription_id = $1`

	var sub model.Subscription
	if err := r.db.GetContext(ctx, &sub, query, providerSubscriptionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription by provider id: %w", err)
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetBillableByOrganization(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE organization_id = $1 AND status IN ('active', 'on_trial')
		ORDER BY created_at DESC
		LIMIT 1
	`

	var sub model.Subscription
	if err := r.db.GetContext(ctx, &sub, query, orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get billable subscription: %w", err)
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *model.Subscription) error {
	query := `
		UPDATE subscriptions
		SET billing_type = $1, current_seats = $2,
			provider_subscription_id = $3, provider_subscription_item_id = $4,
			provider_event_id = $5, status = $6, renews_at = $7, updated_at = $8
		WHERE id = $9
	`
	sub.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		sub.BillingType,
		sub.CurrentSeats,
		sub.ProviderSubscriptionID,
		sub.ProviderSubscriptionItemID,
		sub.ProviderEventID,
		sub.Status,
		sub.RenewsAt,
		sub.UpdatedAt,
		sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("subscription not found")
	}
	return nil
}

func (r *subscriptionRepository) UpdateSeats(ctx context.Context, id uuid.UUID, seats int) error {
	query := `
		UPDATE subscriptions
		SET current_seats = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := r.db.ExecContext(ctx, query, seats, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update seats: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("subscription not found")
	}
	return nil
}
