package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository"
)

type webhookEventRepository struct {
	BaseRepository
}

func NewWebhookEventRepository(base BaseRepository) repository.WebhookEventRepository {
	return &webhookEventRepository{base}
}

// InsertIfAbsent records the provider event id. A unique-violation on
// the primary key means the event was already processed, which callers
// treat as a redelivery and skip.
func (r *webhookEventRepository) InsertIfAbsent(ctx context.Context, event *model.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (provider_event_id, event_name, payload, processed_at)
		VALUES ($1, $2, $3, $4)
	`
	event.ProcessedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		event.ProviderEventID,
		event.EventName,
		event.Payload,
		event.ProcessedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return repository.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}
