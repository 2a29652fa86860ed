package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository"
)

type invitationRepository struct {
	BaseRepository
}

func NewInvitationRepository(base BaseRepository) repository.InvitationRepository {
	return &invitationRepository{base}
}

// CreateReserving re-checks occupancy and inserts in one serializable
// transaction, closing the check-then-act window between the
// availability gate and the insert. Concurrent admissions serialize
// here; the loser gets ErrSeatLimitReached instead of overcommitting.
func (r *invitationRepository) CreateReserving(ctx context.Context, inv *model.Invitation, totalSeats int) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = time.Now()

	return r.WithSerializableTx(ctx, func(tx *sqlx.Tx) error {
		var occupied int
		countQuery := `
			SELECT
				(SELECT COUNT(*) FROM memberships
				 WHERE organization_id = $1 AND status IN ('active', 'pending_removal'))
				+
				(SELECT COUNT(*) FROM invitations
				 WHERE organization_id = $1 AND status = 'pending' AND expires_at > $2)
		`
		if err := tx.GetContext(ctx, &occupied, countQuery, inv.OrganizationID, inv.CreatedAt); err != nil {
			return fmt.Errorf("failed to count occupied seats: %w", err)
		}

		if occupied >= totalSeats {
			return repository.ErrSeatLimitReached
		}

		insertQuery := `
			INSERT INTO invitations (
				id, organization_id, email, role, status, token,
				invited_by, expires_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		_, err := tx.ExecContext(ctx, insertQuery,
			inv.ID,
			inv.OrganizationID,
			inv.Email,
			inv.Role,
			inv.Status,
			inv.Token,
			inv.InvitedBy,
			inv.ExpiresAt,
			inv.CreatedAt,
			inv.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create invitation: %w", err)
		}
		return nil
	})
}

func (r *invitationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Invitation, error) {
	query := `SELECT * FROM invitations WHERE id = $1`

	var inv model.Invitation
	if err := r.db.GetContext(ctx, &inv, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

func (r *invitationRepository) GetByToken(ctx context.Context, token string) (*model.Invitation, error) {
	query := `SELECT * FROM invitations WHERE token = $1`

	var inv model.Invitation
	if err := r.db.GetContext(ctx, &inv, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invitation by token: %w", err)
	}
	return &inv, nil
}

func (r *invitationRepository) GetPendingByEmail(ctx context.Context, orgID uuid.UUID, email string) (*model.Invitation, error) {
	query := `
		SELECT * FROM invitations
		WHERE organization_id = $1 AND email = $2 AND status = 'pending'
		LIMIT 1
	`
	var inv model.Invitation
	if err := r.db.GetContext(ctx, &inv, query, orgID, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending invitation: %w", err)
	}
	return &inv, nil
}

func (r *invitationRepository) Update(ctx context.Context, inv *model.Invitation) error {
	query := `
		UPDATE invitations
		SET status = $1, expires_at = $2, updated_at = $3
		WHERE id = $4
	`
	inv.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query, inv.Status, inv.ExpiresAt, inv.UpdatedAt, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("invitation not found")
	}
	return nil
}

func (r *invitationRepository) CountPending(ctx context.Context, orgID uuid.UUID, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM invitations
		WHERE organization_id = $1 AND status = 'pending' AND expires_at > $2
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, orgID, now); err != nil {
		return 0, fmt.Errorf("failed to count pending invitations: %w", err)
	}
	return count, nil
}

func (r *invitationRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE invitations
		SET status = 'expired', updated_at = $1
		WHERE status = 'pending' AND expires_at <= $1
	`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return result.RowsAffected()
}
