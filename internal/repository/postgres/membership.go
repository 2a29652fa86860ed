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

type membershipRepository struct {
	BaseRepository
}

func NewMembershipRepository(base BaseRepository) repository.MembershipRepository {
	return &membershipRepository{base}
}

func (r *membershipRepository) Create(ctx context.Context, m *model.Membership) error {
	query := `
		INSERT INTO memberships (
			id, user_id, organization_id, role, status,
			removal_effective_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.UserID,
		m.OrganizationID,
		m.Role,
		m.Status,
		m.RemovalEffectiveDate,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

func (r *membershipRepository) Get(ctx context.Context, id uuid.UUID) (*model.Membership, error) {
	query := `SELECT * FROM memberships WHERE id = $1`

	var m model.Membership
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

func (r *membershipRepository) GetByUserAndOrganization(ctx context.Context, userID, orgID uuid.UUID) (*model.Membership, error) {
	query := `SELECT * FROM memberships WHERE user_id = $1 AND organization_id = $2`

	var m model.Membership
	if err := r.db.GetContext(ctx, &m, query, userID, orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

func (r *membershipRepository) Update(ctx context.Context, m *model.Membership) error {
	query := `
		UPDATE memberships
		SET role = $1, status = $2, removal_effective_date = $3, updated_at = $4
		WHERE id = $5
	`
	m.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		m.Role,
		m.Status,
		m.RemovalEffectiveDate,
		m.UpdatedAt,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("membership not found")
	}
	return nil
}

func (r *membershipRepository) List(ctx context.Context, filters *model.MembershipFilters) ([]*model.Membership, error) {
	query := `SELECT * FROM memberships WHERE organization_id = $1`
	args := []interface{}{filters.OrganizationID}

	if filters.Status != "" {
		args = append(args, filters.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.Role != "" {
		args = append(args, filters.Role)
		query += fmt.Sprintf(" AND role = $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	var members []*model.Membership
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return members, nil
}

// CountOccupied counts memberships that hold a seat: active plus
// pending_removal.
func (r *membershipRepository) CountOccupied(ctx context.Context, orgID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM memberships
		WHERE organization_id = $1 AND status IN ('active', 'pending_removal')
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, orgID); err != nil {
		return 0, fmt.Errorf("failed to count occupied seats: %w", err)
	}
	return count, nil
}

func (r *membershipRepository) ListPendingRemovalDue(ctx context.Context, orgID uuid.UUID, asOf time.Time) ([]*model.Membership, error) {
	query := `
		SELECT * FROM memberships
		WHERE organization_id = $1
		AND status = 'pending_removal'
		AND removal_effective_date <= $2
	`
	var members []*model.Membership
	if err := r.db.SelectContext(ctx, &members, query, orgID, asOf); err != nil {
		return nil, fmt.Errorf("failed to list due removals: %w", err)
	}
	return members, nil
}
