package organization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository"
	"github.com/leavehub/leave-api/internal/service/membership"
	apperrors "github.com/leavehub/leave-api/pkg/errors"
)

var ErrOrganizationNotFound = errors.New("organization not found")

type Servicer interface {
	CreateOrganization(ctx context.Context, name string, ownerID uuid.UUID) (*model.Organization, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (*model.Organization, error)
	ListOrganizations(ctx context.Context) ([]*model.Organization, error)
	SetBillingOverride(ctx context.Context, requesterID, orgID uuid.UUID, seats int, expiresAt time.Time) (*model.Organization, error)
}

type Service struct {
	orgRepo        repository.OrganizationRepository
	membershipRepo repository.MembershipRepository
	logger         zerolog.Logger
}

func NewService(orgRepo repository.OrganizationRepository, membershipRepo repository.MembershipRepository, logger zerolog.Logger) *Service {
	return &Service{
		orgRepo:        orgRepo,
		membershipRepo: membershipRepo,
		logger:         logger.With().Str("component", "organization").Logger(),
	}
}

// CreateOrganization creates the tenant and makes the creator its first
// admin member.
func (s *Service) CreateOrganization(ctx context.Context, name string, ownerID uuid.UUID) (*model.Organization, error) {
	if name == "" {
		return nil, apperrors.BadRequest("organization name is required", nil)
	}

	org := &model.Organization{
		Name:   name,
		Status: "active",
	}
	if err := s.orgRepo.Create(ctx, org); err != nil {
		return nil, err
	}

	owner := &model.Membership{
		UserID:         ownerID,
		OrganizationID: org.ID,
		Role:           model.RoleAdmin,
		Status:         model.MembershipStatusActive,
	}
	if err := s.membershipRepo.Create(ctx, owner); err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	s.logger.Info().Str("organization_id", org.ID.String()).Msg("organization created")
	return org, nil
}

func (s *Service) GetOrganization(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	org, err := s.orgRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}
	return org, nil
}

func (s *Service) ListOrganizations(ctx context.Context) ([]*model.Organization, error) {
	return s.orgRepo.List(ctx)
}

// SetBillingOverride grants a time-bounded seat uplift without touching
// the subscription. Admin only.
func (s *Service) SetBillingOverride(ctx context.Context, requesterID, orgID uuid.UUID, seats int, expiresAt time.Time) (*model.Organization, error) {
	requester, err := s.membershipRepo.GetByUserAndOrganization(ctx, requesterID, orgID)
	if err != nil {
		return nil, err
	}
	if requester == nil || requester.Status != model.MembershipStatusActive || !requester.IsAdmin() {
		return nil, membership.ErrNotAdmin
	}

	org, err := s.orgRepo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}

	if seats < 0 {
		return nil, apperrors.BadRequest("override seats cannot be negative", nil)
	}
	if !expiresAt.After(time.Now()) {
		return nil, apperrors.BadRequest("override expiry must be in the future", nil)
	}

	org.BillingOverrideSeats = &seats
	org.BillingOverrideExpiresAt = &expiresAt
	if err := s.orgRepo.Update(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}
