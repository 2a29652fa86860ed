package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository"
	"github.com/leavehub/leave-api/internal/service/seat"
)

var (
	ErrMembershipNotFound = errors.New("membership not found")
	// ErrNotAdmin is returned when the requester does not hold the
	// admin role in the organization.
	ErrNotAdmin = errors.New("requester is not an organization admin")
	// ErrSelfRemoval is returned when an admin tries to remove their
	// own membership, regardless of role.
	ErrSelfRemoval = errors.New("admins cannot remove themselves")
)

// InvalidTransitionError names the current status so the caller can
// render an actionable message.
type InvalidTransitionError struct {
	Action        string
	CurrentStatus model.MembershipStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s membership in status %q", e.Action, e.CurrentStatus)
}

// ReactivationResult reports a reactivated membership. Warnings flag
// occupancy that now exceeds the paid seat count; raising paid seats
// stays a separate, explicit billing action.
type ReactivationResult struct {
	Membership *model.Membership `json:"membership"`
	Warnings   []string          `json:"warnings,omitempty"`
}

type Servicer interface {
	RemoveMember(ctx context.Context, requesterID, userID, orgID uuid.UUID) (*model.Membership, error)
	ReactivateMember(ctx context.Context, requesterID, userID, orgID uuid.UUID) (*ReactivationResult, error)
	ListMembers(ctx context.Context, filters *model.MembershipFilters) ([]*model.Membership, error)
	GetMember(ctx context.Context, userID, orgID uuid.UUID) (*model.Membership, error)
}

// Service owns the per-member lifecycle: active, pending_removal,
// archived. Archiving at renewal is the webhook reconciler's job, never
// a direct admin action.
type Service struct {
	membershipRepo   repository.MembershipRepository
	subscriptionRepo repository.SubscriptionRepository
	outboxRepo       repository.OutboxRepository
	availability     *seat.Calculator
	logger           zerolog.Logger
}

func NewService(
	membershipRepo repository.MembershipRepository,
	subscriptionRepo repository.SubscriptionRepository,
	outboxRepo repository.OutboxRepository,
	availability *seat.Calculator,
	logger zerolog.Logger,
) *Service {
	return &Service{
		membershipRepo:   membershipRepo,
		subscriptionRepo: subscriptionRepo,
		outboxRepo:       outboxRepo,
		availability:     availability,
		logger:           logger.With().Str("component", "membership").Logger(),
	}
}

// RemoveMember moves an active membership to pending_removal. The user
// keeps access and keeps occupying a seat until the subscription's
// renewal date, when the webhook archives them. Seat counts are not
// touched here; that is a separate billing action.
func (s *Service) RemoveMember(ctx context.Context, requesterID, userID, orgID uuid.UUID) (*model.Membership, error) {
	if requesterID == userID {
		return nil, ErrSelfRemoval
	}
	if err := s.requireAdmin(ctx, requesterID, orgID); err != nil {
		return nil, err
	}

	target, err := s.membershipRepo.GetByUserAndOrganization(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrMembershipNotFound
	}
	if target.Status != model.MembershipStatusActive {
		return nil, &InvalidTransitionError{Action: "remove", CurrentStatus: target.Status}
	}

	sub, err := s.subscriptionRepo.GetBillableByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if sub != nil && sub.RenewsAt != nil {
		target.Status = model.MembershipStatusPendingRemoval
		target.RemovalEffectiveDate = sub.RenewsAt
	} else {
		// Free-tier organizations have no billing cycle to wait for;
		// removal takes effect immediately.
		target.Status = model.MembershipStatusArchived
		target.RemovalEffectiveDate = nil
	}

	if err := s.membershipRepo.Update(ctx, target); err != nil {
		return nil, err
	}

	s.emit(ctx, model.EventMemberRemovalRequested, target)
	s.logger.Info().
		Str("user_id", userID.String()).
		Str("organization_id", orgID.String()).
		Str("status", string(target.Status)).
		Msg("member removal requested")

	return target, nil
}

// ReactivateMember restores access for a pending_removal or archived
// member. Reactivating from pending_removal needs no availability check
// because the member never stopped occupying a seat; reactivating from
// archived adds an occupant and must pass the seat gate first.
func (s *Service) ReactivateMember(ctx context.Context, requesterID, userID, orgID uuid.UUID) (*ReactivationResult, error) {
	if err := s.requireAdmin(ctx, requesterID, orgID); err != nil {
		return nil, err
	}

	target, err := s.membershipRepo.GetByUserAndOrganization(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrMembershipNotFound
	}

	result := &ReactivationResult{}

	switch target.Status {
	case model.MembershipStatusPendingRemoval:
		// no gate: the seat was never released

	case model.MembershipStatusArchived:
		availability, err := s.availability.CheckSeats(ctx, orgID, 1)
		if err != nil {
			return nil, err
		}
		// Paid seats are not raised automatically. Warn when occupancy
		// will exceed the nominally paid seat count so the admin knows
		// a billing action is still due.
		sub, err := s.subscriptionRepo.GetBillableByOrganization(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if sub != nil && availability.TotalOccupied+1 > sub.TotalSeats() {
			result.Warnings = append(result.Warnings,
				"occupancy now exceeds the paid seat count; add seats to the subscription to stay aligned with billing")
		}

	default:
		return nil, &InvalidTransitionError{Action: "reactivate", CurrentStatus: target.Status}
	}

	target.Status = model.MembershipStatusActive
	target.RemovalEffectiveDate = nil

	if err := s.membershipRepo.Update(ctx, target); err != nil {
		return nil, err
	}

	s.emit(ctx, model.EventMemberReactivated, target)
	result.Membership = target
	return result, nil
}

func (s *Service) ListMembers(ctx context.Context, filters *model.MembershipFilters) ([]*model.Membership, error) {
	return s.membershipRepo.List(ctx, filters)
}

func (s *Service) GetMember(ctx context.Context, userID, orgID uuid.UUID) (*model.Membership, error) {
	m, err := s.membershipRepo.GetByUserAndOrganization(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMembershipNotFound
	}
	return m, nil
}

func (s *Service) requireAdmin(ctx context.Context, requesterID, orgID uuid.UUID) error {
	requester, err := s.membershipRepo.GetByUserAndOrganization(ctx, requesterID, orgID)
	if err != nil {
		return err
	}
	if requester == nil || requester.Status != model.MembershipStatusActive || !requester.IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}

func (s *Service) emit(ctx context.Context, eventType string, m *model.Membership) {
	payload, err := json.Marshal(m)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal membership event")
		return
	}
	if err := s.outboxRepo.Create(ctx, &model.OutboxEvent{
		EventType: eventType,
		Payload:   payload,
	}); err != nil {
		s.logger.Error().Err(err).Msg("failed to create outbox event")
	}
}
