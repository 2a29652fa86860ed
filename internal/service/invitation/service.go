package invitation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leavehub/leave-api/internal/email"
	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository"
	"github.com/leavehub/leave-api/internal/service/membership"
	"github.com/leavehub/leave-api/internal/service/seat"
	"github.com/leavehub/leave-api/pkg/ratelimit"
)

const invitationTTL = 7 * 24 * time.Hour

var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrAlreadyInvited     = errors.New("a pending invitation already exists for this email")
	ErrAlreadyMember      = errors.New("user is already a member of this organization")
	ErrInvitationExpired  = errors.New("invitation has expired")
	ErrRateLimited        = errors.New("too many invitations, try again later")
	// ErrInvitationNotPending is returned when accepting or cancelling
	// an invitation that is no longer pending.
	ErrInvitationNotPending = errors.New("invitation is not pending")
)

type Servicer interface {
	InviteMember(ctx context.Context, requesterID, orgID uuid.UUID, emailAddr string, role model.Role) (*model.Invitation, error)
	AcceptInvitation(ctx context.Context, token string, userID uuid.UUID) (*model.Membership, error)
	CancelInvitation(ctx context.Context, requesterID uuid.UUID, invitationID uuid.UUID) (*model.Invitation, error)
	ExpireInvitations(ctx context.Context) (int64, error)
}

// Service creates and resolves invitations. Creation is the admission
// path for new seat occupants: it runs the availability gate and then
// reserves the seat atomically at the repository layer.
type Service struct {
	invitationRepo repository.InvitationRepository
	membershipRepo repository.MembershipRepository
	userRepo       repository.UserRepository
	orgRepo        repository.OrganizationRepository
	outboxRepo     repository.OutboxRepository
	availability   *seat.Calculator
	limiter        ratelimit.Limiter
	emailSvc       email.Service
	baseURL        string
	logger         zerolog.Logger
}

func NewService(
	invitationRepo repository.InvitationRepository,
	membershipRepo repository.MembershipRepository,
	userRepo repository.UserRepository,
	orgRepo repository.OrganizationRepository,
	outboxRepo repository.OutboxRepository,
	availability *seat.Calculator,
	limiter ratelimit.Limiter,
	emailSvc email.Service,
	baseURL string,
	logger zerolog.Logger,
) *Service {
	return &Service{
		invitationRepo: invitationRepo,
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
		orgRepo:        orgRepo,
		outboxRepo:     outboxRepo,
		availability:   availability,
		limiter:        limiter,
		emailSvc:       emailSvc,
		baseURL:        baseURL,
		logger:         logger.With().Str("component", "invitation").Logger(),
	}
}

// InviteMember admits a new occupant. The availability check and the
// insert are not one atomic step at this layer; CreateReserving
// re-checks inside a serializable transaction so concurrent invites
// cannot jointly overcommit seats.
func (s *Service) InviteMember(ctx context.Context, requesterID, orgID uuid.UUID, emailAddr string, role model.Role) (*model.Invitation, error) {
	requester, err := s.membershipRepo.GetByUserAndOrganization(ctx, requesterID, orgID)
	if err != nil {
		return nil, err
	}
	if requester == nil || requester.Status != model.MembershipStatusActive || !requester.IsAdmin() {
		return nil, membership.ErrNotAdmin
	}

	allowed, err := s.limiter.Allow(ctx, orgID.String())
	if err != nil {
		s.logger.Error().Err(err).Msg("rate limiter unavailable, allowing request")
	} else if !allowed {
		return nil, ErrRateLimited
	}

	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))

	if existing, err := s.invitationRepo.GetPendingByEmail(ctx, orgID, emailAddr); err != nil {
		return nil, err
	} else if existing != nil && !existing.IsExpiredAt(time.Now()) {
		return nil, ErrAlreadyInvited
	}

	if user, err := s.userRepo.GetByEmail(ctx, emailAddr); err != nil {
		return nil, err
	} else if user != nil {
		m, err := s.membershipRepo.GetByUserAndOrganization(ctx, user.ID, orgID)
		if err != nil {
			return nil, err
		}
		if m != nil && m.OccupiesSeat() {
			return nil, ErrAlreadyMember
		}
	}

	availability, err := s.availability.CheckSeats(ctx, orgID, 1)
	if err != nil {
		return nil, err
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}

	inv := &model.Invitation{
		OrganizationID: orgID,
		Email:          emailAddr,
		Role:           role,
		Status:         model.InvitationStatusPending,
		Token:          token,
		InvitedBy:      requesterID,
		ExpiresAt:      time.Now().Add(invitationTTL),
	}

	if err := s.invitationRepo.CreateReserving(ctx, inv, availability.TotalSeats); err != nil {
		if errors.Is(err, repository.ErrSeatLimitReached) {
			// A concurrent admission won the race; report the same
			// structured error the gate would have.
			current, cerr := s.availability.ComputeSeatAvailability(ctx, orgID)
			if cerr != nil {
				return nil, cerr
			}
			return nil, &seat.NoSeatsError{
				SeatsAvailable:  current.AvailableSeats,
				SeatsRequired:   1,
				TotalSeats:      current.TotalSeats,
				UpgradeRequired: true,
			}
		}
		return nil, err
	}

	s.emit(ctx, model.EventInvitationCreated, inv)

	if err := s.sendInvitationEmail(ctx, inv); err != nil {
		// The seat reservation stands; mark the row failed so the
		// admin sees the delivery problem and the sweep releases it.
		s.logger.Error().Err(err).Str("email", emailAddr).Msg("failed to send invitation email")
		inv.Status = model.InvitationStatusFailed
		if uerr := s.invitationRepo.Update(ctx, inv); uerr != nil {
			s.logger.Error().Err(uerr).Msg("failed to mark invitation failed")
		}
		return inv, fmt.Errorf("invitation created but email delivery failed: %w", err)
	}

	return inv, nil
}

// AcceptInvitation converts a pending invitation into an active
// membership. The invitation seat simply becomes a membership seat, so
// no availability check runs here.
func (s *Service) AcceptInvitation(ctx context.Context, token string, userID uuid.UUID) (*model.Membership, error) {
	inv, err := s.invitationRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}
	if inv.Status != model.InvitationStatusPending {
		return nil, ErrInvitationNotPending
	}
	if inv.IsExpiredAt(time.Now()) {
		inv.Status = model.InvitationStatusExpired
		if err := s.invitationRepo.Update(ctx, inv); err != nil {
			s.logger.Error().Err(err).Msg("failed to mark invitation expired")
		}
		return nil, ErrInvitationExpired
	}

	existing, err := s.membershipRepo.GetByUserAndOrganization(ctx, userID, inv.OrganizationID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.OccupiesSeat() {
		return nil, ErrAlreadyMember
	}

	m := &model.Membership{
		UserID:         userID,
		OrganizationID: inv.OrganizationID,
		Role:           inv.Role,
		Status:         model.MembershipStatusActive,
	}
	if existing != nil {
		// Archived member returning through an invitation: revive the
		// existing row instead of creating a second one.
		existing.Role = inv.Role
		existing.Status = model.MembershipStatusActive
		existing.RemovalEffectiveDate = nil
		if err := s.membershipRepo.Update(ctx, existing); err != nil {
			return nil, err
		}
		m = existing
	} else {
		if err := s.membershipRepo.Create(ctx, m); err != nil {
			return nil, err
		}
	}

	inv.Status = model.InvitationStatusAccepted
	if err := s.invitationRepo.Update(ctx, inv); err != nil {
		return nil, err
	}

	s.emit(ctx, model.EventInvitationAccepted, inv)
	return m, nil
}

func (s *Service) CancelInvitation(ctx context.Context, requesterID uuid.UUID, invitationID uuid.UUID) (*model.Invitation, error) {
	inv, err := s.invitationRepo.Get(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}

	requester, err := s.membershipRepo.GetByUserAndOrganization(ctx, requesterID, inv.OrganizationID)
	if err != nil {
		return nil, err
	}
	if requester == nil || requester.Status != model.MembershipStatusActive || !requester.IsAdmin() {
		return nil, membership.ErrNotAdmin
	}

	if inv.Status != model.InvitationStatusPending {
		return nil, ErrInvitationNotPending
	}

	inv.Status = model.InvitationStatusCancelled
	if err := s.invitationRepo.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// ExpireInvitations flips stale pending invitations to expired,
// releasing their seats. Run periodically by the worker.
func (s *Service) ExpireInvitations(ctx context.Context) (int64, error) {
	n, err := s.invitationRepo.ExpireBefore(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("count", n).Msg("expired stale invitations")
	}
	return n, nil
}

func (s *Service) sendInvitationEmail(ctx context.Context, inv *model.Invitation) error {
	org, err := s.orgRepo.Get(ctx, inv.OrganizationID)
	if err != nil {
		return err
	}
	orgName := "your organization"
	if org != nil {
		orgName = org.Name
	}
	inviteURL := fmt.Sprintf("%s/invitations/accept?token=%s", s.baseURL, inv.Token)
	return s.emailSvc.SendInvitation(ctx, inv.Email, orgName, inviteURL)
}

func (s *Service) emit(ctx context.Context, eventType string, inv *model.Invitation) {
	payload, err := json.Marshal(inv)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal invitation event")
		return
	}
	if err := s.outboxRepo.Create(ctx, &model.OutboxEvent{
		EventType: eventType,
		Payload:   payload,
	}); err != nil {
		s.logger.Error().Err(err).Msg("failed to create outbox event")
	}
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
