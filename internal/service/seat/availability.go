package seat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository"
)

// Calculator computes seat occupancy and entitlement for an
// organization. It is read-only and safe to call repeatedly; callers
// use it as an admission gate before creating invitations or
// reactivating archived members.
type Calculator struct {
	orgRepo          repository.OrganizationRepository
	subscriptionRepo repository.SubscriptionRepository
	membershipRepo   repository.MembershipRepository
	invitationRepo   repository.InvitationRepository
}

func NewCalculator(
	orgRepo repository.OrganizationRepository,
	subscriptionRepo repository.SubscriptionRepository,
	membershipRepo repository.MembershipRepository,
	invitationRepo repository.InvitationRepository,
) *Calculator {
	return &Calculator{
		orgRepo:          orgRepo,
		subscriptionRepo: subscriptionRepo,
		membershipRepo:   membershipRepo,
		invitationRepo:   invitationRepo,
	}
}

// ComputeSeatAvailability returns the occupancy picture for the
// organization. Occupied seats are active plus pending_removal
// memberships plus pending unexpired invitations. Total seats are the
// free tier plus paid seats, raised by an unexpired billing override.
func (c *Calculator) ComputeSeatAvailability(ctx context.Context, orgID uuid.UUID) (*model.SeatAvailability, error) {
	now := time.Now()

	org, err := c.orgRepo.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	if org == nil {
		return nil, fmt.Errorf("organization %s not found", orgID)
	}

	activeSeats, err := c.membershipRepo.CountOccupied(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to count member seats: %w", err)
	}

	pendingInvites, err := c.invitationRepo.CountPending(ctx, orgID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending invitations: %w", err)
	}

	totalSeats := model.FreeTierSeats
	sub, err := c.subscriptionRepo.GetBillableByOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub != nil {
		totalSeats = sub.TotalSeats()
	}
	if override, ok := org.OverrideSeatsAt(now); ok && override > totalSeats {
		totalSeats = override
	}

	occupied := activeSeats + pendingInvites
	available := totalSeats - occupied
	if available < 0 {
		available = 0
	}

	return &model.SeatAvailability{
		ActiveSeats:        activeSeats,
		PendingInvitations: pendingInvites,
		TotalOccupied:      occupied,
		TotalSeats:         totalSeats,
		AvailableSeats:     available,
	}, nil
}

// CheckSeats gates an action that would add seatsRequired occupants.
// It returns a NoSeatsError with remediation data when the request
// cannot fit.
func (c *Calculator) CheckSeats(ctx context.Context, orgID uuid.UUID, seatsRequired int) (*model.SeatAvailability, error) {
	availability, err := c.ComputeSeatAvailability(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if seatsRequired > availability.AvailableSeats {
		return availability, &NoSeatsError{
			SeatsAvailable:  availability.AvailableSeats,
			SeatsRequired:   seatsRequired,
			TotalSeats:      availability.TotalSeats,
			UpgradeRequired: true,
		}
	}
	return availability, nil
}
