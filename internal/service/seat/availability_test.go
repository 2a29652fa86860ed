package seat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository/repositorytest"
)

type calculatorFixture struct {
	orgs        *repositorytest.OrganizationRepo
	subs        *repositorytest.SubscriptionRepo
	memberships *repositorytest.MembershipRepo
	invitations *repositorytest.InvitationRepo
	calc        *Calculator
	orgID       uuid.UUID
}

func newCalculatorFixture(t *testing.T) *calculatorFixture {
	t.Helper()
	f := &calculatorFixture{
		orgs:        repositorytest.NewOrganizationRepo(),
		subs:        repositorytest.NewSubscriptionRepo(),
		memberships: repositorytest.NewMembershipRepo(),
		invitations: repositorytest.NewInvitationRepo(),
	}
	f.calc = NewCalculator(f.orgs, f.subs, f.memberships, f.invitations)

	org := &model.Organization{Name: "acme", Status: "active"}
	require.NoError(t, f.orgs.Create(context.Background(), org))
	f.orgID = org.ID
	return f
}

func (f *calculatorFixture) addMember(t *testing.T, status model.MembershipStatus) {
	t.Helper()
	require.NoError(t, f.memberships.Create(context.Background(), &model.Membership{
		UserID:         uuid.New(),
		OrganizationID: f.orgID,
		Role:           model.RoleEmployee,
		Status:         status,
	}))
}

func (f *calculatorFixture) addInvitation(t *testing.T, status model.InvitationStatus, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, f.invitations.CreateReserving(context.Background(), &model.Invitation{
		OrganizationID: f.orgID,
		Email:          uuid.NewString() + "@example.com",
		Role:           model.RoleEmployee,
		Status:         status,
		Token:          uuid.NewString(),
		InvitedBy:      uuid.New(),
		ExpiresAt:      expiresAt,
	}, 0))
}

func TestAvailabilityFreeTier(t *testing.T) {
	f := newCalculatorFixture(t)
	f.addMember(t, model.MembershipStatusActive)

	availability, err := f.calc.ComputeSeatAvailability(context.Background(), f.orgID)
	require.NoError(t, err)

	assert.Equal(t, 1, availability.ActiveSeats)
	assert.Equal(t, model.FreeTierSeats, availability.TotalSeats)
	assert.Equal(t, 2, availability.AvailableSeats)
}

func TestAvailabilityCountsPendingRemovalAndInvitations(t *testing.T) {
	f := newCalculatorFixture(t)
	f.addMember(t, model.MembershipStatusActive)
	f.addMember(t, model.MembershipStatusPendingRemoval)
	f.addMember(t, model.MembershipStatusArchived)
	f.addInvitation(t, model.InvitationStatusPending, time.Now().Add(time.Hour))
	f.addInvitation(t, model.InvitationStatusPending, time.Now().Add(-time.Hour)) // expired
	f.addInvitation(t, model.InvitationStatusCancelled, time.Now().Add(time.Hour))

	availability, err := f.calc.ComputeSeatAvailability(context.Background(), f.orgID)
	require.NoError(t, err)

	// Archived members, expired invitations, and cancelled invitations
	// do not occupy seats.
	assert.Equal(t, 2, availability.ActiveSeats)
	assert.Equal(t, 1, availability.PendingInvitations)
	assert.Equal(t, 3, availability.TotalOccupied)
	assert.Equal(t, 0, availability.AvailableSeats)
}

func TestAvailabilityWithBillableSubscription(t *testing.T) {
	f := newCalculatorFixture(t)
	require.NoError(t, f.subs.Create(context.Background(), &model.Subscription{
		OrganizationID: f.orgID,
		BillingType:    model.BillingTypeUsageBased,
		CurrentSeats:   7,
		Status:         model.SubscriptionStatusActive,
	}))

	availability, err := f.calc.ComputeSeatAvailability(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Equal(t, 10, availability.TotalSeats)
}

func TestAvailabilityIgnoresNonBillableSubscription(t *testing.T) {
	f := newCalculatorFixture(t)
	require.NoError(t, f.subs.Create(context.Background(), &model.Subscription{
		OrganizationID: f.orgID,
		BillingType:    model.BillingTypeUsageBased,
		CurrentSeats:   7,
		Status:         model.SubscriptionStatusCancelled,
	}))

	availability, err := f.calc.ComputeSeatAvailability(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Equal(t, model.FreeTierSeats, availability.TotalSeats)
}

func TestAvailabilityBillingOverride(t *testing.T) {
	f := newCalculatorFixture(t)
	seats := 20
	expires := time.Now().Add(24 * time.Hour)
	org, _ := f.orgs.Get(context.Background(), f.orgID)
	org.BillingOverrideSeats = &seats
	org.BillingOverrideExpiresAt = &expires
	require.NoError(t, f.orgs.Update(context.Background(), org))

	availability, err := f.calc.ComputeSeatAvailability(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Equal(t, 20, availability.TotalSeats)
}

func TestAvailabilityExpiredOverrideIgnored(t *testing.T) {
	f := newCalculatorFixture(t)
	seats := 20
	expires := time.Now().Add(-time.Minute)
	org, _ := f.orgs.Get(context.Background(), f.orgID)
	org.BillingOverrideSeats = &seats
	org.BillingOverrideExpiresAt = &expires
	require.NoError(t, f.orgs.Update(context.Background(), org))

	availability, err := f.calc.ComputeSeatAvailability(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Equal(t, model.FreeTierSeats, availability.TotalSeats)
}

func TestAvailabilityOverrideNeverLowersEntitlement(t *testing.T) {
	f := newCalculatorFixture(t)
	require.NoError(t, f.subs.Create(context.Background(), &model.Subscription{
		OrganizationID: f.orgID,
		BillingType:    model.BillingTypeQuantityBased,
		CurrentSeats:   50,
		Status:         model.SubscriptionStatusActive,
	}))
	seats := 10
	expires := time.Now().Add(24 * time.Hour)
	org, _ := f.orgs.Get(context.Background(), f.orgID)
	org.BillingOverrideSeats = &seats
	org.BillingOverrideExpiresAt = &expires
	require.NoError(t, f.orgs.Update(context.Background(), org))

	availability, err := f.calc.ComputeSeatAvailability(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Equal(t, 53, availability.TotalSeats)
}

func TestCheckSeatsAllows(t *testing.T) {
	f := newCalculatorFixture(t)
	f.addMember(t, model.MembershipStatusActive)

	availability, err := f.calc.CheckSeats(context.Background(), f.orgID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, availability.AvailableSeats)
}

func TestCheckSeatsRejectsWithRemediationData(t *testing.T) {
	f := newCalculatorFixture(t)
	f.addMember(t, model.MembershipStatusActive)
	f.addMember(t, model.MembershipStatusActive)

	availability, err := f.calc.CheckSeats(context.Background(), f.orgID, 2)

	var noSeats *NoSeatsError
	require.ErrorAs(t, err, &noSeats)
	assert.Equal(t, 1, noSeats.SeatsAvailable)
	assert.Equal(t, 2, noSeats.SeatsRequired)
	assert.Equal(t, model.FreeTierSeats, noSeats.TotalSeats)
	assert.True(t, noSeats.UpgradeRequired)
	// The availability snapshot is still returned alongside the error.
	require.NotNil(t, availability)
	assert.Equal(t, 1, availability.AvailableSeats)
}

func TestCheckSeatsUnknownOrganization(t *testing.T) {
	f := newCalculatorFixture(t)
	_, err := f.calc.CheckSeats(context.Background(), uuid.New(), 1)
	assert.Error(t, err)
}
