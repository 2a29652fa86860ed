package invitation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository"
	"github.com/leavehub/leave-api/internal/repository/repositorytest"
	"github.com/leavehub/leave-api/internal/service/invitation"
	"github.com/leavehub/leave-api/internal/service/membership"
	"github.com/leavehub/leave-api/internal/service/seat"
)

type sentEmail struct {
	to        string
	orgName   string
	inviteURL string
}

type fakeEmailService struct {
	sent    []sentEmail
	sendErr error
}

func (f *fakeEmailService) SendInvitation(_ context.Context, to, organizationName, inviteURL string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentEmail{to: to, orgName: organizationName, inviteURL: inviteURL})
	return nil
}

func (f *fakeEmailService) SendRemovalNotice(_ context.Context, _, _ string, _ string) error {
	return nil
}

func (f *fakeEmailService) SendCustom(_ context.Context, _ string, _ string, _ string) error {
	return nil
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (f *fakeLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return f.allowed, f.err
}

type fixture struct {
	invitations *repositorytest.InvitationRepo
	memberships *repositorytest.MembershipRepo
	users       *repositorytest.UserRepo
	orgs        *repositorytest.OrganizationRepo
	outbox      *repositorytest.OutboxRepo
	email       *fakeEmailService
	limiter     *fakeLimiter
	svc         *invitation.Service
	orgID       uuid.UUID
	adminID     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		invitations: repositorytest.NewInvitationRepo(),
		memberships: repositorytest.NewMembershipRepo(),
		users:       repositorytest.NewUserRepo(),
		orgs:        repositorytest.NewOrganizationRepo(),
		outbox:      repositorytest.NewOutboxRepo(),
		email:       &fakeEmailService{},
		limiter:     &fakeLimiter{allowed: true},
	}
	subs := repositorytest.NewSubscriptionRepo()
	calc := seat.NewCalculator(f.orgs, subs, f.memberships, f.invitations)
	f.svc = invitation.NewService(
		f.invitations, f.memberships, f.users, f.orgs, f.outbox,
		calc, f.limiter, f.email, "https://app.example.com", zerolog.Nop(),
	)

	org := &model.Organization{Name: "acme", Status: "active"}
	require.NoError(t, f.orgs.Create(context.Background(), org))
	f.orgID = org.ID

	admin := &model.Membership{
		UserID:         uuid.New(),
		OrganizationID: f.orgID,
		Role:           model.RoleAdmin,
		Status:         model.MembershipStatusActive,
	}
	require.NoError(t, f.memberships.Create(context.Background(), admin))
	f.adminID = admin.UserID
	return f
}

func TestInviteMember(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, " Dana@Example.com ", model.RoleEmployee)
	require.NoError(t, err)

	assert.Equal(t, "dana@example.com", inv.Email)
	assert.Equal(t, model.InvitationStatusPending, inv.Status)
	assert.NotEmpty(t, inv.Token)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), inv.ExpiresAt, time.Minute)

	require.Len(t, f.email.sent, 1)
	assert.Equal(t, "dana@example.com", f.email.sent[0].to)
	assert.Equal(t, "acme", f.email.sent[0].orgName)
	assert.Contains(t, f.email.sent[0].inviteURL, inv.Token)

	assert.Contains(t, f.outbox.EventTypes(), model.EventInvitationCreated)
}

func TestInviteMemberRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	employee := &model.Membership{
		UserID:         uuid.New(),
		OrganizationID: f.orgID,
		Role:           model.RoleEmployee,
		Status:         model.MembershipStatusActive,
	}
	require.NoError(t, f.memberships.Create(context.Background(), employee))

	_, err := f.svc.InviteMember(context.Background(), employee.UserID, f.orgID, "x@example.com", model.RoleEmployee)
	assert.ErrorIs(t, err, membership.ErrNotAdmin)
}

func TestInviteMemberRateLimited(t *testing.T) {
	f := newFixture(t)
	f.limiter.allowed = false

	_, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "x@example.com", model.RoleEmployee)
	assert.ErrorIs(t, err, invitation.ErrRateLimited)
}

func TestInviteMemberLimiterFailureAllows(t *testing.T) {
	f := newFixture(t)
	f.limiter.allowed = false
	f.limiter.err = errors.New("redis down")

	// The limiter failing open must not block invitations.
	_, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "x@example.com", model.RoleEmployee)
	assert.NoError(t, err)
}

func TestInviteMemberAlreadyInvited(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "dana@example.com", model.RoleEmployee)
	require.NoError(t, err)

	_, err = f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "DANA@example.com", model.RoleManager)
	assert.ErrorIs(t, err, invitation.ErrAlreadyInvited)
}

func TestInviteMemberAlreadyMember(t *testing.T) {
	f := newFixture(t)
	user := &model.User{Email: "dana@example.com", Name: "Dana"}
	require.NoError(t, f.users.Create(context.Background(), user))
	require.NoError(t, f.memberships.Create(context.Background(), &model.Membership{
		UserID:         user.ID,
		OrganizationID: f.orgID,
		Role:           model.RoleEmployee,
		Status:         model.MembershipStatusActive,
	}))

	_, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "dana@example.com", model.RoleEmployee)
	assert.ErrorIs(t, err, invitation.ErrAlreadyMember)
}

func TestInviteMemberArchivedUserCanBeReinvited(t *testing.T) {
	f := newFixture(t)
	user := &model.User{Email: "dana@example.com", Name: "Dana"}
	require.NoError(t, f.users.Create(context.Background(), user))
	require.NoError(t, f.memberships.Create(context.Background(), &model.Membership{
		UserID:         user.ID,
		OrganizationID: f.orgID,
		Role:           model.RoleEmployee,
		Status:         model.MembershipStatusArchived,
	}))

	_, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "dana@example.com", model.RoleEmployee)
	assert.NoError(t, err)
}

func TestInviteMemberNoSeats(t *testing.T) {
	f := newFixture(t)
	// Fill the free tier: admin plus two more occupants.
	for i := 0; i < 2; i++ {
		require.NoError(t, f.memberships.Create(context.Background(), &model.Membership{
			UserID:         uuid.New(),
			OrganizationID: f.orgID,
			Role:           model.RoleEmployee,
			Status:         model.MembershipStatusActive,
		}))
	}

	_, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "x@example.com", model.RoleEmployee)

	var noSeats *seat.NoSeatsError
	require.ErrorAs(t, err, &noSeats)
	assert.Equal(t, 0, noSeats.SeatsAvailable)
	assert.Empty(t, f.email.sent)
}

func TestInviteMemberReservationRace(t *testing.T) {
	f := newFixture(t)
	f.invitations.ReserveErr = repository.ErrSeatLimitReached

	_, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "x@example.com", model.RoleEmployee)

	var noSeats *seat.NoSeatsError
	require.ErrorAs(t, err, &noSeats)
	assert.Equal(t, 1, noSeats.SeatsRequired)
	assert.True(t, noSeats.UpgradeRequired)
}

func TestInviteMemberEmailFailureMarksInvitationFailed(t *testing.T) {
	f := newFixture(t)
	f.email.sendErr = errors.New("smtp unreachable")

	inv, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "x@example.com", model.RoleEmployee)
	require.Error(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, model.InvitationStatusFailed, inv.Status)

	stored, _ := f.invitations.Get(context.Background(), inv.ID)
	assert.Equal(t, model.InvitationStatusFailed, stored.Status)
}

func TestAcceptInvitation(t *testing.T) {
	f := newFixture(t)
	inv, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "dana@example.com", model.RoleManager)
	require.NoError(t, err)

	userID := uuid.New()
	m, err := f.svc.AcceptInvitation(context.Background(), inv.Token, userID)
	require.NoError(t, err)

	assert.Equal(t, userID, m.UserID)
	assert.Equal(t, f.orgID, m.OrganizationID)
	assert.Equal(t, model.RoleManager, m.Role)
	assert.Equal(t, model.MembershipStatusActive, m.Status)

	stored, _ := f.invitations.Get(context.Background(), inv.ID)
	assert.Equal(t, model.InvitationStatusAccepted, stored.Status)
	assert.Contains(t, f.outbox.EventTypes(), model.EventInvitationAccepted)
}

func TestAcceptInvitationRevivesArchivedMembership(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	archived := &model.Membership{
		UserID:         userID,
		OrganizationID: f.orgID,
		Role:           model.RoleEmployee,
		Status:         model.MembershipStatusArchived,
	}
	require.NoError(t, f.memberships.Create(context.Background(), archived))

	inv, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "dana@example.com", model.RoleManager)
	require.NoError(t, err)

	m, err := f.svc.AcceptInvitation(context.Background(), inv.Token, userID)
	require.NoError(t, err)

	// Same row, revived with the invitation's role.
	assert.Equal(t, archived.ID, m.ID)
	assert.Equal(t, model.RoleManager, m.Role)
	assert.Equal(t, model.MembershipStatusActive, m.Status)
}

func TestAcceptInvitationUnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AcceptInvitation(context.Background(), "nope", uuid.New())
	assert.ErrorIs(t, err, invitation.ErrInvitationNotFound)
}

func TestAcceptInvitationExpired(t *testing.T) {
	f := newFixture(t)
	inv := &model.Invitation{
		OrganizationID: f.orgID,
		Email:          "dana@example.com",
		Role:           model.RoleEmployee,
		Status:         model.InvitationStatusPending,
		Token:          "stale-token",
		InvitedBy:      f.adminID,
		ExpiresAt:      time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.invitations.CreateReserving(context.Background(), inv, 0))

	_, err := f.svc.AcceptInvitation(context.Background(), "stale-token", uuid.New())
	assert.ErrorIs(t, err, invitation.ErrInvitationExpired)

	stored, _ := f.invitations.Get(context.Background(), inv.ID)
	assert.Equal(t, model.InvitationStatusExpired, stored.Status)
}

func TestAcceptInvitationNotPending(t *testing.T) {
	f := newFixture(t)
	inv, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "dana@example.com", model.RoleEmployee)
	require.NoError(t, err)

	_, err = f.svc.AcceptInvitation(context.Background(), inv.Token, uuid.New())
	require.NoError(t, err)

	_, err = f.svc.AcceptInvitation(context.Background(), inv.Token, uuid.New())
	assert.ErrorIs(t, err, invitation.ErrInvitationNotPending)
}

func TestCancelInvitation(t *testing.T) {
	f := newFixture(t)
	inv, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "dana@example.com", model.RoleEmployee)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelInvitation(context.Background(), f.adminID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationStatusCancelled, cancelled.Status)
}

func TestCancelInvitationRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	inv, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "dana@example.com", model.RoleEmployee)
	require.NoError(t, err)

	_, err = f.svc.CancelInvitation(context.Background(), uuid.New(), inv.ID)
	assert.ErrorIs(t, err, membership.ErrNotAdmin)
}

func TestCancelInvitationNotPending(t *testing.T) {
	f := newFixture(t)
	inv, err := f.svc.InviteMember(context.Background(), f.adminID, f.orgID, "dana@example.com", model.RoleEmployee)
	require.NoError(t, err)
	_, err = f.svc.CancelInvitation(context.Background(), f.adminID, inv.ID)
	require.NoError(t, err)

	_, err = f.svc.CancelInvitation(context.Background(), f.adminID, inv.ID)
	assert.ErrorIs(t, err, invitation.ErrInvitationNotPending)
}

func TestExpireInvitations(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.invitations.CreateReserving(context.Background(), &model.Invitation{
		OrganizationID: f.orgID,
		Email:          "old@example.com",
		Role:           model.RoleEmployee,
		Status:         model.InvitationStatusPending,
		Token:          "old-token",
		InvitedBy:      f.adminID,
		ExpiresAt:      time.Now().Add(-time.Hour),
	}, 0))
	require.NoError(t, f.invitations.CreateReserving(context.Background(), &model.Invitation{
		OrganizationID: f.orgID,
		Email:          "fresh@example.com",
		Role:           model.RoleEmployee,
		Status:         model.InvitationStatusPending,
		Token:          "fresh-token",
		InvitedBy:      f.adminID,
		ExpiresAt:      time.Now().Add(time.Hour),
	}, 0))

	n, err := f.svc.ExpireInvitations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	fresh, _ := f.invitations.GetByToken(context.Background(), "fresh-token")
	assert.Equal(t, model.InvitationStatusPending, fresh.Status)
}
