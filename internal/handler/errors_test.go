package handler_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leavehub/leave-api/internal/billing/lemonsqueezy"
	"github.com/leavehub/leave-api/internal/handler"
	"github.com/leavehub/leave-api/internal/service/billing"
	"github.com/leavehub/leave-api/internal/service/invitation"
	"github.com/leavehub/leave-api/internal/service/membership"
	"github.com/leavehub/leave-api/internal/service/seat"
	apperrors "github.com/leavehub/leave-api/pkg/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no seats", &seat.NoSeatsError{SeatsRequired: 1}, http.StatusConflict},
		{"wrapped no seats", fmt.Errorf("gate: %w", &seat.NoSeatsError{}), http.StatusConflict},
		{"direction mismatch", &seat.DirectionMismatchError{Operation: "add_seats"}, http.StatusBadRequest},
		{"same quantity", &seat.SameQuantityError{Seats: 5}, http.StatusBadRequest},
		{"unknown billing type", &seat.UnknownBillingTypeError{BillingType: "metered"}, http.StatusUnprocessableEntity},
		{"unknown variant", &billing.UnknownVariantError{VariantID: 9}, http.StatusUnprocessableEntity},
		{"invalid transition", &membership.InvalidTransitionError{Action: "remove"}, http.StatusConflict},
		{"subscription not found", seat.ErrSubscriptionNotFound, http.StatusNotFound},
		{"membership not found", membership.ErrMembershipNotFound, http.StatusNotFound},
		{"invitation not found", invitation.ErrInvitationNotFound, http.StatusNotFound},
		{"not admin", membership.ErrNotAdmin, http.StatusForbidden},
		{"self removal", membership.ErrSelfRemoval, http.StatusForbidden},
		{"already invited", invitation.ErrAlreadyInvited, http.StatusConflict},
		{"already member", invitation.ErrAlreadyMember, http.StatusConflict},
		{"invitation expired", invitation.ErrInvitationExpired, http.StatusGone},
		{"rate limited", invitation.ErrRateLimited, http.StatusTooManyRequests},
		{"provider timeout", lemonsqueezy.ErrTimeout, http.StatusGatewayTimeout},
		{"provider error", &lemonsqueezy.APIError{StatusCode: 422}, http.StatusBadGateway},
		{"app error carries its own code", apperrors.BadRequest("bad input", nil), http.StatusBadRequest},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, handler.StatusFor(tt.err))
		})
	}
}

func TestErrorBodyNoSeats(t *testing.T) {
	err := &seat.NoSeatsError{
		SeatsAvailable:  0,
		SeatsRequired:   2,
		TotalSeats:      3,
		UpgradeRequired: true,
	}

	body := handler.ErrorBody(err)
	assert.Equal(t, "error", body.Status)
	require.NotNil(t, body.Data)
	assert.Same(t, err, body.Data)
}

func TestErrorBodyPlain(t *testing.T) {
	body := handler.ErrorBody(errors.New("boom"))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "boom", body.Message)
	assert.Nil(t, body.Data)
}
