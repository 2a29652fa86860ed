package handler

import (
	"errors"
	"net/http"

	"github.com/leavehub/leave-api/internal/billing/lemonsqueezy"
	"github.com/leavehub/leave-api/internal/service/billing"
	"github.com/leavehub/leave-api/internal/service/invitation"
	"github.com/leavehub/leave-api/internal/service/membership"
	"github.com/leavehub/leave-api/internal/service/organization"
	"github.com/leavehub/leave-api/internal/service/seat"
)

// StatusFor maps domain errors to HTTP status codes so every handler
// renders the same failure the same way. Unknown errors are 500.
func StatusFor(err error) int {
	var (
		noSeats      *seat.NoSeatsError
		direction    *seat.DirectionMismatchError
		sameQuantity *seat.SameQuantityError
		unknownType  *seat.UnknownBillingTypeError
		transition   *membership.InvalidTransitionError
		variant      *billing.UnknownVariantError
		apiErr       *lemonsqueezy.APIError
	)

	switch {
	case errors.As(err, &noSeats):
		return http.StatusConflict
	case errors.As(err, &direction), errors.As(err, &sameQuantity):
		return http.StatusBadRequest
	case errors.As(err, &unknownType), errors.As(err, &variant):
		return http.StatusUnprocessableEntity
	case errors.As(err, &transition):
		return http.StatusConflict
	case errors.Is(err, seat.ErrSubscriptionNotFound),
		errors.Is(err, organization.ErrOrganizationNotFound),
		errors.Is(err, membership.ErrMembershipNotFound),
		errors.Is(err, invitation.ErrInvitationNotFound):
		return http.StatusNotFound
	case errors.Is(err, membership.ErrNotAdmin),
		errors.Is(err, membership.ErrSelfRemoval):
		return http.StatusForbidden
	case errors.Is(err, invitation.ErrAlreadyInvited),
		errors.Is(err, invitation.ErrAlreadyMember),
		errors.Is(err, invitation.ErrInvitationNotPending):
		return http.StatusConflict
	case errors.Is(err, invitation.ErrInvitationExpired):
		return http.StatusGone
	case errors.Is(err, invitation.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, lemonsqueezy.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		var coded interface{ StatusCode() int }
		if errors.As(err, &coded) {
			return coded.StatusCode()
		}
		return http.StatusInternalServerError
	}
}

// ErrorBody renders the response payload for a failure. Seat exhaustion
// gets a structured body so clients can build an upgrade prompt from it.
func ErrorBody(err error) *Response {
	var noSeats *seat.NoSeatsError
	if errors.As(err, &noSeats) {
		return &Response{
			Status:  "error",
			Message: noSeats.Error(),
			Data:    noSeats,
		}
	}
	return NewErrorResponse(err.Error())
}
