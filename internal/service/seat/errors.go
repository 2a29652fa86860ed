package seat

import (
	"errors"
	"fmt"

	"github.com/leavehub/leave-api/internal/model"
)

// ErrSubscriptionNotFound means no subscription row exists for the
// requested id. Distinct from authorization failures by design.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// NoSeatsError is the structured admission failure. It carries enough
// remediation data for the caller to render an actionable message; the
// gate never silently clamps a request.
type NoSeatsError struct {
	SeatsAvailable  int  `json:"seats_available"`
	SeatsRequired   int  `json:"seats_required"`
	TotalSeats      int  `json:"total_seats"`
	UpgradeRequired bool `json:"upgrade_required"`
}

func (e *NoSeatsError) Error() string {
	return fmt.Sprintf("not enough seats: %d required, %d available of %d total",
		e.SeatsRequired, e.SeatsAvailable, e.TotalSeats)
}

// DirectionMismatchError is a usability guard: AddSeats called with a
// lower quantity (or RemoveSeats with a higher one) fails loudly
// instead of doing the opposite of what the caller named.
type DirectionMismatchError struct {
	Operation    string
	CurrentSeats int
	NewSeats     int
}

func (e *DirectionMismatchError) Error() string {
	return fmt.Sprintf("%s: requested quantity %d does not match direction (current %d)",
		e.Operation, e.NewSeats, e.CurrentSeats)
}

// UnknownBillingTypeError means the stored billing type matches no
// known strategy. Fatal for the operation, never retried.
type UnknownBillingTypeError struct {
	BillingType model.BillingType
}

func (e *UnknownBillingTypeError) Error() string {
	return fmt.Sprintf("unknown billing type %q", e.BillingType)
}

// SameQuantityError rejects a no-op seat change.
type SameQuantityError struct {
	Seats int
}

func (e *SameQuantityError) Error() string {
	return fmt.Sprintf("subscription already has %d seats", e.Seats)
}
