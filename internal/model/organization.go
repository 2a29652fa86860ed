package model

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the tenant root. The billing override fields let
// support grant extra seats for a bounded window without touching the
// subscription itself.
type Organization struct {
	ID                       uuid.UUID  `json:"id" db:"id"`
	Name                     string     `json:"name" db:"name"`
	Status                   string     `json:"status" db:"status"`
	BillingOverrideSeats     *int       `json:"billing_override_seats,omitempty" db:"billing_override_seats"`
	BillingOverrideExpiresAt *time.Time `json:"billing_override_expires_at,omitempty" db:"billing_override_expires_at"`
	CreatedAt                time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at" db:"updated_at"`
}

// OverrideSeatsAt returns the override seat count if one is set and has
// not expired at the given time, else 0 and false.
func (o *Organization) OverrideSeatsAt(now time.Time) (int, bool) {
	if o.BillingOverrideSeats == nil || o.BillingOverrideExpiresAt == nil {
		return 0, false
	}
	if !o.BillingOverrideExpiresAt.After(now) {
		return 0, false
	}
	return *o.BillingOverrideSeats, true
}

type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
