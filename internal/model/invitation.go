package model

import (
	"time"

	"github.com/google/uuid"
)

type InvitationStatus string

const (
	InvitationStatusPending   InvitationStatus = "pending"
	InvitationStatusAccepted  InvitationStatus = "accepted"
	InvitationStatusCancelled InvitationStatus = "cancelled"
	InvitationStatusExpired   InvitationStatus = "expired"
	InvitationStatusFailed    InvitationStatus = "failed"
)

// Invitation is a pending seat occupant. It counts toward occupied
// seats while pending and unexpired; acceptance converts it into an
// active Membership.
type Invitation struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	OrganizationID uuid.UUID        `json:"organization_id" db:"organization_id"`
	Email          string           `json:"email" db:"email"`
	Role           Role             `json:"role" db:"role"`
	Status         InvitationStatus `json:"status" db:"status"`
	Token          string           `json:"-" db:"token"`
	InvitedBy      uuid.UUID        `json:"invited_by" db:"invited_by"`
	ExpiresAt      time.Time        `json:"expires_at" db:"expires_at"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

func (i *Invitation) IsExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// OccupiesSeat reports whether the invitation still counts toward
// occupied seats.
func (i *Invitation) OccupiesSeat(now time.Time) bool {
	return i.Status == InvitationStatusPending && !i.IsExpiredAt(now)
}
