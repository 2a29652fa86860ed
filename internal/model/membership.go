package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

type MembershipStatus string

const (
	// MembershipStatusActive members occupy a seat and have full access.
	MembershipStatusActive MembershipStatus = "active"
	// MembershipStatusPendingRemoval members keep access and keep
	// occupying a seat until the removal effective date (the next
	// renewal), when the webhook archives them.
	MembershipStatusPendingRemoval MembershipStatus = "pending_removal"
	// MembershipStatusArchived members do not occupy a seat.
	MembershipStatusArchived MembershipStatus = "archived"
)

// Membership links a user to an organization. Seat occupancy counts
// active and pending_removal rows; archived rows are free.
type Membership struct {
	ID                   uuid.UUID        `json:"id" db:"id"`
	UserID               uuid.UUID        `json:"user_id" db:"user_id"`
	OrganizationID       uuid.UUID        `json:"organization_id" db:"organization_id"`
	Role                 Role             `json:"role" db:"role"`
	Status               MembershipStatus `json:"status" db:"status"`
	RemovalEffectiveDate *time.Time       `json:"removal_effective_date,omitempty" db:"removal_effective_date"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at" db:"updated_at"`
}

// OccupiesSeat reports whether this membership counts toward the
// organization's occupied seats.
func (m *Membership) OccupiesSeat() bool {
	return m.Status == MembershipStatusActive || m.Status == MembershipStatusPendingRemoval
}

func (m *Membership) IsAdmin() bool {
	return m.Role == RoleAdmin
}

type MembershipFilters struct {
	OrganizationID uuid.UUID
	Status         MembershipStatus
	Role           Role
}
