// Package repositorytest provides in-memory repository implementations
// for service-level tests.
package repositorytest

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository"
)

type OrganizationRepo struct {
	mu   sync.Mutex
	Orgs map[uuid.UUID]*model.Organization
}

func NewOrganizationRepo() *OrganizationRepo {
	return &OrganizationRepo{Orgs: make(map[uuid.UUID]*model.Organization)}
}

func (r *OrganizationRepo) Create(_ context.Context, org *model.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	r.Orgs[org.ID] = org
	return nil
}

func (r *OrganizationRepo) Get(_ context.Context, id uuid.UUID) (*model.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Orgs[id], nil
}

func (r *OrganizationRepo) Update(_ context.Context, org *model.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Orgs[org.ID] = org
	return nil
}

func (r *OrganizationRepo) List(_ context.Context) ([]*model.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Organization, 0, len(r.Orgs))
	for _, o := range r.Orgs {
		out = append(out, o)
	}
	return out, nil
}

type SubscriptionRepo struct {
	mu   sync.Mutex
	Subs map[uuid.UUID]*model.Subscription
}

func NewSubscriptionRepo() *SubscriptionRepo {
	return &SubscriptionRepo{Subs: make(map[uuid.UUID]*model.Subscription)}
}

func (r *SubscriptionRepo) Create(_ context.Context, sub *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	r.Subs[sub.ID] = sub
	return nil
}

func (r *SubscriptionRepo) Get(_ context.Context, id uuid.UUID) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Subs[id], nil
}

func (r *SubscriptionRepo) GetByProviderID(_ context.Context, providerID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.Subs {
		if s.ProviderSubscriptionID == providerID {
			return s, nil
		}
	}
	return nil, nil
}

func (r *SubscriptionRepo) GetBillableByOrganization(_ context.Context, orgID uuid.UUID) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.Subs {
		if s.OrganizationID == orgID && s.IsBillable() {
			return s, nil
		}
	}
	return nil, nil
}

func (r *SubscriptionRepo) Update(_ context.Context, sub *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Subs[sub.ID] = sub
	return nil
}

func (r *SubscriptionRepo) UpdateSeats(_ context.Context, id uuid.UUID, seats int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.Subs[id]; ok {
		s.CurrentSeats = seats
	}
	return nil
}

type MembershipRepo struct {
	mu    sync.Mutex
	Items map[uuid.UUID]*model.Membership
}

func NewMembershipRepo() *MembershipRepo {
	return &MembershipRepo{Items: make(map[uuid.UUID]*model.Membership)}
}

func (r *MembershipRepo) Create(_ context.Context, m *model.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	r.Items[m.ID] = m
	return nil
}

func (r *MembershipRepo) Get(_ context.Context, id uuid.UUID) (*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Items[id], nil
}

func (r *MembershipRepo) GetByUserAndOrganization(_ context.Context, userID, orgID uuid.UUID) (*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.Items {
		if m.UserID == userID && m.OrganizationID == orgID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *MembershipRepo) Update(_ context.Context, m *model.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Items[m.ID] = m
	return nil
}

func (r *MembershipRepo) List(_ context.Context, filters *model.MembershipFilters) ([]*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Membership
	for _, m := range r.Items {
		if filters != nil {
			if filters.OrganizationID != uuid.Nil && m.OrganizationID != filters.OrganizationID {
				continue
			}
			if filters.Status != "" && m.Status != filters.Status {
				continue
			}
			if filters.Role != "" && m.Role != filters.Role {
				continue
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *MembershipRepo) CountOccupied(_ context.Context, orgID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.Items {
		if m.OrganizationID == orgID && m.OccupiesSeat() {
			n++
		}
	}
	return n, nil
}

func (r *MembershipRepo) ListPendingRemovalDue(_ context.Context, orgID uuid.UUID, asOf time.Time) ([]*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Membership
	for _, m := range r.Items {
		if m.OrganizationID == orgID &&
			m.Status == model.MembershipStatusPendingRemoval &&
			m.RemovalEffectiveDate != nil &&
			!m.RemovalEffectiveDate.After(asOf) {
			out = append(out, m)
		}
	}
	return out, nil
}

type InvitationRepo struct {
	mu    sync.Mutex
	Items map[uuid.UUID]*model.Invitation
	// ReserveErr overrides CreateReserving's result when set, to
	// simulate losing the reservation race.
	ReserveErr error
}

func NewInvitationRepo() *InvitationRepo {
	return &InvitationRepo{Items: make(map[uuid.UUID]*model.Invitation)}
}

func (r *InvitationRepo) CreateReserving(_ context.Context, inv *model.Invitation, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ReserveErr != nil {
		return r.ReserveErr
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	r.Items[inv.ID] = inv
	return nil
}

func (r *InvitationRepo) Get(_ context.Context, id uuid.UUID) (*model.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Items[id], nil
}

func (r *InvitationRepo) GetByToken(_ context.Context, token string) (*model.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.Items {
		if inv.Token == token {
			return inv, nil
		}
	}
	return nil, nil
}

func (r *InvitationRepo) GetPendingByEmail(_ context.Context, orgID uuid.UUID, email string) (*model.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.Items {
		if inv.OrganizationID == orgID &&
			strings.EqualFold(inv.Email, email) &&
			inv.Status == model.InvitationStatusPending {
			return inv, nil
		}
	}
	return nil, nil
}

func (r *InvitationRepo) Update(_ context.Context, inv *model.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Items[inv.ID] = inv
	return nil
}

func (r *InvitationRepo) CountPending(_ context.Context, orgID uuid.UUID, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, inv := range r.Items {
		if inv.OrganizationID == orgID && inv.OccupiesSeat(now) {
			n++
		}
	}
	return n, nil
}

func (r *InvitationRepo) ExpireBefore(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, inv := range r.Items {
		if inv.Status == model.InvitationStatusPending && inv.IsExpiredAt(now) {
			inv.Status = model.InvitationStatusExpired
			n++
		}
	}
	return n, nil
}

type UserRepo struct {
	mu    sync.Mutex
	Users map[uuid.UUID]*model.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{Users: make(map[uuid.UUID]*model.User)}
}

func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.Users[u.ID] = u
	return nil
}

func (r *UserRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Users[id], nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.Users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, nil
}

type WebhookEventRepo struct {
	mu     sync.Mutex
	Events map[string]*model.WebhookEvent
}

func NewWebhookEventRepo() *WebhookEventRepo {
	return &WebhookEventRepo{Events: make(map[string]*model.WebhookEvent)}
}

func (r *WebhookEventRepo) InsertIfAbsent(_ context.Context, event *model.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Events[event.ProviderEventID]; ok {
		return repository.ErrDuplicateEvent
	}
	r.Events[event.ProviderEventID] = event
	return nil
}

type OutboxRepo struct {
	mu     sync.Mutex
	Events []*model.OutboxEvent
}

func NewOutboxRepo() *OutboxRepo {
	return &OutboxRepo{}
}

func (r *OutboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = string(model.OutboxStatusPending)
	}
	r.Events = append(r.Events, event)
	return nil
}

// EventTypes returns the types of all recorded events in order.
func (r *OutboxRepo) EventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.EventType)
	}
	return out
}

func (r *OutboxRepo) GetPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.OutboxEvent
	for _, e := range r.Events {
		if e.Status == string(model.OutboxStatusPending) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *OutboxRepo) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	return r.GetPendingEvents(ctx, limit)
}

func (r *OutboxRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.Events {
		if e.ID == id {
			e.Status = string(status)
			e.ErrorMessage = errMsg
		}
	}
	return nil
}

func (r *OutboxRepo) BeginTx(_ context.Context) (*sql.Tx, error) {
	return nil, nil
}

func (r *OutboxRepo) UpdateStatusTx(ctx context.Context, _ *sql.Tx, id uuid.UUID, status string, errorMessage *string, _ *time.Time) error {
	return r.UpdateStatus(ctx, id, model.OutboxStatus(status), errorMessage)
}

func (r *OutboxRepo) MoveToDeadLetter(_ context.Context, _ *sql.Tx, _ *model.OutboxEvent) error {
	return nil
}

func (r *OutboxRepo) DeleteProcessedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}
