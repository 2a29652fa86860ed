package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leavehub/leave-api/internal/email"
	"github.com/leavehub/leave-api/internal/model"
	"github.com/leavehub/leave-api/internal/repository"
	"github.com/leavehub/leave-api/pkg/logger"
	"github.com/leavehub/leave-api/pkg/messaging"
)

// RemovalNotifier listens for removal-request events and emails the
// affected member with their removal effective date.
type RemovalNotifier struct {
	broker   messaging.MessageBroker
	userRepo repository.UserRepository
	orgRepo  repository.OrganizationRepository
	emailSvc email.Service
	logger   *logger.Logger
}

func NewRemovalNotifier(
	broker messaging.MessageBroker,
	userRepo repository.UserRepository,
	orgRepo repository.OrganizationRepository,
	emailSvc email.Service,
	logger *logger.Logger,
) *RemovalNotifier {
	return &RemovalNotifier{
		broker:   broker,
		userRepo: userRepo,
		orgRepo:  orgRepo,
		emailSvc: emailSvc,
		logger:   logger,
	}
}

func (n *RemovalNotifier) Start(ctx context.Context) error {
	return n.broker.Subscribe(ctx, model.EventMemberRemovalRequested, func(payload []byte) error {
		return n.notify(ctx, payload)
	})
}

func (n *RemovalNotifier) notify(ctx context.Context, payload []byte) error {
	var m model.Membership
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("failed to decode membership event: %w", err)
	}

	user, err := n.userRepo.Get(ctx, m.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		n.logger.Info("Skipping removal notice for unknown user", "user_id", m.UserID.String())
		return nil
	}

	org, err := n.orgRepo.Get(ctx, m.OrganizationID)
	if err != nil {
		return err
	}
	orgName := "your organization"
	if org != nil {
		orgName = org.Name
	}

	effective := "immediately"
	if m.RemovalEffectiveDate != nil {
		effective = m.RemovalEffectiveDate.Format("2006-01-02")
	}

	if err := n.emailSvc.SendRemovalNotice(ctx, user.Email, orgName, effective); err != nil {
		return fmt.Errorf("failed to send removal notice: %w", err)
	}
	return nil
}
