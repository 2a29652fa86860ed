package worker

import (
	"context"
	"time"

	"github.com/leavehub/leave-api/pkg/logger"
)

// Expirer is implemented by the invitation service.
type Expirer interface {
	ExpireInvitations(ctx context.Context) (int64, error)
}

// InvitationSweeper periodically expires stale invitations so their
// reserved seats return to the pool.
type InvitationSweeper struct {
	expirer  Expirer
	interval time.Duration
	logger   *logger.Logger
}

func NewInvitationSweeper(expirer Expirer, interval time.Duration, logger *logger.Logger) *InvitationSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &InvitationSweeper{
		expirer:  expirer,
		interval: interval,
		logger:   logger,
	}
}

func (w *InvitationSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Starting invitation sweeper")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down invitation sweeper")
			return
		case <-ticker.C:
			if _, err := w.expirer.ExpireInvitations(ctx); err != nil {
				w.logger.Error(err, "Failed to expire invitations")
			}
		}
	}
}
