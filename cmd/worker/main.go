package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/leavehub/leave-api/internal/config"
	"github.com/leavehub/leave-api/internal/email"
	"github.com/leavehub/leave-api/internal/repository/postgres"
	invitationService "github.com/leavehub/leave-api/internal/service/invitation"
	seatService "github.com/leavehub/leave-api/internal/service/seat"
	"github.com/leavehub/leave-api/pkg/logger"
	"github.com/leavehub/leave-api/pkg/messaging"
	redisbroker "github.com/leavehub/leave-api/pkg/messaging/redis"
	"github.com/leavehub/leave-api/pkg/metrics"
	"github.com/leavehub/leave-api/pkg/ratelimit"
	"github.com/leavehub/leave-api/pkg/worker"
)

func setupHealthCheck(l *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			l.Fatal(err, "Health check server failed")
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	l := logger.NewLogger(&logger.Config{Level: logger.InfoLevel})
	zl := l.Zerolog()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		l.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: time.Second,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &zl)
	if err != nil {
		l.Fatal(err, "Failed to create Redis broker")
	}
	defer broker.Close()

	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	invitationRepo := postgres.NewInvitationRepository(baseRepo)
	membershipRepo := postgres.NewMembershipRepository(baseRepo)
	subscriptionRepo := postgres.NewSubscriptionRepository(baseRepo)
	orgRepo := postgres.NewOrganizationRepository(baseRepo)
	userRepo := postgres.NewUserRepository(baseRepo)

	processor := worker.NewOutboxProcessor(
		outboxRepo,
		broker,
		worker.OutboxProcessorConfig{
			BatchSize:     cfg.Worker.BatchSize,
			PollInterval:  time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second,
			RetryAttempts: cfg.Worker.RetryAttempts,
			RetryDelay:    time.Duration(cfg.Worker.RetryDelaySeconds) * time.Second,
		},
		l,
		metrics.NewMetrics(prometheus.DefaultRegisterer, "leavehub", "worker"),
	)

	// The sweeper only needs the expiry path; wire the service with the
	// pieces that path touches and a local limiter.
	availability := seatService.NewCalculator(orgRepo, subscriptionRepo, membershipRepo, invitationRepo)
	emailSvc := email.NewSMTPService(email.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	})
	invitationSvc := invitationService.NewService(
		invitationRepo, membershipRepo, userRepo, orgRepo, outboxRepo,
		availability,
		ratelimit.NewMemoryLimiter(cfg.RateLimit.InvitesPerWindow, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second),
		emailSvc, cfg.App.BaseURL, zl,
	)
	sweeper := worker.NewInvitationSweeper(
		invitationSvc,
		time.Duration(cfg.Worker.SweepIntervalMinutes)*time.Minute,
		l,
	)

	notifier := worker.NewRemovalNotifier(
		messaging.NewBrokerAdapter(broker),
		userRepo,
		orgRepo,
		emailSvc,
		l,
	)

	setupHealthCheck(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		l.Info("Shutting down...")
		cancel()
	}()

	if err := notifier.Start(ctx); err != nil {
		l.Error(err, "Failed to start removal notifier")
	}

	go sweeper.Start(ctx)
	processor.Start(ctx)
}
