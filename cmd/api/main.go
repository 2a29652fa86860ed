package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/leavehub/leave-api/internal/billing/lemonsqueezy"
	"github.com/leavehub/leave-api/internal/config"
	"github.com/leavehub/leave-api/internal/email"
	"github.com/leavehub/leave-api/internal/handler"
	invitationHandler "github.com/leavehub/leave-api/internal/handler/invitation"
	membershipHandler "github.com/leavehub/leave-api/internal/handler/membership"
	organizationHandler "github.com/leavehub/leave-api/internal/handler/organization"
	prometheusHandler "github.com/leavehub/leave-api/internal/handler/prometheus"
	seatHandler "github.com/leavehub/leave-api/internal/handler/seat"
	webhookHandler "github.com/leavehub/leave-api/internal/handler/webhook"
	"github.com/leavehub/leave-api/internal/middleware"
	"github.com/leavehub/leave-api/internal/repository/postgres"
	"github.com/leavehub/leave-api/internal/router"
	billingService "github.com/leavehub/leave-api/internal/service/billing"
	invitationService "github.com/leavehub/leave-api/internal/service/invitation"
	membershipService "github.com/leavehub/leave-api/internal/service/membership"
	organizationService "github.com/leavehub/leave-api/internal/service/organization"
	seatService "github.com/leavehub/leave-api/internal/service/seat"
	"github.com/leavehub/leave-api/pkg/metrics"
	"github.com/leavehub/leave-api/pkg/ratelimit"
)

func main() {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	baseRepo := postgres.NewBaseRepository(db)
	orgRepo := postgres.NewOrganizationRepository(baseRepo)
	subscriptionRepo := postgres.NewSubscriptionRepository(baseRepo)
	membershipRepo := postgres.NewMembershipRepository(baseRepo)
	invitationRepo := postgres.NewInvitationRepository(baseRepo)
	userRepo := postgres.NewUserRepository(baseRepo)
	webhookEventRepo := postgres.NewWebhookEventRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer, "leavehub", "api")
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			m.DatabaseConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()

	// Billing provider client
	billingClient := lemonsqueezy.NewClient(lemonsqueezy.Config{
		APIKey:  cfg.Billing.APIKey,
		BaseURL: cfg.Billing.BaseURL,
		Timeout: time.Duration(cfg.Billing.TimeoutSeconds) * time.Second,
	}, log.Logger, m)

	// Invitation rate limiter; falls back to in-memory when Redis is
	// not configured.
	var limiter ratelimit.Limiter
	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to parse Redis URL")
		}
		limiter = ratelimit.NewRedisLimiter(redis.NewClient(opts), "invite", cfg.RateLimit.InvitesPerWindow, window)
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.InvitesPerWindow, window)
	}

	emailSvc := email.NewSMTPService(email.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	})

	// Services
	availability := seatService.NewCalculator(orgRepo, subscriptionRepo, membershipRepo, invitationRepo)
	seatManager := seatService.NewManager(subscriptionRepo, outboxRepo, billingClient, cfg.Billing.YearlyPricePerSeat, log.Logger, m)
	membershipSvc := membershipService.NewService(membershipRepo, subscriptionRepo, outboxRepo, availability, log.Logger)
	organizationSvc := organizationService.NewService(orgRepo, membershipRepo, log.Logger)
	invitationSvc := invitationService.NewService(
		invitationRepo, membershipRepo, userRepo, orgRepo, outboxRepo,
		availability, limiter, emailSvc, cfg.App.BaseURL, log.Logger,
	)
	webhookProcessor := billingService.NewWebhookProcessor(
		subscriptionRepo, membershipRepo, webhookEventRepo, outboxRepo,
		billingClient,
		billingService.VariantConfig{
			MonthlyVariantID: cfg.Billing.MonthlyVariantID,
			YearlyVariantID:  cfg.Billing.YearlyVariantID,
		},
		log.Logger,
		m,
	)

	// Handlers
	handler.RegisterValidations()
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	healthH := handler.NewHealthHandler(db)
	promH := prometheusHandler.New()
	webhookH := webhookHandler.NewHandler(webhookProcessor, cfg.Billing.SigningSecret, log.Logger)
	protected := []router.Handler{
		organizationHandler.NewHandler(organizationSvc, log.Logger),
		seatHandler.NewHandler(seatManager, availability, log.Logger),
		membershipHandler.NewHandler(membershipSvc, log.Logger),
		invitationHandler.NewHandler(invitationSvc, log.Logger),
	}

	r := router.NewRouter(authMiddleware, healthH, promH, webhookH, protected, router.Config{
		RateLimit:  rate.Limit(cfg.RateLimit.HTTPRate),
		RateBurst:  cfg.RateLimit.HTTPBurst,
		CORSConfig: middleware.DefaultCORSConfig(),
		Timeout:    time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	})
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
