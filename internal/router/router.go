package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/leavehub/leave-api/internal/handler"
	"github.com/leavehub/leave-api/internal/handler/prometheus"
	"github.com/leavehub/leave-api/internal/middleware"
)

// Handler registers its routes on a group.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimit  rate.Limit
	RateBurst  int
	CORSConfig middleware.CORSConfig
	Timeout    time.Duration
}

// Router assembles the HTTP surface. The webhook endpoint stays outside
// the authenticated group: the provider signs requests instead of
// holding a bearer token.
type Router struct {
	engine     *gin.Engine
	auth       *middleware.AuthMiddleware
	health     *handler.HealthHandler
	prometheus *prometheus.Handler
	webhookH   Handler
	protectedH []Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	health *handler.HealthHandler,
	prometheusH *prometheus.Handler,
	webhookH Handler,
	protectedH []Handler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{
		engine:     engine,
		auth:       auth,
		health:     health,
		prometheus: prometheusH,
		webhookH:   webhookH,
		protectedH: protectedH,
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		prometheusH.Middleware(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.Timeout}),
		middleware.CORS(config.CORSConfig),
		middleware.Cache(middleware.DefaultCacheConfig()),
	)

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  config.RateLimit,
		Burst: config.RateBurst,
	})
	engine.Use(rateLimiter.RateLimit())

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.setupHealthCheck(api)

	// Signed, not authenticated.
	r.webhookH.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	for _, h := range r.protectedH {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) setupHealthCheck(rg *gin.RouterGroup) {
	health := rg.Group("/health")
	{
		health.GET("/live", r.health.HealthCheck)
		health.GET("/ready", r.health.ReadyCheck)
	}
	rg.GET("/metrics", r.prometheus.Handler())
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
