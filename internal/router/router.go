package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/medalarm/internal/handler/health"
	promhandler "github.com/jwalitptl/medalarm/internal/handler/prometheus"
	"github.com/jwalitptl/medalarm/internal/middleware"
	"github.com/jwalitptl/medalarm/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	Mode             string
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	MetricsNamespace string
	MetricsPath      string
	Auth             middleware.AuthConfig
}

type Router struct {
	engine   *gin.Engine
	config   RouterConfig
	auth     *middleware.AuthMiddleware
	health   *health.Handler
	metrics  *promhandler.Handler
	handlers []Handler
}

// NewRouter builds the engine and its middleware chain. API handlers are
// mounted under /api/v1 behind bearer auth; health and metrics stay public.
func NewRouter(
	config RouterConfig,
	log *logger.Logger,
	reg *prometheus.Registry,
	healthH *health.Handler,
	handlers ...Handler,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	middleware.RegisterBindingValidators()

	engine := gin.New()
	engine.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.ErrorHandler(log),
		middleware.NewHTTPMetrics(config.MetricsNamespace, reg).Middleware(),
	)
	if config.RateLimitEnabled {
		engine.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		}).RateLimit())
	}

	return &Router{
		engine:   engine,
		config:   config,
		auth:     middleware.NewAuthMiddleware(config.Auth),
		health:   healthH,
		metrics:  promhandler.New(reg),
		handlers: handlers,
	}
}

func (r *Router) Setup() {
	r.health.RegisterRoutes(r.engine)
	r.metrics.RegisterRoutes(r.engine, r.config.MetricsPath)

	api := r.engine.Group("/api/v1")
	api.Use(r.auth.Authenticate())
	for _, h := range r.handlers {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Auth exposes the token issuer backing the bearer middleware.
func (r *Router) Auth() *middleware.AuthMiddleware {
	return r.auth
}
