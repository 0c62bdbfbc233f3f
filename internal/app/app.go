package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/uniedit/paystatus/cmd/server/docs" // swagger docs
	"github.com/uniedit/paystatus/internal/domain/s2s"
	"github.com/uniedit/paystatus/internal/infra/auth"
	"github.com/uniedit/paystatus/internal/infra/broker"
	"github.com/uniedit/paystatus/internal/infra/config"
	porthttp "github.com/uniedit/paystatus/internal/ports/http"
	"github.com/uniedit/paystatus/internal/utils/metrics"
	"github.com/uniedit/paystatus/internal/utils/middleware"
)

// App represents the application.
type App struct {
	config    *config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	router    *gin.Engine
	consumers *broker.Pool

	verifier *s2s.Verifier
	jwt      *auth.JWTValidator
	webhook  *porthttp.WebhookHandler

	stopOnce sync.Once
	cleanup  func()
}

// New builds the application from cfg.
func New(cfg *config.Config) (*App, error) {
	a, cleanup, err := InitializeApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("init app: %w", err)
	}
	a.cleanup = cleanup
	return a, nil
}

// NewApp assembles the application from its dependencies.
func NewApp(
	cfg *config.Config,
	log *zap.Logger,
	m *metrics.Metrics,
	verifier *s2s.Verifier,
	jwt *auth.JWTValidator,
	webhook *porthttp.WebhookHandler,
	consumers *broker.Pool,
) *App {
	a := &App{
		config:    cfg,
		logger:    log,
		metrics:   m,
		consumers: consumers,
		verifier:  verifier,
		jwt:       jwt,
		webhook:   webhook,
	}
	a.router = a.setupRouter()
	a.registerRoutes()
	return a
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	// Set Gin mode based on environment
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Apply global middleware
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Metrics(a.metrics))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if a.config.Metrics.Enabled {
		r.GET(a.config.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// Swagger documentation endpoint
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	return r
}

// registerRoutes registers all HTTP routes.
func (a *App) registerRoutes() {
	api := a.router.Group("/api")

	// Gateway callbacks: signature required.
	webhooks := api.Group("", middleware.S2SAuth(a.verifier, middleware.ModeS2SOnly, a.logger, a.metrics))
	a.webhook.RegisterWebhookRoutes(webhooks)

	// Reconciliation reads: bearer token or signature.
	orders := api.Group("",
		middleware.OptionalAuth(a.jwt),
		middleware.S2SAuth(a.verifier, middleware.ModeJWTOrS2S, a.logger, a.metrics),
	)
	a.webhook.RegisterOrderRoutes(orders)
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Run starts the queue consumers and blocks until ctx is cancelled. A
// consumer that cannot start is returned as an error.
func (a *App) Run(ctx context.Context) error {
	if a.consumers == nil {
		a.logger.Info("status queue consumer disabled")
		<-ctx.Done()
		return nil
	}

	a.logger.Info("starting status queue consumers",
		zap.String("queue", a.config.Consumer.Queue),
		zap.Int("workers", a.consumers.Size()),
	)
	return a.consumers.Run(ctx)
}

// Stop releases the database, cache and broker connections.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		if a.cleanup != nil {
			a.cleanup()
		}
	})
}
