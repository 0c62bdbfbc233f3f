package app

import (
	"fmt"

	"github.com/google/wire"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	// Domains
	"github.com/uniedit/paystatus/internal/domain/order"
	"github.com/uniedit/paystatus/internal/domain/s2s"

	// Ports
	porthttp "github.com/uniedit/paystatus/internal/ports/http"
	"github.com/uniedit/paystatus/internal/ports/queue"

	// Infrastructure
	"github.com/uniedit/paystatus/internal/infra/auth"
	"github.com/uniedit/paystatus/internal/infra/broker"
	"github.com/uniedit/paystatus/internal/infra/cache"
	"github.com/uniedit/paystatus/internal/infra/config"
	"github.com/uniedit/paystatus/internal/infra/database"
	"github.com/uniedit/paystatus/internal/infra/persistence"

	// Utils
	"github.com/uniedit/paystatus/internal/utils/logger"
	"github.com/uniedit/paystatus/internal/utils/metrics"
)

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideDatabase,
	ProvideRedisClient,
	ProvideConnectionConfig,
	ProvideStatusQueue,
)

// ProvideLogger creates the zap logger.
func ProvideLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return log, func() { _ = log.Sync() }, nil
}

// ProvideMetrics creates a metrics instance. Returns nil when metrics are
// disabled; every recorder method accepts a nil receiver.
func ProvideMetrics(cfg *config.Config) *metrics.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.New(cfg.Metrics.Namespace)
}

// ProvideDatabase creates a database connection.
func ProvideDatabase(cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	return db, func() { _ = database.Close(db) }, nil
}

// ProvideRedisClient creates a Redis client when the nonce replay check is
// enabled. The check fails closed, so an unreachable Redis is a startup error.
func ProvideRedisClient(cfg *config.Config, log *zap.Logger) (goredis.UniversalClient, func(), error) {
	if !cfg.S2S.NonceReplayCheck {
		return nil, func() {}, nil
	}
	client, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("init redis: %w", err)
	}
	log.Info("nonce replay check enabled", zap.String("redis", cfg.Redis.Address))
	return client, func() { _ = cache.Close(client) }, nil
}

// ProvideConnectionConfig maps the broker section to a connection config.
func ProvideConnectionConfig(cfg *config.Config) broker.ConnectionConfig {
	return broker.ConnectionConfig{
		Host:      cfg.Broker.Host,
		Port:      cfg.Broker.Port,
		Username:  cfg.Broker.Username,
		Password:  cfg.Broker.Password,
		VHost:     cfg.Broker.VHost,
		Heartbeat: cfg.Broker.Heartbeat,
	}
}

// ProvideStatusQueue returns the status queue declaration shared by the
// producer and the consumers.
func ProvideStatusQueue(cfg *config.Config) broker.QueueConfig {
	return broker.QueueConfig{
		Name:               cfg.Consumer.Queue,
		Durable:            cfg.Consumer.Durable,
		Prefetch:           cfg.Consumer.Prefetch,
		DeadLetterExchange: cfg.Consumer.DeadLetterExchange,
	}
}

// ===== Order Domain Providers =====

// OrderSet provides order domain dependencies.
var OrderSet = wire.NewSet(
	persistence.NewOrderRepository,
	wire.Bind(new(order.Repository), new(*persistence.OrderRepository)),
	ProvideStatusHandler,
	wire.Bind(new(order.StatusApplier), new(*order.StatusHandler)),
)

// ProvideStatusHandler creates the status handler.
func ProvideStatusHandler(repo order.Repository, log *zap.Logger) *order.StatusHandler {
	return order.NewStatusHandler(repo, log)
}

// ===== Security Providers =====

// SecuritySet provides request authentication.
var SecuritySet = wire.NewSet(
	ProvideNonceStore,
	ProvideS2SVerifier,
	ProvideJWTValidator,
)

// ProvideNonceStore returns the seen-nonce store, or nil when Redis is not
// configured.
func ProvideNonceStore(client goredis.UniversalClient) s2s.NonceStore {
	if client == nil {
		return nil
	}
	return cache.NewNonceStore(client)
}

// ProvideS2SVerifier creates the HMAC verifier from the configured credentials.
func ProvideS2SVerifier(cfg *config.Config, store s2s.NonceStore) (*s2s.Verifier, error) {
	opts := []s2s.Option{s2s.WithMaxClockSkew(cfg.S2S.MaxClockSkew)}
	if store != nil {
		opts = append(opts, s2s.WithNonceStore(store))
	}
	v, err := s2s.NewVerifier(s2s.Credentials{
		APIKeys: cfg.S2S.APIKeys,
		Secrets: cfg.S2S.HMACSecrets,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init s2s verifier: %w", err)
	}
	return v, nil
}

// ProvideJWTValidator creates the bearer token validator.
func ProvideJWTValidator(cfg *config.Config) *auth.JWTValidator {
	jwtCfg := auth.DefaultJWTConfig()
	jwtCfg.Secret = cfg.Auth.JWTSecret
	if cfg.Auth.Issuer != "" {
		jwtCfg.Issuer = cfg.Auth.Issuer
	}
	return auth.NewJWTValidator(jwtCfg)
}

// ===== Broker Providers =====

// BrokerSet provides the status queue producer and consumers.
var BrokerSet = wire.NewSet(
	ProvideDialFunc,
	ProvideProducer,
	ProvideStatusPublisher,
	ProvideStatusConsumer,
	ProvideConsumerPool,
)

// ProvideDialFunc returns the AMQP dialer.
func ProvideDialFunc() broker.DialFunc {
	return broker.Dial
}

// ProvideProducer creates the publish-side broker client.
func ProvideProducer(
	dial broker.DialFunc,
	conn broker.ConnectionConfig,
	cfg *config.Config,
	log *zap.Logger,
	m *metrics.Metrics,
) (*broker.Producer, func()) {
	p := broker.NewProducer(dial, conn, broker.BreakerConfig{
		MaxRequests:         cfg.Producer.BreakerMaxRequests,
		Interval:            cfg.Producer.BreakerInterval,
		Timeout:             cfg.Producer.BreakerTimeout,
		ConsecutiveFailures: cfg.Producer.ConsecutiveFailures,
	}, log, m)
	return p, func() { _ = p.Close() }
}

// ProvideStatusPublisher creates the status update publisher.
func ProvideStatusPublisher(p *broker.Producer, q broker.QueueConfig) *queue.StatusPublisher {
	return queue.NewStatusPublisher(p, q)
}

// ProvideStatusConsumer creates the queue message handler.
func ProvideStatusConsumer(applier order.StatusApplier, log *zap.Logger, m *metrics.Metrics) *queue.StatusConsumer {
	return queue.NewStatusConsumer(applier, log, m)
}

// ProvideConsumerPool creates the consumer workers. Returns nil when the
// consumer is disabled.
func ProvideConsumerPool(
	cfg *config.Config,
	dial broker.DialFunc,
	conn broker.ConnectionConfig,
	q broker.QueueConfig,
	handler *queue.StatusConsumer,
	log *zap.Logger,
	m *metrics.Metrics,
) *broker.Pool {
	if !cfg.Consumer.Enabled {
		return nil
	}
	return broker.NewPool(cfg.Consumer.Workers, func(worker int) *broker.Consumer {
		return broker.NewConsumer(dial, conn, q, handler.HandlerFunc(), log.Named("consumer"),
			broker.WithConsumerTag(fmt.Sprintf("paystatus-%d", worker)),
			broker.WithReconnectBackoff(cfg.Consumer.ReconnectInitial, cfg.Consumer.ReconnectMax),
			broker.WithRecorder(m),
		)
	})
}

// ===== HTTP Providers =====

// HTTPSet provides HTTP handlers.
var HTTPSet = wire.NewSet(
	ProvideWebhookHandler,
)

// ProvideWebhookHandler creates the webhook handler.
func ProvideWebhookHandler(
	applier order.StatusApplier,
	publisher *queue.StatusPublisher,
	repo order.Repository,
	log *zap.Logger,
	m *metrics.Metrics,
) *porthttp.WebhookHandler {
	return porthttp.NewWebhookHandler(applier, publisher, repo, log, m)
}

// AppSet combines every provider set.
var AppSet = wire.NewSet(
	InfraSet,
	OrderSet,
	SecuritySet,
	BrokerSet,
	HTTPSet,
	NewApp,
)
