package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Producer ProducerConfig `mapstructure:"producer"`
	S2S      S2SConfig      `mapstructure:"s2s"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BrokerConfig holds RabbitMQ connection configuration.
type BrokerConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	VHost     string        `mapstructure:"vhost"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// ConsumerConfig holds status queue consumer configuration.
type ConsumerConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Queue              string        `mapstructure:"queue"`
	Durable            bool          `mapstructure:"durable"`
	Prefetch           int           `mapstructure:"prefetch"`
	Workers            int           `mapstructure:"workers"`
	DeadLetterExchange string        `mapstructure:"dead_letter_exchange"`
	ReconnectInitial   time.Duration `mapstructure:"reconnect_initial"`
	ReconnectMax       time.Duration `mapstructure:"reconnect_max"`
}

// ProducerConfig holds the publish circuit breaker settings.
type ProducerConfig struct {
	BreakerMaxRequests  uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval     time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// S2SConfig holds server-to-server authentication configuration.
type S2SConfig struct {
	APIKeys          []string      `mapstructure:"api_keys"`
	HMACSecrets      []string      `mapstructure:"hmac_secrets"`
	MaxClockSkew     time.Duration `mapstructure:"max_clock_skew"`
	NonceReplayCheck bool          `mapstructure:"nonce_replay_check"`
}

// AuthConfig holds bearer token configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/paystatus")

	return load(v)
}

// LoadFile loads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	// Read from environment variables
	v.SetEnvPrefix("PAYSTATUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if password := os.Getenv("PAYSTATUS_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("PAYSTATUS_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if password := os.Getenv("PAYSTATUS_BROKER_PASSWORD"); password != "" {
		cfg.Broker.Password = password
	}
	if secret := os.Getenv("PAYSTATUS_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	// S2S credentials from environment (comma-separated lists).
	if s := os.Getenv("PAYSTATUS_S2S_API_KEYS"); s != "" {
		cfg.S2S.APIKeys = parseCommaSeparatedList(s)
	}
	if s := os.Getenv("PAYSTATUS_S2S_HMAC_SECRETS"); s != "" {
		cfg.S2S.HMACSecrets = parseCommaSeparatedList(s)
	}

	return &cfg, nil
}

func parseCommaSeparatedList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func countNonEmpty(values []string) int {
	n := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// Validate reports configuration the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if countNonEmpty(c.S2S.APIKeys) == 0 {
		errs = append(errs, errors.New("s2s.api_keys: at least one api key is required"))
	}
	if countNonEmpty(c.S2S.HMACSecrets) == 0 {
		errs = append(errs, errors.New("s2s.hmac_secrets: at least one secret is required"))
	}
	if c.S2S.MaxClockSkew <= 0 {
		errs = append(errs, errors.New("s2s.max_clock_skew: must be positive"))
	}
	if strings.TrimSpace(c.Consumer.Queue) == "" {
		errs = append(errs, errors.New("consumer.queue: name is required"))
	}
	if c.Consumer.Prefetch <= 0 {
		errs = append(errs, errors.New("consumer.prefetch: must be positive"))
	}
	if c.Consumer.Workers <= 0 {
		errs = append(errs, errors.New("consumer.workers: must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "paystatus")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Broker defaults
	v.SetDefault("broker.host", "localhost")
	v.SetDefault("broker.port", 5672)
	v.SetDefault("broker.username", "guest")
	v.SetDefault("broker.password", "guest")
	v.SetDefault("broker.vhost", "/")
	v.SetDefault("broker.heartbeat", 10*time.Second)

	// Consumer defaults
	v.SetDefault("consumer.enabled", true)
	v.SetDefault("consumer.queue", "payment-status")
	v.SetDefault("consumer.durable", true)
	v.SetDefault("consumer.prefetch", 1)
	v.SetDefault("consumer.workers", 1)
	v.SetDefault("consumer.dead_letter_exchange", "")
	v.SetDefault("consumer.reconnect_initial", time.Second)
	v.SetDefault("consumer.reconnect_max", 30*time.Second)

	// Producer defaults
	v.SetDefault("producer.breaker_max_requests", 1)
	v.SetDefault("producer.breaker_interval", 60*time.Second)
	v.SetDefault("producer.breaker_timeout", 30*time.Second)
	v.SetDefault("producer.consecutive_failures", 5)

	// S2S defaults
	v.SetDefault("s2s.api_keys", []string{})
	v.SetDefault("s2s.hmac_secrets", []string{})
	v.SetDefault("s2s.max_clock_skew", 300*time.Second)
	v.SetDefault("s2s.nonce_replay_check", false)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "paystatus")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "paystatus")
	v.SetDefault("metrics.path", "/metrics")
}
