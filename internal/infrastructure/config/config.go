package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Publisher     PublisherConfig     `mapstructure:"publisher"`
	Relay         RelayConfig         `mapstructure:"relay"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

// ServerConfig covers the operational HTTP surface (health, metrics, admin).
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	MaxConnections    int           `mapstructure:"max_connections"`
	MinConnections    int           `mapstructure:"min_connections"`
	ConnMaxLifetime   time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	RequiredAcks int      `mapstructure:"required_acks"`
	MaxRetries   int      `mapstructure:"max_retries"`
}

// PublisherConfig selects the broker backend and its failure-handling knobs.
type PublisherConfig struct {
	// Kind is "redis" or "kafka".
	Kind             string        `mapstructure:"kind"`
	Stream           string        `mapstructure:"stream"`
	DeadLetterStream string        `mapstructure:"dead_letter_stream"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
}

// RelayConfig holds the dispatch loop policy. Backoff is linear:
// next_retry_at = now + initial_interval + retry_count*interval_increment.
type RelayConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	BatchSize         int           `mapstructure:"batch_size"`
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialInterval   time.Duration `mapstructure:"initial_interval"`
	IntervalIncrement time.Duration `mapstructure:"interval_increment"`
	ClaimLease        time.Duration `mapstructure:"claim_lease"`
	PublishTimeout    time.Duration `mapstructure:"publish_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// StrictOrdering runs exactly one active dispatcher via a leader lock.
	// Global FIFO across relay instances is otherwise not guaranteed.
	StrictOrdering bool          `mapstructure:"strict_ordering"`
	LeaderLockTTL  time.Duration `mapstructure:"leader_lock_ttl"`
}

type MaintenanceConfig struct {
	// Retention is the audit window terminal rows are kept for before purge.
	Retention time.Duration `mapstructure:"retention"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("EVENTRELAY")
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/eventrelay")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Relay.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("relay.poll_interval must be positive"))
	}
	if c.Relay.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("relay.batch_size must be positive"))
	}
	if c.Relay.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("relay.max_retries must be positive"))
	}
	if c.Relay.PublishTimeout <= 0 {
		errs = append(errs, fmt.Errorf("relay.publish_timeout must be positive"))
	}
	if c.Relay.ClaimLease <= 0 {
		errs = append(errs, fmt.Errorf("relay.claim_lease must be positive"))
	}
	if c.Relay.ClaimLease <= c.Relay.PublishTimeout {
		errs = append(errs, fmt.Errorf("relay.claim_lease must exceed relay.publish_timeout, otherwise in-flight claims expire mid-publish"))
	}

	switch c.Publisher.Kind {
	case "redis":
		if c.Redis.Port <= 0 {
			errs = append(errs, fmt.Errorf("redis.port must be positive"))
		}
		if c.Publisher.Stream == "" {
			errs = append(errs, fmt.Errorf("publisher.stream is required for the redis publisher"))
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, fmt.Errorf("kafka.brokers is required for the kafka publisher"))
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, fmt.Errorf("kafka.topic is required for the kafka publisher"))
		}
	default:
		errs = append(errs, fmt.Errorf("publisher.kind must be redis or kafka, got %q", c.Publisher.Kind))
	}

	if c.Relay.StrictOrdering && c.Relay.LeaderLockTTL <= 0 {
		errs = append(errs, fmt.Errorf("relay.leader_lock_ttl must be positive when strict ordering is enabled"))
	}
	if c.Maintenance.Retention <= 0 {
		errs = append(errs, fmt.Errorf("maintenance.retention must be positive"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "eventrelay")
	v.SetDefault("database.database", "eventrelay")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.connect_retry_delay", "1s")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "")
	v.SetDefault("kafka.required_acks", -1)
	v.SetDefault("kafka.max_retries", 3)

	// Publisher defaults
	v.SetDefault("publisher.kind", "redis")
	v.SetDefault("publisher.stream", "outbox:events")
	v.SetDefault("publisher.dead_letter_stream", "outbox:dlq")
	v.SetDefault("publisher.breaker_threshold", 10)
	v.SetDefault("publisher.breaker_timeout", "30s")

	// Relay defaults
	v.SetDefault("relay.poll_interval", "2s")
	v.SetDefault("relay.batch_size", 50)
	v.SetDefault("relay.max_retries", 5)
	v.SetDefault("relay.initial_interval", "5s")
	v.SetDefault("relay.interval_increment", "5s")
	v.SetDefault("relay.claim_lease", "1m")
	v.SetDefault("relay.publish_timeout", "10s")
	v.SetDefault("relay.shutdown_timeout", "30s")
	v.SetDefault("relay.strict_ordering", false)
	v.SetDefault("relay.leader_lock_ttl", "30s")

	// Maintenance defaults
	v.SetDefault("maintenance.retention", "168h")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", defaultInstanceID())
}

// defaultInstanceID derives a per-process claimant identity. Replicas must
// not share a claimed_by value or claim release loses its ownership scoping,
// so the fallback is hostname plus a random suffix rather than a constant.
func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "relay"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
