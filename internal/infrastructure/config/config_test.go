package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Publisher: PublisherConfig{
			Kind:             "redis",
			Stream:           "outbox:events",
			DeadLetterStream: "outbox:dlq",
		},
		Relay: RelayConfig{
			PollInterval:      2 * time.Second,
			BatchSize:         50,
			MaxRetries:        5,
			InitialInterval:   5 * time.Second,
			IntervalIncrement: 5 * time.Second,
			ClaimLease:        time.Minute,
			PublishTimeout:    10 * time.Second,
		},
		Maintenance: MaintenanceConfig{
			Retention: 168 * time.Hour,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	err := validConfig().Validate()
	assert.NoError(t, err)
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_RelayPolicy(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"zero poll interval", func(c *Config) { c.Relay.PollInterval = 0 }, "relay.poll_interval"},
		{"zero batch size", func(c *Config) { c.Relay.BatchSize = 0 }, "relay.batch_size"},
		{"zero max retries", func(c *Config) { c.Relay.MaxRetries = 0 }, "relay.max_retries"},
		{"zero claim lease", func(c *Config) { c.Relay.ClaimLease = 0 }, "relay.claim_lease"},
		{"zero publish timeout", func(c *Config) { c.Relay.PublishTimeout = 0 }, "relay.publish_timeout"},
		{
			"lease shorter than publish timeout",
			func(c *Config) { c.Relay.ClaimLease = 5 * time.Second },
			"relay.claim_lease must exceed relay.publish_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestConfig_Validate_PublisherKind(t *testing.T) {
	t.Run("unknown kind rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Publisher.Kind = "rabbitmq"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "publisher.kind")
	})

	t.Run("kafka requires brokers and topic", func(t *testing.T) {
		cfg := validConfig()
		cfg.Publisher.Kind = "kafka"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kafka.brokers")
		assert.Contains(t, err.Error(), "kafka.topic")
	})

	t.Run("kafka valid", func(t *testing.T) {
		cfg := validConfig()
		cfg.Publisher.Kind = "kafka"
		cfg.Kafka.Brokers = []string{"localhost:9092"}
		cfg.Kafka.Topic = "outbox.events"

		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_Validate_StrictOrderingRequiresLockTTL(t *testing.T) {
	cfg := validConfig()
	cfg.Relay.StrictOrdering = true
	cfg.Relay.LeaderLockTTL = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay.leader_lock_ttl")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "relay",
		Password: "secret",
		Database: "outbox",
		SSLMode:  "require",
	}

	dsn := cfg.DatabaseDSN()
	assert.Equal(t, "host=db.internal port=5433 user=relay password=secret dbname=outbox sslmode=require", dsn)
}

func TestDefaultInstanceID_UniquePerProcess(t *testing.T) {
	first := defaultInstanceID()
	second := defaultInstanceID()

	assert.NotEmpty(t, first)
	// Replicas sharing one claimed_by would defeat claim ownership scoping.
	assert.NotEqual(t, first, second)
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := &RedisConfig{Host: "cache.internal", Port: 6380}
	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr())
}
