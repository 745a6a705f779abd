package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/eventrelay/internal/api"
	"github.com/cassiomorais/eventrelay/internal/bootstrap"
	"github.com/cassiomorais/eventrelay/internal/infrastructure/kafka"
	"github.com/cassiomorais/eventrelay/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/eventrelay/internal/infrastructure/redis"
	"github.com/cassiomorais/eventrelay/internal/publisher"
	"github.com/cassiomorais/eventrelay/internal/relay"
	"github.com/cassiomorais/eventrelay/internal/repository/postgres"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "eventrelay", "eventrelay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config
	store := postgres.NewOutboxStore(app.Pool)

	// The Redis stream publisher doubles as the dead-letter sink for both
	// broker backends.
	streamPub := infraRedis.NewStreamPublisher(app.Redis, cfg.Publisher.Stream, cfg.Publisher.DeadLetterStream)

	var brokerPub publisher.Publisher = streamPub
	if cfg.Publisher.Kind == "kafka" {
		kafkaPub, err := kafka.NewPublisher(&cfg.Kafka)
		if err != nil {
			app.Logger.Error().Err(err).Msg("Failed to create Kafka publisher")
			os.Exit(1)
		}
		defer kafkaPub.Close()
		brokerPub = kafkaPub
	}

	pub := publisher.NewBreakerPublisher(
		cfg.Publisher.Kind,
		brokerPub,
		cfg.Publisher.BreakerThreshold,
		cfg.Publisher.BreakerTimeout,
		publisher.WithStateChange(breakerGauge(app.Metrics)),
	)

	dispatcher := relay.NewDispatcher(store, pub,
		relay.Config{
			InstanceID:        cfg.InstanceID,
			PollInterval:      cfg.Relay.PollInterval,
			BatchSize:         cfg.Relay.BatchSize,
			MaxRetries:        cfg.Relay.MaxRetries,
			InitialInterval:   cfg.Relay.InitialInterval,
			IntervalIncrement: cfg.Relay.IntervalIncrement,
			ClaimLease:        cfg.Relay.ClaimLease,
			PublishTimeout:    cfg.Relay.PublishTimeout,
		},
		relay.WithLogger(observability.ComponentLogger(app.Logger, "dispatcher")),
		relay.WithMetrics(app.Metrics),
		relay.WithDeadLetterer(streamPub),
	)

	router := api.NewRouter(api.RouterDeps{
		Pool:        app.Pool,
		RedisClient: app.Redis,
		Store:       store,
		Retention:   cfg.Maintenance.Retention,
		Metrics:     app.Metrics,
		CORSConfig:  cfg.Server.CORS,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Dispatch loop. With strict ordering enabled a Redis leader lease
	// guarantees a single active dispatcher across replicas; otherwise every
	// replica dispatches and batches from different instances may interleave.
	g.Go(func() error {
		if cfg.Relay.StrictOrdering {
			lock := infraRedis.NewLeaderLock(app.Redis, "eventrelay:dispatcher", cfg.Relay.LeaderLockTTL)
			return lock.RunWhenLeader(gCtx, app.Logger, dispatcher.Run)
		}
		return dispatcher.Run(gCtx)
	})

	// 2. Operational HTTP server (health, metrics, admin).
	g.Go(func() error {
		app.Logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	// 3. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down relay...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Relay error")
	}
	app.Logger.Info().Msg("Relay exited")
}

func breakerGauge(m *observability.Metrics) func(name string, from, to gobreaker.State) {
	return func(name string, _, to gobreaker.State) {
		var v float64
		switch to {
		case gobreaker.StateClosed:
			v = 0
		case gobreaker.StateHalfOpen:
			v = 1
		case gobreaker.StateOpen:
			v = 2
		}
		m.BreakerState.WithLabelValues(name).Set(v)
	}
}
