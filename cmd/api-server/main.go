package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/patient-intake/internal/api"
	"github.com/hackgods/patient-intake/internal/changefeed"
	"github.com/hackgods/patient-intake/internal/config"
	"github.com/hackgods/patient-intake/internal/db"
	"github.com/hackgods/patient-intake/internal/logging"
	"github.com/hackgods/patient-intake/internal/messaging"
	"github.com/hackgods/patient-intake/internal/patient"
	"github.com/hackgods/patient-intake/internal/realtime"
	redisclient "github.com/hackgods/patient-intake/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("dev", "info").Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "api-server").Logger()
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	if cfg.MigrateOnStart {
		n, err := db.Migrate(rootCtx, pgPool, log)
		if err != nil {
			log.Fatal().Err(err).Msg("migration error")
		}
		log.Info().Int("applied", n).Msg("schema up to date")
	}

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:       cfg.RedisAddr,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
		ClientName: "intake-api",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	events := newPublisher(cfg, log)
	defer events.Close()

	repo := patient.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSessionLocker(rdb, cfg.LockTTL, cfg.LockWait)
	svc := patient.NewService(repo, locker, events, log)

	broker := redisclient.NewBroker(rdb, redisclient.ChangesChannel, log)
	hub := realtime.NewHub(log)
	go subscribeLoop(rootCtx, broker, hub, log)

	if cfg.EmbeddedChangefeed {
		listen := func(ctx context.Context, fn func(string)) error {
			return db.Listen(ctx, pgPool, db.PatientChangesChannel, fn)
		}
		go changefeed.NewRelay(listen, broker, log).Run(rootCtx)
		log.Info().Msg("embedded changefeed started")
	}

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Realtime: realtime.NewHandler(hub, log),
		Postgres: pgPool,
		Redis:    api.RedisPinger{Client: rdb},
		Logger:   log,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}

func newPublisher(cfg config.Config, log zerolog.Logger) messaging.Publisher {
	if cfg.RabbitMQURL == "" {
		log.Info().Msg("RABBITMQ_URL not set, lifecycle events disabled")
		return messaging.NopPublisher{}
	}
	pub, err := messaging.NewAMQPPublisher(cfg.RabbitMQURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq connection error")
	}
	return pub
}

// subscribeLoop feeds the hub from Redis for the life of the process.
func subscribeLoop(ctx context.Context, broker *redisclient.Broker, hub *realtime.Hub, log zerolog.Logger) {
	for {
		err := broker.Subscribe(ctx, hub.Relay)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("change subscription lost, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
