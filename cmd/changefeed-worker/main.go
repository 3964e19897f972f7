package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/patient-intake/internal/changefeed"
	"github.com/hackgods/patient-intake/internal/config"
	"github.com/hackgods/patient-intake/internal/db"
	"github.com/hackgods/patient-intake/internal/logging"
	redisclient "github.com/hackgods/patient-intake/internal/redis"
)

// changefeed-worker is the standalone LISTEN bridge for deployments that run
// several api-servers with EMBEDDED_CHANGEFEED=false.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("dev", "info").Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "changefeed-worker").Logger()
	log.Info().Str("env", cfg.Env).Msg("changefeed-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// one connection for LISTEN plus headroom for the pool's health checks
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:       cfg.RedisAddr,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
		ClientName: "intake-changefeed",
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

	broker := redisclient.NewBroker(rdb, redisclient.ChangesChannel, log)
	listen := func(ctx context.Context, fn func(string)) error {
		return db.Listen(ctx, pgPool, db.PatientChangesChannel, fn)
	}

	changefeed.NewRelay(listen, broker, log).Run(rootCtx)
	log.Info().Msg("shutdown signal received, changefeed-worker stopped")
}
