package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/telecare-scheduling/internal/activity"
	"github.com/hackgods/telecare-scheduling/internal/appointment"
	"github.com/hackgods/telecare-scheduling/internal/availability"
	"github.com/hackgods/telecare-scheduling/internal/config"
	"github.com/hackgods/telecare-scheduling/internal/db"
	"github.com/hackgods/telecare-scheduling/internal/identity"
	"github.com/hackgods/telecare-scheduling/internal/logging"
	"github.com/hackgods/telecare-scheduling/internal/mail"
	"github.com/hackgods/telecare-scheduling/internal/notify"
	redisclient "github.com/hackgods/telecare-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Init("completion-worker", cfg.Env)
	if cfg.StoreDriver != "postgres" {
		logger.Fatal().Str("store", cfg.StoreDriver).Msg("completion worker needs the postgres store")
	}
	logger.Info().Dur("interval", cfg.WorkerInterval).Msg("completion worker starting")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	users := identity.NewPgDirectory(pgPool)
	dispatcher := notify.NewDispatcher(users, mail.NewLogMailer(logger), activity.NewPgRecorder(pgPool), nil, logger)

	// The sweep never allocates, so the day lock is never taken.
	ledger := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		availability.NewService(availability.NewPgRepository(pgPool), logger),
		users,
		redisclient.NewLocalLocker(),
		appointment.WithLocation(cfg.Location()),
		appointment.WithLogger(logger),
		appointment.WithPublisher(dispatcher),
	)
	defer dispatcher.Wait()

	// Run once at startup
	runOnce(rootCtx, ledger, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, ledger, logger)
		}
	}
}

func runOnce(ctx context.Context, ledger *appointment.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := ledger.CompleteElapsed(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("completion run error")
		return
	}
	logger.Info().Int("completed", n).Dur("took", time.Since(start)).Msg("completion run complete")
}
