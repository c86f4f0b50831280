package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare-scheduling/internal/access"
	"github.com/hackgods/telecare-scheduling/internal/activity"
	"github.com/hackgods/telecare-scheduling/internal/api"
	"github.com/hackgods/telecare-scheduling/internal/appointment"
	"github.com/hackgods/telecare-scheduling/internal/availability"
	"github.com/hackgods/telecare-scheduling/internal/config"
	"github.com/hackgods/telecare-scheduling/internal/db"
	"github.com/hackgods/telecare-scheduling/internal/identity"
	"github.com/hackgods/telecare-scheduling/internal/logging"
	"github.com/hackgods/telecare-scheduling/internal/mail"
	"github.com/hackgods/telecare-scheduling/internal/metrics"
	"github.com/hackgods/telecare-scheduling/internal/notify"
	redisclient "github.com/hackgods/telecare-scheduling/internal/redis"
	"github.com/hackgods/telecare-scheduling/internal/slot"
)

var version = "dev"

// stores is the persistence a store driver provides.
type stores struct {
	pool         *pgxpool.Pool
	users        identity.Directory
	windows      availability.Repository
	appointments appointment.Repository
	grants       access.Repository
	activities   activity.Recorder
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Init("api-server", cfg.Env)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreDriver).
		Str("version", version).
		Msg("api-server starting up")

	policy, err := slot.ParsePolicy(cfg.SlotPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid SLOT_POLICY")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	st, err := openStores(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store setup failed")
	}
	if st.pool != nil {
		defer st.pool.Close()
	}

	locker, rdb, err := openLocker(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
	}

	dispatcher := notify.NewDispatcher(st.users, newMailer(cfg, logger), st.activities, m, logger)

	windows := availability.NewService(st.windows, logger)
	ledger := appointment.NewService(st.appointments, windows, st.users, locker,
		appointment.WithLocation(cfg.Location()),
		appointment.WithPolicy(policy),
		appointment.WithLogger(logger),
		appointment.WithMetrics(m),
		appointment.WithPublisher(dispatcher),
	)
	grants := access.NewService(st.grants, ledger, m, logger)
	tokens := identity.NewTokens(cfg.JWTSecret, cfg.JWTIssuer)

	if dir, ok := st.users.(*identity.MemoryDirectory); ok {
		bootstrapDemo(dir, tokens, logger)
	}

	router := api.NewRouter(api.RouterConfig{
		Availability:   windows,
		Ledger:         ledger,
		Access:         grants,
		Tokens:         tokens,
		Metrics:        m,
		Gatherer:       reg,
		Logger:         logger,
		PgPool:         st.pool,
		Redis:          rdb,
		Location:       cfg.Location(),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		logger.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	dispatcher.Wait()

	logger.Info().Msg("api-server stopped")
}

func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (stores, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return stores{
			users:        identity.NewMemoryDirectory(),
			windows:      availability.NewMemoryRepository(),
			appointments: appointment.NewMemoryRepository(),
			grants:       access.NewMemoryRepository(),
			activities:   activity.NewLogRecorder(logger),
		}, nil
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	if err != nil {
		return stores{}, fmt.Errorf("postgres connection error: %w", err)
	}
	if err := db.Migrate(pgCtx, pool); err != nil {
		pool.Close()
		return stores{}, err
	}
	logger.Info().Msg("connected to Postgres")

	return stores{
		pool:         pool,
		users:        identity.NewPgDirectory(pool),
		windows:      availability.NewPgRepository(pool),
		appointments: appointment.NewPgRepository(pool),
		grants:       access.NewPgRepository(pool),
		activities:   activity.NewPgRecorder(pool),
	}, nil
}

// openLocker uses Redis when it is configured and an in-process locker
// otherwise, which only serializes bookings within this instance.
func openLocker(ctx context.Context, cfg config.Config, logger zerolog.Logger) (redisclient.Locker, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		logger.Warn().Msg("REDIS_ADDR not set; day locks are process-local")
		return redisclient.NewLocalLocker(), nil, nil
	}

	rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	return redisclient.NewRedisDayLocker(rdb, cfg.LockTTL, cfg.LockWait), rdb, nil
}

func newMailer(cfg config.Config, logger zerolog.Logger) mail.Mailer {
	if cfg.MailDriver != "smtp" {
		return mail.NewLogMailer(logger)
	}
	smtp := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
	return mail.NewBreakerMailer(smtp, logger)
}

// bootstrapDemo registers one user per role in memory mode and logs their
// tokens so the API can be exercised without a seeded database.
func bootstrapDemo(dir *identity.MemoryDirectory, tokens *identity.Tokens, logger zerolog.Logger) {
	demo := []identity.User{
		{ID: uuid.New(), Role: identity.RoleProvider, DisplayName: "Demo Provider", Email: "provider@telecare.local"},
		{ID: uuid.New(), Role: identity.RolePatient, DisplayName: "Demo Patient", Email: "patient@telecare.local"},
		{ID: uuid.New(), Role: identity.RoleAdmin, DisplayName: "Demo Admin", Email: "admin@telecare.local"},
	}
	for _, u := range demo {
		dir.Put(u)
		tok, err := tokens.Issue(identity.Caller{ID: u.ID, Role: u.Role}, 24*time.Hour)
		if err != nil {
			logger.Error().Err(err).Msg("issue demo token")
			continue
		}
		logger.Info().
			Str("user_id", u.ID.String()).
			Str("role", string(u.Role)).
			Str("token", tok).
			Msg("demo user")
	}
}
