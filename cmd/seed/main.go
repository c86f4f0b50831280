package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare-scheduling/internal/availability"
	"github.com/hackgods/telecare-scheduling/internal/config"
	"github.com/hackgods/telecare-scheduling/internal/db"
	"github.com/hackgods/telecare-scheduling/internal/identity"
	"github.com/hackgods/telecare-scheduling/internal/logging"
	"github.com/hackgods/telecare-scheduling/internal/slot"
)

const (
	providerCount = 50
	patientCount  = 2000
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Init("seed", cfg.Env)
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	faker := gofakeit.New(0)
	users := identity.NewPgDirectory(pool)
	windows := availability.NewService(availability.NewPgRepository(pool), zerolog.Nop())

	if err := seedProviders(ctx, faker, users, windows, providerCount, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed providers")
	}
	if err := seedUsers(ctx, faker, users, identity.RolePatient, patientCount, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedUsers(ctx, faker, users, identity.RoleAdmin, 1, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed admin")
	}

	logger.Info().Msg("seed complete")
}

// seedProviders creates providers with a weekday window each, Monday to
// Friday, starting between 08:00 and 10:00 and lasting three to six hours.
func seedProviders(ctx context.Context, faker *gofakeit.Faker, users *identity.PgDirectory, windows *availability.Service, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding providers")

	for i := 0; i < count; i++ {
		id := uuid.New()
		u := identity.User{
			ID:          id,
			Role:        identity.RoleProvider,
			DisplayName: "Dr. " + faker.Name(),
			Email:       uniqueEmail(faker, id),
		}
		if err := users.Upsert(ctx, u); err != nil {
			return err
		}

		loc := &slot.Location{
			Address:   faker.Street() + ", " + faker.City(),
			Latitude:  faker.Latitude(),
			Longitude: faker.Longitude(),
		}
		for day := 1; day <= 5; day++ {
			start := slot.ClockTime(faker.Number(16, 20) * 30)
			end := start + slot.ClockTime(faker.Number(6, 12)*30)
			if _, err := windows.SetWindow(ctx, u.ID, day, start.String(), end.String(), loc); err != nil {
				return err
			}
		}
	}

	logger.Info().Msg("providers seeded")
	return nil
}

func seedUsers(ctx context.Context, faker *gofakeit.Faker, users *identity.PgDirectory, role identity.Role, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Str("role", string(role)).Msg("seeding users")

	for i := 0; i < count; i++ {
		id := uuid.New()
		err := users.Upsert(ctx, identity.User{
			ID:          id,
			Role:        role,
			DisplayName: faker.Name(),
			Email:       uniqueEmail(faker, id),
		})
		if err != nil {
			return err
		}
		if (i+1)%500 == 0 {
			logger.Info().Int("done", i+1).Int("total", count).Msg("users seeded")
		}
	}
	return nil
}

// uniqueEmail keeps faker addresses clear of the users.email constraint.
func uniqueEmail(faker *gofakeit.Faker, id uuid.UUID) string {
	return fmt.Sprintf("%s.%s@%s", strings.ToLower(faker.Username()), id.String()[:8], faker.DomainName())
}
