package main

import (
	"context"
	"flag"
	"time"

	"beehive/internal/adapters/config"
	pgclient "beehive/internal/adapters/postgres"
	"beehive/internal/domain/levelconfig"
	pgrepo "beehive/internal/repository/postgres"
	"beehive/pkg/logger"
)

// Seeds the level configuration table with the default 19-level pricing and
// reward schedule. Existing rows are left untouched, so the seeder is safe
// to run repeatedly.
func main() {
	dryRun := flag.Bool("dry-run", false, "List levels without writing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()

	levels := levelconfig.Defaults()

	if *dryRun {
		for _, l := range levels {
			log.Infow("Level",
				"level", l.Level,
				"name", l.LevelName,
				"price_cents", l.PriceCents,
				"reward_cents", l.RewardAmountCents,
			)
		}
		return
	}

	pg, err := pgclient.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pg.Close()

	if err := pg.MigrateUp(pgrepo.Migrations); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := pgrepo.NewLevelConfigRepository(pg.DB())
	if err := repo.Seed(ctx, levels); err != nil {
		log.Fatalf("Failed to seed level config: %v", err)
	}

	log.Infow("Seeded level configuration", "levels", len(levels))
}
