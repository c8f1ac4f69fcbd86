package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/guardpost/guardpost/internal/audit"
	"github.com/guardpost/guardpost/internal/equipment"
	"github.com/guardpost/guardpost/internal/lockdown"
	"github.com/guardpost/guardpost/internal/platform/cache"
	"github.com/guardpost/guardpost/internal/platform/db"
	"github.com/guardpost/guardpost/internal/users"
	"github.com/guardpost/guardpost/internal/vehicles"
	"github.com/guardpost/guardpost/migrations"
)

// Connect is the production Opener: PostgreSQL, Redis and the asynq queue
// the server and worker use.
func Connect(ctx context.Context, s Settings) (*Env, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", s.Timezone, err)
	}
	pool, err := db.New(ctx, s.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return nil, err
	}
	client, err := cache.New(ctx, cache.Options{Addr: s.RedisAddr, Password: s.RedisPassword, DB: s.RedisDB})
	if err != nil {
		pool.Close()
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store := audit.NewPGStore(pool)
	recorder := audit.NewRecorder(store, logger, nil)
	queue := NewJobsClient(asynq.RedisClientOpt{Addr: s.RedisAddr, Password: s.RedisPassword, DB: s.RedisDB})

	return &Env{
		Migrator: MigratorFunc(func(ctx context.Context) ([]string, error) {
			return db.Migrate(ctx, pool, migrations.FS)
		}),
		Accounts:  users.NewService(users.NewRepository(pool), recorder),
		Vehicles:  vehicles.NewService(vehicles.NewRepository(pool), recorder),
		Equipment: equipment.NewService(equipment.NewRepository(pool), recorder),
		Lockdown:  lockdown.NewGate(lockdown.NewRedisStore(client, ""), recorder, logger),
		Audit:     audit.NewService(store),
		Auditor:   recorder,
		Jobs:      queue,
		Location:  loc,
		Close: func() error {
			err := errors.Join(queue.Close(), client.Close())
			pool.Close()
			return err
		},
	}, nil
}
