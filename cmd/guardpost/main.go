package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/guardpost/guardpost/internal/app"
	"github.com/guardpost/guardpost/internal/audit"
	audithttp "github.com/guardpost/guardpost/internal/audit/http"
	"github.com/guardpost/guardpost/internal/auth"
	"github.com/guardpost/guardpost/internal/chat"
	"github.com/guardpost/guardpost/internal/dashboard"
	"github.com/guardpost/guardpost/internal/equipment"
	"github.com/guardpost/guardpost/internal/lockdown"
	"github.com/guardpost/guardpost/internal/observability"
	"github.com/guardpost/guardpost/internal/platform/cache"
	"github.com/guardpost/guardpost/internal/platform/db"
	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/search"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/users"
	"github.com/guardpost/guardpost/internal/vehicles"
	"github.com/guardpost/guardpost/internal/view"
	"github.com/guardpost/guardpost/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("guardpost exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return err
	}
	renderer := view.Renderer{Engine: templates, CSRF: csrfManager, Logger: logger}

	auditStore := audit.NewPGStore(pool)
	auditor := audit.NewRecorder(auditStore, logger, metrics.Registerer())

	gate := lockdown.NewGate(lockdownStore(cfg, redisClient), auditor, logger)
	guard := rbac.Guard{
		RBAC:     rbac.Middleware{Identities: rbac.NewService(pool), Audit: auditor, Logger: logger},
		Lockdown: gate.Enforce,
	}

	chatHandler, chatHub, stopChat, err := buildChat(ctx, cfg, pool, redisClient, metrics, logger, templates, csrfManager, guard)
	if err != nil {
		return err
	}
	defer stopChat()

	dashboardService := dashboard.NewService(dashboard.NewRepository(pool), dashboard.NewCache(redisClient, cfg.DashboardCacheTTL, logger), loc, logger)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Renderer:         renderer,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Guard:            guard,
		Lockdown:         gate,
		AuthHandler:      auth.NewHandler(logger, auth.NewService(auth.NewRepository(pool)), renderer, sessionManager, auditor, cfg.LoginRateLimit),
		LockdownHandler:  lockdown.NewHandler(logger, gate, templates, csrfManager, guard),
		UsersHandler:     users.NewHandler(logger, users.NewService(users.NewRepository(pool), auditor), renderer, guard),
		VehiclesHandler:  vehicles.NewHandler(logger, vehicles.NewService(vehicles.NewRepository(pool), auditor), renderer, guard),
		EquipmentHandler: equipment.NewHandler(logger, equipment.NewService(equipment.NewRepository(pool), auditor), renderer, guard),
		DashboardHandler: dashboard.NewHandler(logger, dashboardService, renderer, auditor, guard),
		ChatHandler:      chatHandler,
		AuditHandler:     audithttp.NewHandler(logger, audit.NewService(auditStore), audit.NewExporter(loc), templates, csrfManager, auditor, guard),
		SearchHandler:    search.NewHandler(logger, search.NewService(search.NewRepository(pool), auditor), renderer, guard),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	// Shutdown does not wait for hijacked websockets; hang them up so each
	// leaves presence.
	server.RegisterOnShutdown(chatHub.CloseAll)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func lockdownStore(cfg *app.Config, client *redis.Client) lockdown.Store {
	if cfg.LockdownBackend == app.BackendMemory {
		return lockdown.NewMemoryStore()
	}
	return lockdown.NewRedisStore(client, "")
}

// buildChat wires the hub with either in-process or Redis fan-out. The
// returned func stops the Redis subscription and releases this process's
// presence.
func buildChat(ctx context.Context, cfg *app.Config, pool *pgxpool.Pool, client *redis.Client, metrics *observability.Metrics, logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, guard rbac.Guard) (*chat.Handler, *chat.Hub, func(), error) {
	hub := chat.NewHub(logger, metrics.Registerer())
	var (
		bus      chat.Bus
		presence chat.Presence
		stop     = func() {}
	)
	switch cfg.ChatBackend {
	case app.BackendMemory:
		bus = chat.NewLocalBus(hub)
		presence = chat.NewMemoryPresence()
	default:
		redisBus := chat.NewRedisBus(client, "", hub, logger)
		if err := redisBus.Start(ctx); err != nil {
			return nil, nil, nil, err
		}
		redisPresence := chat.NewRedisPresence(client, "", chat.DefaultPresenceTTL, logger)
		if err := redisPresence.Heartbeat(ctx); err != nil {
			_ = redisBus.Close()
			return nil, nil, nil, err
		}
		heartbeatCtx, cancelHeartbeat := context.WithCancel(context.WithoutCancel(ctx))
		go redisPresence.Run(heartbeatCtx)
		bus = redisBus
		presence = redisPresence
		stop = func() {
			cancelHeartbeat()
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := redisPresence.Close(closeCtx); err != nil {
				logger.Warn("chat presence close", slog.Any("error", err))
			}
			if err := redisBus.Close(); err != nil {
				logger.Warn("chat bus close", slog.Any("error", err))
			}
		}
	}
	service := chat.NewService(chat.NewPGRepository(pool), presence, bus, logger)
	socket := chat.NewSocket(service, hub, logger, cfg.WSAllowedOrigins)
	return chat.NewHandler(logger, service, socket, templates, csrf, guard), hub, stop, nil
}
