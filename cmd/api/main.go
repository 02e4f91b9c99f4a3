package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authdesk.org/internal/audit"
	"authdesk.org/internal/auth"
	"authdesk.org/internal/config"
	"authdesk.org/internal/httpapi"
	"authdesk.org/internal/obs"
	"authdesk.org/internal/store/memory"
	"authdesk.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := obs.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	obs.Init()
	obs.InitBuildInfo(version, commit)

	auditLog := audit.New(logger)

	// Directories are Postgres-backed when a DSN is configured; otherwise the
	// service runs entirely in memory.
	var (
		probe httpapi.ReadyProbe
		dir   auth.Directory
		roles auth.RoleDirectory
		store *pg.Store
	)
	if cfg.PGDSN != "" {
		store, err = pg.Open(cfg.PGDSN)
		if err != nil {
			logger.Error("open database", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		dir = store.Users()
		roles = store.Roles()
		probe = httpapi.ReadyProbe{DB: store.DB()}
		logger.Info("using postgres directory")
	} else {
		dir = memory.NewUserDirectory()
		roles = memory.NewRoleDirectory()
		logger.Warn("no AUTHDESK_PG_DSN set, using in-memory directory")
	}

	hasher := auth.NewHasher(cfg.BcryptCost)
	codec, err := auth.NewCodec(cfg.TokenSecret, cfg.TokenIssuer, auth.WithTokenTTL(cfg.TokenTTL))
	if err != nil {
		logger.Error("token codec", "error", err)
		os.Exit(1)
	}

	registry := auth.NewRegistry(codec,
		auth.WithSweepInterval(cfg.SweepInterval),
		auth.WithRegistryLogger(logger),
		auth.WithAuditHook(auditLog.Hook()),
		auth.WithSweepObserver(func(_ int, elapsed time.Duration) {
			obs.SweepDuration.Observe(elapsed.Seconds())
		}),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry.Start(ctx)
	obs.RegisterRevokedGauge(registry.Size)

	svc, err := auth.NewService(dir, roles, codec, registry, hasher,
		auth.WithServiceLogger(logger),
		auth.WithServiceAudit(auditLog.Hook()),
	)
	if err != nil {
		logger.Error("auth service", "error", err)
		os.Exit(1)
	}
	admin, err := auth.NewAdminService(dir, roles, hasher, auditLog.Hook())
	if err != nil {
		logger.Error("admin service", "error", err)
		os.Exit(1)
	}

	api := httpapi.New(httpapi.Options{
		Service:        svc,
		Admin:          admin,
		Guard:          auth.NewGuard(),
		Audit:          auditLog,
		Logger:         logger,
		ReadyProbe:     probe,
		Version:        version,
		RateLimitRPS:   cfg.RateLimitPerSecond,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting authdesk-api", "version", version, "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	cancel()
	registry.Stop()
	logger.Info("stopped")
}
