package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/ehr/opdflow/internal/cli"
	"github.com/ehr/opdflow/internal/config"
	"github.com/ehr/opdflow/internal/domain/visitflow"
	"github.com/ehr/opdflow/internal/platform/db"
	"github.com/ehr/opdflow/internal/platform/events"
	"github.com/ehr/opdflow/internal/platform/idempotency"
	"github.com/ehr/opdflow/internal/platform/metrics"
	"github.com/ehr/opdflow/internal/platform/middleware"
	"github.com/ehr/opdflow/internal/platform/websocket"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "opdflow",
		Short: "Outpatient visit flow server and client",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(cli.NewVisitCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the visit-flow API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, closePool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			migrator := db.NewMigrator(pool, os.DirFS(dir))
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, closePool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			migrator := db.NewMigrator(pool, os.DirFS(dir))
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			schema, err := db.SchemaFor(name)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, closePool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			fmt.Printf("Creating tenant schema: %s\n", schema)
			if err := db.CreateTenantSchema(ctx, pool, name, db.NewMigrator(pool, os.DirFS(dir))); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")

	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg, os.Stdout)

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Stage-change fan-out
	hub := websocket.NewHub(logger)
	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	dispatcher := events.NewDispatcher(publisher, logger)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn().Err(err).Msg("close event publisher")
		}
	}()
	m := metrics.New()
	m.Gauge("websocket", "clients", "Connected websocket clients.", func() float64 { return float64(hub.ClientCount()) })

	svc := visitflow.NewService(visitflow.NewRepo(pool))
	svc.AddNotifier(hub)
	svc.AddNotifier(dispatcher)
	svc.AddNotifier(m)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID", "X-Facility-ID", idempotency.HeaderKey},
		ExposeHeaders: []string{idempotency.HeaderReplayed, "Retry-After"},
	}))

	// Health and metrics stay outside auth.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", m.Handler())

	authMW := authMiddleware(cfg)
	if cfg.ResolvedAuthMode() == config.AuthDevelopment {
		logger.Warn().Msg("development auth enabled: every request runs as an admin dev user")
	}

	// API group
	apiV1 := e.Group("/api/v1",
		authMW,
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		middleware.Entitlement(cfg.EntitledTenants),
		middleware.Audit(logger),
		middleware.RateLimit(rateLimitConfig(cfg)),
	)
	idemStore := idempotency.NewCacheStore(cfg.IdempotencyWindow())
	visitflow.NewHandler(svc).RegisterRoutes(apiV1, idempotency.Middleware(idemStore))

	// Realtime stage changes
	wsGroup := e.Group("", authMW, db.ResolveTenant(cfg.DefaultTenant), middleware.Entitlement(cfg.EntitledTenants))
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(wsGroup)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func openPool(ctx context.Context) (*pgxpool.Pool, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}
