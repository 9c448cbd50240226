package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/optoclinic/clinic/internal/config"
	"github.com/optoclinic/clinic/internal/domain/appointment"
	"github.com/optoclinic/clinic/internal/domain/consultation"
	"github.com/optoclinic/clinic/internal/domain/grading"
	"github.com/optoclinic/clinic/internal/platform/auth"
	"github.com/optoclinic/clinic/internal/platform/db"
	"github.com/optoclinic/clinic/internal/platform/middleware"
	"github.com/optoclinic/clinic/internal/platform/notification"
	"github.com/optoclinic/clinic/internal/platform/telemetry"
	"github.com/optoclinic/clinic/migrations"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clinic-server",
		Short:         "Optometry consultation API server and CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(consultCmd())
	root.AddCommand(flowCmd())
	return root
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the consultation API server",
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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrations(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(ctx context.Context, fn func(ctx context.Context, m *db.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2, MinConns: 1, ApplicationName: "clinic-migrate"})
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}

func printMigrations(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	tp, err := telemetry.InitTracer(ctx, telemetry.TracingConfig{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  "clinic-server",
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.TraceSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer tp.Shutdown(context.Background())

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "clinic-server",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.NewCollector()
	publisher := newPublisher(cfg, logger)
	if closer, ok := publisher.(io.Closer); ok {
		defer closer.Close()
	}

	apptSvc := appointment.NewService(appointment.NewRepo(pool))
	consultSvc := consultation.NewService(consultation.NewRepo(pool), apptSvc)
	consultSvc.SetPublisher(publisher)
	consultSvc.SetMetrics(metrics)
	consultSvc.SetLogger(logger)
	gradeSvc := grading.NewService(grading.NewRepo(pool), apptSvc)
	gradeSvc.SetPublisher(publisher)
	gradeSvc.SetMetrics(metrics)
	gradeSvc.SetLogger(logger)

	e := newEcho(cfg, logger, metrics)
	e.GET("/health", db.HealthHandler(pool, version))
	registerRoutes(e.Group("/api/v1"), cfg, logger, auditRecorder(publisher),
		appointment.NewHandler(apptSvc),
		consultation.NewHandler(consultSvc),
		grading.NewHandler(gradeSvc),
	)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
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
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) notification.Publisher {
	if len(cfg.KafkaBrokers) > 0 {
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing lifecycle events to kafka")
		return notification.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	return notification.NewLogPublisher(logger)
}

// newEcho builds the server with the global middleware chain. /health and
// /metrics sit outside the authenticated API group.
func newEcho(cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Collector) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	if cfg.MetricsEnabled {
		e.Use(middleware.Metrics(metrics))
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
	return e
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthIssuer == "" {
		return auth.DevAuthMiddleware()
	}
	jc := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.AuthSigningKey != "" {
		jc.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return auth.JWTMiddleware(jc)
}

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// auditRecorder forwards audit entries to the event stream as EventAudited.
func auditRecorder(p notification.Publisher) middleware.AuditRecorder {
	return middleware.AuditRecorderFunc(func(e middleware.AuditEntry) error {
		return p.Publish(context.Background(), notification.Event{
			Type:       notification.EventAudited,
			ActorID:    e.ActorID,
			OccurredAt: e.Timestamp,
			Attributes: map[string]string{
				"request_id": e.RequestID,
				"action":     e.Action,
				"route":      e.Route,
				"path":       e.Path,
				"status":     strconv.Itoa(e.StatusCode),
				"roles":      strings.Join(e.ActorRoles, ","),
			},
		})
	})
}

func registerRoutes(api *echo.Group, cfg *config.Config, logger zerolog.Logger, recorder middleware.AuditRecorder, handlers ...routeRegistrar) {
	api.Use(authMiddleware(cfg))
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	api.Use(middleware.Audit(logger, recorder))
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
}
