// @title           Legal Aid Case Management API
// @version         1.0
// @description     Case lifecycle API for a legal-aid service: clients open cases, solicitors take and work them, admins assign and oversee.
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/internal/activity"
	"github.com/aldoetobex/legal-aid-backend/internal/auth"
	"github.com/aldoetobex/legal-aid-backend/internal/cache"
	"github.com/aldoetobex/legal-aid-backend/internal/cases"
	"github.com/aldoetobex/legal-aid-backend/internal/config"
	"github.com/aldoetobex/legal-aid-backend/internal/events"
	"github.com/aldoetobex/legal-aid-backend/internal/lifecycle"
	"github.com/aldoetobex/legal-aid-backend/internal/numbering"
	"github.com/aldoetobex/legal-aid-backend/internal/observability"
	"github.com/aldoetobex/legal-aid-backend/internal/ratings"
	"github.com/aldoetobex/legal-aid-backend/internal/stats"
	"github.com/aldoetobex/legal-aid-backend/internal/storage"
	"github.com/aldoetobex/legal-aid-backend/internal/users"
	"github.com/aldoetobex/legal-aid-backend/pkg/database"
	"github.com/aldoetobex/legal-aid-backend/pkg/logging"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.AppEnv, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	rdb := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer rdb.Close()
	if err := rdb.Ping(ctx); err != nil {
		log.Warn("redis unreachable; token revocation and stats cache disabled until it returns", "error", err)
	}

	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	defer publisher.Close()

	store, err := storage.New(ctx, cfg.StorageProvider, cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket, cfg.S3Bucket)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.New(reg)

	app := newApp(cfg, log, db, rdb, publisher, store, metrics)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", "port", cfg.Port, "env", cfg.AppEnv)
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newApp(
	cfg *config.Config,
	log *slog.Logger,
	db *gorm.DB,
	rdb *cache.Client,
	publisher events.Publisher,
	store storage.Store,
	metrics *observability.Metrics,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: auth.NewErrorHandler(log, cfg.IsProduction()),
		BodyLimit:    110 * 1024 * 1024, // 10 files × 10MB plus form overhead
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(requestLogger(log))
	app.Use(metrics.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api := app.Group("/api")
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL, rdb)
	authed := tokens.RequireAuth()

	// Auth
	authH := auth.NewHandler(db, tokens, log)
	api.Post("/signup", authH.Signup)
	api.Post("/login", authH.Login)
	api.Post("/logout", authed, authH.Logout)
	api.Get("/me", authed, authH.Me)

	// Users
	userH := users.NewHandler(db, log)
	api.Patch("/me/profile", authed, userH.UpdateProfile)
	api.Get("/solicitors", authed, userH.ListSolicitors)
	api.Patch("/admin/solicitors/:id", authed, auth.RequireRole(models.RoleAdmin), userH.UpdateSolicitor)

	// Cases
	now := time.Now
	caseSvc := cases.NewService(db, cases.Deps{
		Numbers:     numbering.NewGenerator(cfg.CaseNumberPrefix),
		Transitions: lifecycle.Machine{Strict: cfg.StrictTransitions},
		Recorder:    activity.NewRecorder(now),
		Events:      publisher,
		Metrics:     metrics,
		Log:         log,
		Now:         now,
		ResponseSLA: cfg.ResponseSLA,
		MaxAttempts: cfg.CaseNumberMaxAttempts,
	})
	caseH := cases.NewHandler(caseSvc, store, log)
	api.Post("/cases", authed, auth.RequireRole(models.RoleClient), caseH.Create)
	api.Get("/cases", authed, caseH.List)
	api.Get("/cases/available", authed, auth.RequireRole(models.RoleSolicitor, models.RoleAdmin), caseH.Available)
	api.Get("/cases/:id", authed, caseH.GetDetail)
	api.Patch("/cases/:id", authed, caseH.Update)
	api.Post("/cases/:id/status", authed, caseH.MoveStatus)
	api.Post("/cases/:id/assign", authed, auth.RequireRole(models.RoleAdmin), caseH.Assign)
	api.Post("/cases/:id/accept", authed, auth.RequireRole(models.RoleSolicitor), caseH.Accept)
	api.Get("/cases/:id/activities", authed, caseH.Timeline)
	api.Post("/cases/:id/notes", authed, caseH.AddNote)
	api.Get("/cases/:id/notes", authed, caseH.Notes)
	api.Post("/cases/:id/deadlines", authed, caseH.AddDeadline)
	api.Get("/cases/:id/deadlines", authed, caseH.Deadlines)
	api.Post("/deadlines/:id/complete", authed, caseH.CompleteDeadline)

	// Documents
	api.Post("/cases/:id/documents", authed, caseH.UploadDocuments)
	api.Get("/documents/:id/signed-url", authed, caseH.SignedDownloadURL)
	api.Delete("/documents/:id", authed, caseH.DeleteDocument)

	// Ratings
	rateH := ratings.NewHandler(db)
	api.Post("/solicitors/:id/ratings", authed, auth.RequireRole(models.RoleClient), rateH.Rate)
	api.Get("/solicitors/:id/ratings", authed, rateH.List)

	// Admin dashboard
	statH := stats.NewHandler(stats.NewService(db, rdb, cfg.StatsCacheTTL, log))
	api.Get("/admin/stats", authed, auth.RequireRole(models.RoleAdmin), statH.Overview)

	return app
}

// requestLogger writes one structured line per request.
func requestLogger(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := observability.StatusOf(c, err)
		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(c.UserContext(), level, "request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
		)
		return err
	}
}
