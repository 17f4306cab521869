package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/noah-isme/clinic-workflow-api/api/swagger"
	"github.com/noah-isme/clinic-workflow-api/internal/handler"
	"github.com/noah-isme/clinic-workflow-api/internal/middleware"
	"github.com/noah-isme/clinic-workflow-api/internal/models"
	"github.com/noah-isme/clinic-workflow-api/internal/repository"
	"github.com/noah-isme/clinic-workflow-api/internal/service"
	"github.com/noah-isme/clinic-workflow-api/migrations"
	"github.com/noah-isme/clinic-workflow-api/pkg/cache"
	"github.com/noah-isme/clinic-workflow-api/pkg/config"
	"github.com/noah-isme/clinic-workflow-api/pkg/database"
	"github.com/noah-isme/clinic-workflow-api/pkg/export"
	"github.com/noah-isme/clinic-workflow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/clinic-workflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/clinic-workflow-api/pkg/middleware/requestid"
	"github.com/noah-isme/clinic-workflow-api/pkg/storage"
)

// @title Clinic Workflow API
// @version 1.0.0
// @description Appointment booking, test result verification, notifications and audit trail for a diagnostics clinic.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	root := &cobra.Command{
		Use:           "clinic-api",
		Short:         "Diagnostics clinic workflow API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), userCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("clinic-api: %v", err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
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
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := database.NewPostgres(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			count, err := database.NewMigrator(db, migrations.Files).Up(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	})
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage clinic accounts",
	}
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			rawRole, _ := cmd.Flags().GetString("role")

			role, ok := models.ParseRole(rawRole)
			if !ok {
				return fmt.Errorf("role must be one of admin, staff, doctor, patient")
			}
			if strings.TrimSpace(email) == "" || len(password) < 8 {
				return fmt.Errorf("email and a password of at least 8 characters are required")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := database.NewPostgres(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			user := &models.User{
				Email:        strings.TrimSpace(email),
				PasswordHash: string(hash),
				FullName:     name,
				Role:         role,
				Active:       true,
			}
			if err := repository.NewUserRepository(db).Create(cmd.Context(), user); err != nil {
				return err
			}
			fmt.Printf("Created %s account %d (%s).\n", user.Role, user.ID, user.Email)
			return nil
		},
	}
	create.Flags().String("email", "", "Login email")
	create.Flags().String("password", "", "Initial password")
	create.Flags().String("name", "", "Full name")
	create.Flags().String("role", string(models.RoleAdmin), "admin, staff, doctor or patient")
	cmd.AddCommand(create)
	return cmd
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	files, err := newFileStore(ctx, cfg.Results)
	if err != nil {
		return fmt.Errorf("init result storage: %w", err)
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	checks := map[string]handler.Pinger{"postgres": handler.PingFunc(db.PingContext)}
	notificationOpts := []service.NotificationOption{service.WithNotificationMetrics(metrics)}
	if cfg.Notifications.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		cacheRepo := repository.NewCacheRepository(client, logr)
		checks["redis"] = cacheRepo
		notificationOpts = append(notificationOpts, service.WithNotificationCache(
			service.NewCacheService(cacheRepo, metrics, cfg.Notifications.CacheTTL, logr, true),
		))
	}

	router := newRouter(cfg, logr, db, files, metrics, checks, notificationOpts)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logr.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newFileStore(ctx context.Context, cfg config.ResultsConfig) (storage.FileStore, error) {
	if cfg.StorageDriver == config.StorageDriverS3 {
		return storage.NewS3Storage(ctx, cfg.S3Bucket, cfg.S3Prefix)
	}
	return storage.NewLocalStorage(cfg.StorageDir)
}

func newRouter(
	cfg *config.Config,
	logr *zap.Logger,
	db *sqlx.DB,
	files storage.FileStore,
	metrics *service.MetricsService,
	checks map[string]handler.Pinger,
	notificationOpts []service.NotificationOption,
) *gin.Engine {
	validate := service.NewValidator()
	tx := database.NewTxManager(db)

	appointmentRepo := repository.NewAppointmentRepository(db)
	resultRepo := repository.NewTestResultRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	patientRepo := repository.NewPatientRepository(db)
	userRepo := repository.NewUserRepository(db)

	audit := service.NewAuditService(activityRepo, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	appointmentSvc := service.NewAppointmentService(appointmentRepo, tx, audit, validate, logr,
		service.AppointmentServiceConfig{EnforceTransitions: cfg.Appointments.EnforceTransitions},
		service.WithAppointmentMetrics(metrics))
	resultSvc := service.NewResultService(resultRepo, appointmentRepo, appointmentSvc, patientRepo, files,
		storage.NewSignedURLSigner(cfg.Results.SignedURLSecret, cfg.Results.SignedURLTTL), tx, audit, logr,
		service.ResultServiceConfig{
			MaxFileSize:     cfg.Results.MaxFileSizeBytes,
			AllowRedecision: cfg.Results.AllowRedecision,
			APIPrefix:       cfg.APIPrefix,
		},
		service.WithResultMetrics(metrics))
	notificationSvc := service.NewNotificationService(notificationRepo, tx, audit, logr, notificationOpts...)
	activitySvc := service.NewActivityLogService(activityRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	r.Use(middleware.WithResponseMeta())

	var metricsHandler *handler.MetricsHandler
	if metrics != nil {
		metricsHandler = handler.NewMetricsHandler(metrics, checks)
	} else {
		r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
		r.GET("/ready", handler.NewMetricsHandler(nil, checks).Ready)
	}

	handler.RegisterRoutes(r, r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Appointments:  handler.NewAppointmentHandler(appointmentSvc),
		Results:       handler.NewResultHandler(resultSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		ActivityLogs:  handler.NewActivityLogHandler(activitySvc),
		Metrics:       metricsHandler,
	}, authSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	return r
}
