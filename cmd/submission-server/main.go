package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinichub/clinichub/internal/config"
	"github.com/clinichub/clinichub/internal/domain/anonymizer"
	"github.com/clinichub/clinichub/internal/domain/report"
	"github.com/clinichub/clinichub/internal/domain/submission"
	"github.com/clinichub/clinichub/internal/platform/auth"
	"github.com/clinichub/clinichub/internal/platform/backoff"
	"github.com/clinichub/clinichub/internal/platform/crypto"
	"github.com/clinichub/clinichub/internal/platform/db"
	"github.com/clinichub/clinichub/internal/platform/middleware"
	"github.com/clinichub/clinichub/internal/platform/pubsub"
	"github.com/clinichub/clinichub/internal/platform/validate"
	"github.com/clinichub/clinichub/internal/platform/websocket"
	"github.com/clinichub/clinichub/internal/platform/window"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "submission-server",
		Short: "Regulated batch submission API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the submission API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Stores: Postgres in normal operation, in-memory in sandbox mode.
	var (
		stores     submissionStores
		pgPool     *pgxpool.Pool
		reportRepo report.Repository
	)
	if cfg.Sandbox() {
		mem := submission.NewMemStore()
		memReports := report.NewInMemoryRepo()
		seedSandbox(mem, memReports, logger)
		reportRepo = memReports
		stores = submissionStores{
			batches:  mem.Batches(),
			queue:    mem.Queue(),
			receipts: mem.Receipts(),
			stats:    mem.Stats(),
			tx:       mem,
		}
		logger.Warn().Msg("sandbox mode: in-memory stores, simulated government API")
	} else {
		pgPool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to database")

		reportRepo = report.NewRepoPG(pgPool)
		stores = submissionStores{
			batches:  submission.NewBatchRepoPG(pgPool),
			queue:    submission.NewQueueRepoPG(pgPool),
			receipts: submission.NewReceiptRepoPG(pgPool),
			stats:    submission.NewStatsRepoPG(pgPool),
			tx:       submission.NewPGTxRunner(pgPool),
		}
	}

	// Payload encryption
	var encryptor crypto.Encryptor
	if cfg.PayloadEncryptionKey != "" {
		key, err := hex.DecodeString(cfg.PayloadEncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("PAYLOAD_ENCRYPTION_KEY must be hex")
		}
		encryptor, err = crypto.NewAEADEncryptor(key, cfg.PayloadKeyVersion)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create payload encryptor")
		}
		logger.Info().Str("key_version", cfg.PayloadKeyVersion).Msg("payload encryption enabled")
	} else {
		encryptor = crypto.Base64Encryptor{}
		logger.Warn().Msg("PAYLOAD_ENCRYPTION_KEY not set; payloads are only base64-encoded")
	}

	// Government client
	var gov submission.GovernmentClient
	if cfg.GovAPIURL != "" {
		gov = submission.NewHTTPGovClient(cfg.GovAPIURL, cfg.GovAPIKey, cfg.GovAPITimeout, logger)
	} else {
		gov = submission.NewSimulatedGovClient()
		logger.Warn().Msg("GOV_API_URL not set; using the simulated government client")
	}

	// Status fan-out: in-process bus plus the websocket hub.
	bus := pubsub.NewBus()
	hub := websocket.NewHub(logger)

	engine := submission.NewEngine(submission.EngineParams{
		Batches:    stores.batches,
		Queue:      stores.queue,
		Receipts:   stores.receipts,
		Stats:      stores.stats,
		Reports:    reportRepo,
		Tx:         stores.tx,
		Anonymizer: anonymizer.New(encryptor, cfg.PatientHashSalt),
		Gov:        gov,
		Gate:       window.NewGate(cfg.WindowStartDay, cfg.WindowEndDay),
		Backoff:    backoff.NewScheduler(cfg.RetryBaseDelay, cfg.RetryCapDelay),
		Bus:        bus,
		Publishers: []submission.StatusPublisher{hub},
		Logger:     logger,
		Config: submission.EngineConfig{
			MaxRetries:      cfg.MaxRetries,
			WorkerPoolSize:  cfg.WorkerPoolSize,
			LockExpiry:      cfg.LockExpiry,
			QueueItemMaxAge: cfg.QueueItemMaxAge,
		},
	})

	scheduler := submission.NewScheduler(engine, submission.SchedulerConfig{
		WindowCheckInterval: cfg.WindowCheckInterval,
		DrainInterval:       cfg.DrainInterval,
		ReclaimInterval:     cfg.LockExpiry / 2,
		CleanupInterval:     time.Hour,
	}, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Secret: []byte(cfg.AuthSecret),
		}))
	}

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if pgPool != nil {
		e.GET("/health/db", db.HealthHandler(pgPool))
	}

	// API routes
	apiV1 := e.Group("/api/v1")
	submission.NewHandler(engine).Register(apiV1)
	websocket.NewHandler(hub).RegisterRoutes(apiV1)

	// Graceful shutdown
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
	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// submissionStores groups the repository set handed to the engine so the
// sandbox and Postgres wirings stay symmetrical.
type submissionStores struct {
	batches  submission.BatchRepository
	queue    submission.QueueRepository
	receipts submission.ReceiptRepository
	stats    submission.StatsRepository
	tx       submission.TxRunner
}

// seedSandbox creates a small ready batch so the API is explorable without
// any external setup.
func seedSandbox(mem *submission.MemStore, reports *report.InMemoryRepo, logger zerolog.Logger) {
	now := time.Now()
	month := now.AddDate(0, -1, 0).Format("2006-01")

	ids := make([]uuid.UUID, 0, 3)
	for i, diagnosis := range []string{
		"J06.9 acute upper respiratory infection",
		"M54.5 low back pain",
		"I10 essential hypertension",
	} {
		r := &report.FinalizedReport{
			ID:                    uuid.New(),
			PatientID:             fmt.Sprintf("sandbox-patient-%d", i+1),
			Diagnosis:             diagnosis,
			PrescribedMedications: []string{"placebo 10mg"},
			ConsultationDate:      now.AddDate(0, -1, i),
			ConsultationType:      "in_person",
			DoctorID:              uuid.New(),
			DoctorName:            "Dr. Demo",
			GDPRConsentObtained:   true,
			CreatedAt:             now,
		}
		reports.Put(r)
		ids = append(ids, r.ID)
	}

	batch := &submission.Batch{
		ID:        uuid.New(),
		Month:     month,
		ReportIDs: ids,
		Status:    submission.StatusReady,
		CreatedBy: "dev-user",
		CreatedAt: now,
		UpdatedAt: now,
		Log: []submission.LogEntry{{
			Timestamp: now,
			Action:    submission.ActionCreated,
			Status:    submission.StatusReady,
			Details:   "sandbox seed batch",
			UserID:    "dev-user",
			UserRole:  "admin",
		}},
	}
	mem.PutBatch(batch)
	logger.Info().Str("batch_id", batch.ID.String()).Str("month", month).Msg("seeded sandbox batch")
}
