package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cdss/cdss/internal/config"
	"github.com/cdss/cdss/internal/domain/abstraction"
	"github.com/cdss/cdss/internal/domain/catalog"
	"github.com/cdss/cdss/internal/domain/inference"
	"github.com/cdss/cdss/internal/domain/ledger"
	"github.com/cdss/cdss/internal/domain/patient"
	"github.com/cdss/cdss/internal/platform/auth"
	"github.com/cdss/cdss/internal/platform/db"
	"github.com/cdss/cdss/internal/platform/middleware"
	"github.com/cdss/cdss/internal/platform/sandbox"
	"github.com/cdss/cdss/internal/rules"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cdss-server",
		Short: "Clinical decision-support API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
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

			count, err := db.NewMigrator(pool, cfg.MigrationsDir).Up(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int("applied", count).Msg("migrations applied")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			statuses, err := db.NewMigrator(pool, cfg.MigrationsDir).Status(ctx)
			if err != nil {
				return err
			}
			for _, st := range statuses {
				state := "pending"
				if st.Applied {
					state = "applied " + st.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%3d  %-40s %s\n", st.Version, st.Name, state)
			}
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with reproducible demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rb, err := rules.Load(cfg.RulebookPath)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			patientRepo := patient.NewRepoPG(pool)
			catalogRepo := catalog.NewRepoPG(pool)
			ledgerRepo := ledger.NewRepoPG(pool)
			intervalRepo := abstraction.NewRepoPG(pool)

			patientSvc := patient.NewService(patientRepo)
			catalogSvc := catalog.NewService(catalogRepo)
			ledgerSvc := ledger.NewService(ledgerRepo, patientRepo, catalogRepo, pool)
			abstractionSvc := abstraction.NewService(rb, ledgerSvc, patientRepo, intervalRepo, pool, logger)

			seeder := sandbox.NewSeeder(patientSvc, catalogSvc, ledgerSvc, abstractionSvc, logger)
			seedCfg := sandbox.DefaultSeedConfig()
			if patients, _ := cmd.Flags().GetInt("patients"); patients > 0 {
				seedCfg.PatientCount = patients
			}
			if days, _ := cmd.Flags().GetInt("days"); days > 0 {
				seedCfg.Days = days
			}
			return seeder.Run(ctx, seedCfg)
		},
	}
	cmd.Flags().Int("patients", 0, "number of patients to seed")
	cmd.Flags().Int("days", 0, "days of measurement history per patient")
	return cmd
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	rb, err := rules.Load(cfg.RulebookPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load rulebook")
	}
	logger.Info().
		Int("abstractions", len(rb.Abstractions)).
		Int("combination_rules", len(rb.CombinationRules)).
		Int("procedural_rules", len(rb.ProceduralRules)).
		Msg("rulebook loaded")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health endpoints stay unauthenticated; everything under /api requires
	// an identity.
	authMW := auth.JWTMiddleware(auth.JWTConfig{
		SigningKey: []byte(cfg.JWTSigningKey),
	})
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware()
	}

	// Repositories and services
	patientRepo := patient.NewRepoPG(pool)
	catalogRepo := catalog.NewRepoPG(pool)
	ledgerRepo := ledger.NewRepoPG(pool)
	intervalRepo := abstraction.NewRepoPG(pool)

	patientSvc := patient.NewService(patientRepo)
	catalogSvc := catalog.NewService(catalogRepo)
	ledgerSvc := ledger.NewService(ledgerRepo, patientRepo, catalogRepo, pool)
	abstractionSvc := abstraction.NewService(rb, ledgerSvc, patientRepo, intervalRepo, pool, logger)
	inferenceSvc := inference.NewService(rb, patientRepo, abstractionSvc, logger)

	api := e.Group("/api", authMW)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	catalog.NewHandler(catalogSvc).RegisterRoutes(api)
	ledger.NewHandler(ledgerSvc).RegisterRoutes(api)
	abstraction.NewHandler(abstractionSvc).RegisterRoutes(api)
	inference.NewHandler(inferenceSvc).RegisterRoutes(api)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
