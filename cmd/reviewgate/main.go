// Package main is the entry point for the ReviewGate application.
// ReviewGate is an automated merge request review webhook service.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reviewgate/reviewgate/consts"
	"github.com/reviewgate/reviewgate/internal/activity"
	"github.com/reviewgate/reviewgate/internal/api/router"
	"github.com/reviewgate/reviewgate/internal/config"
	"github.com/reviewgate/reviewgate/internal/database"
	"github.com/reviewgate/reviewgate/internal/engine"
	hostgitlab "github.com/reviewgate/reviewgate/internal/host/gitlab"
	"github.com/reviewgate/reviewgate/internal/knowledge"
	"github.com/reviewgate/reviewgate/internal/llm"
	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/queue"
	"github.com/reviewgate/reviewgate/internal/server"
	"github.com/reviewgate/reviewgate/internal/store"
	"github.com/reviewgate/reviewgate/pkg/errors"
	"github.com/reviewgate/reviewgate/pkg/logger"
	"github.com/reviewgate/reviewgate/pkg/telemetry"
)

// Build information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func init() {
	consts.Version = Version
	consts.BuildTime = BuildTime
	consts.GitCommit = GitCommit
}

// configPath holds the path to the configuration file
var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "reviewgate",
	Short: "ReviewGate - Automated Merge Request Review Service",
	Long: `ReviewGate receives merge request webhooks from GitLab, runs a
deterministic check suite over the diff, matches the change against
promoted precedents, and posts a single summary comment per review run.`,
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ReviewGate server",
	Long: `Start the HTTP server and the review worker pool.

Configuration comes from config/reviewgate.yaml when present, overridden
by environment variables (DATABASE_URL, QUEUE_URL, HOST_TOKEN, ...).`,
	Run: runServe,
}

// ingestDocsCmd ingests engineering docs from a directory into the
// knowledge store, off the review hot path.
var ingestDocsCmd = &cobra.Command{
	Use:   "ingest-docs <dir>",
	Short: "Ingest engineering docs into the knowledge store",
	Long: `Walk a directory of engineering docs (markdown, text, asciidoc) and
upsert each file as a DOC knowledge source for the default tenant. Files
matching the privacy deny patterns are skipped; unchanged content dedupes
on its hash.`,
	Args: cobra.ExactArgs(1),
	Run:  runIngestDocs,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ReviewGate %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: config/reviewgate.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestDocsCmd)
	rootCmd.AddCommand(versionCmd)

	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().Int("port", 0, "server port (overrides config)")
	serveCmd.Flags().Bool("debug", false, "enable debug mode")
	serveCmd.Flags().Bool("check", false, "validate configuration and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runServe starts the ReviewGate server
func runServe(cmd *cobra.Command, args []string) {
	consts.SetStartedAt(time.Now())

	if configPath == "" {
		configPath = config.ConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override config with command line flags
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	}

	if validationErr := config.Validate(cfg); validationErr != nil {
		fmt.Fprintf(os.Stderr, "\n[ERROR] Configuration validation failed\n")
		fmt.Fprintf(os.Stderr, "Error Code: %s\n", validationErr.Code)
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", validationErr)
		os.Exit(errors.ExitCodeConfigValidation)
	}

	config.PrintStartupCheck(cfg)

	if checkOnly, _ := cmd.Flags().GetBool("check"); checkOnly {
		fmt.Println("Configuration OK")
		return
	}

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting ReviewGate",
		zap.String("version", Version),
	)

	// Initialize telemetry (OpenTelemetry traces and metrics)
	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown telemetry", zap.Error(err))
		}
	}()

	if err := database.Init(cfg.Database.URL); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	dataStore := store.NewStore(database.Get())

	tenant, err := bootstrapTenant(dataStore, cfg)
	if err != nil {
		logger.Fatal("Failed to bootstrap default tenant", zap.Error(err))
	}

	hostClient, err := hostgitlab.New(hostgitlab.Config{
		BaseURL: cfg.Host.BaseURL,
		Token:   cfg.Host.Token,
	})
	if err != nil {
		logger.Fatal("Failed to create host client", zap.Error(err))
	}

	var llmClient llm.Client
	if cfg.AI.Enabled {
		llmClient = llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL: cfg.AI.BaseURL,
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.AITimeout(),
		})
	}

	jobQueue := queue.NewDBQueue(database.Get(),
		queue.WithMaxStalledCount(cfg.Worker.MaxStalledCount),
	)

	reviewEngine := engine.New(engine.Config{
		Store:        dataStore,
		Host:         hostClient,
		Queue:        jobQueue,
		LLM:          llmClient,
		LockDuration: cfg.Worker.LockDuration(),
	})

	// Finalize runs orphaned by a previous crash, then keep sweeping.
	if n, err := engine.RecoverStaleRuns(dataStore); err != nil {
		logger.Warn("Stale run recovery failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("Stale runs force-failed at startup", zap.Int64("count", n))
	}
	recoveryCron := engine.StartRecoveryCron(dataStore)
	defer recoveryCron.Stop()

	dispatcher := engine.NewDispatcher(reviewEngine, engine.DispatcherConfig{
		Concurrency:     cfg.Worker.Concurrency,
		LockDuration:    cfg.Worker.LockDuration(),
		StalledInterval: cfg.Worker.StalledInterval(),
	})
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	intake := engine.NewIntake(dataStore, jobQueue, hostClient)
	activityBuf := activity.NewBuffer(activity.DefaultCapacity)

	srv := server.New(cfg, router.Deps{
		Intake:   intake,
		Store:    dataStore,
		Tenant:   tenant,
		Activity: activityBuf,
	})
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	logger.Info("ReviewGate server is running",
		zap.String("address", cfg.Server.Address()),
		zap.String("tenant", tenant.Slug),
	)

	srv.WaitForShutdown()

	logger.Info("ReviewGate stopped")
}

// runIngestDocs loads config, opens the database and ingests docs for the
// default tenant.
func runIngestDocs(cmd *cobra.Command, args []string) {
	if configPath == "" {
		configPath = config.ConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := database.Init(cfg.Database.URL); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	dataStore := store.NewStore(database.Get())
	tenant, err := bootstrapTenant(dataStore, cfg)
	if err != nil {
		logger.Fatal("Failed to bootstrap default tenant", zap.Error(err))
	}

	svc := knowledge.NewService(dataStore, 0)
	result, err := svc.IngestDocsDir(cmd.Context(), tenant.ID, args[0])
	if err != nil {
		logger.Fatal("Doc ingestion failed", zap.Error(err))
	}

	fmt.Printf("Scanned %d files: %d ingested, %d skipped\n",
		result.Scanned, result.Ingested, result.Skipped)
}

// bootstrapTenant ensures the default tenant exists and carries the
// configured webhook secret.
func bootstrapTenant(st store.Store, cfg *config.Config) (*model.Tenant, error) {
	tenant, err := st.Tenant().GetOrCreateBySlug(cfg.Tenant.DefaultSlug)
	if err != nil {
		return nil, err
	}

	if cfg.Host.WebhookSecret != "" && tenant.WebhookSecret("gitlab") != cfg.Host.WebhookSecret {
		if tenant.WebhookSecrets == nil {
			tenant.WebhookSecrets = model.JSONMap{}
		}
		tenant.WebhookSecrets["gitlab"] = cfg.Host.WebhookSecret
		if err := st.Tenant().Update(tenant); err != nil {
			return nil, err
		}
	}
	return tenant, nil
}
