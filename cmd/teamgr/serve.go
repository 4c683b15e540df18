package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/teamgr/internal/chat"
	"github.com/jonathan/teamgr/internal/config"
	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/extraction"
	"github.com/jonathan/teamgr/internal/llm"
	"github.com/jonathan/teamgr/internal/server"
	"github.com/jonathan/teamgr/internal/store"
)

var (
	serveConfigPath string
	servePort       int
	serveInMemory   bool
	serveVerbose    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server exposing the talent, entry, chat and auth endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to a JSON config file")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveInMemory, "memory", false, "Run with the in-memory store instead of PostgreSQL")
	serveCmd.Flags().BoolVar(&serveVerbose, "verbose", false, "Enable verbose logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ctx := context.Background()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	registry := dimension.NewRegistry(st)
	if err := registry.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed dimensions: %w", err)
	}

	client, err := llm.NewClient(ctx, modelConfig(cfg), cfg.APIKey, st)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer client.Close()

	jwtCfg, err := jwtConfig(cfg)
	if err != nil {
		return err
	}
	passwordCfg, err := config.NewPasswordConfig()
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Port:        cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
	}, server.Deps{
		Store:          st,
		Registry:       registry,
		Worker:         extraction.NewWorker(st, registry, client, time.Duration(cfg.JobTimeoutSeconds)*time.Second),
		Tracker:        extraction.NewTracker(st),
		Orchestrator:   chat.NewOrchestrator(st, registry, client),
		JWTConfig:      jwtCfg,
		PasswordConfig: passwordCfg,
		PasswordHash:   cfg.AccessPasswordHash,
	})

	return srv.Start()
}

// buildConfig layers file, environment and flag values. Flags win over env,
// env wins over file.
func buildConfig() (*config.Config, error) {
	var fileCfg config.Config
	if serveConfigPath != "" {
		loaded, err := config.LoadConfig(serveConfigPath)
		if err != nil {
			return nil, err
		}
		fileCfg = *loaded
	}

	envCfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	merged := envCfg.MergeWithDefaults(fileCfg)
	if servePort > 0 {
		merged.Port = servePort
	}
	merged.Verbose = serveVerbose || fileCfg.Verbose
	return &merged, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if serveInMemory || cfg.DatabaseURL == "" {
		log.Printf("[serve] no DATABASE_URL, using in-memory store")
		return store.NewMemory(), nil
	}

	pg, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return pg, nil
}

func modelConfig(cfg *config.Config) *llm.Config {
	mc := llm.DefaultGeminiConfig()
	if cfg.ModelLite != "" {
		mc = mc.WithModel(llm.TierLite, cfg.ModelLite)
	}
	if cfg.ModelStandard != "" {
		mc = mc.WithModel(llm.TierStandard, cfg.ModelStandard)
	}
	if cfg.ModelAdvanced != "" {
		mc = mc.WithModel(llm.TierAdvanced, cfg.ModelAdvanced)
	}
	return mc
}

// jwtConfig requires JWT_SECRET only when a shared password is configured.
// In open mode tokens are never checked, so an ephemeral secret suffices.
func jwtConfig(cfg *config.Config) (*config.JWTConfig, error) {
	jwtCfg, err := config.NewJWTConfig()
	if err == nil {
		return jwtCfg, nil
	}
	if cfg.AccessPasswordHash != "" {
		return nil, err
	}

	buf := make([]byte, 32)
	if _, randErr := rand.Read(buf); randErr != nil {
		return nil, fmt.Errorf("failed to generate ephemeral JWT secret: %w", randErr)
	}
	log.Printf("[serve] JWT_SECRET not set, using an ephemeral secret")
	return &config.JWTConfig{Secret: hex.EncodeToString(buf), ExpirationHours: 24}, nil
}
