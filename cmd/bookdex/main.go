package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"bookdex/internal/ai"
	"bookdex/internal/chunker"
	"bookdex/internal/config"
	"bookdex/internal/embedcache"
	"bookdex/internal/handler"
	"bookdex/internal/index"
	"bookdex/internal/ingest"
	"bookdex/internal/job"
	"bookdex/internal/middleware"
	"bookdex/internal/retrieval"
	"bookdex/internal/schedule"
	"bookdex/internal/source"
	"bookdex/internal/validate"
)

func main() {
	var configPath string
	var queriesPath string

	rootCmd := &cobra.Command{
		Use:   "bookdex",
		Short: "textbook retrieval backend",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "ingest the extracted corpus into the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(configPath)
			if err != nil {
				return err
			}
			return runIngest(cmd.Context(), cfg)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the retrieval API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "measure retrieval quality against a gold query set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(configPath)
			if err != nil {
				return err
			}
			return runValidate(cmd.Context(), cfg, queriesPath)
		},
	}
	validateCmd.Flags().StringVar(&queriesPath, "queries", "", "path to gold query set (json)")

	rootCmd.AddCommand(ingestCmd, serveCmd, validateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func setup(configPath string) (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	_ = godotenv.Load()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded",
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", cfg.AI.Model),
		zap.String("index", cfg.Index.Type),
	)
	return cfg, nil
}

type components struct {
	embedder ai.IEmbedder
	store    index.Store
	chunker  *chunker.Chunker
	service  *retrieval.Service
	orch     *ingest.Orchestrator
}

func build(cfg *config.Config) (*components, error) {
	provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	var embedder ai.IEmbedder = ai.NewClient(provider, cfg.AI)
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.CacheSize, time.Duration(cfg.AI.CacheTTLHours)*time.Hour)

	store, err := index.New(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("init index store: %w", err)
	}
	ck := chunker.New(cfg.Chunker)
	return &components{
		embedder: embedder,
		store:    store,
		chunker:  ck,
		service:  retrieval.NewService(embedder, store, cfg.Retrieval),
		orch:     ingest.New(ck, embedder, store, cfg.AI.Dimension, cfg.Schedule.Workers),
	}, nil
}

func runIngest(ctx context.Context, cfg *config.Config) error {
	comps, err := build(cfg)
	if err != nil {
		return err
	}
	src, err := source.New(cfg.Source)
	if err != nil {
		return fmt.Errorf("init page source: %w", err)
	}
	pages, err := src.Pages(ctx)
	if err != nil {
		return fmt.Errorf("load pages: %w", err)
	}
	report, err := comps.orch.Ingest(ctx, pages)
	if report != nil {
		fmt.Printf("pages: %d attempted, %d succeeded, %d failed\n",
			report.PagesAttempted, report.PagesSucceeded, report.PagesFailed)
		fmt.Printf("chunks: %d produced, %d vectors stored, took %s\n",
			report.ChunksProduced, report.VectorsStored, report.Duration.Round(time.Millisecond))
		for _, f := range report.Failures {
			fmt.Printf("failed: %s at %s: %s\n", f.URL, f.Stage, f.Reason)
		}
	}
	return err
}

func runValidate(ctx context.Context, cfg *config.Config, queriesPath string) error {
	if queriesPath == "" {
		return fmt.Errorf("--queries is required")
	}
	comps, err := build(cfg)
	if err != nil {
		return err
	}
	queries, err := validate.LoadQueries(queriesPath)
	if err != nil {
		return err
	}
	harness := validate.New(comps.service, cfg.Retrieval.TopK)
	report, err := harness.Run(ctx, queries)
	if err != nil {
		return err
	}
	fmt.Printf("queries: %d, mean precision=%.3f recall=%.3f accuracy=%.3f\n",
		len(report.Results), report.MeanPrecision, report.MeanRecall, report.MeanAccuracy)
	for _, cat := range report.Categories() {
		m := report.ByCategory[cat]
		fmt.Printf("  %-20s n=%d precision=%.3f recall=%.3f accuracy=%.3f\n",
			cat, m.Queries, m.MeanPrecision, m.MeanRecall, m.MeanAccuracy)
	}
	return nil
}

func runServer(cfg *config.Config) error {
	comps, err := build(cfg)
	if err != nil {
		return err
	}

	deps := handler.RouterDeps{
		Retrieve:        handler.NewRetrieveHandler(comps.service),
		Health:          handler.NewHealthHandler(comps.store),
		RateLimitWindow: time.Duration(cfg.Server.RateLimitWindowMS) * time.Millisecond,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.Server.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if cfg.Schedule.ReingestSpec != "" {
		src, err := source.New(cfg.Source)
		if err != nil {
			return fmt.Errorf("init page source: %w", err)
		}
		if err := scheduler.AddJob(job.NewReingestJob(src, comps.orch), cfg.Schedule.ReingestSpec); err != nil {
			return err
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	logutil.GetLogger(ctx).Info("http server listening", zap.Int("port", cfg.Server.Port))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
