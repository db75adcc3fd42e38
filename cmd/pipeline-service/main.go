package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	swagger "github.com/swaggo/echo-swagger"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/executor/config"
	delivery "golang-market-insight/internal/scheduler/delivery/http"
	_ "golang-market-insight/internal/scheduler/docs"
	schedulerdto "golang-market-insight/internal/scheduler/dto"
	schedulerservice "golang-market-insight/internal/scheduler/service"
	"golang-market-insight/pkg/logger"
	"golang-market-insight/pkg/utils"
)

var (
	configPath string
	runSymbol  string
	runStart   string
	runEnd     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the scheduler, the worker pool and the output API",
	Run:   runServe,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Processes one symbol and period immediately",
	Run:   runOnce,
}

func loadConfig() (*config.Config, *logger.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return cfg, appLogger
}

func runServe(cmd *cobra.Command, args []string) {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, appLogger := loadConfig()
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Pipeline Service", logger.Field("name", cfg.App.Name), logger.StringField("env", cfg.App.Env))

	pipeline, err := newApp(ctx, cfg, appLogger, prometheus.DefaultRegisterer)
	if err != nil {
		appLogger.Fatal("Failed to initialize pipeline", logger.ErrorField(err))
	}
	defer pipeline.Close()

	defs, err := cfg.Scheduler.Definitions()
	if err != nil {
		appLogger.Fatal("Invalid job configuration", logger.ErrorField(err))
	}
	if resumed, err := schedulerservice.ResumeDefinitions(ctx, defs, pipeline.stores.jobRuns, pipeline.stores.marketData, appLogger); err != nil {
		appLogger.Warn("Failed to resume jobs from stored history", logger.ErrorField(err))
	} else {
		defs = resumed
	}
	scheduler := schedulerservice.NewSchedulerService(cfg.Scheduler, appLogger, pipeline.recorder)
	if err := scheduler.Sync(defs); err != nil {
		appLogger.Fatal("Failed to register jobs", logger.ErrorField(err))
	}

	reload := func(ctx context.Context) error {
		fresh, err := config.Load(configPath)
		if err != nil {
			return err
		}
		defs, err := fresh.Scheduler.Definitions()
		if err != nil {
			return err
		}
		if err := scheduler.Sync(defs); err != nil {
			return err
		}
		appLogger.InfoContext(ctx, "Job configuration reloaded", logger.IntField("jobs", len(defs)))
		return nil
	}

	// Tasks outlive the signal context so queued runs can finish during shutdown.
	poolCtx, cancelPool := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelPool()
	pipeline.pool.Start(poolCtx)

	if err := pipeline.reconciler.Start(poolCtx); err != nil {
		appLogger.Fatal("Failed to start reconciler", logger.ErrorField(err))
	}

	schedulerDone := make(chan struct{})
	utils.GoSafe(func() {
		defer close(schedulerDone)
		scheduler.Start(ctx, pipeline.orchestrator.Dispatch)
	})

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	utils.GoSafe(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := reload(ctx); err != nil {
					appLogger.Error("Failed to reload job configuration", logger.ErrorField(err))
				}
			}
		}
	})

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true

	queryService := schedulerservice.NewQueryService(pipeline.stores.analytics, pipeline.stores.insights, pipeline.stores.jobRuns,
		appLogger, cfg.Query.CacheTTL, cfg.Query.MaxRows)

	apiV1 := e.Group("/api/v1")
	delivery.NewOutputHandler(queryService, appLogger).RegisterRoutes(apiV1)
	delivery.NewRunHandler(queryService, pipeline.orchestrator, appLogger).RegisterRoutes(apiV1.Group("/runs"))
	delivery.NewJobHandler(scheduler, reload, appLogger).RegisterRoutes(apiV1.Group("/jobs"))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", swagger.WrapHandler)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop() // trigger shutdown
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	appLogger.Info("Shutting down pipeline service...")
	<-schedulerDone
	pipeline.reconciler.Stop()

	drained := make(chan struct{})
	go func() {
		pipeline.pool.Stop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(cfg.Executor.ShutdownPeriod):
		appLogger.Warn("Shutdown period elapsed, cancelling in-flight runs")
		cancelPool()
		<-drained
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Server exiting")
}

func runOnce(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, appLogger := loadConfig()
	defer func() { _ = appLogger.Sync() }()

	start, err := utils.ParseTimeParam(runStart)
	if err != nil {
		log.Fatalf("Invalid --start: %v", err)
	}
	end, err := utils.ParseTimeParam(runEnd)
	if err != nil {
		log.Fatalf("Invalid --end: %v", err)
	}
	if !start.Before(end) {
		log.Fatalf("--start must be before --end")
	}

	// A private registry keeps the one-off run off the default collectors.
	pipeline, err := newApp(ctx, cfg, appLogger, nil)
	if err != nil {
		appLogger.Fatal("Failed to initialize pipeline", logger.ErrorField(err))
	}
	defer pipeline.Close()

	pipeline.pool.Start(ctx)
	symbol := strings.ToUpper(strings.TrimSpace(runSymbol))
	candidate := schedulerdto.Candidate{Symbol: symbol, PeriodStart: start, PeriodEnd: end}
	if err := pipeline.orchestrator.Dispatch(ctx, candidate); err != nil {
		appLogger.Fatal("Failed to submit run", logger.ErrorField(err))
	}
	pipeline.pool.Stop()

	run, err := pipeline.stores.jobRuns.Get(context.WithoutCancel(ctx), entity.JobRunKey{Symbol: symbol, PeriodStart: start, PeriodEnd: end})
	if err != nil {
		appLogger.Fatal("Failed to load job run", logger.ErrorField(err))
	}
	out, _ := json.MarshalIndent(run, "", "  ")
	fmt.Println(string(out))
}

// @title Market Insight Pipeline API
// @version 1.0
// @description Read access to analytics results, insights and job runs, plus job registry control.
// @BasePath /api/v1
func main() {
	rootCmd := &cobra.Command{Use: "pipeline-service"}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")

	runCmd.Flags().StringVar(&runSymbol, "symbol", "", "Ticker symbol")
	runCmd.Flags().StringVar(&runStart, "start", "", "Period start (RFC3339 or YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runEnd, "end", "", "Period end, exclusive")
	_ = runCmd.MarkFlagRequired("symbol")
	_ = runCmd.MarkFlagRequired("start")
	_ = runCmd.MarkFlagRequired("end")

	rootCmd.AddCommand(serveCmd, runCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing pipeline-service CLI: %s\n", err)
		os.Exit(1)
	}
}
