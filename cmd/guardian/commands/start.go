package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wonny/guardian/internal/api"
	"github.com/wonny/guardian/internal/api/handlers"
	"github.com/wonny/guardian/internal/contracts"
	"github.com/wonny/guardian/internal/exitengine"
	"github.com/wonny/guardian/internal/marketdata"
	"github.com/wonny/guardian/internal/notify"
	"github.com/wonny/guardian/internal/scheduler"
	"github.com/wonny/guardian/internal/scheduler/jobs"
	"github.com/wonny/guardian/internal/venue"
	"github.com/wonny/guardian/pkg/config"
	"github.com/wonny/guardian/pkg/database"
	"github.com/wonny/guardian/pkg/logger"
)

// startCmd runs the protection engine with the status API
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "보호 엔진 시작",
	Long: `청산 관리 엔진과 상태 API 서버를 시작합니다.

이 명령어는:
- 영속화된 보호 규칙 복원
- 30초 주기 평가 루프 시작
- 상태/리포팅 HTTP API 제공
- 유지보수 작업 스케줄러 시작

Example:
  go run ./cmd/guardian start
  go run ./cmd/guardian start --port 8099`,
	RunE: runStart,
}

var startPort string

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVar(&startPort, "port", "", "상태 API 포트 (기본: PORT 환경변수)")
}

func runStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Guardian Exit Engine ===")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if startPort != "" {
		cfg.Port = startPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing guardian")

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	log.Info("Connected to database")

	// 4. Metrics registry
	registry := prometheus.NewRegistry()
	var metrics *exitengine.Metrics
	if cfg.MetricsEnabled {
		metrics = exitengine.NewMetrics(registry)
	}

	// 5. Venue bridge + dispatcher
	bridge := venue.NewBridgeClient(cfg.Venue, log)
	dispatcher := exitengine.NewDispatcher(
		bridge, cfg.Venue.RateLimit,
		cfg.Engine.MaxRetries, cfg.Engine.RetryDelay,
		metrics, log,
	)

	// 6. Market data + notifier
	data := marketdata.NewDBProvider(db.Pool)

	var notifier notify.Notifier
	if cfg.Telegram.Enabled {
		notifier = notify.NewTelegramNotifier(cfg.Telegram, log)
		log.Info("Telegram notifications enabled")
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	// 7. Engine
	repo := exitengine.NewRepository(db.Pool)
	engine := exitengine.NewEngine(
		cfg.Engine, contracts.DefaultRuleConfig(),
		exitengine.NewRuleStore(), repo, dispatcher, data,
		notifier, metrics, log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Restore(ctx); err != nil {
		return fmt.Errorf("restore rules: %w", err)
	}

	var wg sync.WaitGroup

	// 8. Optional live quote stream
	if cfg.Venue.StreamURL != "" {
		stream := marketdata.NewQuoteStream(cfg.Venue.StreamURL, log)
		engine.SetQuoteStream(stream)
		wg.Add(1)
		go func() {
			defer wg.Done()
			stream.Run(ctx)
		}()
	}

	// 9. Evaluation loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx)
	}()

	// 10. Maintenance scheduler
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewOrphanSweepJob(engine, repo, log)); err != nil {
		return fmt.Errorf("schedule orphan sweep: %w", err)
	}
	if tn, ok := notifier.(notify.TextNotifier); ok {
		if err := sched.AddJob(jobs.NewDailySummaryJob(engine, repo, tn, log)); err != nil {
			return fmt.Errorf("schedule daily summary: %w", err)
		}
	}
	sched.Start()

	// 11. Status API server
	guardianHandler := handlers.NewGuardianHandler(engine, db, log)
	router := api.NewRouter(guardianHandler, registry, log)
	server := api.New(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Guardian running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET    /health")
	fmt.Println("  GET    /metrics")
	fmt.Println("  GET    /api/engine/status")
	fmt.Println("  GET    /api/rules")
	fmt.Println("  GET    /api/rules/{ticket}")
	fmt.Println("  DELETE /api/rules/{ticket}")
	fmt.Println("  GET    /api/actions/recent")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	// 진행 중인 사이클은 끝까지 마친 뒤 멈춤 (베뉴 호출 도중 강제 종료 금지)
	cancel()
	wg.Wait()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Guardian stopped")
	return nil
}
