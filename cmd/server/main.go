package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/api"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/config"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/dispatcher"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/evaluator"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/gateway"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/ledger"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/preference"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/repository/postgres"
)

func main() {
	log := logger.With("server")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Error("config load failed", "error", err.Error())
		os.Exit(1)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Error("database connect failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = postgres.Migrate(migrateCtx, db)
	migrateCancel()
	if err != nil {
		log.Error("migration failed", "error", err.Error())
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Error("redis url invalid", "error", err.Error())
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// Storage and domain services.
	prefService := preference.NewService(postgres.NewPreferenceRepo(db))
	jobRepo := postgres.NewDeliveryJobRepo(db)
	userRepo := postgres.NewUserRepo(db)

	// Realtime gateway.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	hub := gateway.NewHub(rdb)
	hub.Start(rootCtx)
	wsHandler := gateway.NewHandler(hub, gateway.NewAuthenticator(cfg.Gateway.JWTSecret), gateway.Options{
		EventsPerMinute: cfg.Gateway.EventsPerMinute,
		JoinsPerWindow:  cfg.Gateway.JoinsPerWindow,
		JoinWindow:      time.Duration(cfg.Gateway.JoinWindowSeconds) * time.Second,
		SendBuffer:      cfg.Gateway.SendBufferSize,
		AuthTimeout:     time.Duration(cfg.Gateway.AuthTimeoutSeconds) * time.Second,
		AllowedOrigins:  cfg.Gateway.AllowedOrigins,
	})

	// Evaluation pipeline: queue -> evaluator -> dispatcher -> gateway + jobs.
	disp := dispatcher.New(prefService, hub, jobRepo, userRepo)
	catchup := evaluator.NewTimerScheduler(disp)
	defer catchup.Stop()

	eval := evaluator.New(
		prefService,
		ledger.NewRedisLedger(rdb),
		evaluator.NewRedisUtilizationTracker(rdb),
		catchup,
		evaluator.Options{
			ExceededTTL:      cfg.Alerts.ExceededTTL(),
			WarningTTL:       cfg.Alerts.WarningTTL(),
			QuietHoursBypass: bypassKinds(cfg.Alerts.QuietHoursBypassKinds),
		},
	)

	queue := evaluator.NewQueue(rdb, cfg.Alerts.ConditionQueue)
	consumer := evaluator.NewConsumer(rdb, cfg.Alerts.ConditionQueue, eval, disp, cfg.Alerts.Consumers)
	consumer.Start(rootCtx)

	handlers := api.NewHandlers(queue, prefService, jobRepo, api.HealthDeps{
		DB:    db,
		Redis: rdb,
		Hub:   hub,
		Queue: queue,
	})
	server := api.NewServer(*cfg, handlers, wsHandler)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err.Error())
			os.Exit(1)
		}
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err.Error())
	}
	consumer.Stop()
	hub.Stop()
	log.Info("stopped")
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeMins) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func bypassKinds(names []string) map[domain.ConditionKind]bool {
	out := make(map[domain.ConditionKind]bool, len(names))
	for _, n := range names {
		out[domain.ConditionKind(n)] = true
	}
	return out
}
