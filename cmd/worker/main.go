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

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/config"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/mailer"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/repository/postgres"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/worker"
)

func main() {
	log := logger.With("worker")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Error("config load failed", "error", err.Error())
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Error("database open failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifeMins) * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		log.Error("database ping failed", "error", err.Error())
		os.Exit(1)
	}

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = postgres.Migrate(migrateCtx, db)
	migrateCancel()
	if err != nil {
		log.Error("migration failed", "error", err.Error())
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Error("redis url invalid", "error", err.Error())
			os.Exit(1)
		}
		rdb = redis.NewClient(redisOpts)
		defer rdb.Close()
	}

	var sender mailer.Sender
	sesSender, err := mailer.NewSESSender(context.Background(),
		cfg.Email.Region, cfg.Email.AccessKey, cfg.Email.SecretKey,
		cfg.Email.FromAddress, cfg.Email.FromName)
	if err != nil {
		log.Warn("ses unavailable, using log-only sender", "reason", err.Error())
		sender = mailer.NewLogSender()
	} else {
		sender = sesSender
	}

	jobRepo := postgres.NewDeliveryJobRepo(db)
	pool := worker.NewPool(jobRepo, mailer.NewRenderer(), sender, postgres.NewUserRepo(db), worker.Options{
		Workers:     cfg.Alerts.EmailWorkers,
		BatchSize:   cfg.Alerts.EmailBatchSize,
		Lease:       cfg.Alerts.EmailLease(),
		MaxAttempts: cfg.Alerts.MaxEmailAttempts,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	sweeper := worker.NewSweeper(jobRepo, rdb)
	if err := sweeper.Start(); err != nil {
		log.Error("sweeper start failed", "error", err.Error())
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info("shutting down", "signal", sig.String())

	sweeper.Stop()
	pool.Stop()

	stats := pool.Stats()
	log.Info("stopped", "sent", stats.Sent, "failed", stats.Failed, "dead", stats.Dead, "cancelled", stats.Cancelled)
}
