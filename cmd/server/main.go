package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulseflow/internal/api"
	"pulseflow/internal/buffer"
	"pulseflow/internal/config"
	"pulseflow/internal/metrics"
	"pulseflow/internal/model"
	"pulseflow/internal/notify"
	"pulseflow/internal/probe"
	"pulseflow/internal/repository"
	"pulseflow/internal/repository/memory"
	"pulseflow/internal/scheduler"
	"pulseflow/internal/service"
	"pulseflow/internal/templating"
	"pulseflow/internal/worker"
	"pulseflow/pkg/constraints"
	"pulseflow/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Infrastructure
	store, err := initStore(cfg)
	if err != nil {
		return err
	}

	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	settings := service.NewSettingsCache(store.Settings(), service.SettingDefaults{
		Cooldown:      cfg.Notification.Cooldown,
		RetryCount:    cfg.Notification.RetryCount,
		RetryDelay:    cfg.Notification.RetryDelay,
		TemplateMode:  cfg.Notification.TemplateMode,
		CheckInterval: cfg.Notification.CheckInterval,
	})
	if err := settings.Init(ctx); err != nil {
		return err
	}
	defer settings.Close()

	senders, err := initSenders(cfg)
	if err != nil {
		return err
	}
	logger.Info("notification channels ready", zap.Strings("channels", senders.Channels()))

	// 2. Notification pipeline
	observer := metrics.NewPrometheusObserver()
	templates := templating.NewLoader(store.Templates(), cfg.Notification.TemplateDir, settings.TemplateMode)
	pool := worker.NewPool("notifications", cfg.Notification.Workers, cfg.Notification.QueueSize)

	dispatcher := service.NewDispatcher(store, templates, senders, settings,
		service.WithDispatchObserver(observer),
		service.WithLogo(cfg.Notification.LogoPath),
	)
	processor := service.NewOutboxProcessor(store, pool, dispatcher, cfg.Notification.BatchSize, observer)

	// 3. Probes
	uptime := service.NewUptimeTask(store, probe.NewHTTPProber(cfg.Probe.HTTPTimeout), settings, observer, service.UptimeConfig{
		DefaultInterval: cfg.Probe.DefaultInterval,
		DefaultTimeout:  cfg.Probe.HTTPTimeout,
		Concurrency:     cfg.Probe.Concurrency,
	})
	certs := service.NewCertificateTask(store, probe.NewTLSInspector(cfg.Probe.TLSPort, cfg.Probe.TLSTimeout), observer,
		cfg.Probe.ExpiryWarningDays, cfg.Probe.Concurrency)

	// 4. Scheduler
	tasks := &service.TaskSet{
		Uptime:       uptime,
		Certificates: certs,
		Outbox:       processor,
		Settings:     settings,
		Intervals: service.TaskIntervals{
			TLSExpiry:       cfg.Probe.TLSInterval,
			SettingsRefresh: cfg.Settings.RefreshInterval,
		},
	}
	sched := scheduler.New(scheduler.Config{
		PoolSize:     cfg.Scheduler.PoolSize,
		DrainTimeout: cfg.Scheduler.DrainTimeout,
	}, store.Executions(),
		scheduler.WithObserver(observer),
		scheduler.WithTickLog(buffer.NewTickLog(cfg.Scheduler.TickLogSize)),
		scheduler.WithLoader(tasks.Load),
	)
	if err := sched.Reload(ctx); err != nil {
		return err
	}

	// 5. HTTP server
	r := api.RegisterRoutes(
		api.NewAdminHandler(service.NewAdminService(sched, store, rdb)),
		rdb,
		api.RouterConfig{
			JWTSecret:         []byte(cfg.Auth.JWTSecret),
			DevPass:           cfg.Auth.DevPass,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			CORSOrigins:       cfg.Server.CORSOrigins,
		},
	)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment),
			zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	// Stop producing work before draining the notification queue.
	sched.Shutdown(shutdownCtx)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Notification.DrainTimeout)
	defer drainCancel()
	if err := pool.Shutdown(drainCtx); err != nil {
		logger.Warn("notification queue not fully drained", zap.Error(err))
	}

	logger.Info("server exited properly")
	return nil
}

func initStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory store, state is lost on restart")
		return memory.NewStore(), nil
	case "mysql", "":
		db, err := initDB(cfg.MySQL)
		if err != nil {
			return nil, err
		}
		return repository.NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		logger.Warn("redis disabled, rate limiting is per instance")
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initDB(cfg config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}
	if !cfg.AutoMigrate {
		return db, nil
	}

	err = db.AutoMigrate(
		&model.MonitoredService{},
		&model.ProbeResult{},
		&model.CertificateRecord{},
		&model.OutboxEvent{},
		&model.NotificationTemplate{},
		&model.NotificationHistory{},
		&model.TaskExecution{},
		&model.User{},
		&model.ContactGroup{},
		&model.ContactGroupMember{},
		&model.ContactChannel{},
		&model.ServiceContactGroup{},
		&model.SystemSetting{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// initSenders registers a sender for every channel that has credentials configured.
func initSenders(cfg *config.Config) (*notify.Registry, error) {
	reg := notify.NewRegistry()
	if cfg.SMTP.Host != "" {
		err := reg.AddSender(constraints.ChannelEmail, notify.NewEmailSender(notify.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,
			TLS:      cfg.SMTP.TLS,
		}))
		if err != nil {
			return nil, err
		}
	}
	if cfg.Telegram.BotToken != "" {
		sender := notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.APIBase, cfg.Telegram.Timeout)
		if err := reg.AddSender(constraints.ChannelTelegram, sender); err != nil {
			return nil, err
		}
	}
	if cfg.Webhook.Enabled {
		sender := notify.NewWebhookSender(cfg.Webhook.Method, cfg.Webhook.Headers, cfg.Webhook.Timeout)
		if err := reg.AddSender(constraints.ChannelWebhook, sender); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
