package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"taskboard/internal/auth"
	"taskboard/internal/board"
	"taskboard/internal/config"
	"taskboard/internal/db"
	httpx "taskboard/internal/http"
	"taskboard/internal/lock"
	"taskboard/internal/notify"
	"taskboard/internal/observability"
	"taskboard/internal/reminder"
)

func main() {
	cfg, _ := config.Load()
	observability.SetupLogger(cfg.LogLevel, cfg.LogPretty)

	gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	rcfg := reminderConfig(cfg.Reminder)
	store := reminder.NewGormStore(gdb)
	cards := &reminder.GormCards{DB: gdb}
	planner := reminder.NewPlanner(store, cards, rcfg)
	dispatcher := reminder.NewDispatcher(store, cards, newNotifier(cfg.SMTP), rcfg)

	var locker lock.Locker = lock.Noop{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		locker = lock.NewRedis(rdb)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("reminder tick lock via redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := reminder.NewRunner(dispatcher, rcfg.PollInterval, locker)
	if err := runner.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start reminder runner")
	}

	r := httpx.NewRouter(cfg, httpx.Deps{
		DB:        gdb,
		JWT:       auth.NewJWT(cfg.JWTSecret),
		Boards:    &board.Service{DB: gdb, Reminders: planner},
		Reminders: store,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)

	// let an in-flight tick finish its current batch, then abort it
	select {
	case <-runner.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("reminder tick still running at shutdown")
	}
	cancel()
}

func reminderConfig(c config.ReminderConfig) reminder.Config {
	return reminder.Config{
		DefaultReminderMinutes: c.DefaultMinutes,
		OverdueGraceMinutes:    c.OverdueGraceMinutes,
		PollInterval:           c.PollInterval,
		BatchSize:              c.BatchSize,
		BaseBackoff:            c.BaseBackoff,
		MaxAttempts:            c.MaxAttempts,
		SendTimeout:            c.SendTimeout,
		RunningLease:           c.RunningLease,
	}
}

func newNotifier(c config.SMTPConfig) reminder.Notifier {
	if !c.Enabled() {
		log.Info().Msg("SMTP not configured, reminders go to the log")
		return notify.Log{}
	}
	return notify.NewSMTP(notify.SMTPConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	})
}
