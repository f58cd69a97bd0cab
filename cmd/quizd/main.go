package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/events"
	"github.com/mind-engage/mindengage-quiz/internal/logging"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	logging.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	var (
		store quiz.Store
		dbh   *sql.DB
	)
	driver := db.ParseDriver(cfg.DBDriver)
	if driver == db.DriverMemory {
		store = quiz.NewInMemoryStore()
	} else {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		dbh, err = db.Open(openCtx, driver, cfg.DBDSN)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("db open failed")
		}
		defer dbh.Close()
		store = quiz.NewSQLStore(dbh)
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable; quiz cache will fall through to the store")
		}
		store = quiz.NewCachedStore(store, rdb, cfg.QuizCacheTTL)
	}

	// --- Events ---
	var sinks events.Fanout
	if dbh != nil {
		sinks = append(sinks, events.NewEventLog(dbh, cfg.EventSiteID))
	}
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.WithError(err).Fatal("amqp")
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Service ---
	late, err := quiz.ParseLatePolicy(cfg.LatePolicy)
	if err != nil {
		log.WithError(err).Fatal("late policy")
	}
	opts := []quiz.Option{
		quiz.WithRecorder(m),
		quiz.WithLatePolicy(late),
		quiz.WithAutoCloseOverdue(cfg.AutoCloseOverdue),
	}
	if len(sinks) > 0 {
		opts = append(opts, quiz.WithPublisher(sinks))
	}
	svc := quiz.NewService(store, opts...)

	// --- Router ---
	deps := api.Deps{
		Service: svc,
		Auth:    auth.NewAuthService(cfg.AuthSecret),
		Login: auth.LoginConfig{
			AdminUser:     cfg.AdminUser,
			AdminPassHash: cfg.AdminPassHash,
			AllowDevLogin: cfg.Mode == config.ModeOffline,
		},
		Logger:      log,
		Metrics:     m,
		CORSOrigins: cfg.CORSOrigins(),
	}
	if dbh != nil {
		deps.Ready = dbh.PingContext
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logrus.Fields{
		"addr":        cfg.HTTPAddr,
		"mode":        cfg.Mode,
		"db":          driver,
		"late_policy": late,
		"auto_close":  cfg.AutoCloseOverdue,
		"redis":       cfg.RedisAddr != "",
		"amqp":        cfg.AMQPURL != "",
	}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server")
	}
}
