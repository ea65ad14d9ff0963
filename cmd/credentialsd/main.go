package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/activitymap"
	"github.com/goliatone/go-credentials/metrics"
	"github.com/goliatone/go-credentials/queue"
	"github.com/goliatone/go-credentials/redislock"
	"github.com/goliatone/go-credentials/repository"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	headerAdminToken = "X-Admin-Token"
	headerActorID    = "X-Actor-ID"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	lgr := newLogger(cfg.Debug)
	if cfg.Debug {
		fmt.Println(print.MaybeHighlightJSON(cfg))
	}

	ctx := context.Background()
	if err := run(ctx, cfg, lgr); err != nil {
		lgr.GetLogger("main").Error("credentialsd stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, lgr *glog.BaseLogger) error {
	logger := lgr.GetLogger("main")

	db, err := openDB(ctx, cfg.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	key, err := signingKey(cfg.SigningKey)
	if err != nil {
		return err
	}
	if cfg.SigningKey == "" {
		logger.Warn("no signing key configured, provider tokens will not survive a restart")
	}

	repo := repository.NewRepositoryManager(db, credentials.NewProviderTokens(key))

	opts := []credentials.Option{
		credentials.WithLoggerProvider(lgr),
		credentials.WithActivitySink(credentials.MultiActivitySink{
			metrics.MustNewSink(prometheus.DefaultRegisterer),
			activitymap.LogSink(lgr.GetLogger("activity")),
		}),
	}

	var (
		notifier credentials.Notifier
		worker   *queue.Worker
	)

	if cfg.RedisURL != "" {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return err
		}
		client := asynq.NewClient(redisOpt)
		defer client.Close()

		notifier = queue.NewNotifier(client, cfg.BaseURL, lgr.GetLogger("queue"))
		worker = queue.NewWorker(redisOpt, cfg.Workers, queue.LogDeliverer{Logger: lgr.GetLogger("mail")}, lgr.GetLogger("queue"))
		if err := worker.Start(); err != nil {
			return err
		}

		rdbOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(rdbOpts)
		defer rdb.Close()

		opts = append(opts, credentials.WithLocker(
			redislock.New(rdb, redislock.WithLogger(lgr.GetLogger("lock"))),
		))
	} else {
		logger.Warn("no redis configured, notifications are logged and locks are process local")
		notifier = credentials.NewLogNotifier(cfg.BaseURL, lgr.GetLogger("notifier"))
	}

	manager := credentials.New(repo, notifier, cfg.Lifecycle, opts...)
	manager.Seeder(cfg.Seed).Seed(ctx)

	app := fiber.New(fiber.Config{
		AppName:               "credentialsd",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})

	ctrlOpts := []credentials.ControllerOption{
		credentials.WithControllerLogger(lgr.GetLogger("http")),
	}
	if cfg.DefaultRole != "" {
		ctrlOpts = append(ctrlOpts, credentials.WithDefaultRole(cfg.DefaultRole))
	}
	ctrl := credentials.NewController(manager, ctrlOpts...)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	ctrl.RegisterRoutes(app.Group("/auth"))

	if cfg.AdminToken != "" {
		ctrl.RegisterAdminRoutes(app.Group("/admin", adminGuard(cfg.AdminToken)))
	} else {
		logger.Warn("no admin token configured, admin routes are disabled")
	}

	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := app.Listen(cfg.Addr); err != nil {
			logger.Error("listener stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	logger.Info("shutting down", "signal", sig.String())

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if worker != nil {
		worker.Shutdown()
	}
	return nil
}

func newLogger(debug bool) *glog.BaseLogger {
	if debug {
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("credentialsd"),
			glog.WithAddSource(true),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("credentialsd"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

func openDB(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func signingKey(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// adminGuard checks the shared admin token and stores the caller id for
// the controller.
func adminGuard(token string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		got := ctx.Get(headerAdminToken)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		actor, err := uuid.Parse(ctx.Get(headerActorID))
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing actor id"})
		}
		ctx.Locals(credentials.LocalsActorID, actor)
		return ctx.Next()
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
