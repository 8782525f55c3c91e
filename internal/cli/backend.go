package cli

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"mln131-quiz/internal/app"
	"mln131-quiz/internal/config"
	"mln131-quiz/internal/infra/memory"
	"mln131-quiz/internal/infra/postgres"
	infraredis "mln131-quiz/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

//go:embed questions.yaml
var sampleQuestions []byte

// backend is the gateway plus admin service for one process, wired from config:
// Postgres when a URL is set (memory otherwise) and Redis pub/sub when an address is set.
type backend struct {
	gw      app.Gateway
	admin   *app.AdminService
	durable bool
	shared  bool
	closers []func()
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}

	var broker app.Broker = memory.NewBroker(logger)
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
		broker = infraredis.NewBroker(redisClient, logger)
		b.shared = true
	}
	notifier := app.NewNotifier(broker, logger)

	var store app.Store
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		store = postgres.NewStore(pool, notifier, nil)
		b.durable = true
	} else {
		store = memory.NewStore(notifier, nil)
	}

	questionTTL := config.TTLDuration(cfg.Quiz.QuestionTTL, 10*time.Minute)
	var questions app.QuestionStore
	if redisClient != nil {
		questions = infraredis.NewQuestionCache(redisClient, store, questionTTL)
	} else {
		questions = memory.NewQuestionCache(store, questionTTL)
	}
	store = app.WithQuestionStore(store, questions)

	b.gw = app.NewGateway(store, app.NewChangeFeed(broker, store, logger))
	b.admin = app.NewAdminService(store, cfg.Quiz.QuestionCount, logger)

	if !b.durable {
		n, err := b.admin.ImportQuestions(ctx, bytes.NewReader(sampleQuestions))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("seed questions: %w", err)
		}
		logger.Info("running with in-memory store", "sample_questions", n)
	}
	return b, nil
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}
