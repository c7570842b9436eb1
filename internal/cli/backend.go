package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"quiz-leaderboard-service/internal/app"
	"quiz-leaderboard-service/internal/config"
	"quiz-leaderboard-service/internal/domain"
	"quiz-leaderboard-service/internal/infra/memory"
	pgstore "quiz-leaderboard-service/internal/infra/postgres"
	redisstore "quiz-leaderboard-service/internal/infra/redis"
	sqlitestore "quiz-leaderboard-service/internal/infra/sqlite"
)

const defaultQuizTTL = 10 * time.Minute

// quizSaver is implemented by the authoring stores that accept quiz imports.
type quizSaver interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

// backend is the set of stores selected by store.backend plus whatever has to
// be closed on shutdown.
type backend struct {
	stores  app.Stores
	saver   quizSaver
	closers []func()
	// sharedCache is set when the quiz cache lives in Redis and is seen by
	// every server process.
	sharedCache bool
}

// warnLocalCache tells the operator that running servers keep their own
// cached copy of a quiz this command just changed.
func (b *backend) warnLocalCache(logger *slog.Logger, quizID string, ttl time.Duration) {
	if b.sharedCache {
		return
	}
	logger.Warn("quiz cache is in-process; running servers keep the previous quiz until the cache entry expires or they restart",
		"quiz_id", quizID, "quiz_ttl", ttl)
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend connects the configured stores. Quiz documents come from
// Postgres when postgres.url is set, from SQLite on the sqlite backend and
// from the built-in samples otherwise. With redis.addr set the quiz cache is
// shared through Redis.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return nil, err
		}
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		pgLoader := pgstore.NewQuizLoader(pool)
		loader, b.saver = pgLoader, pgLoader
	}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		store := pgstore.NewStore(pool)
		b.stores = app.Stores{Attempts: store, Leaderboard: store, Registrations: store}
	case config.BackendSQLite:
		db, err := sqlitestore.Open(ctx, cfg.SQLite.DSN)
		if err != nil {
			return nil, fmt.Errorf("sqlite open: %w", err)
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		store := sqlitestore.NewStore(db)
		if pool == nil {
			loader, b.saver = store, store
		}
		b.stores = app.Stores{Attempts: store, Leaderboard: store, Registrations: store}
	case config.BackendRedis:
		store := redisstore.NewStore(redisClient)
		b.stores = app.Stores{Attempts: store, Leaderboard: store, Registrations: store}
	default:
		store := memory.NewStore()
		b.stores = app.Stores{Attempts: store, Leaderboard: store, Registrations: store}
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, defaultQuizTTL)
	if redisClient != nil {
		b.stores.Quizzes = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		b.sharedCache = true
	} else {
		b.stores.Quizzes = memory.NewQuizRepository(loader, quizTTL)
	}

	logger.Info("stores ready",
		"backend", cfg.Store.Backend,
		"quiz_cache", cacheName(redisClient),
		"quiz_source", sourceName(pool, cfg))
	ok = true
	return b, nil
}

// newService builds the quiz service over the backend with the configured
// retry and regrade settings.
func newService(cfg config.Config, b *backend, logger *slog.Logger) *app.QuizService {
	return app.NewQuizService(b.stores,
		app.WithLogger(logger),
		app.WithConflictRetries(cfg.Retry.MaxAttempts, config.TTLDuration(cfg.Retry.Interval, 0)),
		app.WithRegradeWorkers(cfg.Regrade.Workers),
	)
}

func cacheName(client *redis.Client) string {
	if client != nil {
		return "redis"
	}
	return "memory"
}

func sourceName(pool *pgxpool.Pool, cfg config.Config) string {
	switch {
	case pool != nil:
		return "postgres"
	case cfg.Store.Backend == config.BackendSQLite:
		return "sqlite"
	}
	return "samples"
}

// sampleQuizzes seeds the static loader when no authoring database is
// configured.
func sampleQuizzes() map[string]domain.Quiz {
	now := time.Now().UTC()
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:                    "quiz-1",
			Title:                 "Arithmetic warm-up",
			DurationMinutes:       10,
			AttemptLimit:          3,
			PassingPercentage:     50,
			EnableNegativeMarking: true,
			StartDate:             now.AddDate(0, 0, -1),
			EndDate:               now.AddDate(0, 1, 0),
			Questions: []domain.Question{
				{
					ID:            "q1",
					Text:          "What is 2 + 2?",
					Type:          domain.SingleChoice,
					Marks:         2,
					NegativeMarks: 1,
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", IsCorrect: true},
						{ID: "o3", Text: "5"},
					},
				},
				{
					ID:    "q2",
					Text:  "Which of these are even?",
					Type:  domain.MultipleChoice,
					Marks: 3,
					Options: []domain.Option{
						{ID: "o1", Text: "2", IsCorrect: true},
						{ID: "o2", Text: "3"},
						{ID: "o3", Text: "8", IsCorrect: true},
					},
				},
				{
					ID:    "q3",
					Text:  "Zero is a natural number in ISO 80000-2.",
					Type:  domain.TrueFalse,
					Marks: 1,
					Options: []domain.Option{
						{ID: "true", Text: "True", IsCorrect: true},
						{ID: "false", Text: "False"},
					},
				},
			},
		},
	}
}
