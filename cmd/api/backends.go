package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/yourusername/buy-and-sell/internal/auth"
	"github.com/yourusername/buy-and-sell/internal/config"
	"github.com/yourusername/buy-and-sell/internal/jobs"
	"github.com/yourusername/buy-and-sell/internal/logging"
	"github.com/yourusername/buy-and-sell/internal/user"
)

const (
	auditRetention = 30 * 24 * time.Hour
	connectTimeout = 10 * time.Second
)

// backends は起動時に接続する外部サービスをまとめます。
type backends struct {
	mongo *mongo.Client
	redis *redis.Client
	users *user.MongoRepository
	jobs  *jobs.Manager
}

func connectBackends(ctx context.Context, cfg *config.Settings, logger *slog.Logger) (*backends, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	mongoClient, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI()))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}
	deps := &backends{mongo: mongoClient}

	if err := mongoClient.Ping(ctx, nil); err != nil {
		deps.Close(logger)
		return nil, fmt.Errorf("failed to reach mongo: %w", err)
	}
	deps.users = user.NewMongoRepository(mongoClient.Database(cfg.DBName()))
	if err := deps.users.EnsureIndexes(ctx); err != nil {
		deps.Close(logger)
		return nil, err
	}

	opt, err := redis.ParseURL(cfg.RedisURL())
	if err != nil {
		deps.Close(logger)
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	deps.redis = redis.NewClient(opt)
	if err := deps.redis.Ping(ctx).Err(); err != nil {
		deps.Close(logger)
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	store := jobs.NewStore(deps.redis, auditRetention)
	deps.jobs, err = jobs.NewManager(cfg.RedisURL(), store, logger)
	if err != nil {
		deps.Close(logger)
		return nil, err
	}
	return deps, nil
}

func setupAuth(cfg *config.Settings, deps *backends) (*auth.TokenService, error) {
	return auth.NewTokenService(
		deps.users,
		auth.NewRedisSessionStore(deps.redis),
		auth.NewBcryptHasher(cfg.Salt()),
		auth.NewTokenIssuer(cfg.JWTSecret(), cfg.TokenTTL()),
		auth.NewLimiter(),
	)
}

// Close は接続済みのクライアントを順に閉じます。
func (b *backends) Close(logger *slog.Logger) {
	if b.jobs != nil {
		if err := b.jobs.Shutdown(); err != nil {
			logging.Error(logger, "failed to stop job manager", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logging.Error(logger, "failed to close redis", err)
		}
	}
	if b.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.mongo.Disconnect(ctx); err != nil {
			logging.Error(logger, "failed to close mongo", err)
		}
	}
}
