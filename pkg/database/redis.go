package database

import (
	"context"

	"github.com/Sandro385/expert-tune/internal/config"
	"github.com/Sandro385/expert-tune/pkg/log"

	"github.com/go-redis/redis/v8"
)

var RDB *redis.Client

// InitRedis connects RDB when an address is configured. It returns nil when Redis is disabled.
func InitRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		log.Info("Redis address not set, using in-memory token blacklist")
		return nil
	}
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := RDB.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
	return RDB
}
