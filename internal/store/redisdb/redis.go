package redisdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"notifyd/internal/repository"
)

const keyPrefix = "notifyd:pref:"

// Store keeps preferences in Redis so several agents of one user share them.
type Store struct {
	rdb *goredis.Client
	log *zap.Logger
}

// Open parses a redis:// URL and pings the server.
func Open(ctx context.Context, rawURL string, logger *zap.Logger) (*Store, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("redis preference store connected", zap.String("addr", opts.Addr))
	return &Store{rdb: rdb, log: logger}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", repository.ErrKeyNotFound
	}
	if err != nil {
		s.log.Error("redis get preference failed", zap.String("key", key), zap.Error(err))
		return "", err
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		s.log.Error("redis set preference failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, keyPrefix+key).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
