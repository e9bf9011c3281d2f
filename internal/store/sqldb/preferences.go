package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"
	"notifyd/internal/repository"
)

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM preferences WHERE name = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", repository.ErrKeyNotFound
	}
	if err != nil {
		s.log.Error("sql get preference failed", zap.String("key", key), zap.Error(err))
		return "", err
	}
	return value, nil
}

// Set upserts with REPLACE, which both SQLite and MySQL understand.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"REPLACE INTO preferences (name, value, updated_at) VALUES (?, ?, ?)",
		key, value, time.Now().UTC(),
	)
	if err != nil {
		s.log.Error("sql set preference failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM preferences WHERE name = ?", key); err != nil {
		s.log.Error("sql delete preference failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
