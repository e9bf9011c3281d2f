package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"notifyd/internal/config"
	"notifyd/internal/repository"
	"notifyd/internal/store/memory"
	"notifyd/internal/store/redisdb"
	"notifyd/internal/store/sqldb"
)

// NewPreferenceStore picks the backend from cfg.StorageDSN:
//
//	memory | "" -> in-process map
//	sqlite://<path>
//	mysql://<go-sql-driver dsn>
//	redis://<host:port>/<db>
func NewPreferenceStore(cfg *config.Config, logger *zap.Logger) (repository.PreferenceStore, func(), error) {
	dsn := cfg.StorageDSN
	ctx := context.Background()

	var (
		s   repository.PreferenceStore
		err error
	)
	switch {
	case dsn == "" || dsn == "memory":
		s = memory.New(logger)
	case strings.HasPrefix(dsn, "sqlite://"):
		s, err = sqldb.Open(ctx, sqldb.DriverSQLite, strings.TrimPrefix(dsn, "sqlite://"), logger)
	case strings.HasPrefix(dsn, "mysql://"):
		s, err = sqldb.Open(ctx, sqldb.DriverMySQL, strings.TrimPrefix(dsn, "mysql://"), logger)
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		s, err = redisdb.Open(ctx, dsn, logger)
	default:
		return nil, nil, fmt.Errorf("unsupported storage dsn %q", dsn)
	}
	if err != nil {
		logger.Error("preference store open failed", zap.Error(err))
		return nil, nil, err
	}

	cleanup := func() {
		if err := s.Close(); err != nil {
			logger.Warn("preference store close failed", zap.Error(err))
		}
	}
	return s, cleanup, nil
}
