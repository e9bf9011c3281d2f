package sqldb

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// schema is portable between SQLite and MySQL.
const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	name       VARCHAR(128) NOT NULL PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Store persists preferences in a SQL database through sqlx.
type Store struct {
	db  *sqlx.DB
	log *zap.Logger
}

// Open connects with the given driver, verifies the connection and creates the
// schema when missing.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// :memory: databases are per connection.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetMaxOpenConns(4)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		logger.Error("sql ping failed", zap.String("driver", driver), zap.Error(err))
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, log: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
