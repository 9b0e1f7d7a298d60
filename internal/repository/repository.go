package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const (
	maxConns        = 25
	minConns        = 2
	connMaxLifetime = 5 * time.Minute
	connMaxIdleTime = 10 * time.Minute
)

// NewPool creates a PostgreSQL connection pool and verifies it with a ping.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnLifetime = connMaxLifetime
	cfg.MaxConnIdleTime = connMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// OpenSQLite opens a SQLite database through gorm using the pure Go driver.
// path ":memory:" yields a private in-memory database.
func OpenSQLite(path string) (*gorm.DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
		Conn:       sqlDB,
	}, &gorm.Config{
		// never log SQL; submissions carry personal data
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// IsPostgres reports whether url names a PostgreSQL database.
func IsPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// SQLitePath extracts the file path from a sqlite:/// URL.
func SQLitePath(url string) string {
	if p, ok := strings.CutPrefix(url, "sqlite:///"); ok {
		return p
	}
	if p, ok := strings.CutPrefix(url, "sqlite://"); ok {
		return p
	}
	return url
}

// Open connects to the store named by databaseURL and returns the matching
// SubmissionRepository with a function releasing its connections.
func Open(ctx context.Context, databaseURL string, dedupWindow time.Duration) (SubmissionRepository, func(), error) {
	if IsPostgres(databaseURL) {
		slog.Info("connecting to PostgreSQL")
		pool, err := NewPool(ctx, databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return NewPgSubmissionRepository(pool, dedupWindow), pool.Close, nil
	}

	path := SQLitePath(databaseURL)
	slog.Info("connecting to SQLite", "path", path)
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	repo := NewGormSubmissionRepository(db, dedupWindow)
	if err := repo.Migrate(); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return repo, closeFn, nil
}
