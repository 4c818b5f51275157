package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/scholarcash/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/scholarcash/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/scholarcash/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/scholarcash/pkg/ledger"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	driverMemory   = "memory"
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	storeEngineGorm = "gorm"
	storeEnginePgx  = "pgx"

	defaultSQLiteFile = "scholarcash.db"
)

// backend is an opened ledger store with its schema in place.
type backend struct {
	store  ledger.Store
	driver string
	close  func() error
}

func openBackend(ctx context.Context, cfg *runtimeConfig) (backend, error) {
	driver, sqlitePath, err := resolveDriver(cfg.DatabaseURL)
	if err != nil {
		return backend{}, err
	}
	switch driver {
	case driverMemory:
		return backend{store: memstore.New(), driver: driver, close: func() error { return nil }}, nil
	case driverSQLite:
		db, err := gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
		if err != nil {
			return backend{}, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return backend{}, err
		}
		if err := prepareSchema(db); err != nil {
			_ = sqlDB.Close()
			return backend{}, err
		}
		return backend{store: gormstore.New(db.WithContext(ctx)), driver: driver, close: sqlDB.Close}, nil
	case driverPostgres:
		return openPostgres(ctx, cfg)
	}
	return backend{}, fmt.Errorf("unsupported database scheme %q", driver)
}

// openPostgres runs the embedded migrations before handing out either engine.
func openPostgres(ctx context.Context, cfg *runtimeConfig) (backend, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return backend{}, fmt.Errorf("connect: %w", err)
	}
	if err := pgstore.Migrate(ctx, pool); err != nil {
		pool.Close()
		return backend{}, err
	}
	if cfg.StoreEngine == storeEnginePgx {
		closePool := func() error {
			pool.Close()
			return nil
		}
		return backend{store: pgstore.New(pool), driver: driverPostgres, close: closePool}, nil
	}
	pool.Close()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return backend{}, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return backend{}, err
	}
	return backend{store: gormstore.New(db.WithContext(ctx)), driver: driverPostgres, close: sqlDB.Close}, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", "", errors.New("database url is required")
	}
	if strings.HasPrefix(dsn, "memory://") {
		return driverMemory, "", nil
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = defaultSQLiteFile
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Anything else is a plain sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
