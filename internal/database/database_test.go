package database

import (
	"path/filepath"
	"testing"

	"pricewatch/internal/logger"
)

func TestConfig(t *testing.T) {
	t.Run("sqlite_urls", func(t *testing.T) {
		cfg := &Config{Driver: DriverSQLite, Path: "data/prices.db"}
		if got := cfg.MigrateURL(); got != "sqlite3://data/prices.db" {
			t.Errorf("unexpected migrate url %q", got)
		}
		if got := cfg.DSN(); got != "data/prices.db?_foreign_keys=on&_busy_timeout=5000" {
			t.Errorf("unexpected dsn %q", got)
		}
	})

	t.Run("postgres_urls", func(t *testing.T) {
		cfg := &Config{Driver: DriverPostgres, Host: "db", Port: "5432", User: "pw", Password: "s3cr@t", DBName: "prices", SSLMode: "disable"}
		if got := cfg.MigrateURL(); got != "postgres://pw:s3cr%40t@db:5432/prices?sslmode=disable" {
			t.Errorf("unexpected migrate url %q", got)
		}
	})

	t.Run("unsupported_driver", func(t *testing.T) {
		cfg := &Config{Driver: "mysql"}
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for unsupported driver")
		}
	})
}

func TestRunMigrations(t *testing.T) {
	cfg := &Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "nested", "prices.db")}

	m, err := NewManager(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = m.Close() }()

	if err := m.RunMigrations(); err != nil {
		t.Fatalf("first migration run failed: %v", err)
	}
	// A second run is a no-op.
	if err := m.RunMigrations(); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}

	for _, table := range []string{"products", "presentations", "stores", "prices"} {
		if !m.DB().Migrator().HasTable(table) {
			t.Errorf("expected table %s to exist", table)
		}
	}
	if !m.DB().Migrator().HasIndex("prices", "idx_prices_store_observed") {
		t.Error("expected prices index to exist")
	}
}
