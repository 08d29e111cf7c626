package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// NewPostgreSQLStore connects to PostgreSQL and creates the schema
func NewPostgreSQLStore(config Config) (*SQLStore, error) {
	dsn := config.DSN
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	} else {
		db.SetConnMaxIdleTime(1 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newSQLStore(db, postgresDialect)
}

// The PostgreSQL schema is the SQLite one with native types swapped in.
var postgresDialect = dialect{
	name:      "postgres",
	numbered:  true,
	like:      "ILIKE",
	forUpdate: " FOR UPDATE",
	vacuum:    "VACUUM ANALYZE",
	schema: strings.NewReplacer(
		"DATETIME", "TIMESTAMPTZ",
		"INTEGER", "BIGINT",
		" COLLATE NOCASE", "",
		"BOOLEAN NOT NULL DEFAULT 0", "BOOLEAN NOT NULL DEFAULT false",
		"options TEXT NOT NULL", "options JSONB NOT NULL",
		"carrier_ids TEXT NOT NULL", "carrier_ids JSONB NOT NULL",
		"before_data TEXT", "before_data JSONB",
		"after_data TEXT", "after_data JSONB",
		"snapshot TEXT NOT NULL", "snapshot JSONB NOT NULL",
	).Replace(sqliteDialect.schema) + `
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (lower(email));
	CREATE UNIQUE INDEX IF NOT EXISTS idx_carriers_name_lower ON carriers (lower(name));
	`,
}
