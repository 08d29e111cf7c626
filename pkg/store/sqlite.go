package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteStore opens (or creates) a SQLite database file
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	// WAL and a busy timeout keep concurrent readers off the writer's back;
	// _txlock=immediate takes the write lock at BEGIN so balance updates never deadlock.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_foreign_keys=on&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer for SQLite to avoid SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	return newSQLStore(db, sqliteDialect)
}

var sqliteDialect = dialect{
	name:   "sqlite",
	like:   "LIKE",
	vacuum: "VACUUM",
	schema: `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		account_number TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		company TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		plan TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0,
		credit_limit INTEGER NOT NULL DEFAULT 0,
		rate_card_id TEXT,
		channel_limit INTEGER NOT NULL DEFAULT 0,
		kyc_status TEXT NOT NULL,
		external_id INTEGER NOT NULL DEFAULT 0,
		synced_at DATETIME,
		sync_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_customers_status ON customers(status);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id, created_at);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL,
		status TEXT NOT NULL,
		last_login_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_customer ON users(customer_id);

	CREATE TABLE IF NOT EXISTS sessions (
		token_hash TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		customer_id TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		expires_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

	CREATE TABLE IF NOT EXISTS carriers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		protocol TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		channel_limit INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		external_id INTEGER NOT NULL DEFAULT 0,
		synced_at DATETIME,
		sync_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rate_cards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		direction TEXT NOT NULL,
		carrier_id TEXT REFERENCES carriers(id),
		currency TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		external_id INTEGER NOT NULL DEFAULT 0,
		synced_at DATETIME,
		sync_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rates (
		rate_card_id TEXT NOT NULL REFERENCES rate_cards(id) ON DELETE CASCADE,
		prefix TEXT NOT NULL,
		destination TEXT NOT NULL DEFAULT '',
		rate_per_min INTEGER NOT NULL,
		connection_fee INTEGER NOT NULL DEFAULT 0,
		initial_increment INTEGER NOT NULL,
		increment INTEGER NOT NULL,
		PRIMARY KEY (rate_card_id, prefix)
	);
	CREATE INDEX IF NOT EXISTS idx_rates_prefix ON rates(prefix);

	CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		prefix TEXT NOT NULL DEFAULT '',
		strategy TEXT NOT NULL,
		carrier_ids TEXT NOT NULL,
		enabled BOOLEAN NOT NULL,
		external_id INTEGER NOT NULL DEFAULT 0,
		synced_at DATETIME,
		sync_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dids (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		country TEXT NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		monthly_price INTEGER NOT NULL,
		setup_price INTEGER NOT NULL DEFAULT 0,
		requires_kyc BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		customer_id TEXT NOT NULL DEFAULT '',
		destination_type TEXT NOT NULL,
		destination_id TEXT NOT NULL DEFAULT '',
		assigned_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dids_customer ON dids(customer_id);
	CREATE INDEX IF NOT EXISTS idx_dids_status ON dids(status);

	CREATE TABLE IF NOT EXISTS extensions (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		number TEXT NOT NULL,
		name TEXT NOT NULL,
		secret TEXT NOT NULL,
		voicemail BOOLEAN NOT NULL DEFAULT 0,
		voicemail_pin TEXT NOT NULL DEFAULT '',
		forward_to TEXT NOT NULL DEFAULT '',
		caller_id TEXT NOT NULL DEFAULT '',
		enabled BOOLEAN NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (customer_id, number)
	);

	CREATE TABLE IF NOT EXISTS ivr_menus (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		name TEXT NOT NULL,
		greeting TEXT NOT NULL,
		timeout_seconds INTEGER NOT NULL,
		options TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ivr_customer ON ivr_menus(customer_id);

	CREATE TABLE IF NOT EXISTS voice_agents (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		name TEXT NOT NULL,
		voice TEXT NOT NULL,
		language TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		greeting TEXT NOT NULL DEFAULT '',
		transfer_to TEXT NOT NULL DEFAULT '',
		enabled BOOLEAN NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agents_customer ON voice_agents(customer_id);

	CREATE TABLE IF NOT EXISTS cdrs (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL DEFAULT '',
		call_id TEXT NOT NULL UNIQUE,
		direction TEXT NOT NULL,
		from_number TEXT NOT NULL,
		to_number TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration INTEGER NOT NULL,
		billsec INTEGER NOT NULL,
		disposition TEXT NOT NULL,
		prefix TEXT NOT NULL DEFAULT '',
		rate_per_min INTEGER NOT NULL DEFAULT 0,
		cost INTEGER NOT NULL DEFAULT 0,
		billing_status TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cdrs_customer_started ON cdrs(customer_id, started_at);

	CREATE TABLE IF NOT EXISTS kyc_submissions (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		status TEXT NOT NULL,
		legal_name TEXT NOT NULL,
		document_type TEXT NOT NULL,
		document_ref TEXT NOT NULL,
		address TEXT NOT NULL,
		country TEXT NOT NULL,
		review_note TEXT NOT NULL DEFAULT '',
		reviewed_by TEXT NOT NULL DEFAULT '',
		reviewed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kyc_status ON kyc_submissions(status);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL DEFAULT '',
		actor_email TEXT NOT NULL DEFAULT '',
		actor_role TEXT NOT NULL DEFAULT '',
		customer_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		before_data TEXT,
		after_data TEXT,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_logs(entity_type, entity_id);

	CREATE TABLE IF NOT EXISTS trash_items (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		customer_id TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL DEFAULT '',
		snapshot TEXT NOT NULL,
		deleted_by TEXT NOT NULL DEFAULT '',
		deleted_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trash_expires ON trash_items(expires_at);
	`,
}
