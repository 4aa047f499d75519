package store

import (
	"fmt"
	"strings"
)

// binaryCollation makes MySQL compare identifiers byte for byte, as the other
// dialects do. The server default collation usually ignores case.
const binaryCollation = "CHARACTER SET utf8mb4 COLLATE utf8mb4_bin"

// Each dialect lists its migrations in order. Statements must be idempotent:
// they run on every start.
var migrations = map[Dialect][]string{
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS apps (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			name_key TEXT UNIQUE NOT NULL,
			owner_id TEXT UNIQUE NOT NULL,
			secret_hash TEXT NOT NULL,
			created INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS license_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			app_id TEXT NOT NULL REFERENCES apps(id) ON DELETE CASCADE,
			license_key TEXT NOT NULL,
			created INTEGER NOT NULL,
			expires INTEGER NOT NULL,
			banned INTEGER NOT NULL DEFAULT 0,
			note TEXT NOT NULL DEFAULT '',
			used INTEGER NOT NULL DEFAULT 0,
			last_used INTEGER,
			hwid TEXT,
			UNIQUE(app_id, license_key)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_license_keys_expires ON license_keys(expires)`,

		`CREATE TABLE IF NOT EXISTS settings (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
	},

	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS apps (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			name_key TEXT UNIQUE NOT NULL,
			owner_id TEXT UNIQUE NOT NULL,
			secret_hash TEXT NOT NULL,
			created BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS license_keys (
			id BIGSERIAL PRIMARY KEY,
			app_id TEXT NOT NULL REFERENCES apps(id) ON DELETE CASCADE,
			license_key TEXT NOT NULL,
			created BIGINT NOT NULL,
			expires BIGINT NOT NULL,
			banned BOOLEAN NOT NULL DEFAULT FALSE,
			note TEXT NOT NULL DEFAULT '',
			used BOOLEAN NOT NULL DEFAULT FALSE,
			last_used BIGINT,
			hwid TEXT,
			UNIQUE(app_id, license_key)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_license_keys_expires ON license_keys(expires)`,

		`CREATE TABLE IF NOT EXISTS settings (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
	},

	DialectMySQL: {
		`CREATE TABLE IF NOT EXISTS apps (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(191) NOT NULL,
			name_key VARCHAR(191) ` + binaryCollation + ` NOT NULL UNIQUE,
			owner_id VARCHAR(64) ` + binaryCollation + ` NOT NULL UNIQUE,
			secret_hash VARCHAR(64) NOT NULL,
			created BIGINT NOT NULL
		) ENGINE=InnoDB`,

		`CREATE TABLE IF NOT EXISTS license_keys (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			app_id VARCHAR(64) NOT NULL,
			license_key VARCHAR(128) ` + binaryCollation + ` NOT NULL,
			created BIGINT NOT NULL,
			expires BIGINT NOT NULL,
			banned BOOLEAN NOT NULL DEFAULT FALSE,
			note TEXT NOT NULL,
			used BOOLEAN NOT NULL DEFAULT FALSE,
			last_used BIGINT NULL,
			hwid VARCHAR(255) ` + binaryCollation + ` NULL,
			UNIQUE KEY uq_app_key (app_id, license_key),
			KEY idx_license_keys_expires (expires),
			CONSTRAINT fk_license_keys_app FOREIGN KEY (app_id) REFERENCES apps(id) ON DELETE CASCADE
		) ENGINE=InnoDB`,

		`CREATE TABLE IF NOT EXISTS settings (
			name VARCHAR(191) PRIMARY KEY,
			value TEXT NOT NULL
		) ENGINE=InnoDB`,

		// Tables created before the collation was pinned.
		`ALTER TABLE apps
			MODIFY name_key VARCHAR(191) ` + binaryCollation + ` NOT NULL,
			MODIFY owner_id VARCHAR(64) ` + binaryCollation + ` NOT NULL`,
		`ALTER TABLE license_keys
			MODIFY license_key VARCHAR(128) ` + binaryCollation + ` NOT NULL,
			MODIFY hwid VARCHAR(255) ` + binaryCollation + ` NULL`,
	},
}

func (s *Store) migrate() error {
	stmts, ok := migrations[s.dialect]
	if !ok {
		return fmt.Errorf("no migrations for dialect %q", s.dialect)
	}
	for _, m := range stmts {
		if _, err := s.db.Exec(m); err != nil {
			// ALTER TABLE ADD COLUMN is not idempotent everywhere; a column
			// that already exists means the migration already ran.
			if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
