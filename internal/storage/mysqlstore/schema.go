package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bitmark-inc/logger"
	"github.com/go-sql-driver/mysql"
)

// Schema statements run on every open. CREATE TABLE IF NOT EXISTS keeps
// them idempotent; column additions for pre-existing databases are
// handled by migrate, never here.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		entity_id      VARCHAR(36)  NOT NULL,
		partition_name VARCHAR(128) NOT NULL,
		mode           VARCHAR(32)  NOT NULL DEFAULT '',
		display_name   VARCHAR(64)  NOT NULL DEFAULT '',
		health         DOUBLE       NOT NULL DEFAULT 20,
		max_health     DOUBLE       NOT NULL DEFAULT 20,
		food           INT          NOT NULL DEFAULT 20,
		saturation     DOUBLE       NOT NULL DEFAULT 5,
		exhaustion     DOUBLE       NOT NULL DEFAULT 0,
		level          INT          NOT NULL DEFAULT 0,
		progress       DOUBLE       NOT NULL DEFAULT 0,
		total          INT          NOT NULL DEFAULT 0,
		inventory      MEDIUMTEXT,
		armor          TEXT,
		off_hand       TEXT,
		ender_chest    MEDIUMTEXT,
		effects        TEXT,
		version        BIGINT UNSIGNED NOT NULL DEFAULT 0,
		stats_json     MEDIUMTEXT,
		achievements   MEDIUMTEXT,
		recipes        MEDIUMTEXT,
		updated_at     BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (entity_id, partition_name, mode)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS snapshots (
		id             VARCHAR(36)  NOT NULL,
		kind           VARCHAR(16)  NOT NULL,
		entity_id      VARCHAR(36)  NOT NULL,
		partition_name VARCHAR(128) NOT NULL,
		mode           VARCHAR(32)  NOT NULL DEFAULT '',
		reason         VARCHAR(255) NOT NULL DEFAULT '',
		captured_at    BIGINT       NOT NULL,
		metadata       TEXT,
		profile_tree   MEDIUMTEXT   NOT NULL,
		PRIMARY KEY (id),
		KEY idx_snapshots_entity (entity_id, kind, captured_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS temp_assignments (
		entity_id      VARCHAR(36)  NOT NULL,
		partition_name VARCHAR(128) NOT NULL,
		origin         VARCHAR(128) NOT NULL,
		expires_at     BIGINT       NOT NULL DEFAULT 0,
		actor          VARCHAR(64)  NOT NULL DEFAULT '',
		reason         VARCHAR(255) NOT NULL DEFAULT '',
		PRIMARY KEY (entity_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// migrationProbe fails against databases created before the extended
// player-state columns existed; its failure triggers the ALTER list.
const migrationProbe = `SELECT stats_json FROM profiles LIMIT 1`

// migrations are additive and ordered. Each statement individually
// tolerates "duplicate column" so a partially migrated database finishes
// cleanly; no rollback is needed because nothing is destructive.
var migrations = []string{
	`ALTER TABLE profiles ADD COLUMN off_hand TEXT`,
	`ALTER TABLE profiles ADD COLUMN ender_chest MEDIUMTEXT`,
	`ALTER TABLE profiles ADD COLUMN version BIGINT UNSIGNED NOT NULL DEFAULT 0`,
	`ALTER TABLE profiles ADD COLUMN stats_json MEDIUMTEXT`,
	`ALTER TABLE profiles ADD COLUMN achievements MEDIUMTEXT`,
	`ALTER TABLE profiles ADD COLUMN recipes MEDIUMTEXT`,
}

// mysqlErrDuplicateColumn is server error 1060 (ER_DUP_FIELDNAME).
const mysqlErrDuplicateColumn = 1060

func createSchema(ctx context.Context, sqlDB *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

// migrate probes for the newest column and, when the probe fails, applies
// the additive column list. A duplicate-column error means that step was
// already applied and the sequence continues.
func migrate(ctx context.Context, sqlDB *sql.DB, log *logger.L) error {
	if _, err := sqlDB.ExecContext(ctx, migrationProbe); err == nil {
		return nil
	}
	log.Infof("profiles table predates extended columns, migrating")

	for _, stmt := range migrations {
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("exec migration %q: %w", stmt, err)
		}
	}
	return nil
}

func isDuplicateColumn(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDuplicateColumn
	}
	return false
}
