package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/store"
)

// SQLite serves development and tests. Vectors are stored as JSON arrays and
// similarity is computed in process, so it does not scale past small catalogues.

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a database driver.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil || profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	dsn := profile.DSN
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	// busy_timeout waits on locks instead of failing with SQLITE_BUSY.
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	if !isMemory(profile.DSN) {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	sqliteDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}
	if isMemory(profile.DSN) {
		// Every connection to :memory: is a separate database.
		sqliteDB.SetMaxOpenConns(1)
	}

	driver := DB{db: sqliteDB, profile: profile}
	return &driver, nil
}

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'taste_profile')",
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check database initialization")
	}
	return exists, nil
}
