package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

// Fresh databases are initialized from migration/{driver}/LATEST.sql.
// Existing databases are left untouched.

//go:embed migration
var migrationFS embed.FS

// LatestSchemaFileName is the name of the latest schema file.
const LatestSchemaFileName = "LATEST.sql"

// Migrate applies the latest schema when the database is not yet initialized.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		slog.Debug("database already initialized", slog.String("driver", s.profile.Driver))
		return nil
	}

	filePath := s.getMigrationBasePath() + LatestSchemaFileName
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to read latest schema file %s", filePath)
	}

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("initializing new database with latest schema", slog.String("file", filePath))
	if err := s.execute(ctx, tx, string(bytes)); err != nil {
		return errors.Wrapf(err, "failed to execute SQL file %s", filePath)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	slog.Info("database initialized successfully", slog.String("driver", s.profile.Driver))
	return nil
}

func (s *Store) getMigrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.profile.Driver)
}

// execute runs a schema script. PostgreSQL scripts are split into single statements.
func (s *Store) execute(ctx context.Context, tx *sql.Tx, script string) error {
	if s.profile.Driver != "postgres" {
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return errors.Wrap(err, "failed to execute statement")
		}
		return nil
	}

	for i, stmt := range splitSQL(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute statement %d: %s", i+1, stmt)
		}
	}
	return nil
}

// splitSQL splits a script on top-level semicolons. Dollar-quoted bodies ($$ ... $$),
// single-quoted strings and "--" comments are respected.
func splitSQL(script string) []string {
	var (
		statements []string
		current    strings.Builder
		dollarTag  string
		inQuote    bool
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(script, "\n") {
		for i := 0; i < len(line); i++ {
			ch := line[i]

			switch {
			case dollarTag == "" && !inQuote && ch == '-' && i+1 < len(line) && line[i+1] == '-':
				i = len(line) // rest of line is a comment
				continue
			case !inQuote && ch == '$':
				if end := strings.IndexByte(line[i+1:], '$'); end >= 0 && isDollarTag(line[i+1:i+1+end]) {
					tag := line[i : i+end+2]
					switch dollarTag {
					case "":
						dollarTag = tag
					case tag:
						dollarTag = ""
					}
					current.WriteString(tag)
					i += len(tag) - 1
					continue
				}
			case dollarTag == "" && ch == '\'':
				inQuote = !inQuote
			case dollarTag == "" && !inQuote && ch == ';':
				current.WriteByte(ch)
				flush()
				continue
			}
			current.WriteByte(ch)
		}
		current.WriteByte('\n')
	}
	flush()

	return statements
}

// isDollarTag reports whether name can sit between the dollars of a quote tag.
// Positional parameters such as $1 are not tags.
func isDollarTag(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
