// Package sqlite provides a SQLite-backed account store using the pure-Go
// modernc driver. The schema is applied on open; a single table holds
// accounts with a unique index on the normalized email.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/halcyon-auth/authkit/account"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
  id            TEXT PRIMARY KEY,
  email         TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  verified      INTEGER NOT NULL DEFAULT 0,
  disabled      INTEGER NOT NULL DEFAULT 0,
  first_name    TEXT NOT NULL DEFAULT '',
  last_name     TEXT NOT NULL DEFAULT '',
  phone         TEXT NOT NULL DEFAULT '',
  company       TEXT NOT NULL DEFAULT '',
  created_at    INTEGER NOT NULL,
  updated_at    INTEGER NOT NULL
);
`

// Store persists accounts in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Pass ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// Create inserts a new account record.
func (s *Store) Create(ctx context.Context, a *account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO accounts (
		   id, email, password_hash, verified, disabled,
		   first_name, last_name, phone, company,
		   created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		account.NormalizeEmail(a.Email),
		a.PasswordHash,
		boolToInt(a.Verified),
		boolToInt(a.Disabled),
		a.Profile.FirstName,
		a.Profile.LastName,
		a.Profile.Phone,
		a.Profile.Company,
		toMillis(a.CreatedAt),
		toMillis(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// FindByEmail looks up an account by its normalized email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.findWhere(ctx, "email = ?", account.NormalizeEmail(email))
}

// FindByID looks up an account by ID.
func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	return s.findWhere(ctx, "id = ?", id)
}

func (s *Store) findWhere(ctx context.Context, where string, arg string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, email, password_hash, verified, disabled,
		        first_name, last_name, phone, company,
		        created_at, updated_at
		   FROM accounts WHERE `+where,
		arg,
	)

	var (
		a                  account.Account
		verified, disabled int
		created, updated   int64
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &verified, &disabled,
		&a.Profile.FirstName, &a.Profile.LastName, &a.Profile.Phone, &a.Profile.Company,
		&created, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("query account: %w", err)
	}

	a.Verified = verified != 0
	a.Disabled = disabled != 0
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)

	return &a, nil
}

// SetVerified flips the verified flag.
func (s *Store) SetVerified(ctx context.Context, id string, verified bool) error {
	return s.updateColumn(ctx, id, "verified", boolToInt(verified))
}

// UpdatePasswordHash replaces the stored credential.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.updateColumn(ctx, id, "password_hash", hash)
}

// SetDisabled flips the disabled flag.
func (s *Store) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return s.updateColumn(ctx, id, "disabled", boolToInt(disabled))
}

func (s *Store) updateColumn(ctx context.Context, id, column string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE accounts SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value,
		toMillis(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if affected == 0 {
		return account.ErrNotFound
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
