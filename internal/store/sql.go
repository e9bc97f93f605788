package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/cros-updates/cros-updates/internal/fingerprint"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// database/sql driver names registered by the imported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore keeps one row per device. The statements only use syntax shared
// by SQLite and PostgreSQL ($n placeholders, ON CONFLICT upserts).
type SQLStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewSQLStore wraps db and creates the table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, table string) (*SQLStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	s := &SQLStore{db: db, table: table, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		device_id TEXT PRIMARY KEY,
		version TEXT NOT NULL,
		product TEXT NOT NULL,
		eol TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, deviceID string) (fingerprint.Fingerprint, bool, error) {
	query := fmt.Sprintf(`SELECT version, product, eol FROM %s WHERE device_id = $1`, s.table)

	var fp fingerprint.Fingerprint
	err := s.db.QueryRowContext(ctx, query, deviceID).Scan(&fp.Version, &fp.Product, &fp.EOL)
	if errors.Is(err, sql.ErrNoRows) {
		return fingerprint.Fingerprint{}, false, nil
	}
	if err != nil {
		return fingerprint.Fingerprint{}, false, fmt.Errorf("select fingerprint: %w", err)
	}
	return fp, true, nil
}

func (s *SQLStore) Put(ctx context.Context, deviceID string, fp fingerprint.Fingerprint) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (device_id, version, product, eol, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id) DO UPDATE SET
			version = excluded.version,
			product = excluded.product,
			eol = excluded.eol,
			updated_at = excluded.updated_at`, s.table)

	_, err := s.db.ExecContext(ctx, stmt, deviceID, fp.Version, fp.Product, fp.EOL, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert fingerprint: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
