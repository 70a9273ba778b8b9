package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"missiondir/internal/domain"
)

var ErrNotFound = errors.New("not found")

// identPattern guards the configured table and key names before they are
// interpolated into SQL. Placeholders cannot be used for identifiers.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const (
	DefaultTable   = "missions"
	DefaultKeyAttr = "pk"
)

// Store persists mission records in a single table addressed by an exact
// key. Table and key column names are injected by the deployment
// configuration, mirroring the table-name/primary-key surface the service
// consumes from its environment.
type Store struct {
	DB      *sql.DB
	Table   string
	KeyAttr string
}

func New(db *sql.DB, table, keyAttr string) (Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if keyAttr == "" {
		keyAttr = DefaultKeyAttr
	}
	if !identPattern.MatchString(table) {
		return Store{}, fmt.Errorf("invalid table name %q", table)
	}
	if !identPattern.MatchString(keyAttr) {
		return Store{}, fmt.Errorf("invalid key attribute %q", keyAttr)
	}
	return Store{DB: db, Table: table, KeyAttr: keyAttr}, nil
}

// Ensure creates the records table if missing. Runs alongside migrations
// at startup; separate from them because the table name is configured.
func (s Store) Ensure(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY, name TEXT NOT NULL, description TEXT NOT NULL, created_at TEXT NOT NULL)`,
		s.Table, s.KeyAttr))
	if err != nil {
		return fmt.Errorf("ensure %s: %w", s.Table, err)
	}
	return nil
}

// Put writes a complete record. Re-writing an existing id is permitted;
// last write wins. Ids are generated, not caller-supplied, so collisions
// are practically unreachable.
func (s Store) Put(ctx context.Context, m domain.Mission) error {
	_, err := s.DB.ExecContext(ctx, s.putSQL(), m.ID, m.Name, m.Description, m.CreatedAt)
	return err
}

// PutTx is Put inside a caller-owned transaction.
func (s Store) PutTx(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	_, err := tx.ExecContext(ctx, s.putSQL(), m.ID, m.Name, m.Description, m.CreatedAt)
	return err
}

func (s Store) putSQL() string {
	return fmt.Sprintf(`INSERT INTO %s(%s, name, description, created_at) VALUES (?,?,?,?)
ON CONFLICT(%s) DO UPDATE SET name=excluded.name, description=excluded.description`,
		s.Table, s.KeyAttr, s.KeyAttr)
}

// Get returns the record stored under id, or ErrNotFound.
func (s Store) Get(ctx context.Context, id string) (domain.Mission, error) {
	var m domain.Mission
	err := s.DB.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s, name, description, created_at FROM %s WHERE %s=?`, s.KeyAttr, s.Table, s.KeyAttr), id).
		Scan(&m.ID, &m.Name, &m.Description, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Mission{}, ErrNotFound
	}
	return m, err
}
