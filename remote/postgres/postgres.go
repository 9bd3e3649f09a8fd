// Package postgres writes monitored files to a Postgres table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/unkn0wn-root/cassync"
)

const DefaultTable = "cassync_files"

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Open connects through the pgx database/sql driver and pings once.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(8)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Writer upserts one row per file id.
type Writer struct {
	db     *sql.DB
	table  string
	upsert string
	now    func() time.Time
}

var _ cassync.FileWriter = (*Writer)(nil)

// New returns a writer over table; "" selects DefaultTable.
func New(db *sql.DB, table string) (*Writer, error) {
	if db == nil {
		return nil, fmt.Errorf("postgres writer: db is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("postgres writer: invalid table name %q", table)
	}
	return &Writer{
		db:    db,
		table: table,
		upsert: fmt.Sprintf(`
			INSERT INTO %s (id, name, contents, thread_id, updated_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				contents = EXCLUDED.contents,
				thread_id = EXCLUDED.thread_id,
				updated_at = EXCLUDED.updated_at`, table),
		now: time.Now,
	}, nil
}

// EnsureTable creates the table if it does not exist.
func (w *Writer) EnsureTable(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			contents   TEXT NOT NULL,
			thread_id  TEXT,
			updated_at TIMESTAMPTZ NOT NULL
		)`, w.table))
	if err != nil {
		return fmt.Errorf("create table %s: %w", w.table, err)
	}
	return nil
}

func (w *Writer) WriteFile(ctx context.Context, f cassync.File) error {
	if _, err := w.db.ExecContext(ctx, w.upsert, f.ID, f.Name, f.Contents, f.ThreadID, w.now().UTC()); err != nil {
		return fmt.Errorf("upsert %s: %w", f.ID, err)
	}
	return nil
}

// Read returns the stored contents of id.
func (w *Writer) Read(ctx context.Context, id string) (string, bool, error) {
	var contents string
	err := w.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT contents FROM %s WHERE id = $1`, w.table), id).Scan(&contents)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", id, err)
	}
	return contents, true, nil
}
