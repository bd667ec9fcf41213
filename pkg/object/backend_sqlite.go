package object

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS objects (
	hash        TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	size        INTEGER NOT NULL,
	compressed  INTEGER NOT NULL DEFAULT 0,
	payload     BLOB NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_objects_type ON objects(type);
`

// SQLiteBackend stores objects as rows of a single table. Duplicate puts
// are ignored by the primary key.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// OpenSQLiteBackend opens (creating if needed) the database at path. The
// special path ":memory:" gives a private in-memory database.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("open sqlite backend: mkdir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite backend: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite backend: schema: %w", err)
	}
	return &SQLiteBackend{db: db, path: path}, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, rec Record) (bool, error) {
	res, err := b.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO objects (hash, type, size, compressed, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(rec.Ref.SHA256),
		string(rec.Ref.Type),
		int64(rec.Ref.Size),
		boolToInt(rec.Ref.Compressed),
		rec.Payload,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite put %s: %w", rec.Ref.SHA256, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite put %s: rows affected: %w", rec.Ref.SHA256, err)
	}
	return n > 0, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, h Hash) (*Record, error) {
	var (
		objType    string
		size       int64
		compressed int
		payload    []byte
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT type, size, compressed, payload FROM objects WHERE hash = ?`, string(h),
	).Scan(&objType, &size, &compressed, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", h, err)
	}
	return &Record{
		Ref: ObjectRef{
			SHA256:     h,
			Size:       uint64(size),
			Type:       ObjectType(objType),
			Compressed: compressed != 0,
		},
		Payload: payload,
	}, nil
}

func (b *SQLiteBackend) Has(ctx context.Context, h Hash) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx, `SELECT 1 FROM objects WHERE hash = ?`, string(h)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite has %s: %w", h, err)
	}
	return true, nil
}

func (b *SQLiteBackend) Walk(ctx context.Context, fn func(ObjectRef) error) error {
	rows, err := b.db.QueryContext(ctx, `SELECT hash, type, size, compressed FROM objects ORDER BY hash`)
	if err != nil {
		return fmt.Errorf("sqlite walk: %w", err)
	}
	defer rows.Close()

	// Collect first so fn may issue queries of its own.
	var refs []ObjectRef
	for rows.Next() {
		var (
			h, objType string
			size       int64
			compressed int
		)
		if err := rows.Scan(&h, &objType, &size, &compressed); err != nil {
			return fmt.Errorf("sqlite walk: scan: %w", err)
		}
		refs = append(refs, ObjectRef{
			SHA256:     Hash(h),
			Size:       uint64(size),
			Type:       ObjectType(objType),
			Compressed: compressed != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite walk: %w", err)
	}
	rows.Close()

	for _, ref := range refs {
		if err := fn(ref); err != nil {
			return err
		}
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
