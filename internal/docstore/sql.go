package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for PostgreSQL
	_ "modernc.org/sqlite"
)

const documentsTable = "documents"

// SQL stores documents in a single table keyed by (collection, doc_key) with
// a version column used for compare-and-swap updates. Statements are built
// with ent's dialect builder so the same code serves SQLite and PostgreSQL.
type SQL struct {
	db      *sql.DB
	dialect string
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(path string) (*SQL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewSQL(db, dialect.SQLite), nil
}

// OpenPostgres opens a PostgreSQL pool through the pgx stdlib driver.
func OpenPostgres(url string, maxOpen, maxIdle int) (*SQL, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	return NewSQL(db, dialect.Postgres), nil
}

// NewSQL wraps an already opened database. d is an ent dialect name.
func NewSQL(db *sql.DB, d string) *SQL {
	return &SQL{db: db, dialect: d}
}

// DB exposes the underlying pool, e.g. for pool tuning on config reload.
func (s *SQL) DB() *sql.DB { return s.db }

// InitSchema ensures the documents table exists.
func (s *SQL) InitSchema(ctx context.Context) error {
	blob := "BLOB"
	if s.dialect == dialect.Postgres {
		blob = "BYTEA"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			doc_key TEXT NOT NULL,
			data ` + blob + ` NOT NULL,
			version BIGINT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (collection, doc_key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQL) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

func keyIs(collection, key string) *entsql.Predicate {
	return entsql.And(entsql.EQ("collection", collection), entsql.EQ("doc_key", key))
}

func (s *SQL) read(ctx context.Context, collection, key string) ([]byte, int64, error) {
	b := s.builder()
	query, args := b.Select("data", "version").
		From(b.Table(documentsTable)).
		Where(keyIs(collection, key)).
		Query()

	var (
		data    []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read document: %w", err)
	}
	return data, version, nil
}

func (s *SQL) Get(ctx context.Context, collection, key string) ([]byte, error) {
	data, _, err := s.read(ctx, collection, key)
	return data, err
}

func (s *SQL) Update(ctx context.Context, collection, key string, fn UpdateFunc) ([]byte, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cur, version, err := s.read(ctx, collection, key)
		exists := true
		if errors.Is(err, ErrNotFound) {
			exists = false
		} else if err != nil {
			return nil, err
		}

		next, err := fn(cur, exists)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		if !exists {
			query, args := s.builder().Insert(documentsTable).
				Columns("collection", "doc_key", "data", "version", "updated_at").
				Values(collection, key, next, int64(1), now).
				Query()
			if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
				// A concurrent writer created the row first; re-read and retry.
				if _, _, rerr := s.read(ctx, collection, key); rerr == nil {
					continue
				}
				return nil, fmt.Errorf("insert document: %w", err)
			}
			return next, nil
		}

		query, args := s.builder().Update(documentsTable).
			Set("data", next).
			Set("version", version+1).
			Set("updated_at", now).
			Where(entsql.And(keyIs(collection, key), entsql.EQ("version", version))).
			Query()
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("update document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("update document: %w", err)
		}
		if n == 1 {
			return next, nil
		}
	}
	return nil, ErrConflict
}

func (s *SQL) Query(ctx context.Context, collection string, f Filter) ([]Document, error) {
	b := s.builder()
	pred := entsql.EQ("collection", collection)
	if f.KeyPrefix != "" {
		pred = entsql.And(pred, entsql.HasPrefix("doc_key", f.KeyPrefix))
	}
	query, args := b.Select("doc_key", "data").
		From(b.Table(documentsTable)).
		Where(pred).
		OrderBy("doc_key").
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.Key, &d.Data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *SQL) Delete(ctx context.Context, collection, key string) error {
	query, args := s.builder().Delete(documentsTable).Where(keyIs(collection, key)).Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
