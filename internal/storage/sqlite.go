package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/fsindex/pkg/types"
)

var (
	// ErrNotFound is returned when a requested index or document doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteBackend implements the Backend interface using SQLite
type SQLiteBackend struct {
	db     *sql.DB
	logger *slog.Logger
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Wait for concurrent writers (a second fsindex process) instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteBackend creates a new SQLite backend instance
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteBackend{db: db, logger: slog.Default()}, nil
}

// SetLogger sets the logger used for query logging
func (s *SQLiteBackend) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close closes the database connection
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Index operations

// EnsureIndex creates the index if absent and updates its mapping otherwise.
// A mapping that changes the type of an existing field cannot be applied in
// place: the index is dropped together with its documents and recreated.
func (s *SQLiteBackend) EnsureIndex(ctx context.Context, index string, mapping *Mapping) error {
	if mapping == nil {
		mapping = DefaultMapping()
	}
	encoded, err := mapping.JSON()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stored string
	err = tx.QueryRowContext(ctx, `SELECT mapping FROM indices WHERE name = ?`, index).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		// Create below
	case err != nil:
		return fmt.Errorf("failed to read index %q: %w", index, err)
	default:
		existing, err := ParseMapping([]byte(stored))
		if err == nil && len(existing.Conflicts(mapping)) == 0 {
			now := time.Now()
			if _, err := tx.ExecContext(ctx,
				`UPDATE indices SET mapping = ?, updated_at = ? WHERE name = ?`,
				string(encoded), now, index); err != nil {
				return fmt.Errorf("failed to update mapping of index %q: %w", index, err)
			}
			return tx.Commit()
		}

		s.logger.Warn("index mapping is incompatible, recreating index",
			slog.String("index", index))
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE index_name = ?`, index); err != nil {
			return fmt.Errorf("failed to drop documents of index %q: %w", index, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM indices WHERE name = ?`, index); err != nil {
			return fmt.Errorf("failed to drop index %q: %w", index, err)
		}
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO indices (name, mapping, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		index, string(encoded), now, now); err != nil {
		return fmt.Errorf("failed to create index %q: %w", index, err)
	}
	return tx.Commit()
}

// Refresh makes every committed write durable in the main database file.
// Writes are visible to later queries as soon as BulkWrite commits; the
// checkpoint and refreshed_at stamp give callers an explicit barrier between
// the write phase and the delete phase of a run.
func (s *SQLiteBackend) Refresh(ctx context.Context, index string) error {
	if err := s.requireIndex(ctx, s.db, index); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return fmt.Errorf("failed to checkpoint: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE indices SET refreshed_at = ? WHERE name = ?`, time.Now(), index); err != nil {
		return fmt.Errorf("failed to refresh index %q: %w", index, err)
	}
	return nil
}

// SetQueryLog toggles logging of every search against index
func (s *SQLiteBackend) SetQueryLog(ctx context.Context, index string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE indices SET query_log = ?, updated_at = ? WHERE name = ?`, enabled, time.Now(), index)
	if err != nil {
		return fmt.Errorf("failed to update index %q: %w", index, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("index %q: %w", index, ErrNotFound)
	}
	return nil
}

// Status returns statistics about an index
func (s *SQLiteBackend) Status(ctx context.Context, index string) (*IndexStatus, error) {
	status := &IndexStatus{Name: index}

	var refreshedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT query_log, refreshed_at, created_at, updated_at
		FROM indices
		WHERE name = ?
	`, index).Scan(&status.QueryLog, &refreshedAt, &status.CreatedAt, &status.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("index %q: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if refreshedAt.Valid {
		status.RefreshedAt = refreshedAt.Time
	}

	var oldest, newest sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN kind = 'directory' THEN 1 ELSE 0 END), 0),
		       MIN(time), MAX(time)
		FROM documents
		WHERE index_name = ?
	`, index).Scan(&status.Documents, &status.Directories, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	status.Files = status.Documents - status.Directories
	status.OldestEpoch = oldest.Int64
	status.NewestEpoch = newest.Int64

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.DatabaseBytes = pageCount * pageSize
	}

	return status, nil
}

// Document operations

// BulkWrite upserts docs by id in a single transaction
func (s *SQLiteBackend) BulkWrite(ctx context.Context, index string, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.requireIndex(ctx, tx, index); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (index_name, id, path, filename, kind, filesize, last_modified, time, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(index_name, id) DO UPDATE SET
			path = excluded.path,
			filename = excluded.filename,
			kind = excluded.kind,
			filesize = excluded.filesize,
			last_modified = excluded.last_modified,
			time = excluded.time,
			source = excluded.source
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range docs {
		doc := &docs[i]
		if doc.ID == "" {
			return fmt.Errorf("document for %q has no id", doc.Source.Path.Real)
		}

		source, err := json.Marshal(doc.Source)
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", doc.ID, err)
		}

		var filesize sql.NullInt64
		if doc.Source.File.Filesize != nil {
			filesize = sql.NullInt64{Int64: *doc.Source.File.Filesize, Valid: true}
		}
		var lastModified sql.NullTime
		if doc.Source.File.LastModified != nil {
			lastModified = sql.NullTime{Time: *doc.Source.File.LastModified, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			index, doc.ID, doc.Source.Path.Real, doc.Source.File.Filename,
			string(doc.Source.File.Kind), filesize, lastModified, doc.Source.Time, string(source),
		); err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteByQuery removes every document of index whose time is below timeLessThan
func (s *SQLiteBackend) DeleteByQuery(ctx context.Context, index string, timeLessThan int64) (int64, error) {
	if err := s.requireIndex(ctx, s.db, index); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE index_name = ? AND time < ?`, index, timeLessThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return res.RowsAffected()
}

// Get returns a single document by id
func (s *SQLiteBackend) Get(ctx context.Context, index string, id string) (*types.Document, error) {
	var source string
	err := s.db.QueryRowContext(ctx,
		`SELECT source FROM documents WHERE index_name = ? AND id = ?`, index, id).Scan(&source)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	doc := &types.Document{ID: id}
	if err := json.Unmarshal([]byte(source), &doc.Source); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return doc, nil
}

// Search operations

// Search looks up documents by filename prefix or full-text term
func (s *SQLiteBackend) Search(ctx context.Context, index string, query Query) (*types.SearchResult, error) {
	if err := s.requireIndex(ctx, s.db, index); err != nil {
		return nil, err
	}
	if query.Limit <= 0 {
		query.Limit = 100
	}

	start := time.Now()

	var (
		where strings.Builder
		args  []interface{}
		from  = "documents d"
	)
	where.WriteString("d.index_name = ?")
	args = append(args, index)

	if query.Term != "" {
		if query.Fulltext {
			// FTS5 resolves MATCH against the table name, not an alias
			from = "documents d JOIN documents_fts ON d.rowid = documents_fts.rowid"
			where.WriteString(" AND documents_fts MATCH ?")
			args = append(args, ftsPrefix(query.Term))
		} else {
			where.WriteString(` AND d.filename LIKE ? ESCAPE '\'`)
			args = append(args, escapeLike(query.Term)+"%")
		}
	}

	if prefix := strings.TrimSuffix(query.PathPrefix, "/"); prefix != "" {
		where.WriteString(` AND (d.path = ? OR d.path LIKE ? ESCAPE '\')`)
		args = append(args, prefix, escapeLike(prefix)+"/%")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM " + from + " WHERE " + where.String()
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count hits: %w", err)
	}

	hitQuery := "SELECT d.id, d.source FROM " + from + " WHERE " + where.String() +
		" ORDER BY d.path LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, hitQuery, append(args, query.Limit, query.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := &types.SearchResult{Total: total, Hits: make([]types.SearchHit, 0)}
	for rows.Next() {
		var id, source string
		if err := rows.Scan(&id, &source); err != nil {
			return nil, err
		}
		hit := types.SearchHit{ID: id, Rank: query.Offset + len(result.Hits) + 1}
		if err := json.Unmarshal([]byte(source), &hit.Source); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
		}
		result.Hits = append(result.Hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if s.queryLogEnabled(ctx, index) {
		s.logger.Info("query",
			slog.String("index", index),
			slog.String("term", query.Term),
			slog.String("path", query.PathPrefix),
			slog.Bool("fulltext", query.Fulltext),
			slog.Int64("total", total),
			slog.Duration("took", time.Since(start)))
	}

	return result, nil
}

// Helpers

func (s *SQLiteBackend) requireIndex(ctx context.Context, q querier, index string) error {
	var name string
	err := q.QueryRowContext(ctx, `SELECT name FROM indices WHERE name = ?`, index).Scan(&name)
	if err == sql.ErrNoRows {
		return fmt.Errorf("index %q: %w", index, ErrNotFound)
	}
	return err
}

func (s *SQLiteBackend) queryLogEnabled(ctx context.Context, index string) bool {
	var enabled bool
	_ = s.db.QueryRowContext(ctx, `SELECT query_log FROM indices WHERE name = ?`, index).Scan(&enabled)
	return enabled
}

// escapeLike escapes LIKE wildcards so the term is matched literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ftsPrefix quotes term as a single FTS5 prefix phrase
func ftsPrefix(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"*`
}
