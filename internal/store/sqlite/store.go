// Package sqlite provides the SQLite-backed SessionStore. The driver is
// modernc.org/sqlite, which is CGO-free.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rsilva/mediavault/internal/models"
	"github.com/rsilva/mediavault/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS upload_sessions (
    session_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    file_size INTEGER NOT NULL,
    chunk_size INTEGER NOT NULL,
    total_chunks INTEGER NOT NULL,
    content_type TEXT NOT NULL,
    declared_hash TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    uploaded_chunks TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    completed_at DATETIME,
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_upload_sessions_owner ON upload_sessions(owner_id, status);
CREATE INDEX IF NOT EXISTS idx_upload_sessions_updated ON upload_sessions(status, updated_at);
`

// Store is the SQLite-backed store.SessionStore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at dbPath and
// prepares the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode so chunk-acceptance updates don't serialize behind readers
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ store.SessionStore = (*Store)(nil)

// Create inserts a new session record.
func (s *Store) Create(ctx context.Context, session *models.UploadSession) error {
	chunks, metadata, err := encodeJSONColumns(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO upload_sessions (
			session_id, owner_id, filename, file_size, chunk_size, total_chunks,
			content_type, declared_hash, status, uploaded_chunks,
			created_at, updated_at, completed_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		session.SessionID,
		session.OwnerID,
		session.Filename,
		session.FileSize,
		session.ChunkSize,
		session.TotalChunks,
		session.ContentType,
		session.DeclaredHash,
		string(session.Status),
		chunks,
		session.CreatedAt,
		session.UpdatedAt,
		nullableTime(session.CompletedAt),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload session: %w", err)
	}

	return nil
}

// Get retrieves a session by id, returning (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	query := selectColumns + ` FROM upload_sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload session: %w", err)
	}
	return session, nil
}

// Update replaces the mutable columns of an existing session.
func (s *Store) Update(ctx context.Context, session *models.UploadSession) error {
	chunks, metadata, err := encodeJSONColumns(session)
	if err != nil {
		return err
	}

	query := `
		UPDATE upload_sessions
		SET status = ?, uploaded_chunks = ?, updated_at = ?, completed_at = ?, metadata = ?
		WHERE session_id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		string(session.Status),
		chunks,
		session.UpdatedAt,
		nullableTime(session.CompletedAt),
		metadata,
		session.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update upload session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("session %s not found", session.SessionID)
	}

	return nil
}

// Delete removes a session record. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete upload session: %w", err)
	}
	return nil
}

// List returns sessions matching the filter, ordered by creation time.
func (s *Store) List(ctx context.Context, filter store.ListFilter) ([]*models.UploadSession, error) {
	query, args := buildFilterQuery(selectColumns+` FROM upload_sessions`, filter)
	query += ` ORDER BY created_at, session_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.UploadSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list upload sessions: %w", err)
	}

	return sessions, nil
}

// Count returns the number of sessions matching the filter.
func (s *Store) Count(ctx context.Context, filter store.ListFilter) (int, error) {
	query, args := buildFilterQuery(`SELECT COUNT(*) FROM upload_sessions`, filter)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count upload sessions: %w", err)
	}
	return count, nil
}

const selectColumns = `
	SELECT session_id, owner_id, filename, file_size, chunk_size, total_chunks,
	       content_type, declared_hash, status, uploaded_chunks,
	       created_at, updated_at, completed_at, metadata`

// buildFilterQuery appends WHERE clauses for the filter to a base query.
func buildFilterQuery(base string, filter store.ListFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.OwnerID != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !filter.UpdatedBefore.IsZero() {
		conds = append(conds, "updated_at < ?")
		args = append(args, filter.UpdatedBefore)
	}

	if len(conds) > 0 {
		base += " WHERE " + strings.Join(conds, " AND ")
	}
	return base, args
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.UploadSession, error) {
	session := &models.UploadSession{}
	var status string
	var chunksJSON, metadataJSON string
	var completedAt sql.NullTime

	err := row.Scan(
		&session.SessionID,
		&session.OwnerID,
		&session.Filename,
		&session.FileSize,
		&session.ChunkSize,
		&session.TotalChunks,
		&session.ContentType,
		&session.DeclaredHash,
		&status,
		&chunksJSON,
		&session.CreatedAt,
		&session.UpdatedAt,
		&completedAt,
		&metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	session.Status = models.SessionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}

	if err := json.Unmarshal([]byte(chunksJSON), &session.UploadedChunks); err != nil {
		return nil, fmt.Errorf("failed to decode uploaded_chunks: %w", err)
	}
	if metadataJSON != "" && metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return session, nil
}

func encodeJSONColumns(session *models.UploadSession) (chunks string, metadata string, err error) {
	uploaded := session.UploadedChunks
	if uploaded == nil {
		uploaded = []int{}
	}
	chunksBytes, err := json.Marshal(uploaded)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode uploaded_chunks: %w", err)
	}

	meta := session.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metadataBytes, err := json.Marshal(meta)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	return string(chunksBytes), string(metadataBytes), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
