// Package postgres provides the PostgreSQL-backed SessionStore using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rsilva/mediavault/internal/models"
	"github.com/rsilva/mediavault/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS upload_sessions (
    session_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    file_size BIGINT NOT NULL,
    chunk_size BIGINT NOT NULL,
    total_chunks INTEGER NOT NULL,
    content_type TEXT NOT NULL,
    declared_hash TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    uploaded_chunks JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ,
    metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_upload_sessions_owner ON upload_sessions(owner_id, status);
CREATE INDEX IF NOT EXISTS idx_upload_sessions_updated ON upload_sessions(status, updated_at);
`

// Store is the PostgreSQL-backed store.SessionStore.
type Store struct {
	pool *pgxpool.Pool
}

// Open creates a connection pool for connString and prepares the schema.
func Open(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
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
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = s.pool.Exec(ctx, query,
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
		session.CompletedAt,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload session: %w", err)
	}

	return nil
}

// Get retrieves a session by id, returning (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	query := selectColumns + ` FROM upload_sessions WHERE session_id = $1`

	row := s.pool.QueryRow(ctx, query, sessionID)
	session, err := scanSession(row)
	if err == pgx.ErrNoRows {
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
		SET status = $1, uploaded_chunks = $2, updated_at = $3, completed_at = $4, metadata = $5
		WHERE session_id = $6
	`

	tag, err := s.pool.Exec(ctx, query,
		string(session.Status),
		chunks,
		session.UpdatedAt,
		session.CompletedAt,
		metadata,
		session.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update upload session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", session.SessionID)
	}

	return nil
}

// Delete removes a session record. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM upload_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete upload session: %w", err)
	}
	return nil
}

// List returns sessions matching the filter, ordered by creation time.
func (s *Store) List(ctx context.Context, filter store.ListFilter) ([]*models.UploadSession, error) {
	query, args := buildFilterQuery(selectColumns+` FROM upload_sessions`, filter)
	query += ` ORDER BY created_at, session_id`

	rows, err := s.pool.Query(ctx, query, args...)
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
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count upload sessions: %w", err)
	}
	return count, nil
}

const selectColumns = `
	SELECT session_id, owner_id, filename, file_size, chunk_size, total_chunks,
	       content_type, declared_hash, status, uploaded_chunks,
	       created_at, updated_at, completed_at, metadata`

func buildFilterQuery(base string, filter store.ListFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			args = append(args, string(st))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !filter.UpdatedBefore.IsZero() {
		args = append(args, filter.UpdatedBefore)
		conds = append(conds, fmt.Sprintf("updated_at < $%d", len(args)))
	}

	if len(conds) > 0 {
		base += " WHERE " + strings.Join(conds, " AND ")
	}
	return base, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.UploadSession, error) {
	session := &models.UploadSession{}
	var status string
	var chunksJSON, metadataJSON []byte
	var completedAt *time.Time

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
	session.CompletedAt = completedAt

	if err := json.Unmarshal(chunksJSON, &session.UploadedChunks); err != nil {
		return nil, fmt.Errorf("failed to decode uploaded_chunks: %w", err)
	}
	if len(metadataJSON) > 0 && string(metadataJSON) != "{}" {
		if err := json.Unmarshal(metadataJSON, &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return session, nil
}

func encodeJSONColumns(session *models.UploadSession) ([]byte, []byte, error) {
	uploaded := session.UploadedChunks
	if uploaded == nil {
		uploaded = []int{}
	}
	chunks, err := json.Marshal(uploaded)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode uploaded_chunks: %w", err)
	}

	meta := session.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metadata, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	return chunks, metadata, nil
}
