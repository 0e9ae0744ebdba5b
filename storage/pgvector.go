package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"videoChat/config"
	"videoChat/core"
)

// PgVectorStore keeps the index in PostgreSQL with the pgvector extension.
// Rows are scoped by session id so concurrent sessions do not see each
// other's documents; Build wipes the session's rows before inserting.
type PgVectorStore struct {
	mu        sync.RWMutex
	conn      *pgx.Conn
	embedder  Embedder
	sessionID string
	built     bool
}

func NewPgVectorStore(cfg *config.Config, sessionID string) (*PgVectorStore, error) {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgVectorStore{conn: conn, embedder: NewEmbedder(cfg), sessionID: sessionID}
	if err := s.ensureTable(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) ensureTable(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS video_documents (
			id SERIAL PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL,
			modality VARCHAR(16) NOT NULL,
			doc_order INT NOT NULL,
			content TEXT NOT NULL,
			file_path VARCHAR(1024),
			embedding vector(%d),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`, embeddingDim)
	if _, err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create video_documents table: %w", err)
	}
	if _, err := s.conn.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_video_documents_session ON video_documents (session_id, modality, doc_order);"); err != nil {
		return fmt.Errorf("create session index: %w", err)
	}
	return nil
}

func (s *PgVectorStore) Build(ctx context.Context, dir string) error {
	c, err := scanWorkingDir(dir)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Rebuild replaces the previous index wholesale; until it completes the
	// store is not queryable, so a failed rebuild cannot serve partial rows.
	s.built = false
	if _, err := s.conn.Exec(ctx, "DELETE FROM video_documents WHERE session_id = $1", s.sessionID); err != nil {
		return fmt.Errorf("clear previous index: %w", err)
	}

	insert := func(modality string, order int, content, filePath string) error {
		vec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			return err
		}
		_, err = s.conn.Exec(ctx,
			"INSERT INTO video_documents (session_id, modality, doc_order, content, file_path, embedding) VALUES ($1, $2, $3, $4, $5, $6)",
			s.sessionID, modality, order, content, filePath, pgvector.NewVector(vec))
		if err != nil {
			return fmt.Errorf("insert %s document %d: %w", modality, order, err)
		}
		return nil
	}

	for i, t := range c.textDocs {
		if err := insert("text", i, t, ""); err != nil {
			return err
		}
	}
	for i, img := range c.imageDocs {
		if err := insert("image", i, img.repText, img.path); err != nil {
			return err
		}
	}

	s.built = true
	return nil
}

func (s *PgVectorStore) Retrieve(ctx context.Context, query string, topKText, topKImage int) ([]TextHit, []ImageHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.built {
		return nil, nil, &core.NotIndexedError{}
	}

	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	qvec := pgvector.NewVector(qv)

	// Cosine distance ascending equals similarity descending; doc_order
	// breaks ties by insertion order.
	rows, err := s.conn.Query(ctx, `
		SELECT content, 1 - (embedding <=> $1) AS score
		FROM video_documents
		WHERE session_id = $2 AND modality = 'text'
		ORDER BY embedding <=> $1, doc_order
		LIMIT $3`, qvec, s.sessionID, topKText)
	if err != nil {
		return nil, nil, fmt.Errorf("query text documents: %w", err)
	}
	var textHits []TextHit
	for rows.Next() {
		var h TextHit
		if err := rows.Scan(&h.Snippet, &h.Score); err != nil {
			rows.Close()
			return nil, nil, err
		}
		textHits = append(textHits, h)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, nil, rows.Err()
	}

	rows, err = s.conn.Query(ctx, `
		SELECT file_path, 1 - (embedding <=> $1) AS score
		FROM video_documents
		WHERE session_id = $2 AND modality = 'image'
		ORDER BY embedding <=> $1, doc_order
		LIMIT $3`, qvec, s.sessionID, topKImage)
	if err != nil {
		return nil, nil, fmt.Errorf("query image documents: %w", err)
	}
	defer rows.Close()
	var imageHits []ImageHit
	for rows.Next() {
		var h ImageHit
		if err := rows.Scan(&h.Path, &h.Score); err != nil {
			return nil, nil, err
		}
		imageHits = append(imageHits, h)
	}
	if rows.Err() != nil {
		return nil, nil, rows.Err()
	}

	return textHits, imageHits, nil
}

// Close releases the database connection and the session's rows.
func (s *PgVectorStore) Close(ctx context.Context) error {
	_, _ = s.conn.Exec(ctx, "DELETE FROM video_documents WHERE session_id = $1", s.sessionID)
	return s.conn.Close(ctx)
}
