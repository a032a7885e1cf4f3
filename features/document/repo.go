package document

import (
	"context"
	"database/sql"

	"lumen/ingest/internal/worker"
)

type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetOwned(ctx context.Context, id, userID string) (*Document, error)
	ListByUser(ctx context.Context, userID string) ([]Document, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	MarkDeleting(ctx context.Context, id, userID string) error
	Delete(ctx context.Context, id, userID string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, d *Document) error {
	query := `INSERT INTO documents (user_id, name, source_type, storage_key, status) VALUES ($1, $2, $3, $4, 'uploaded') RETURNING id, status, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, d.UserID, d.Name, d.SourceType, d.StorageKey).
		Scan(&d.ID, &d.Status, &d.CreatedAt, &d.UpdatedAt)
}

func (r *PostgresRepo) GetOwned(ctx context.Context, id, userID string) (*Document, error) {
	d := &Document{}
	query := `SELECT id, user_id, name, source_type, storage_key, status, created_at, updated_at FROM documents WHERE id = $1 AND user_id = $2`
	err := r.db.QueryRowContext(ctx, query, id, userID).
		Scan(&d.ID, &d.UserID, &d.Name, &d.SourceType, &d.StorageKey, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string) ([]Document, error) {
	query := `SELECT d.id, d.user_id, d.name, d.source_type, d.storage_key, d.status, COALESCE(j.status, ''), d.created_at, d.updated_at
		FROM documents d
		LEFT JOIN LATERAL (SELECT status FROM ingestion_jobs WHERE document_id = d.id ORDER BY created_at DESC LIMIT 1) j ON true
		WHERE d.user_id = $1
		ORDER BY d.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.SourceType, &d.StorageKey, &d.Status, &d.JobStatus, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM documents WHERE user_id = $1 AND status <> 'deleting'`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}

// MarkProcessing never resurrects a document that already reached a
// terminal or deleting status.
func (r *PostgresRepo) MarkProcessing(ctx context.Context, id string) error {
	query := `UPDATE documents SET status = 'processing', updated_at = NOW() WHERE id = $1 AND status NOT IN ('processed', 'failed', 'deleting')`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) MarkProcessed(ctx context.Context, id string) error {
	query := `UPDATE documents SET status = 'processed', updated_at = NOW() WHERE id = $1 AND status <> 'deleting'`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id string) error {
	query := `UPDATE documents SET status = 'failed', updated_at = NOW() WHERE id = $1 AND status <> 'deleting'`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// MarkDeleting is owner-scoped; sql.ErrNoRows means the document does not
// exist or belongs to someone else.
func (r *PostgresRepo) MarkDeleting(ctx context.Context, id, userID string) error {
	query := `UPDATE documents SET status = 'deleting', updated_at = NOW() WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id, userID string) error {
	query := `DELETE FROM documents WHERE id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, id, userID)
	return err
}

// ChunkRepo mirrors the vector store contents into document_chunks rows.
type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// BulkInsert upserts by vector_id so a re-embedded document replaces its
// rows instead of duplicating them.
func (r *ChunkRepo) BulkInsert(ctx context.Context, records []worker.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO document_chunks (document_id, vector_id, chunk_index, content_length)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vector_id) DO UPDATE SET chunk_index = EXCLUDED.chunk_index, content_length = EXCLUDED.content_length`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.DocumentID, rec.VectorID, rec.ChunkIndex, rec.ContentLength); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ChunkRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM document_chunks c JOIN documents d ON d.id = c.document_id WHERE d.user_id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	query := `DELETE FROM document_chunks WHERE document_id = $1`
	_, err := r.db.ExecContext(ctx, query, documentID)
	return err
}
