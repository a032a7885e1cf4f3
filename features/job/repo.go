package job

import (
	"context"
	"database/sql"
)

type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	GetOwned(ctx context.Context, id, userID string) (*Job, error)
	LatestByDocument(ctx context.Context, documentID string) (*Job, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	DeleteByDocument(ctx context.Context, documentID string) error
	IDsByDocument(ctx context.Context, documentID string) ([]string, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, j *Job) error {
	query := `INSERT INTO ingestion_jobs (user_id, document_id, status) VALUES ($1, $2, 'queued') RETURNING id, status, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, j.UserID, j.DocumentID).
		Scan(&j.ID, &j.Status, &j.CreatedAt, &j.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	query := `SELECT id, user_id, document_id, status, retry_count, error, created_at, updated_at FROM ingestion_jobs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&j.ID, &j.UserID, &j.DocumentID, &j.Status, &j.RetryCount, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *PostgresRepo) GetOwned(ctx context.Context, id, userID string) (*Job, error) {
	j := &Job{}
	query := `SELECT id, user_id, document_id, status, retry_count, error, created_at, updated_at FROM ingestion_jobs WHERE id = $1 AND user_id = $2`
	err := r.db.QueryRowContext(ctx, query, id, userID).
		Scan(&j.ID, &j.UserID, &j.DocumentID, &j.Status, &j.RetryCount, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *PostgresRepo) LatestByDocument(ctx context.Context, documentID string) (*Job, error) {
	j := &Job{}
	query := `SELECT id, user_id, document_id, status, retry_count, error, created_at, updated_at FROM ingestion_jobs WHERE document_id = $1 ORDER BY created_at DESC LIMIT 1`
	err := r.db.QueryRowContext(ctx, query, documentID).
		Scan(&j.ID, &j.UserID, &j.DocumentID, &j.Status, &j.RetryCount, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// MarkProcessing is conditional so a redelivered message can never
// resurrect a job that already reached a terminal status.
func (r *PostgresRepo) MarkProcessing(ctx context.Context, id string) error {
	query := `UPDATE ingestion_jobs SET status = 'processing', retry_count = retry_count + 1, updated_at = NOW() WHERE id = $1 AND status NOT IN ('completed', 'failed')`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, id string) error {
	query := `UPDATE ingestion_jobs SET status = 'completed', error = '', updated_at = NOW() WHERE id = $1 AND status NOT IN ('completed', 'failed')`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	query := `UPDATE ingestion_jobs SET status = 'failed', error = $2, updated_at = NOW() WHERE id = $1 AND status <> 'completed'`
	_, err := r.db.ExecContext(ctx, query, id, errMsg)
	return err
}

func (r *PostgresRepo) CountFailedByUser(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM ingestion_jobs WHERE user_id = $1 AND status = 'failed'`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}

func (r *PostgresRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	query := `DELETE FROM ingestion_jobs WHERE document_id = $1`
	_, err := r.db.ExecContext(ctx, query, documentID)
	return err
}

func (r *PostgresRepo) IDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	query := `SELECT id FROM ingestion_jobs WHERE document_id = $1`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
