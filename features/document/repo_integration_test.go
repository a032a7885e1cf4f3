package document_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lumen/ingest/features/document"
	"lumen/ingest/features/job"
	"lumen/ingest/internal/testutils"
	"lumen/ingest/internal/worker"
)

func TestDocumentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()

	var userID string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO users (email) VALUES ('ingest-test@example.com') RETURNING id`).Scan(&userID)
	require.NoError(t, err)

	docRepo := document.NewPostgresRepo(s.DB)
	jobRepo := job.NewPostgresRepo(s.DB)
	chunkRepo := document.NewChunkRepo(s.DB)

	// 1. Create a document and two jobs against it.
	doc := &document.Document{
		UserID:     userID,
		Name:       "report.pdf",
		SourceType: "pdf",
		StorageKey: "documents/abc-report.pdf",
	}
	require.NoError(t, docRepo.Create(ctx, doc))
	require.NotEmpty(t, doc.ID)
	assert.Equal(t, document.StatusUploaded, doc.Status)

	j1 := &job.Job{UserID: userID, DocumentID: doc.ID}
	require.NoError(t, jobRepo.Create(ctx, j1))

	// Sleep to ensure time difference for the latest-job ordering.
	time.Sleep(100 * time.Millisecond)

	j2 := &job.Job{UserID: userID, DocumentID: doc.ID}
	require.NoError(t, jobRepo.Create(ctx, j2))

	latest, err := jobRepo.LatestByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, j2.ID, latest.ID)

	// 2. Listing joins the latest job status in.
	require.NoError(t, jobRepo.MarkProcessing(ctx, j2.ID))
	docs, err := docRepo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, job.StatusProcessing, docs[0].JobStatus)

	// 3. Terminal statuses stick through redelivered processing marks.
	require.NoError(t, jobRepo.MarkCompleted(ctx, j2.ID))
	require.NoError(t, jobRepo.MarkProcessing(ctx, j2.ID))
	latest, err = jobRepo.Get(ctx, j2.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, latest.Status)

	// 4. Chunk upsert replaces rows on a second ingestion run.
	records := []worker.ChunkRecord{
		{DocumentID: doc.ID, VectorID: doc.ID + "-0", ChunkIndex: 0, ContentLength: 120},
		{DocumentID: doc.ID, VectorID: doc.ID + "-1", ChunkIndex: 1, ContentLength: 80},
	}
	require.NoError(t, chunkRepo.BulkInsert(ctx, records))
	records[1].ContentLength = 200
	require.NoError(t, chunkRepo.BulkInsert(ctx, records))

	var count, length int
	require.NoError(t, s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, doc.ID).Scan(&count))
	assert.Equal(t, 2, count)
	require.NoError(t, s.DB.QueryRowContext(ctx,
		`SELECT content_length FROM document_chunks WHERE vector_id = $1`, doc.ID+"-1").Scan(&length))
	assert.Equal(t, 200, length)

	// 5. Ownership: a different user sees nothing and cannot mark deleting.
	var otherID string
	require.NoError(t, s.DB.QueryRowContext(ctx,
		`INSERT INTO users (email) VALUES ('other@example.com') RETURNING id`).Scan(&otherID))
	_, err = docRepo.GetOwned(ctx, doc.ID, otherID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.ErrorIs(t, docRepo.MarkDeleting(ctx, doc.ID, otherID), sql.ErrNoRows)

	// 6. Deletion ordering: chunks, jobs, then the document row.
	require.NoError(t, docRepo.MarkDeleting(ctx, doc.ID, userID))
	require.NoError(t, chunkRepo.DeleteByDocument(ctx, doc.ID))
	require.NoError(t, jobRepo.DeleteByDocument(ctx, doc.ID))
	require.NoError(t, docRepo.Delete(ctx, doc.ID, userID))

	count, err = docRepo.CountByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
