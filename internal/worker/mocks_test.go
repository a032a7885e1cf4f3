package worker

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"lumen/ingest/internal/cache"
	"lumen/ingest/internal/policy"
)

type mockJobStore struct{ mock.Mock }

func (m *mockJobStore) MarkProcessing(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *mockJobStore) MarkCompleted(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *mockJobStore) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	return m.Called(ctx, jobID, errMsg).Error(0)
}

func (m *mockJobStore) DeleteByDocument(ctx context.Context, documentID string) error {
	return m.Called(ctx, documentID).Error(0)
}

func (m *mockJobStore) IDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	args := m.Called(ctx, documentID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

type mockDocumentStore struct{ mock.Mock }

func (m *mockDocumentStore) MarkProcessing(ctx context.Context, documentID string) error {
	return m.Called(ctx, documentID).Error(0)
}

func (m *mockDocumentStore) MarkProcessed(ctx context.Context, documentID string) error {
	return m.Called(ctx, documentID).Error(0)
}

func (m *mockDocumentStore) MarkFailed(ctx context.Context, documentID string) error {
	return m.Called(ctx, documentID).Error(0)
}

func (m *mockDocumentStore) Delete(ctx context.Context, documentID, userID string) error {
	return m.Called(ctx, documentID, userID).Error(0)
}

type mockChunkStore struct{ mock.Mock }

func (m *mockChunkStore) BulkInsert(ctx context.Context, records []ChunkRecord) error {
	return m.Called(ctx, records).Error(0)
}

func (m *mockChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	return m.Called(ctx, documentID).Error(0)
}

// stateRecorder captures cache writes so tests can assert on the surfaced
// status, stage and progress sequence without a Redis backend.
type stateRecorder struct {
	statuses   []string
	stages     []string
	progresses []int
	errs       []string
	expired    []string
	cleared    []string
	docStatus  map[string]string
	docInvalid []string
	listInval  []string
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{docStatus: map[string]string{}}
}

func (s *stateRecorder) SetJobStatus(_ context.Context, _ string, status string) {
	s.statuses = append(s.statuses, status)
}

func (s *stateRecorder) SetJobStage(_ context.Context, _ string, stage string) {
	s.stages = append(s.stages, stage)
}

func (s *stateRecorder) SetJobProgress(_ context.Context, _ string, progress int) {
	s.progresses = append(s.progresses, progress)
}

func (s *stateRecorder) SetJobError(_ context.Context, _ string, errMsg string) {
	s.errs = append(s.errs, errMsg)
}

func (s *stateRecorder) ExpireJob(_ context.Context, jobID string) {
	s.expired = append(s.expired, jobID)
}

func (s *stateRecorder) ClearJob(_ context.Context, jobID string) {
	s.cleared = append(s.cleared, jobID)
}

func (s *stateRecorder) SetDocumentStatus(_ context.Context, documentID, payload string, _ time.Duration) {
	s.docStatus[documentID] = payload
}

func (s *stateRecorder) InvalidateDocumentStatus(_ context.Context, documentID string) {
	s.docInvalid = append(s.docInvalid, documentID)
}

func (s *stateRecorder) InvalidateUserDocuments(_ context.Context, userID string) {
	s.listInval = append(s.listInval, userID)
}

// progressRecorder captures broadcast events in order.
type progressRecorder struct {
	events []cache.Event
}

func (p *progressRecorder) PublishJobUpdate(_ context.Context, _ string, ev cache.Event) {
	p.events = append(p.events, ev)
}

type published struct {
	topic string
	body  []byte
}

type taskRecorder struct {
	tasks []published
	err   error
}

func (t *taskRecorder) Publish(topic string, body []byte) error {
	if t.err != nil {
		return t.err
	}
	t.tasks = append(t.tasks, published{topic: topic, body: body})
	return nil
}

type mockPlanResolver struct{ mock.Mock }

func (m *mockPlanResolver) PlanFor(ctx context.Context, userID string) (policy.Plan, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(policy.Plan), args.Error(1)
}

type mockBlobStore struct{ mock.Mock }

func (m *mockBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockBlobStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type mockEmbedder struct{ mock.Mock }

func (m *mockEmbedder) Embed(ctx context.Context, model, text string) ([]float32, error) {
	args := m.Called(ctx, model, text)
	vec, _ := args.Get(0).([]float32)
	return vec, args.Error(1)
}

type mockVectorStore struct{ mock.Mock }

func (m *mockVectorStore) AddBatch(ctx context.Context, chunks []VectorChunk) error {
	return m.Called(ctx, chunks).Error(0)
}

func (m *mockVectorStore) DeleteByDocument(ctx context.Context, documentID, userID string) error {
	return m.Called(ctx, documentID, userID).Error(0)
}
