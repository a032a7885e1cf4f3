package worker

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lumen/ingest/internal/policy"
)

func chunkEmbedMessage(text string) ChunkEmbedMessage {
	return ChunkEmbedMessage{
		BaseMessage:  BaseMessage{JobID: "job-1", DocumentID: "doc-1", UserID: "user-1"},
		TextLocation: TextLocation{Type: TextLocationInline, Value: text},
	}
}

type chunkEmbedFixture struct {
	consumer *ChunkEmbedConsumer
	jobs     *mockJobStore
	docs     *mockDocumentStore
	chunks   *mockChunkStore
	state    *stateRecorder
	progress *progressRecorder
	plans    *mockPlanResolver
	embedder *mockEmbedder
	vectors  *mockVectorStore
}

func newChunkEmbedFixture(t *testing.T) *chunkEmbedFixture {
	t.Helper()
	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	f := &chunkEmbedFixture{
		jobs:     &mockJobStore{},
		docs:     &mockDocumentStore{},
		chunks:   &mockChunkStore{},
		state:    newStateRecorder(),
		progress: &progressRecorder{},
		plans:    &mockPlanResolver{},
		embedder: &mockEmbedder{},
		vectors:  &mockVectorStore{},
	}
	f.consumer = NewChunkEmbedConsumer(f.jobs, f.docs, f.chunks, f.state, f.progress, f.plans, f.embedder, f.vectors, pool, 5)
	return f
}

func TestChunkEmbedConsumer_CompletesDocument(t *testing.T) {
	f := newChunkEmbedFixture(t)
	f.plans.On("PlanFor", mock.Anything, "user-1").Return(policy.PlanFree, nil)
	f.embedder.On("Embed", mock.Anything, "text-embedding-004", "short document").Return([]float32{0.1, 0.2}, nil)

	var stored []VectorChunk
	f.vectors.On("AddBatch", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).([]VectorChunk)
	}).Return(nil)
	f.chunks.On("BulkInsert", mock.Anything, mock.Anything).Return(nil)
	f.jobs.On("MarkCompleted", mock.Anything, "job-1").Return(nil)
	f.docs.On("MarkProcessed", mock.Anything, "doc-1").Return(nil)

	err := f.consumer.HandleMessage(nsqMessage(t, 1, chunkEmbedMessage("short document")))
	require.NoError(t, err)

	require.Len(t, stored, 1)
	assert.Equal(t, "doc-1-0", stored[0].VectorID)
	assert.Equal(t, "short document", stored[0].Content)
	assert.Equal(t, []float32{0.1, 0.2}, stored[0].Vector)

	assert.Contains(t, f.state.stages, StageCompleted)
	require.NotEmpty(t, f.state.statuses)
	assert.Equal(t, StatusProcessing, f.state.statuses[0], "stage start must re-assert processing for pollers")
	assert.Contains(t, f.state.statuses, StatusCompleted)
	assert.Contains(t, f.state.progresses, 100)
	assert.Equal(t, []string{"job-1"}, f.state.expired)
	assert.Equal(t, []string{"doc-1"}, f.state.docInvalid)
	assert.Equal(t, []string{"user-1"}, f.state.listInval)
	f.jobs.AssertExpectations(t)
	f.docs.AssertExpectations(t)
}

func TestChunkEmbedConsumer_VectorIDsFollowChunkOrder(t *testing.T) {
	f := newChunkEmbedFixture(t)
	f.plans.On("PlanFor", mock.Anything, "user-1").Return(policy.PlanGo, nil)
	f.embedder.On("Embed", mock.Anything, "gemini-embedding-001", mock.Anything).Return([]float32{1}, nil)

	var stored []VectorChunk
	f.vectors.On("AddBatch", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).([]VectorChunk)
	}).Return(nil)

	var records []ChunkRecord
	f.chunks.On("BulkInsert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		records = args.Get(1).([]ChunkRecord)
	}).Return(nil)
	f.jobs.On("MarkCompleted", mock.Anything, "job-1").Return(nil)
	f.docs.On("MarkProcessed", mock.Anything, "doc-1").Return(nil)

	long := strings.Repeat("lorem ipsum dolor sit amet ", 200)
	err := f.consumer.HandleMessage(nsqMessage(t, 1, chunkEmbedMessage(long)))
	require.NoError(t, err)

	require.Greater(t, len(stored), 1)
	require.Len(t, records, len(stored))
	for i, ch := range stored {
		assert.Equal(t, fmt.Sprintf("doc-1-%d", i), ch.VectorID)
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, ch.VectorID, records[i].VectorID)
		assert.Equal(t, len(ch.Content), records[i].ContentLength)
	}
}

func TestChunkEmbedConsumer_ExternalTextLocationIsTerminal(t *testing.T) {
	f := newChunkEmbedFixture(t)
	f.plans.On("PlanFor", mock.Anything, "user-1").Return(policy.PlanFree, nil)
	f.jobs.On("MarkFailed", mock.Anything, "job-1", mock.Anything).Return(nil)
	f.docs.On("MarkFailed", mock.Anything, "doc-1").Return(nil)

	msg := chunkEmbedMessage("ignored")
	msg.TextLocation = TextLocation{Type: TextLocationExternal, Value: "s3://bucket/key"}

	err := f.consumer.HandleMessage(nsqMessage(t, 1, msg))
	require.NoError(t, err)
	assert.Contains(t, f.state.stages, StageChunkEmbedFailed)
	f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything, mock.Anything)
	f.jobs.AssertExpectations(t)
}

func TestChunkEmbedConsumer_EmbedFailureRequeues(t *testing.T) {
	f := newChunkEmbedFixture(t)
	f.plans.On("PlanFor", mock.Anything, "user-1").Return(policy.PlanFree, nil)
	f.embedder.On("Embed", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))

	err := f.consumer.HandleMessage(nsqMessage(t, 1, chunkEmbedMessage("some text")))
	require.Error(t, err)
	f.vectors.AssertNotCalled(t, "AddBatch", mock.Anything, mock.Anything)
	f.jobs.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestChunkEmbedConsumer_EmbedFailureAtCapFails(t *testing.T) {
	f := newChunkEmbedFixture(t)
	f.plans.On("PlanFor", mock.Anything, "user-1").Return(policy.PlanFree, nil)
	f.embedder.On("Embed", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))
	f.jobs.On("MarkFailed", mock.Anything, "job-1", mock.Anything).Return(nil)
	f.docs.On("MarkFailed", mock.Anything, "doc-1").Return(nil)

	err := f.consumer.HandleMessage(nsqMessage(t, 5, chunkEmbedMessage("some text")))
	require.NoError(t, err)
	assert.Contains(t, f.state.stages, StageChunkEmbedFailed)
	assert.Contains(t, f.state.statuses, StatusFailed)
}

func TestChunkEmbedConsumer_MarkFailedAttemptedEvenWhenStoreIsDown(t *testing.T) {
	f := newChunkEmbedFixture(t)
	f.plans.On("PlanFor", mock.Anything, "user-1").Return(policy.PlanFree, nil)
	f.jobs.On("MarkFailed", mock.Anything, "job-1", mock.Anything).Return(errors.New("db down"))
	f.docs.On("MarkFailed", mock.Anything, "doc-1").Return(errors.New("db down"))

	msg := chunkEmbedMessage("ignored")
	msg.TextLocation.Type = TextLocationExternal

	err := f.consumer.HandleMessage(nsqMessage(t, 1, msg))
	require.NoError(t, err, "terminal handling must finish the message even when marks fail")
	assert.Contains(t, f.state.statuses, StatusFailed)
	f.docs.AssertExpectations(t)
}
