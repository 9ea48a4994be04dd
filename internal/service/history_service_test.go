package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/repository"
)

func newTestHistory(t *testing.T) *HistoryService {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewHistoryService(
		repository.NewSessionRepository(db),
		repository.NewUploadRepository(db),
		"http://localhost:8000",
	)
}

func TestHistoryService_RecordsOrchestratorSession(t *testing.T) {
	history := newTestHistory(t)
	gw := &fakeGateway{uploadChunks: 5, answer: "It is about X."}
	o, _ := newTestOrchestrator(t, gw, WithRecorder(history))

	o.AddFiles(pdf("a.pdf", mb), pdf("b.pdf", 2*mb))
	require.NoError(t, o.SubmitUpload(ctx))
	require.NoError(t, o.Ask(ctx, "summarize"))

	sessions, err := history.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, o.SessionID(), sessions[0].ID)
	assert.Equal(t, 2, sessions[0].MessageCount)
	assert.Equal(t, 1, sessions[0].UploadCount)
	assert.Equal(t, 5, sessions[0].ChunksCount)

	transcript, err := history.GetTranscript(ctx, o.SessionID())
	require.NoError(t, err)
	require.Len(t, transcript.Messages, 2)
	assert.Equal(t, "summarize", transcript.Messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, transcript.Messages[1].Role)
	require.Len(t, transcript.Uploads, 1)
	assert.Equal(t, []domain.FileSummary{
		{Name: "a.pdf", Size: mb},
		{Name: "b.pdf", Size: 2 * mb},
	}, transcript.Uploads[0].Files)
}

func TestHistoryService_ResetStartsNewArchiveEntry(t *testing.T) {
	history := newTestHistory(t)
	gw := &fakeGateway{uploadChunks: 1, answer: "a"}
	o, _ := newTestOrchestrator(t, gw, WithRecorder(history))

	uploaded(t, o)
	require.NoError(t, o.Ask(ctx, "first session"))
	o.Reset(ctx)
	uploaded(t, o)
	require.NoError(t, o.Ask(ctx, "second session"))

	sessions, err := history.ListSessions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestHistoryService_MessageCreatesSession(t *testing.T) {
	history := newTestHistory(t)
	ts := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

	require.NoError(t, history.MessageAppended(ctx, "S9", domain.Message{
		ID: "m1", Role: domain.RoleUser, Content: "hello", Timestamp: ts,
	}))

	transcript, err := history.GetTranscript(ctx, "S9")
	require.NoError(t, err)
	assert.Equal(t, 1, transcript.MessageCount)
	assert.Empty(t, transcript.Uploads)
}

func TestHistoryService_NotFound(t *testing.T) {
	history := newTestHistory(t)

	_, err := history.GetTranscript(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, history.DeleteSession(ctx, "missing"), domain.ErrNotFound)
}

func TestHistoryService_Delete(t *testing.T) {
	history := newTestHistory(t)
	require.NoError(t, history.UploadCompleted(ctx, domain.UploadBatch{
		SessionID:   "S1",
		Files:       []domain.FileSummary{{Name: "a.pdf", Size: 10}},
		ChunksCount: 3,
		CreatedAt:   time.Now(),
	}))

	require.NoError(t, history.DeleteSession(ctx, "S1"))
	_, err := history.GetTranscript(ctx, "S1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
