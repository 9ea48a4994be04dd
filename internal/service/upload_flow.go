package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/liliang-cn/doclens/internal/domain"
)

const (
	uploadSuccessFormat = "Successfully processed %d file(s) into %d chunks"
	uploadFallback      = "Failed to upload PDF. Please try again."
	resetMessage        = "Session cleared. You can upload new documents."
)

// AddFiles offers candidates to the pending set and returns how many were
// accepted. Non-PDF files and (name, size) duplicates are dropped
func (o *Orchestrator) AddFiles(files ...domain.PendingFile) int {
	o.mu.Lock()
	added := o.pending.Add(files...)
	total := o.pending.Len()
	o.mu.Unlock()

	if skipped := len(files) - added; skipped > 0 {
		o.logger.Debug("pending files skipped",
			zap.Int("skipped", skipped),
			zap.Int("offered", len(files)),
		)
	}
	if added > 0 {
		o.logger.Debug("pending files added", zap.Int("added", added), zap.Int("total", total))
		o.publish()
	}
	return added
}

// RemoveFile drops the pending file at index
func (o *Orchestrator) RemoveFile(index int) (domain.PendingFile, error) {
	o.mu.Lock()
	removed, err := o.pending.Remove(index)
	o.mu.Unlock()
	if err != nil {
		return domain.PendingFile{}, err
	}
	o.publish()
	return removed, nil
}

// ClearFiles empties the pending set
func (o *Orchestrator) ClearFiles() {
	o.mu.Lock()
	o.pending.Clear()
	o.mu.Unlock()
	o.publish()
}

// SubmitUpload sends the pending files as one batch. The pending set is
// left as is so the caller can still see what was sent.
//
// On success the session is marked uploaded with the returned chunk count
// and a success notification is raised. On failure the session keeps its
// previous upload status and an error notification carries the backend
// detail or a generic message
func (o *Orchestrator) SubmitUpload(ctx context.Context) error {
	o.mu.Lock()
	flows := o.flows
	if !flows.uploadSem.TryAcquire(1) {
		o.mu.Unlock()
		return domain.ErrUploadInFlight
	}
	defer flows.uploadSem.Release(1)

	files := o.pending.Files()
	if len(files) == 0 {
		o.mu.Unlock()
		return fmt.Errorf("%w: no files selected", domain.ErrValidation)
	}
	sessionID, gen := o.session.ID, o.gen
	flows.uploading = true
	o.mu.Unlock()
	o.publish()

	o.logger.Info("upload started",
		zap.String("session_id", sessionID),
		zap.Int("files", len(files)),
	)

	result, err := o.gateway.UploadDocuments(ctx, files, sessionID)

	o.mu.Lock()
	flows.uploading = false
	if gen != o.gen {
		o.mu.Unlock()
		o.logger.Info("upload finished for discarded session", zap.String("session_id", sessionID))
		// Reset's delete may have reached the backend before these documents did
		if err == nil {
			o.discardRemote(ctx, sessionID)
		}
		return domain.ErrSessionDiscarded
	}
	if err != nil {
		o.mu.Unlock()
		o.publish()
		o.logger.Warn("upload failed", zap.String("session_id", sessionID), zap.Error(err))
		o.notifier.Notify(domain.NotifyError, failureMessage(err, uploadFallback))
		return fmt.Errorf("uploading documents: %w", err)
	}
	chunks := result.ChunksCount
	o.session.IsDocumentUploaded = true
	o.session.ChunksCount = &chunks
	o.mu.Unlock()

	o.logger.Info("upload completed",
		zap.String("session_id", sessionID),
		zap.Int("files", len(files)),
		zap.Int("chunks", chunks),
	)
	o.recordUpload(ctx, domain.UploadBatch{
		SessionID:   sessionID,
		Files:       domain.Summaries(files),
		ChunksCount: chunks,
		CreatedAt:   o.clock.Now(),
	})
	o.notifier.Notify(domain.NotifySuccess, fmt.Sprintf(uploadSuccessFormat, len(files), chunks))
	return nil
}

func (o *Orchestrator) recordUpload(ctx context.Context, batch domain.UploadBatch) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.UploadCompleted(ctx, batch); err != nil {
		o.logger.Error("failed to archive upload", zap.String("session_id", batch.SessionID), zap.Error(err))
	}
}

// failureMessage picks the backend detail when present, else fallback
func failureMessage(err error, fallback string) string {
	if detail := domain.FailureDetail(err); detail != "" {
		return detail
	}
	return fallback
}
