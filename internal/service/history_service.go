package service

import (
	"context"
	"fmt"

	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/repository"
)

// HistoryService archives sessions and serves the archive
type HistoryService struct {
	sessionRepo *repository.SessionRepository
	uploadRepo  *repository.UploadRepository
	backendURL  string
}

// NewHistoryService creates a new history service
func NewHistoryService(
	sessionRepo *repository.SessionRepository,
	uploadRepo *repository.UploadRepository,
	backendURL string,
) *HistoryService {
	return &HistoryService{
		sessionRepo: sessionRepo,
		uploadRepo:  uploadRepo,
		backendURL:  backendURL,
	}
}

// MessageAppended archives a message; the session row is created on first use
func (s *HistoryService) MessageAppended(ctx context.Context, sessionID string, message domain.Message) error {
	if err := s.sessionRepo.Create(sessionID, s.backendURL, message.Timestamp); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if err := s.sessionRepo.CreateMessage(sessionID, &message); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return s.sessionRepo.Touch(sessionID, message.Timestamp)
}

// UploadCompleted archives a successful upload batch
func (s *HistoryService) UploadCompleted(ctx context.Context, batch domain.UploadBatch) error {
	if err := s.sessionRepo.Create(batch.SessionID, s.backendURL, batch.CreatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if err := s.uploadRepo.Create(&batch); err != nil {
		return fmt.Errorf("failed to save upload: %w", err)
	}
	return s.sessionRepo.Touch(batch.SessionID, batch.CreatedAt)
}

// ListSessions returns the most recently active archived sessions
func (s *HistoryService) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	return s.sessionRepo.List(limit)
}

// GetTranscript returns an archived session with messages and uploads
func (s *HistoryService) GetTranscript(ctx context.Context, id string) (*domain.SessionTranscript, error) {
	summary, err := s.sessionRepo.Get(id)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, domain.ErrNotFound
	}

	messages, err := s.sessionRepo.GetMessages(id)
	if err != nil {
		return nil, err
	}
	uploads, err := s.uploadRepo.ListBySession(id)
	if err != nil {
		return nil, err
	}

	return &domain.SessionTranscript{
		SessionSummary: *summary,
		Messages:       messages,
		Uploads:        uploads,
	}, nil
}

// DeleteSession removes an archived session
func (s *HistoryService) DeleteSession(ctx context.Context, id string) error {
	return s.sessionRepo.Delete(id)
}
