package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/doclens/internal/domain"
)

// UploadRepository handles archived upload batches
type UploadRepository struct {
	db *DB
}

// NewUploadRepository creates a new upload repository
func NewUploadRepository(db *DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create archives a successful upload batch
func (r *UploadRepository) Create(batch *domain.UploadBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now()
	}

	filesJSON, err := json.Marshal(batch.Files)
	if err != nil {
		return fmt.Errorf("failed to encode files: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO uploads (id, session_id, files, chunks_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, batch.ID, batch.SessionID, string(filesJSON), batch.ChunksCount, batch.CreatedAt)

	return err
}

// ListBySession retrieves a session's uploads, oldest first
func (r *UploadRepository) ListBySession(sessionID string) ([]domain.UploadBatch, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, files, chunks_count, created_at
		FROM uploads WHERE session_id = ?
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := []domain.UploadBatch{}
	for rows.Next() {
		var b domain.UploadBatch
		var filesJSON string
		if err := rows.Scan(&b.ID, &b.SessionID, &filesJSON, &b.ChunksCount, &b.CreatedAt); err != nil {
			return nil, err
		}
		if filesJSON != "" {
			json.Unmarshal([]byte(filesJSON), &b.Files)
		}
		batches = append(batches, b)
	}

	return batches, rows.Err()
}
