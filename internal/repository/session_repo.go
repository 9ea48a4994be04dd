package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/doclens/internal/domain"
)

// SessionRepository handles session and message persistence
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a session row if it does not exist yet
func (r *SessionRepository) Create(id, backendURL string, createdAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO sessions (id, backend_url, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, backendURL, createdAt, createdAt)

	return err
}

// Touch updates a session's updated_at timestamp
func (r *SessionRepository) Touch(id string, at time.Time) error {
	_, err := r.db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, at, id)
	return err
}

// CreateMessage appends a message to the session's archived log
func (r *SessionRepository) CreateMessage(sessionID string, message *domain.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO messages (id, session_id, seq, role, content, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?), ?, ?, ?)
	`, message.ID, sessionID, sessionID, string(message.Role), message.Content, message.Timestamp)

	return err
}

// GetMessages retrieves all messages for a session in log order
func (r *SessionRepository) GetMessages(sessionID string) ([]domain.Message, error) {
	rows, err := r.db.Query(`
		SELECT id, role, content, created_at
		FROM messages WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var role string
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// Get retrieves a session summary by ID
func (r *SessionRepository) Get(id string) (*domain.SessionSummary, error) {
	s := &domain.SessionSummary{}
	err := r.db.QueryRow(summaryQuery+` WHERE s.id = ?`, id).Scan(
		&s.ID, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount, &s.UploadCount, &s.ChunksCount)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// List retrieves the most recently updated sessions
func (r *SessionRepository) List(limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(summaryQuery+` ORDER BY s.updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []domain.SessionSummary{}
	for rows.Next() {
		var s domain.SessionSummary
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount, &s.UploadCount, &s.ChunksCount); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// Delete removes a session with its messages and uploads
func (r *SessionRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const summaryQuery = `
	SELECT s.id, s.created_at, s.updated_at,
		(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id),
		(SELECT COUNT(*) FROM uploads u WHERE u.session_id = s.id),
		COALESCE((SELECT u.chunks_count FROM uploads u WHERE u.session_id = s.id ORDER BY u.created_at DESC LIMIT 1), 0)
	FROM sessions s`
