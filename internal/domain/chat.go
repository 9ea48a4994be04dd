package domain

import "time"

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session binds uploaded documents to a conversation
type Session struct {
	ID                 string    `json:"id"`
	Messages           []Message `json:"messages"`
	IsDocumentUploaded bool      `json:"is_document_uploaded"`
	ChunksCount        *int      `json:"chunks_count,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Message represents a chat message
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Turn is a prior exchange entry sent along with a query
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turns converts a message log into query history
func Turns(messages []Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// HistoryPolicy controls which turns accompany a query
type HistoryPolicy string

const (
	// HistoryPrior sends the log as it was before the new question
	HistoryPrior HistoryPolicy = "prior"
	// HistoryNone sends an empty history and lets the backend keep context
	HistoryNone HistoryPolicy = "none"
)

// HealthState is the tri-state backend readiness indicator
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)

// SessionSummary is an archived session listing entry
type SessionSummary struct {
	ID           string    `json:"id"`
	MessageCount int       `json:"message_count"`
	UploadCount  int       `json:"upload_count"`
	ChunksCount  int       `json:"chunks_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionTranscript is an archived session with its messages and uploads
type SessionTranscript struct {
	SessionSummary
	Messages []Message     `json:"messages"`
	Uploads  []UploadBatch `json:"uploads"`
}

// AskRequest is the request to ask a question
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}
