// Package gateway is the typed HTTP client for the document QA backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/doclens/internal/domain"
)

// Health is the backend status record
type Health struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	ServiceConfigured bool   `json:"google_api_configured"`
}

// UploadResult is the backend reply to a document upload
type UploadResult struct {
	Message     string `json:"message"`
	SessionID   string `json:"session_id"`
	ChunksCount int    `json:"chunks_count"`
}

// QueryResult is the backend reply to a question
type QueryResult struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
}

type queryRequest struct {
	Question    string        `json:"question"`
	SessionID   string        `json:"session_id"`
	ChatHistory []domain.Turn `json:"chat_history"`
}

// Client talks to the backend. It holds no session state and is safe for
// concurrent use
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the backend at baseURL
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckHealth fetches the backend status
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}

	var health Health
	if err := c.do(req, domain.OpHealth, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// UploadDocuments sends files as one multipart batch bound to sessionID
func (c *Client) UploadDocuments(ctx context.Context, files []domain.PendingFile, sessionID string) (*UploadResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files to upload", domain.ErrValidation)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, files, sessionID))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Debug("uploading documents",
		zap.String("session_id", sessionID),
		zap.Int("files", len(files)),
	)

	var result UploadResult
	if err := c.do(req, domain.OpUpload, &result); err != nil {
		pr.Close()
		return nil, err
	}
	return &result, nil
}

func writeUploadForm(mw *multipart.Writer, files []domain.PendingFile, sessionID string) error {
	for _, f := range files {
		if f.Open == nil {
			return fmt.Errorf("file %s has no content source", f.Name)
		}
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", f.Name, err)
		}
		_, err = io.Copy(part, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Name, err)
		}
	}
	if err := mw.WriteField("session_id", sessionID); err != nil {
		return err
	}
	return mw.Close()
}

// SubmitQuery asks a question against the documents uploaded for sessionID
func (c *Client) SubmitQuery(ctx context.Context, question, sessionID string, history []domain.Turn) (*QueryResult, error) {
	if history == nil {
		history = []domain.Turn{}
	}
	body, err := json.Marshal(queryRequest{
		Question:    question,
		SessionID:   sessionID,
		ChatHistory: history,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var result QueryResult
	if err := c.do(req, domain.OpQuery, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteSession discards the backend state for sessionID. Best-effort
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/session/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return err
	}
	return c.do(req, domain.OpDelete, nil)
}

func (c *Client) do(req *http.Request, op string, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		svcErr := &domain.ServiceError{
			Op:     op,
			Status: resp.StatusCode,
			Detail: parseDetail(body),
		}
		c.logger.Debug("backend rejected request",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", svcErr.Detail),
		)
		return svcErr
	}

	if v == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &domain.TransportError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
