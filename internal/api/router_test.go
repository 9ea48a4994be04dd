package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/liliang-cn/doclens/internal/gateway"
	"github.com/liliang-cn/doclens/internal/repository"
	"github.com/liliang-cn/doclens/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newBackend stands in for the document QA service.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"healthy","version":"2.0.0","google_api_configured":true}`)
	})
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n := len(r.MultipartForm.File["files"])
		fmt.Fprintf(w, `{"message":"PDF processed successfully","session_id":%q,"chunks_count":%d}`,
			r.FormValue("session_id"), n*5)
	})
	mux.HandleFunc("POST /query", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question  string `json:"question"`
			SessionID string `json:"session_id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Question == "boom" {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"detail":"Error processing query: model unavailable"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"answer":     "answer to " + req.Question,
			"session_id": req.SessionID,
		})
	})
	mux.HandleFunc("DELETE /session/{id}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":"Session deleted"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type bridge struct {
	router       *gin.Engine
	orchestrator *service.Orchestrator
	stagingDir   string
}

func newBridge(t *testing.T, apiKey string) *bridge {
	t.Helper()
	backend := newBackend(t)
	logger := zaptest.NewLogger(t)

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	historyService := service.NewHistoryService(
		repository.NewSessionRepository(db),
		repository.NewUploadRepository(db),
		backend.URL,
	)

	gw := gateway.New(backend.URL, 10*time.Second, gateway.WithLogger(logger))
	orchestrator := service.NewOrchestrator(gw,
		service.WithLogger(logger),
		service.WithRecorder(historyService),
	)
	t.Cleanup(func() { orchestrator.Close(context.Background()) })

	stagingDir := t.TempDir()
	router := SetupRouter(orchestrator, service.NewStager(stagingDir), historyService, RouterConfig{
		APIKey:       apiKey,
		AllowOrigins: []string{"http://localhost:5173"},
		Logger:       logger,
	})
	return &bridge{router: router, orchestrator: orchestrator, stagingDir: stagingDir}
}

func (b *bridge) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	b.router.ServeHTTP(w, req)
	var body map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	}
	return w, body
}

func (b *bridge) addFiles(t *testing.T, files map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		io.WriteString(part, content)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/session/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return b.do(t, req)
}

func (b *bridge) ask(t *testing.T, question string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/session/ask", strings.NewReader(fmt.Sprintf(`{"question":%q}`, question)))
	req.Header.Set("Content-Type", "application/json")
	return b.do(t, req)
}

func post(path string) *http.Request {
	return httptest.NewRequest(http.MethodPost, path, nil)
}

func messages(body map[string]any) []any {
	state := body
	if s, ok := body["state"].(map[string]any); ok {
		state = s
	}
	session := state["session"].(map[string]any)
	msgs, _ := session["messages"].([]any)
	return msgs
}

func TestHealth(t *testing.T) {
	b := newBridge(t, "")
	w, body := b.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "healthy", body["backend"])
}

func TestSession_UploadAndAsk(t *testing.T) {
	b := newBridge(t, "")

	w, body := b.addFiles(t, map[string]string{
		"a.pdf":     "%PDF-1.4\nfirst\n",
		"b.pdf":     "%PDF-1.4\nsecond\n",
		"notes.txt": "not a pdf",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["added"])
	assert.EqualValues(t, 1, body["skipped"])

	w, body = b.do(t, post("/api/session/upload"))
	require.Equal(t, http.StatusOK, w.Code)
	session := body["session"].(map[string]any)
	assert.Equal(t, true, session["is_document_uploaded"])
	assert.EqualValues(t, 10, session["chunks_count"])
	notification := body["notification"].(map[string]any)
	assert.Equal(t, "Successfully processed 2 file(s) into 10 chunks", notification["message"])

	w, body = b.ask(t, "summarize")
	require.Equal(t, http.StatusOK, w.Code)
	msgs := messages(body)
	require.Len(t, msgs, 2)
	assert.Equal(t, "answer to summarize", msgs[1].(map[string]any)["content"])

	// The exchange reached the archive.
	w, body = b.do(t, httptest.NewRequest(http.MethodGet, "/api/history/sessions/"+b.orchestrator.SessionID(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["message_count"])
	assert.EqualValues(t, 1, body["upload_count"])
}

func TestSession_AskBeforeUpload(t *testing.T) {
	b := newBridge(t, "")

	w, body := b.ask(t, "What is X?")
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Empty(t, messages(body))
}

func TestSession_AskValidation(t *testing.T) {
	b := newBridge(t, "")

	w, _ := b.do(t, func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/session/ask", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		return req
	}())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = b.ask(t, "   ")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSession_UploadNothing(t *testing.T) {
	b := newBridge(t, "")
	w, _ := b.do(t, post("/api/session/upload"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSession_AskFailureIsBadGateway(t *testing.T) {
	b := newBridge(t, "")
	b.addFiles(t, map[string]string{"a.pdf": "%PDF-1.4\n"})
	w, _ := b.do(t, post("/api/session/upload"))
	require.Equal(t, http.StatusOK, w.Code)

	w, body := b.ask(t, "boom")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	state := body["state"].(map[string]any)
	notification := state["notification"].(map[string]any)
	assert.Equal(t, "error", notification["kind"])
	assert.Equal(t, "Error processing query: model unavailable", notification["message"])

	// The unanswered question stays in the log.
	msgs := messages(body)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestSession_RemoveAndClearFiles(t *testing.T) {
	b := newBridge(t, "")
	b.addFiles(t, map[string]string{"a.pdf": "%PDF-1.4\na\n", "b.pdf": "%PDF-1.4\nbb\n"})

	w, _ := b.do(t, httptest.NewRequest(http.MethodDelete, "/api/session/files/7", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = b.do(t, httptest.NewRequest(http.MethodDelete, "/api/session/files/x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := b.do(t, httptest.NewRequest(http.MethodDelete, "/api/session/files/0", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["pending_files"], 1)

	w, body = b.do(t, httptest.NewRequest(http.MethodDelete, "/api/session/files", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["pending_files"])
}

func (b *bridge) staged(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(b.stagingDir, b.orchestrator.SessionID()))
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func TestSession_StagedFilesFollowPendingSet(t *testing.T) {
	b := newBridge(t, "")

	w, _ := b.addFiles(t, map[string]string{
		"a.pdf":     "%PDF-1.4\na\n",
		"b.pdf":     "%PDF-1.4\nbb\n",
		"notes.txt": "not a pdf",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, b.staged(t), "rejected file is not kept on disk")

	w, body := b.addFiles(t, map[string]string{"a.pdf": "%PDF-1.4\na\n"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["added"])
	assert.Equal(t, 2, b.staged(t), "duplicate is not kept on disk")

	w, _ = b.do(t, httptest.NewRequest(http.MethodDelete, "/api/session/files/0", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, b.staged(t))

	w, _ = b.do(t, httptest.NewRequest(http.MethodDelete, "/api/session/files", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, b.staged(t))
}

func TestSession_DismissNotification(t *testing.T) {
	b := newBridge(t, "")
	_, body := b.do(t, post("/api/session/reset"))
	require.NotNil(t, body["notification"])

	w, body := b.do(t, httptest.NewRequest(http.MethodDelete, "/api/session/notification", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, body["notification"])
}

func TestSession_Reset(t *testing.T) {
	b := newBridge(t, "")
	old := b.orchestrator.SessionID()
	b.addFiles(t, map[string]string{"a.pdf": "%PDF-1.4\n"})
	b.do(t, post("/api/session/upload"))

	w, body := b.do(t, post("/api/session/reset"))
	require.Equal(t, http.StatusOK, w.Code)
	session := body["session"].(map[string]any)
	assert.NotEqual(t, old, session["id"])
	assert.Equal(t, false, session["is_document_uploaded"])
	assert.Empty(t, body["pending_files"])
	assert.Equal(t, "Session cleared. You can upload new documents.", body["notification"].(map[string]any)["message"])
}

func TestHistory_ListAndNotFound(t *testing.T) {
	b := newBridge(t, "")

	w, body := b.do(t, httptest.NewRequest(http.MethodGet, "/api/history/sessions", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["sessions"])

	w, _ = b.do(t, httptest.NewRequest(http.MethodGet, "/api/history/sessions/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = b.do(t, httptest.NewRequest(http.MethodDelete, "/api/history/sessions/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuth(t *testing.T) {
	b := newBridge(t, "secret")

	w, _ := b.do(t, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("X-API-Key", "secret")
	w, _ = b.do(t, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w, _ = b.do(t, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open.
	w, _ = b.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	b := newBridge(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/session/ask", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	b.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	b.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHistoryDisabled(t *testing.T) {
	backend := newBackend(t)
	o := service.NewOrchestrator(gateway.New(backend.URL, time.Second))
	router := SetupRouter(o, service.NewStager(t.TempDir()), nil, RouterConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/sessions", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
