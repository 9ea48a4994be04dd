package session

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/service"
)

// Handler exposes the active session to a presentation process
type Handler struct {
	orchestrator *service.Orchestrator
	stager       *service.Stager
	logger       *zap.Logger
}

// NewHandler creates a new session handler
func NewHandler(orchestrator *service.Orchestrator, stager *service.Stager, logger *zap.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		stager:       stager,
		logger:       logger,
	}
}

// RegisterRoutes registers session routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.GetState)
	r.POST("/files", h.AddFiles)
	r.DELETE("/files", h.ClearFiles)
	r.DELETE("/files/:index", h.RemoveFile)
	r.POST("/upload", h.Upload)
	r.POST("/ask", h.Ask)
	r.POST("/reset", h.Reset)
	r.DELETE("/notification", h.DismissNotification)
}

// GetState returns the current session snapshot
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Snapshot())
}

// AddFiles stages multipart "files" and offers them to the pending set
func (h *Handler) AddFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form is required"})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "files are required"})
		return
	}

	sessionID := h.orchestrator.SessionID()
	files, err := h.stager.Stage(sessionID, headers)
	if err != nil {
		h.logger.Error("failed to stage files", zap.Error(err))
		h.prune(sessionID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	added := h.orchestrator.AddFiles(files...)
	h.prune(sessionID)
	c.JSON(http.StatusOK, gin.H{
		"added":   added,
		"skipped": len(files) - added,
		"state":   h.orchestrator.Snapshot(),
	})
}

// RemoveFile drops one pending file by position
func (h *Handler) RemoveFile(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return
	}

	if _, err := h.orchestrator.RemoveFile(index); err != nil {
		h.fail(c, err)
		return
	}
	h.prune(h.orchestrator.SessionID())
	c.JSON(http.StatusOK, h.orchestrator.Snapshot())
}

// ClearFiles empties the pending set
func (h *Handler) ClearFiles(c *gin.Context) {
	h.orchestrator.ClearFiles()
	h.prune(h.orchestrator.SessionID())
	c.JSON(http.StatusOK, h.orchestrator.Snapshot())
}

// Upload submits the pending set to the backend
func (h *Handler) Upload(c *gin.Context) {
	if err := h.orchestrator.SubmitUpload(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.orchestrator.Snapshot())
}

// Ask submits a question about the uploaded documents
func (h *Handler) Ask(c *gin.Context) {
	var req domain.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orchestrator.Ask(c.Request.Context(), req.Question); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.orchestrator.Snapshot())
}

// Reset discards the session and its staged files
func (h *Handler) Reset(c *gin.Context) {
	old := h.orchestrator.SessionID()
	h.orchestrator.Reset(c.Request.Context())
	if err := h.stager.Discard(old); err != nil {
		h.logger.Warn("failed to discard staged files", zap.String("session_id", old), zap.Error(err))
	}
	c.JSON(http.StatusOK, h.orchestrator.Snapshot())
}

// prune drops staged files the pending set no longer holds
func (h *Handler) prune(sessionID string) {
	if err := h.stager.Prune(sessionID, h.orchestrator.Snapshot().PendingFiles); err != nil {
		h.logger.Warn("failed to prune staged files", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// DismissNotification clears the active notification early
func (h *Handler) DismissNotification(c *gin.Context) {
	h.orchestrator.DismissNotification()
	c.JSON(http.StatusOK, h.orchestrator.Snapshot())
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("session request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"state": h.orchestrator.Snapshot(),
	})
}

// StatusFor maps orchestrator and gateway errors to HTTP status codes
func StatusFor(err error) int {
	switch {
	// Backend statuses unwrap to sentinels too; they are still gateway failures
	case domain.IsGatewayFailure(err):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNoDocument):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUploadInFlight),
		errors.Is(err, domain.ErrQueryInFlight),
		errors.Is(err, domain.ErrSessionDiscarded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIndexOutOfRange),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
