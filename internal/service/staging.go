package service

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/liliang-cn/doclens/internal/docfile"
	"github.com/liliang-cn/doclens/internal/domain"
)

// Stager keeps files received by the bridge on disk until they are uploaded
type Stager struct {
	dir string
}

// NewStager creates a stager rooted at dir
func NewStager(dir string) *Stager {
	return &Stager{dir: dir}
}

// Stage saves multipart files under the session's staging directory and
// loads them as pending files. The original filename is kept as the
// display name
func (s *Stager) Stage(sessionID string, headers []*multipart.FileHeader) ([]domain.PendingFile, error) {
	// Create storage directory
	storageDir := filepath.Join(s.dir, sessionID)
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	files := make([]domain.PendingFile, 0, len(headers))
	for _, fh := range headers {
		storagePath := filepath.Join(storageDir, uuid.New().String()+filepath.Ext(fh.Filename))
		if err := saveUpload(fh, storagePath); err != nil {
			return nil, err
		}

		f, err := docfile.Load(storagePath)
		if err != nil {
			return nil, err
		}
		f.Name = filepath.Base(fh.Filename)
		files = append(files, f)
	}
	return files, nil
}

// Prune deletes staged files of a session that are not in keep, e.g. ones
// the pending set rejected or that were removed from it
func (s *Stager) Prune(sessionID string, keep []domain.PendingFile) error {
	storageDir := filepath.Join(s.dir, sessionID)
	entries, err := os.ReadDir(storageDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read staging directory: %w", err)
	}

	kept := make(map[string]struct{}, len(keep))
	for _, f := range keep {
		kept[filepath.Clean(f.Path)] = struct{}{}
	}

	var errs []error
	for _, e := range entries {
		path := filepath.Join(storageDir, e.Name())
		if _, ok := kept[path]; ok {
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard removes everything staged for a session
func (s *Stager) Discard(sessionID string) error {
	return os.RemoveAll(filepath.Join(s.dir, sessionID))
}

func saveUpload(fh *multipart.FileHeader, storagePath string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(storagePath)
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}
