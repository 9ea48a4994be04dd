package domain

import (
	"io"
	"time"
)

// MediaTypePDF is the only media type accepted into the pending set
const MediaTypePDF = "application/pdf"

// FileKey is the identity of a pending file
type FileKey struct {
	Name string
	Size int64
}

// PendingFile is a document selected by the user but not yet submitted
type PendingFile struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MediaType string `json:"media_type"`
	Pages     int    `json:"pages,omitempty"`
	Path      string `json:"path,omitempty"`

	// Open returns the document bytes; nil means the file has no content source
	Open func() (io.ReadCloser, error) `json:"-"`
}

// Key returns the (name, size) identity used for dedup
func (f PendingFile) Key() FileKey {
	return FileKey{Name: f.Name, Size: f.Size}
}

// IsPDF reports whether the file carries the PDF media type
func (f PendingFile) IsPDF() bool {
	return f.MediaType == MediaTypePDF
}

// UploadBatch is an archived successful upload
type UploadBatch struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"session_id"`
	Files       []FileSummary `json:"files"`
	ChunksCount int           `json:"chunks_count"`
	CreatedAt   time.Time     `json:"created_at"`
}

// FileSummary is the archived description of an uploaded file
type FileSummary struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages,omitempty"`
}

// Summaries describes files for archiving
func Summaries(files []PendingFile) []FileSummary {
	out := make([]FileSummary, 0, len(files))
	for _, f := range files {
		out = append(out, FileSummary{Name: f.Name, Size: f.Size, Pages: f.Pages})
	}
	return out
}
