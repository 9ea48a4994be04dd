// Package docfile turns files on disk into pending upload entries.
package docfile

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ledongthuc/pdf"

	"github.com/liliang-cn/doclens/internal/domain"
)

// sniffLen matches the prefix http.DetectContentType inspects
const sniffLen = 512

// Load stats and sniffs the file at path. The media type comes from the
// content, not the extension, so a renamed text file is not a PDF
func Load(path string) (domain.PendingFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.PendingFile{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.PendingFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return domain.PendingFile{}, fmt.Errorf("%s is a directory", path)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return domain.PendingFile{}, fmt.Errorf("reading %s: %w", path, err)
	}

	file := domain.PendingFile{
		Name:      filepath.Base(path),
		Size:      info.Size(),
		MediaType: DetectMediaType(head[:n]),
		Path:      path,
		Open:      opener(path),
	}
	if file.IsPDF() {
		file.Pages = countPages(f, info.Size())
	}
	return file, nil
}

// LoadAll loads every path, stopping at the first error
func LoadAll(paths []string) ([]domain.PendingFile, error) {
	files := make([]domain.PendingFile, 0, len(paths))
	for _, p := range paths {
		f, err := Load(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// DetectMediaType returns the bare media type for a content prefix
func DetectMediaType(head []byte) string {
	ct := http.DetectContentType(head)
	for i := 0; i < len(ct); i++ {
		if ct[i] == ';' {
			return ct[:i]
		}
	}
	return ct
}

// countPages returns 0 when the document cannot be parsed; the backend
// decides whether it is usable
func countPages(r io.ReaderAt, size int64) (pages int) {
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return 0
	}
	return doc.NumPage()
}

func opener(path string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return os.Open(path)
	}
}
