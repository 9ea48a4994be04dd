// Package pending holds documents the user has selected but not yet uploaded.
package pending

import (
	"fmt"

	"github.com/liliang-cn/doclens/internal/domain"
)

// Set accumulates candidate files across add events. It is not safe for
// concurrent use; the orchestrator serializes access
type Set struct {
	files []domain.PendingFile
	keys  map[domain.FileKey]struct{}
}

// New creates an empty pending set
func New() *Set {
	return &Set{keys: make(map[domain.FileKey]struct{})}
}

// Add appends the PDF candidates whose (name, size) key is not already held.
// It returns how many files were added. Non-PDF candidates are ignored
func (s *Set) Add(candidates ...domain.PendingFile) int {
	added := 0
	for _, f := range candidates {
		if !f.IsPDF() {
			continue
		}
		key := f.Key()
		if _, dup := s.keys[key]; dup {
			continue
		}
		s.keys[key] = struct{}{}
		s.files = append(s.files, f)
		added++
	}
	return added
}

// Remove drops the entry at index; later entries shift down by one
func (s *Set) Remove(index int) (domain.PendingFile, error) {
	if index < 0 || index >= len(s.files) {
		return domain.PendingFile{}, fmt.Errorf("%w: %d (have %d)", domain.ErrIndexOutOfRange, index, len(s.files))
	}
	removed := s.files[index]
	s.files = append(s.files[:index:index], s.files[index+1:]...)
	delete(s.keys, removed.Key())
	return removed, nil
}

// Clear empties the set
func (s *Set) Clear() {
	s.files = nil
	s.keys = make(map[domain.FileKey]struct{})
}

// Len returns the number of pending files
func (s *Set) Len() int {
	return len(s.files)
}

// Files returns a copy of the pending files in insertion order
func (s *Set) Files() []domain.PendingFile {
	out := make([]domain.PendingFile, len(s.files))
	copy(out, s.files)
	return out
}

// TotalSize sums the size of every pending file
func (s *Set) TotalSize() int64 {
	var total int64
	for _, f := range s.files {
		total += f.Size
	}
	return total
}
