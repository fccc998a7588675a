// Package storage keeps uploaded diagnostic archives on the local
// filesystem. Every accepted file is signature-checked so the parse
// core only ever sees plausible archives.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diaglog/backend/internal/archive"
	"github.com/diaglog/backend/internal/models"
)

// Store is the archive storage interface used by the API and upload
// layers.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	Rename(id string, newName string) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	SaveChunk(uploadID string, chunkIndex int, r io.Reader) error
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error)
	SetStatus(id string, status string)
}

// LocalStore implements Store on the local filesystem.
type LocalStore struct {
	mu       sync.RWMutex
	dir      string
	archives map[string]*models.FileInfo
}

// NewLocalStore creates the archive directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &LocalStore{
		dir:      dir,
		archives: make(map[string]*models.FileInfo),
	}, nil
}

// Save streams an upload to disk and validates its content signature.
// Files whose first bytes match none of the supported archive formats
// are rejected and removed.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.dir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating archive file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing archive file: %w", err)
	}

	return s.accept(id, name, size)
}

// accept validates a stored file's signature and registers its
// metadata. The file is deleted when the signature is unrecognized.
func (s *LocalStore) accept(id, name string, size int64) (*models.FileInfo, error) {
	path := filepath.Join(s.dir, id)
	format, err := archive.Sniff(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("rejecting upload %q: %w", name, err)
	}

	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       size,
		Format:     string(format),
		UploadedAt: time.Now(),
		Status:     "uploaded",
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives[id] = info
	cp := *info
	return &cp, nil
}

// Get retrieves a copy of the archive metadata by id. Callers get a
// snapshot; later status changes do not reach it.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.archives[id]
	if !ok {
		return nil, fmt.Errorf("archive not found: %s", id)
	}
	cp := *info
	return &cp, nil
}

// List returns snapshots of the most recently uploaded archives.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.archives))
	for _, info := range s.archives {
		cp := *info
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes an archive and its metadata.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.archives[id]; !ok {
		return fmt.Errorf("archive not found: %s", id)
	}
	path := filepath.Join(s.dir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting archive: %w", err)
	}
	delete(s.archives, id)
	return nil
}

// Rename updates the display name of an archive.
func (s *LocalStore) Rename(id string, newName string) (*models.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.archives[id]
	if !ok {
		return nil, fmt.Errorf("archive not found: %s", id)
	}
	info.Name = newName
	cp := *info
	return &cp, nil
}

// GetFilePath returns the on-disk path of an archive.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.archives[id]; !ok {
		return "", fmt.Errorf("archive not found: %s", id)
	}
	return filepath.Join(s.dir, id), nil
}

// SetStatus updates the lifecycle status of an archive. Unknown ids
// are ignored.
func (s *LocalStore) SetStatus(id string, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info, ok := s.archives[id]; ok {
		info.Status = status
	}
}

// SaveChunk stores one chunk of a chunked upload.
func (s *LocalStore) SaveChunk(uploadID string, chunkIndex int, r io.Reader) error {
	chunkDir := filepath.Join(s.dir, "chunks", uploadID)
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}

	path := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", chunkIndex))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}
	return nil
}

// CompleteChunkedUpload assembles all chunks into a final archive and
// validates the assembled file's signature.
func (s *LocalStore) CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error) {
	id := uuid.New().String()
	finalPath := filepath.Join(s.dir, id)
	chunkDir := filepath.Join(s.dir, "chunks", uploadID)
	defer os.RemoveAll(chunkDir)

	out, err := os.Create(finalPath)
	if err != nil {
		return nil, fmt.Errorf("creating final archive: %w", err)
	}

	var totalSize int64
	for i := 0; i < totalChunks; i++ {
		in, err := os.Open(filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", i)))
		if err != nil {
			out.Close()
			os.Remove(finalPath)
			return nil, fmt.Errorf("opening chunk %d: %w", i, err)
		}
		n, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			out.Close()
			os.Remove(finalPath)
			return nil, fmt.Errorf("copying chunk %d: %w", i, err)
		}
		totalSize += n
	}
	if err := out.Close(); err != nil {
		os.Remove(finalPath)
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}

	return s.accept(id, name, totalSize)
}
