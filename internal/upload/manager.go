// Package upload finalizes chunked archive uploads in the background:
// chunks are assembled into a single file and the result is verified
// to be a readable diagnostic archive before it is handed to parsing.
package upload

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diaglog/backend/internal/archive"
	"github.com/diaglog/backend/internal/models"
)

// Status is the lifecycle state of an upload finalization job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusAssembling Status = "assembling"
	StatusVerifying  Status = "verifying"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Job tracks the async finalization of one chunked upload.
type Job struct {
	ID          string           `json:"id"`
	UploadID    string           `json:"uploadId"`
	FileName    string           `json:"fileName"`
	TotalChunks int              `json:"totalChunks"`
	Status      Status           `json:"status"`
	Progress    float64          `json:"progress"`
	Stage       string           `json:"stage"`
	MemberCount int              `json:"memberCount"`
	FileInfo    *models.FileInfo `json:"fileInfo,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// Store is the slice of the storage layer the upload manager needs.
type Store interface {
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	Delete(id string) error
}

// Manager runs upload finalization jobs.
type Manager struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	store Store
}

// NewManager creates an upload finalization manager.
func NewManager(store Store) *Manager {
	return &Manager{
		jobs:  make(map[string]*Job),
		store: store,
	}
}

// StartJob begins async finalization of a chunked upload.
func (m *Manager) StartJob(uploadID, fileName string, totalChunks int) *Job {
	job := &Job{
		ID:          uuid.New().String(),
		UploadID:    uploadID,
		FileName:    fileName,
		TotalChunks: totalChunks,
		Status:      StatusProcessing,
		Stage:       "preparing",
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.processJob(job)
	return job
}

// GetJob retrieves a job by id.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}

func (m *Manager) processJob(job *Job) {
	fmt.Printf("[UploadJob %s] Finalizing %s (%d chunks)\n", job.ID[:8], job.FileName, job.TotalChunks)

	// Stage 1: assemble chunks. The storage layer already rejects
	// assemblies with an unrecognized signature.
	m.updateJob(job, StatusAssembling, "assembling chunks")

	info, err := m.store.CompleteChunkedUpload(job.UploadID, job.FileName, job.TotalChunks)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("assembling chunks: %v", err))
		return
	}
	fmt.Printf("[UploadJob %s] Assembled archive %s (%d bytes, %s)\n", job.ID[:8], info.ID, info.Size, info.Format)

	// Stage 2: walk the archive directory without extracting anything.
	// A truncated or corrupt upload fails here instead of mid-parse.
	m.updateJob(job, StatusVerifying, "verifying archive structure")

	path, err := m.store.GetFilePath(info.ID)
	if err != nil {
		m.markJobError(job, err.Error())
		return
	}
	members, err := archive.ListMembers(path)
	if err != nil {
		m.store.Delete(info.ID)
		m.markJobError(job, fmt.Sprintf("verifying archive %s: %v", job.FileName, err))
		return
	}

	m.mu.Lock()
	job.MemberCount = len(members)
	job.FileInfo = info
	job.Status = StatusComplete
	job.Stage = "complete"
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
	m.mu.Unlock()
	fmt.Printf("[UploadJob %s] Complete: %s holds %d members\n", job.ID[:8], info.ID, len(members))
}

func (m *Manager) updateJob(job *Job, status Status, stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	// Assembling covers the bulk of the work; verification reads only
	// archive headers.
	switch status {
	case StatusAssembling:
		job.Progress = 20
	case StatusVerifying:
		job.Progress = 80
	}
}

func (m *Manager) markJobError(job *Job, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = msg
	now := time.Now()
	job.CompletedAt = &now
	fmt.Printf("[UploadJob %s] Error: %s\n", job.ID[:8], msg)
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status != StatusComplete && job.Status != StatusError {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}
