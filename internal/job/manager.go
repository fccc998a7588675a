// Package job runs parse requests as independent background jobs with
// cooperative cancellation, progress tracking and cleanup.
package job

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diaglog/backend/internal/archive"
	"github.com/diaglog/backend/internal/models"
	"github.com/diaglog/backend/internal/parser"
	"github.com/diaglog/backend/internal/timeutil"
)

// MaxJobs limits concurrently tracked jobs to prevent memory exhaustion.
const MaxJobs = 50

// JobMaxAge is how long finished jobs are kept before cleanup.
const JobMaxAge = 30 * time.Minute

// ResultStore persists finished results so they outlive the in-memory
// job map.
type ResultStore interface {
	SaveResult(jobID string, result *models.ParseResult) error
	GetResult(jobID string) (*models.ParseResult, error)
}

// Config tunes job execution. Zero values fall back to the package
// defaults.
type Config struct {
	TempDir            string        // filtered archives and scratch dirs
	Buffer             time.Duration // time-window filter buffer
	ReductionThreshold float64       // filter effectiveness threshold
	CheckpointLines    int           // cancellation checkpoint interval
	DefaultTimezone    string        // applied when a request omits one
	ErrorRules         *parser.ErrorRules
}

// Request carries the caller-facing parameters of one parse job.
type Request struct {
	FileID      string
	ArchivePath string
	Mode        string
	Timezone    string
	Start       *time.Time
	End         *time.Time
	ErrorLevel  string
}

// Manager tracks active parse jobs.
type Manager struct {
	mu      sync.RWMutex
	jobs    map[string]*jobState
	cfg     Config
	results ResultStore
}

type jobState struct {
	job          *models.ParseJob
	result       *models.ParseResult
	cancel       context.CancelFunc
	lastAccessed time.Time
}

// NewManager creates a job manager. results may be nil, in which case
// finished results are only held in memory.
func NewManager(cfg Config, results ResultStore) *Manager {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Manager{
		jobs:    make(map[string]*jobState),
		cfg:     cfg,
		results: results,
	}
}

// Start begins a parse job and returns its tracking record.
func (m *Manager) Start(req Request) (*models.ParseJob, error) {
	if req.Timezone == "" {
		req.Timezone = m.cfg.DefaultTimezone
	}
	mode, err := parser.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	level, err := parser.ParseErrorLevel(req.ErrorLevel)
	if err != nil {
		return nil, err
	}
	if _, err := timeutil.Location(req.Timezone); err != nil {
		return nil, err
	}

	m.cleanupIfAtLimit()

	jobID := uuid.New().String()
	j := models.NewParseJob(jobID, req.FileID, string(mode))

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.jobs[jobID] = &jobState{job: j, cancel: cancel, lastAccessed: time.Now()}
	m.mu.Unlock()

	go m.run(ctx, jobID, req, mode, level)
	return j, nil
}

func (m *Manager) run(ctx context.Context, jobID string, req Request, mode parser.Mode, level parser.ErrorLevel) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Job %s] PANIC recovered: %v\n", jobID[:8], r)
			m.markError(jobID, fmt.Sprintf("parse panicked: %v", r))
		}
	}()

	start := time.Now()
	fmt.Printf("[Job %s] Starting %s parse of %s\n", jobID[:8], mode, req.ArchivePath)

	// Pre-filter the archive by time window. Strictly an optimization:
	// on fallback the original archive parses unchanged.
	m.setStatus(jobID, models.JobStatusFiltering, 5)

	loc, err := timeutil.Location(req.Timezone)
	if err != nil {
		m.markError(jobID, err.Error())
		return
	}
	win, err := timeutil.NewWindow(req.Start, req.End, loc)
	if err != nil {
		m.markError(jobID, err.Error())
		return
	}
	if m.cfg.Buffer > 0 {
		win.Buffer = m.cfg.Buffer
	}

	archivePath := req.ArchivePath
	filteredPath, filtered := archive.FilterByWindow(archivePath, win, archive.FilterOptions{
		ReductionThreshold: m.cfg.ReductionThreshold,
		TempDir:            m.cfg.TempDir,
	})
	if filtered {
		fmt.Printf("[Job %s] Using filtered archive %s\n", jobID[:8], filteredPath)
		archivePath = filteredPath
		defer os.Remove(filteredPath)
	}

	m.setStatus(jobID, models.JobStatusParsing, 10)

	p, err := parser.New(mode, parser.Options{
		CheckpointLines: m.cfg.CheckpointLines,
		ScratchDir:      m.cfg.TempDir,
		ErrorLevel:      level,
		ErrorRules:      m.cfg.ErrorRules,
		OnProgress: func(lines int) {
			m.mu.Lock()
			if state, ok := m.jobs[jobID]; ok {
				state.job.LineCount = lines
				// Line totals are unknown up front; creep toward 90%.
				if state.job.Progress < 89 {
					state.job.Progress++
				}
			}
			m.mu.Unlock()
		},
	})
	if err != nil {
		m.markError(jobID, err.Error())
		return
	}

	result, err := p.Parse(ctx, &models.ParseRequest{
		ArchivePath: archivePath,
		Mode:        string(mode),
		Timezone:    req.Timezone,
		Start:       req.Start,
		End:         req.End,
	})
	if err != nil {
		fmt.Printf("[Job %s] ERROR: %v\n", jobID[:8], err)
		m.markError(jobID, err.Error())
		return
	}

	if m.results != nil {
		if err := m.results.SaveResult(jobID, result); err != nil {
			fmt.Printf("[Job %s] Warning: result store save failed: %v\n", jobID[:8], err)
		}
	}

	elapsed := time.Since(start).Milliseconds()
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.jobs[jobID]
	if !ok {
		return
	}
	state.result = result
	state.job.Progress = 100
	state.job.LineCount = result.LineCount
	state.job.RecordCount = result.RecordCount
	state.job.ProcessingTimeMs = elapsed
	state.job.ParseErrors = result.Errors
	if result.Cancelled {
		state.job.Status = models.JobStatusCancelled
	} else {
		state.job.Status = models.JobStatusComplete
	}
	fmt.Printf("[Job %s] Done: status=%s lines=%d elapsed=%dms errors=%d\n",
		jobID[:8], state.job.Status, result.LineCount, elapsed, len(result.Errors))
}

// Get returns a copy of the job record.
func (m *Manager) Get(jobID string) (*models.ParseJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.jobs[jobID]
	if !ok {
		return nil, false
	}
	state.lastAccessed = time.Now()
	j := *state.job
	return &j, true
}

// Result returns the finished result for a job, falling back to the
// result store when the in-memory state has been cleaned up.
func (m *Manager) Result(jobID string) (*models.ParseResult, error) {
	m.mu.RLock()
	var result *models.ParseResult
	if state, ok := m.jobs[jobID]; ok {
		result = state.result
	}
	m.mu.RUnlock()
	if result != nil {
		return result, nil
	}
	if m.results != nil {
		return m.results.GetResult(jobID)
	}
	return nil, fmt.Errorf("no result for job %s", jobID)
}

// Cancel requests cooperative cancellation of a running job.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.jobs[jobID]
	if !ok {
		return false
	}
	state.cancel()
	return true
}

func (m *Manager) setStatus(jobID string, status models.JobStatus, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.jobs[jobID]; ok {
		state.job.Status = status
		state.job.Progress = progress
	}
}

func (m *Manager) markError(jobID, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.jobs[jobID]; ok {
		state.job.Status = models.JobStatusError
		state.job.Error = msg
	}
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for id, state := range m.jobs {
		if !finished(state.job.Status) {
			continue
		}
		if state.lastAccessed.Before(cutoff) {
			state.cancel()
			delete(m.jobs, id)
		}
	}
}

func (m *Manager) cleanupIfAtLimit() {
	m.mu.Lock()
	count := len(m.jobs)
	m.mu.Unlock()
	if count >= MaxJobs {
		m.CleanupOldJobs(JobMaxAge)
	}
}

func finished(s models.JobStatus) bool {
	return s == models.JobStatusComplete || s == models.JobStatusError || s == models.JobStatusCancelled
}
